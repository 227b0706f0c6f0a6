package gateway

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/BaSui01/agentfed/federation"
)

// JSON-RPC 错误码
const (
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeApplication    = -32000
)

// 方法名
const (
	MethodTasksSend = "tasks/send"
	MethodTasksGet  = "tasks/get"
)

// DefaultProtocolVersion 默认期望的协议版本
const DefaultProtocolVersion = "2.0"

// RPCError 响应中的错误对象
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return e.Message }

func rpcError(code int, msg string) *RPCError {
	return &RPCError{Code: code, Message: msg}
}

// Response 响应信封
type Response struct {
	JSONRPC         string          `json:"jsonrpc,omitempty"`
	ProtocolVersion string          `json:"protocolVersion,omitempty"`
	ID              json.RawMessage `json:"id"`
	Result          any             `json:"result,omitempty"`
	Error           *RPCError       `json:"error,omitempty"`
}

var nullID = json.RawMessage("null")

// envelope 原始请求信封
type envelope struct {
	JSONRPC         *string         `json:"jsonrpc"`
	ProtocolVersion *string         `json:"protocolVersion"`
	ID              json.RawMessage `json:"id"`
	Method          *string         `json:"method"`
	Params          json.RawMessage `json:"params"`
}

// 信封中携带版本号的字段名
const (
	fieldJSONRPC         = "jsonrpc"
	fieldProtocolVersion = "protocolVersion"
)

// request 通过信封校验的请求
type request struct {
	id          json.RawMessage
	method      string
	params      json.RawMessage
	versionedBy string
}

// decodeEnvelope 校验信封。id 与版本字段能识别时随错误一并返回，供响应沿用。
func decodeEnvelope(body []byte, version string) (*request, json.RawMessage, *RPCError) {
	var env envelope
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&env); err != nil {
		return nil, nullID, rpcError(CodeInvalidRequest, "invalid request envelope")
	}

	id := nullID
	if validID(env.ID) {
		id = env.ID
	}

	req := &request{id: id, params: env.Params}
	switch {
	case env.JSONRPC != nil:
		req.versionedBy = fieldJSONRPC
		if *env.JSONRPC != version {
			return req, id, rpcError(CodeInvalidRequest, "unsupported protocol version")
		}
	case env.ProtocolVersion != nil:
		req.versionedBy = fieldProtocolVersion
		if *env.ProtocolVersion != version {
			return req, id, rpcError(CodeInvalidRequest, "unsupported protocol version")
		}
	default:
		return req, id, rpcError(CodeInvalidRequest, "missing protocol version")
	}

	if len(env.ID) > 0 && !validID(env.ID) {
		return req, nullID, rpcError(CodeInvalidRequest, "id must be a string, number or null")
	}
	if env.Method == nil || strings.TrimSpace(*env.Method) == "" {
		return req, id, rpcError(CodeInvalidRequest, "method is required")
	}
	req.method = *env.Method
	return req, id, nil
}

func validID(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	switch raw[0] {
	case '"':
		var s string
		return json.Unmarshal(raw, &s) == nil
	case 'n':
		return string(raw) == "null"
	default:
		var n json.Number
		return json.Unmarshal(raw, &n) == nil
	}
}

// =============================================================================
// 🧩 调用解析
// =============================================================================

// call 按方法解析后的调用
type call interface {
	methodName() string
}

// sendTaskCall tasks/send 参数
type sendTaskCall struct {
	TargetOrgSlug      string
	TargetAgentSlug    string
	Message            string
	ConversationID     string
	Skill              string
	ContentType        string
	DataClassification federation.Classification
}

func (sendTaskCall) methodName() string { return MethodTasksSend }

type sendTaskParams struct {
	TargetOrgSlug   string          `json:"targetOrgSlug"`
	TargetAgentSlug string          `json:"targetAgentSlug"`
	Message         json.RawMessage `json:"message"`
	ConversationID  string          `json:"conversationId"`
	Metadata        struct {
		DataClassification string `json:"dataClassification"`
		Skill              string `json:"skill"`
		ContentType        string `json:"contentType"`
	} `json:"metadata"`
}

// parseCall 把方法与参数解析为具体调用。
func parseCall(method string, params json.RawMessage) (call, *RPCError) {
	switch method {
	case MethodTasksSend:
		return parseSendTask(params)
	case MethodTasksGet:
		return nil, rpcError(CodeMethodNotFound, "method tasks/get is not implemented")
	default:
		return nil, rpcError(CodeMethodNotFound, "method not found")
	}
}

func parseSendTask(raw json.RawMessage) (call, *RPCError) {
	var p sendTaskParams
	if len(bytes.TrimSpace(raw)) == 0 || json.Unmarshal(raw, &p) != nil {
		return nil, rpcError(CodeInvalidParams, "params must be an object")
	}

	var message string
	if len(p.Message) > 0 && json.Unmarshal(p.Message, &message) != nil {
		return nil, rpcError(CodeInvalidParams, "message must be a string")
	}

	c := sendTaskCall{
		TargetOrgSlug:   strings.TrimSpace(p.TargetOrgSlug),
		TargetAgentSlug: strings.TrimSpace(p.TargetAgentSlug),
		Message:         message,
		ConversationID:  strings.TrimSpace(p.ConversationID),
		Skill:           strings.TrimSpace(p.Metadata.Skill),
		ContentType:     strings.TrimSpace(p.Metadata.ContentType),
	}
	if c.TargetOrgSlug == "" || c.TargetAgentSlug == "" || strings.TrimSpace(c.Message) == "" {
		return nil, rpcError(CodeInvalidParams, "targetOrgSlug, targetAgentSlug and message are required")
	}
	if p.Metadata.DataClassification != "" {
		level, err := federation.ParseClassification(p.Metadata.DataClassification)
		if err != nil {
			return nil, rpcError(CodeInvalidParams, "unknown metadata.dataClassification")
		}
		c.DataClassification = level
	}
	return c, nil
}

// =============================================================================
// 📤 结果
// =============================================================================

// TaskResult tasks/send 的结果
type TaskResult struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	Status         TaskStatus   `json:"status"`
	Artifacts      []Artifact   `json:"artifacts"`
	Metadata       TaskMetadata `json:"metadata"`
}

// TaskStatus 任务状态
type TaskStatus struct {
	State string `json:"state"`
}

// Artifact 任务产出
type Artifact struct {
	Parts []Part `json:"parts"`
}

// Part 产出片段
type Part struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// TaskMetadata 联邦相关的附加信息
type TaskMetadata struct {
	AgreementID  string                  `json:"agreementId"`
	PolicyResult federation.PolicyResult `json:"policyResult"`
	LatencyMs    int64                   `json:"latencyMs"`
	InputTokens  *int                    `json:"inputTokens,omitempty"`
	OutputTokens *int                    `json:"outputTokens,omitempty"`
	CostUSD      *float64                `json:"costUsd,omitempty"`
}
