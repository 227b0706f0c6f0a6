package invoke

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/agentfed/config"
	"github.com/BaSui01/agentfed/internal/tlsutil"
	"go.uber.org/zap"
)

// ErrInvocationFailed 目标 Agent 调用失败
var ErrInvocationFailed = errors.New("invoke: agent invocation failed")

// defaultTimeout 未配置时的单次调用超时
const defaultTimeout = 60 * time.Second

// Request 一次跨组织调用
type Request struct {
	CallerOrgID    string
	TargetOrgID    string
	AgentID        string
	AgentSlug      string
	Endpoint       string
	ConversationID string
	Message        string
}

// Result 调用结果
type Result struct {
	Text         string
	InputTokens  *int
	OutputTokens *int
	CostUSD      *float64
	RunID        string
}

// Invoker 目标 Agent 调用接口
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*Result, error)
}

// Func 函数适配器
type Func func(ctx context.Context, req Request) (*Result, error)

// Invoke 实现 Invoker。
func (f Func) Invoke(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}

// Echo 回显消息的 Invoker，仅供本地开发与测试
func Echo() Invoker {
	return Func(func(_ context.Context, req Request) (*Result, error) {
		return &Result{Text: "echo: " + req.Message}, nil
	})
}

// =============================================================================
// 🌐 HTTP 适配器
// =============================================================================

type agentRequest struct {
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
	CallerOrgID    string `json:"callerOrgId"`
}

type agentUsage struct {
	InputTokens  *int `json:"inputTokens,omitempty"`
	OutputTokens *int `json:"outputTokens,omitempty"`
}

type agentResponse struct {
	Text    string     `json:"text"`
	Usage   agentUsage `json:"usage"`
	CostUSD *float64   `json:"costUsd,omitempty"`
	RunID   string     `json:"runId,omitempty"`
}

// HTTPInvoker 通过 HTTP 调用 Agent endpoint
type HTTPInvoker struct {
	client   *http.Client
	fallback Invoker
	logger   *zap.Logger
}

// HTTPOption 配置 HTTPInvoker
type HTTPOption func(*HTTPInvoker)

// WithFallback Agent 未配置 endpoint 时使用的调用器。
func WithFallback(inv Invoker) HTTPOption {
	return func(h *HTTPInvoker) { h.fallback = inv }
}

// WithHTTPClient 替换 HTTP 客户端，测试使用。
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPInvoker) {
		if c != nil {
			h.client = c
		}
	}
}

// NewHTTPInvoker 创建 HTTP 调用器。
func NewHTTPInvoker(cfg config.InvokerConfig, logger *zap.Logger, opts ...HTTPOption) *HTTPInvoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	h := &HTTPInvoker{
		client: tlsutil.SecureHTTPClient(timeout),
		logger: logger.With(zap.String("component", "http_invoker")),
	}
	if cfg.EchoFallback {
		h.fallback = Echo()
		h.logger.Warn("echo fallback enabled, agents without endpoint will echo messages")
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Invoke 实现 Invoker。
func (h *HTTPInvoker) Invoke(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Endpoint) == "" {
		if h.fallback != nil {
			return h.fallback.Invoke(ctx, req)
		}
		return nil, fmt.Errorf("%w: agent %s has no endpoint", ErrInvocationFailed, req.AgentSlug)
	}

	payload, err := json.Marshal(agentRequest{
		ConversationID: req.ConversationID,
		Message:        req.Message,
		CallerOrgID:    req.CallerOrgID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvocationFailed, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvocationFailed, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Federation-Caller", req.CallerOrgID)

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvocationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		h.logger.Warn("agent returned error",
			zap.String("agent", req.AgentSlug),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return nil, fmt.Errorf("%w: agent responded with status %d", ErrInvocationFailed, resp.StatusCode)
	}

	var out agentResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrInvocationFailed, err)
	}
	return &Result{
		Text:         out.Text,
		InputTokens:  out.Usage.InputTokens,
		OutputTokens: out.Usage.OutputTokens,
		CostUSD:      out.CostUSD,
		RunID:        out.RunID,
	}, nil
}
