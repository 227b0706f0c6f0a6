package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/BaSui01/agentfed/federation"
	"github.com/BaSui01/agentfed/federation/audit"
	"github.com/BaSui01/agentfed/federation/auth"
	"github.com/BaSui01/agentfed/federation/invoke"
	"github.com/BaSui01/agentfed/federation/journal"
	"github.com/BaSui01/agentfed/federation/policy"
	"github.com/BaSui01/agentfed/federation/ratelimit"
	"github.com/BaSui01/agentfed/internal/telemetry"
	"github.com/BaSui01/agentfed/types"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// defaultMaxBodyBytes 请求体上限
const defaultMaxBodyBytes = 1 << 20

// Directory 组织目录
type Directory interface {
	OrganizationBySlug(ctx context.Context, slug string) (*federation.Organization, error)
	AgentBySlug(ctx context.Context, orgID, slug string) (*federation.Agent, error)
}

// Agreements 协议与 Exposure 查询
type Agreements interface {
	FindActiveAgreement(ctx context.Context, orgA, orgB string) (*federation.Agreement, error)
	FindExposure(ctx context.Context, agreementID, ownerOrgID, agentID string) (*federation.Exposure, error)
}

// PolicyEvaluator 治理策略评估，由 *policy.Engine 实现。
type PolicyEvaluator interface {
	Evaluate(ctx context.Context, ex policy.Exchange, gov federation.Governance) (policy.Decision, error)
}

// Journal 消息日志，由 *journal.Journal 实现。
type Journal interface {
	Record(ctx context.Context, e journal.Entry) (*federation.Message, error)
}

// Recorder 网关指标
type Recorder interface {
	RecordRPC(method, outcome string, duration time.Duration)
	RecordInvocationUsage(targetOrg string, inputTokens, outputTokens int, costUSD float64)
	RecordRateLimited(endpoint string)
}

// Deps 网关依赖
type Deps struct {
	Auth       auth.Resolver
	Limiter    ratelimit.Limiter
	Directory  Directory
	Agreements Agreements
	Policy     PolicyEvaluator
	Invoker    invoke.Invoker
	Journal    Journal
	Audit      audit.Sink
	Metrics    Recorder
}

// Config 网关配置
type Config struct {
	// ProtocolVersion 期望的信封版本字面量
	ProtocolVersion string
	// RateLimit 每个凭证每窗口的请求上限，非正数表示不限
	RateLimit int
	// MaxBodyBytes 请求体上限
	MaxBodyBytes int64
}

// Gateway 联邦 RPC 网关
type Gateway struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// New 创建网关。
func New(deps Deps, cfg Config, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProtocolVersion == "" {
		cfg.ProtocolVersion = DefaultProtocolVersion
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if deps.Audit == nil {
		deps.Audit = audit.Nop{}
	}
	return &Gateway{
		deps:   deps,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "federation_gateway")),
		now:    time.Now,
	}
}

// ServeHTTP 处理 POST /a2a。
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := g.now()
	ctx, span := telemetry.StartSpan(r.Context(), "federation.rpc")
	defer span.End()

	method := "unknown"
	outcome := "ok"
	defer func() {
		span.SetAttributes(telemetry.AttrRPCMethod.String(method), telemetry.AttrRPCOutcome.String(outcome))
		if outcome != "ok" {
			span.SetStatus(otelcodes.Error, outcome)
		}
		if g.deps.Metrics != nil {
			g.deps.Metrics.RecordRPC(method, outcome, g.now().Sub(start))
		}
	}()

	// 1. 认证先于任何请求体解析
	caller, err := g.authenticate(r)
	if err != nil {
		outcome = strconv.Itoa(CodeApplication)
		g.writeError(w, http.StatusUnauthorized, nil, nullID, rpcError(CodeApplication, "unauthorized"))
		return
	}
	ctx = types.WithCaller(ctx, caller)
	span.SetAttributes(telemetry.AttrSourceOrg.String(caller.OrganizationID))

	// 2. 按凭证限流
	if !g.allow(ctx, w, caller) {
		outcome = "rate_limited"
		g.writeError(w, http.StatusTooManyRequests, nil, nullID, rpcError(CodeApplication, "rate limit exceeded"))
		return
	}

	// 3. 信封
	body, err := io.ReadAll(io.LimitReader(r.Body, g.cfg.MaxBodyBytes+1))
	if err != nil || int64(len(body)) > g.cfg.MaxBodyBytes {
		outcome = strconv.Itoa(CodeInvalidRequest)
		g.writeError(w, http.StatusOK, nil, nullID, rpcError(CodeInvalidRequest, "invalid request envelope"))
		return
	}
	req, id, rerr := decodeEnvelope(body, g.cfg.ProtocolVersion)
	if rerr != nil {
		outcome = strconv.Itoa(rerr.Code)
		g.writeError(w, http.StatusOK, req, id, rerr)
		return
	}
	method = metricMethod(req.method)

	result, rerr := g.dispatch(ctx, caller, req)
	if ctx.Err() != nil {
		// 调用方已断开
		outcome = "cancelled"
		return
	}
	if rerr != nil {
		outcome = strconv.Itoa(rerr.Code)
		g.writeError(w, http.StatusOK, req, req.id, rerr)
		return
	}
	g.write(w, http.StatusOK, Response{
		JSONRPC:         versionField(req, fieldJSONRPC, g.cfg.ProtocolVersion),
		ProtocolVersion: versionField(req, fieldProtocolVersion, g.cfg.ProtocolVersion),
		ID:              req.id,
		Result:          result,
	})
}

func (g *Gateway) authenticate(r *http.Request) (types.Caller, error) {
	token, ok := auth.BearerToken(r)
	if !ok || g.deps.Auth == nil {
		return types.Caller{}, auth.ErrUnauthenticated
	}
	caller, err := g.deps.Auth.Resolve(r.Context(), token)
	if err != nil {
		if !errors.Is(err, auth.ErrUnauthenticated) {
			g.logger.Warn("credential resolution failed", zap.Error(err))
		}
		return types.Caller{}, err
	}
	if caller.OrganizationID == "" {
		return types.Caller{}, auth.ErrUnauthenticated
	}
	return caller, nil
}

// allow 限流，限流器出错时放行。
func (g *Gateway) allow(ctx context.Context, w http.ResponseWriter, caller types.Caller) bool {
	if g.deps.Limiter == nil || g.cfg.RateLimit <= 0 {
		return true
	}
	keyID := caller.KeyID
	if keyID == "" {
		keyID = caller.OrganizationID + ":" + caller.UserID
	}
	res, err := g.deps.Limiter.Allow(ctx, "key:"+keyID, g.cfg.RateLimit)
	if err != nil {
		g.logger.Warn("rate limiter unavailable, allowing request", zap.Error(err))
		return true
	}
	ratelimit.WriteHeaders(w, g.cfg.RateLimit, res)
	if res.Allowed {
		return true
	}
	if g.deps.Metrics != nil {
		g.deps.Metrics.RecordRateLimited("rpc")
	}
	return false
}

// dispatch 解析调用并执行，未预期的 panic 转为 -32603。
func (g *Gateway) dispatch(ctx context.Context, caller types.Caller, req *request) (result any, rerr *RPCError) {
	defer func() {
		if p := recover(); p != nil {
			g.logger.Error("rpc handler panicked",
				zap.String("method", req.method),
				zap.Any("panic", p),
			)
			result, rerr = nil, rpcError(CodeInternalError, "internal error")
		}
	}()

	c, perr := parseCall(req.method, req.params)
	if perr != nil {
		return nil, perr
	}
	switch c := c.(type) {
	case sendTaskCall:
		return g.sendTask(ctx, caller, c)
	default:
		return nil, rpcError(CodeMethodNotFound, "method not found")
	}
}

// =============================================================================
// 📤 响应
// =============================================================================

func (g *Gateway) writeError(w http.ResponseWriter, status int, req *request, id json.RawMessage, rerr *RPCError) {
	if id == nil {
		id = nullID
	}
	g.write(w, status, Response{
		JSONRPC:         versionField(req, fieldJSONRPC, g.cfg.ProtocolVersion),
		ProtocolVersion: versionField(req, fieldProtocolVersion, g.cfg.ProtocolVersion),
		ID:              id,
		Error:           rerr,
	})
}

func (g *Gateway) write(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		g.logger.Debug("write rpc response failed", zap.Error(err))
	}
}

// versionField 响应沿用请求携带版本号的字段，未知时使用 protocolVersion。
func versionField(req *request, field, version string) string {
	used := fieldProtocolVersion
	if req != nil && req.versionedBy != "" {
		used = req.versionedBy
	}
	if used == field {
		return version
	}
	return ""
}

func metricMethod(m string) string {
	switch m {
	case MethodTasksSend, MethodTasksGet:
		return m
	}
	return "other"
}

func internalError(logger *zap.Logger, step string, err error) *RPCError {
	logger.Error("rpc internal failure", zap.String("step", step), zap.Error(err))
	return rpcError(CodeInternalError, "internal error")
}

func appError(format string, args ...any) *RPCError {
	return rpcError(CodeApplication, fmt.Sprintf(format, args...))
}
