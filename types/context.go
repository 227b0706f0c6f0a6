package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyTraceID   contextKey = "trace_id"
	keyRequestID contextKey = "request_id"
	keyCaller    contextKey = "caller"
)

// Caller 是凭证解析出的外部调用方，下游一律把它当作发起组织。
type Caller struct {
	OrganizationID string `json:"organizationId"`
	UserID         string `json:"userId"`
	KeyID          string `json:"keyId,omitempty"`
}

// WithTraceID adds trace ID to context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, keyTraceID, traceID)
}

// TraceID extracts trace ID from context.
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTraceID).(string)
	return v, ok && v != ""
}

// WithRequestID adds request ID to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

// RequestID extracts request ID from context.
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRequestID).(string)
	return v, ok && v != ""
}

// WithCaller adds the authenticated caller to context.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, keyCaller, caller)
}

// CallerFrom extracts the authenticated caller from context.
func CallerFrom(ctx context.Context) (Caller, bool) {
	v, ok := ctx.Value(keyCaller).(Caller)
	return v, ok && v.OrganizationID != ""
}
