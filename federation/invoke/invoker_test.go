package invoke

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BaSui01/agentfed/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEcho(t *testing.T) {
	res, err := Echo().Invoke(context.Background(), Request{Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", res.Text)
}

func TestHTTPInvoker_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "org-a", r.Header.Get("X-Federation-Caller"))

		var body agentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "conv-1", body.ConversationID)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"reply to ` + body.Message + `","usage":{"inputTokens":3,"outputTokens":7},"costUsd":0.01,"runId":"run-9"}`))
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(config.InvokerConfig{Timeout: time.Second}, zap.NewNop(), WithHTTPClient(srv.Client()))
	res, err := inv.Invoke(context.Background(), Request{
		CallerOrgID: "org-a", Endpoint: srv.URL, ConversationID: "conv-1", Message: "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "reply to hello", res.Text)
	require.NotNil(t, res.InputTokens)
	assert.Equal(t, 3, *res.InputTokens)
	require.NotNil(t, res.CostUSD)
	assert.InDelta(t, 0.01, *res.CostUSD, 1e-9)
	assert.Equal(t, "run-9", res.RunID)
}

func TestHTTPInvoker_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(config.InvokerConfig{}, zap.NewNop(), WithHTTPClient(srv.Client()))

	_, err := inv.Invoke(context.Background(), Request{Endpoint: srv.URL, Message: "x"})
	assert.ErrorIs(t, err, ErrInvocationFailed)

	_, err = inv.Invoke(context.Background(), Request{AgentSlug: "agent-x", Message: "x"})
	assert.ErrorIs(t, err, ErrInvocationFailed)
}

func TestHTTPInvoker_EchoFallbackFromConfig(t *testing.T) {
	res, err := NewHTTPInvoker(config.InvokerConfig{EchoFallback: true}, zap.NewNop()).
		Invoke(context.Background(), Request{AgentSlug: "agent-x", Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", res.Text)

	_, err = NewHTTPInvoker(config.InvokerConfig{}, zap.NewNop()).
		Invoke(context.Background(), Request{AgentSlug: "agent-x", Message: "hello"})
	assert.ErrorIs(t, err, ErrInvocationFailed)
}

func TestHTTPInvoker_Fallback(t *testing.T) {
	inv := NewHTTPInvoker(config.InvokerConfig{}, zap.NewNop(), WithFallback(Echo()))

	res, err := inv.Invoke(context.Background(), Request{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", res.Text)
}
