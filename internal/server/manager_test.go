package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func newTestManager(t *testing.T, mutate func(*Config)) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	if mutate != nil {
		mutate(&cfg)
	}
	m := NewManager(okHandler(), cfg, zap.NewNop())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

// --- DefaultConfig ---

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 120*time.Second, cfg.IdleTimeout)
	assert.Equal(t, 1<<20, cfg.MaxHeaderBytes)
	assert.Equal(t, 0, cfg.MaxConnections)
}

// --- Start / Shutdown lifecycle ---

func TestManager_StartAndShutdown(t *testing.T) {
	m := newTestManager(t, nil)
	assert.Equal(t, "127.0.0.1:0", m.Addr())

	require.NoError(t, m.Start())
	assert.NotEqual(t, "127.0.0.1:0", m.Addr())

	resp, err := http.Get("http://" + m.Addr() + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())

	// 幂等
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_DoubleStart(t *testing.T) {
	m := newTestManager(t, nil)

	require.NoError(t, m.Start())
	assert.ErrorContains(t, m.Start(), "already started")
}

func TestManager_StartAfterShutdown(t *testing.T) {
	m := newTestManager(t, nil)

	require.NoError(t, m.Start())
	require.NoError(t, m.Shutdown(context.Background()))

	assert.ErrorIs(t, m.Start(), ErrServerClosed)
}

func TestManager_ListenFailureReported(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	m := newTestManager(t, func(c *Config) { c.Addr = occupied.Addr().String() })
	assert.Error(t, m.Start())
}

func TestManager_MaxConnections(t *testing.T) {
	m := newTestManager(t, func(c *Config) { c.MaxConnections = 1 })
	require.NoError(t, m.Start())

	// 占用唯一的连接名额
	hog, err := net.Dial("tcp", m.Addr())
	require.NoError(t, err)

	client := &http.Client{Timeout: 200 * time.Millisecond}
	_, err = client.Get("http://" + m.Addr() + "/")
	assert.Error(t, err, "second connection must wait for a free slot")

	require.NoError(t, hog.Close())

	require.Eventually(t, func() bool {
		resp, err := (&http.Client{Timeout: time.Second}).Get("http://" + m.Addr() + "/")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 50*time.Millisecond)
}

func TestShutdownAll(t *testing.T) {
	a := newTestManager(t, nil)
	b := newTestManager(t, nil)
	require.NoError(t, a.Start())
	require.NoError(t, b.Start())

	require.NoError(t, ShutdownAll(context.Background(), a, nil, b))
	assert.False(t, a.IsRunning())
	assert.False(t, b.IsRunning())
}

func TestManager_Errors(t *testing.T) {
	m := newTestManager(t, nil)

	select {
	case <-m.Errors():
		t.Fatal("should not have received an error")
	default:
	}
}
