package ratelimit

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// Recorder 限流拒绝指标
type Recorder interface {
	RecordRateLimited(endpoint string)
}

// Middleware 按客户端 IP 对 endpoint 限流。Limiter 出错时放行。
func Middleware(limiter Limiter, endpoint string, limit int, recorder Recorder, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + endpoint + ":" + ClientIP(r)
			res, err := limiter.Allow(r.Context(), key, limit)
			if err != nil {
				logger.Warn("rate limiter unavailable, allowing request",
					zap.String("endpoint", endpoint),
					zap.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}

			WriteHeaders(w, limit, res)
			if !res.Allowed {
				if recorder != nil {
					recorder.RecordRateLimited(endpoint)
				}
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"success": false,
					"error": map[string]string{
						"code":    "RATE_LIMITED",
						"message": "too many requests",
					},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteHeaders 写入限流响应头。
func WriteHeaders(w http.ResponseWriter, limit int, res Result) {
	if res.Remaining < 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	if !res.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
	}
}

// ClientIP 取连接对端地址，不信任转发头。
func ClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
