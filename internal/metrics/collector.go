// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 联邦 RPC 指标
	rpcRequestsTotal   *prometheus.CounterVec
	rpcRequestDuration *prometheus.HistogramVec
	invocationTokens   *prometheus.CounterVec
	invocationCost     *prometheus.CounterVec

	// 协议状态指标
	agreementTransitions   *prometheus.CounterVec
	policyDecisions        *prometheus.CounterVec
	rateLimitRejections    *prometheus.CounterVec
	journalEntries         *prometheus.CounterVec
	signatureVerifications *prometheus.CounterVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbQueryDuration   *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 联邦 RPC 指标
	c.rpcRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "federation",
			Name:      "rpc_requests_total",
			Help:      "Total number of federation RPC requests by outcome",
		},
		[]string{"method", "outcome"},
	)

	c.rpcRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "federation",
			Name:      "rpc_request_duration_seconds",
			Help:      "Federation RPC request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"method"},
	)

	c.invocationTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "federation",
			Name:      "invocation_tokens_total",
			Help:      "Tokens consumed by federated agent invocations",
		},
		[]string{"type"}, // type: input, output
	)

	c.invocationCost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "federation",
			Name:      "invocation_cost_usd_total",
			Help:      "Cost of federated agent invocations in USD",
		},
		[]string{"target_org"},
	)

	// 协议状态指标
	c.agreementTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "federation",
			Name:      "agreement_transitions_total",
			Help:      "Agreement lifecycle transitions",
		},
		[]string{"from", "to"},
	)

	c.policyDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "federation",
			Name:      "policy_decisions_total",
			Help:      "Policy engine decisions by result",
		},
		[]string{"result"},
	)

	c.rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "federation",
			Name:      "rate_limit_rejections_total",
			Help:      "Requests rejected by the caller rate limiter",
		},
		[]string{"endpoint"},
	)

	c.journalEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "federation",
			Name:      "journal_entries_total",
			Help:      "Message journal rows written",
		},
		[]string{"direction", "policy_result"},
	)

	c.signatureVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "federation",
			Name:      "signature_verifications_total",
			Help:      "Journal signature verification outcomes",
		},
		[]string{"status"},
	)

	// 缓存指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// 数据库指标
	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"database", "operation"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🌐 联邦 RPC 指标记录
// =============================================================================

// RecordRPC 记录一次 RPC 请求及其结果（completed, blocked, rejected, failed）
func (c *Collector) RecordRPC(method, outcome string, duration time.Duration) {
	c.rpcRequestsTotal.WithLabelValues(method, outcome).Inc()
	c.rpcRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordInvocationUsage 记录目标 Agent 调用的用量
func (c *Collector) RecordInvocationUsage(targetOrg string, inputTokens, outputTokens int, costUSD float64) {
	c.invocationTokens.WithLabelValues("input").Add(float64(inputTokens))
	c.invocationTokens.WithLabelValues("output").Add(float64(outputTokens))
	c.invocationCost.WithLabelValues(targetOrg).Add(costUSD)
}

// =============================================================================
// 🤝 协议状态指标记录
// =============================================================================

// RecordAgreementTransition 记录协议状态迁移
func (c *Collector) RecordAgreementTransition(from, to string) {
	c.agreementTransitions.WithLabelValues(from, to).Inc()
}

// RecordPolicyDecision 记录策略判定
func (c *Collector) RecordPolicyDecision(result string) {
	c.policyDecisions.WithLabelValues(result).Inc()
}

// RecordRateLimited 记录一次限流拒绝
func (c *Collector) RecordRateLimited(endpoint string) {
	c.rateLimitRejections.WithLabelValues(endpoint).Inc()
}

// RecordJournalEntry 记录消息日志写入
func (c *Collector) RecordJournalEntry(direction, policyResult string) {
	c.journalEntries.WithLabelValues(direction, policyResult).Inc()
}

// RecordSignatureVerification 记录签名校验结果
func (c *Collector) RecordSignatureVerification(status string) {
	c.signatureVerifications.WithLabelValues(status).Inc()
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// RecordDBQuery 记录数据库查询
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
