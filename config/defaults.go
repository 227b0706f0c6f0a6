// =============================================================================
// 📦 agentfed 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// 审批策略
const (
	ApprovalResponderOnly = "responder_only"
	ApprovalEitherParty   = "either_party"
)

// 通道加密算法
const (
	CipherAESGCM  = "aes-256-gcm"
	CipherXChaCha = "xchacha20-poly1305"
)

// 限流后端
const (
	RateLimitMemory = "memory"
	RateLimitRedis  = "redis"
)

// 审计落地方式
const (
	AuditSinkLog      = "log"
	AuditSinkDatabase = "database"
	AuditSinkMongo    = "mongo"
)

// DefaultConfig 返回默认配置
//
// MasterKey 没有默认值，部署时必须显式提供。
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Database:   DefaultDatabaseConfig(),
		Redis:      DefaultRedisConfig(),
		Federation: DefaultFederationConfig(),
		Auth:       DefaultAuthConfig(),
		Audit:      DefaultAuditConfig(),
		Invoker:    DefaultInvokerConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		MaxConnections:  0,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "agentfed",
		Password:        "",
		Name:            "agentfed",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultFederationConfig 返回默认联邦配置
func DefaultFederationConfig() FederationConfig {
	return FederationConfig{
		ProtocolVersion: "2.0",
		ApprovalPolicy:  ApprovalResponderOnly,
		ChannelCipher:   CipherAESGCM,
		RateLimit: RateLimitConfig{
			Backend:      RateLimitMemory,
			Window:       time.Minute,
			DefaultLimit: 60,
			Endpoints:    map[string]int{},
		},
	}
}

// DefaultAuthConfig 返回默认凭证配置
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		APIKeysEnabled: true,
	}
}

// DefaultAuditConfig 返回默认审计配置
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		Sink:            AuditSinkLog,
		MongoDatabase:   "agentfed",
		MongoCollection: "audit_records",
	}
}

// DefaultInvokerConfig 返回默认调用配置
func DefaultInvokerConfig() InvokerConfig {
	return InvokerConfig{
		Timeout: 2 * time.Minute,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentfed",
		SampleRate:   0.1,
	}
}
