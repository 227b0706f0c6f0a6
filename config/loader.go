// =============================================================================
// 📦 agentfed 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("AGENTFED").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 agentfed 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Database 数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Redis 共享计数器配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Federation 联邦协议配置
	Federation FederationConfig `yaml:"federation" env:"FEDERATION"`

	// Auth 凭证解析配置
	Auth AuthConfig `yaml:"auth" env:"AUTH"`

	// Audit 审计落地配置
	Audit AuditConfig `yaml:"audit" env:"AUDIT"`

	// Invoker 目标 Agent 调用配置
	Invoker InvokerConfig `yaml:"invoker" env:"INVOKER"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// TLS 证书与私钥，均配置时启用 HTTPS
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile  string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
	// 最大并发连接数，0 表示不限制
	MaxConnections int `yaml:"max_connections" env:"MAX_CONNECTIONS"`
	// 允许的跨域来源
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// 管理接口的每 IP 令牌桶
	RateLimitRPS   int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite, sqlite3
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 下为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// FederationConfig 联邦协议配置
type FederationConfig struct {
	// RPC 信封中期望的协议版本字面量
	ProtocolVersion string `yaml:"protocol_version" env:"PROTOCOL_VERSION"`
	// 审批策略: responder_only, either_party
	ApprovalPolicy string `yaml:"approval_policy" env:"APPROVAL_POLICY"`
	// 通道加密算法: aes-256-gcm, xchacha20-poly1305
	ChannelCipher string `yaml:"channel_cipher" env:"CHANNEL_CIPHER"`
	// 主密钥，用于封存通道密钥与组织私钥（至少 32 字节）
	MasterKey string `yaml:"master_key" env:"MASTER_KEY"`
	// 调用方限流
	RateLimit RateLimitConfig `yaml:"rate_limit" env:"RATE_LIMIT"`
	// 追加的分级检测规则：正则 → 分级，例如 {"(?i)project falcon": "restricted"}
	ClassificationPatterns map[string]string `yaml:"classification_patterns" env:"-"`
}

// RateLimitConfig 调用方固定窗口限流配置
type RateLimitConfig struct {
	// 后端: memory, redis
	Backend string `yaml:"backend" env:"BACKEND"`
	// 窗口长度
	Window time.Duration `yaml:"window" env:"WINDOW"`
	// 未单独配置的端点使用的默认上限
	DefaultLimit int `yaml:"default_limit" env:"DEFAULT_LIMIT"`
	// 按端点覆盖，例如 {"rpc": 120}
	Endpoints map[string]int `yaml:"endpoints" env:"-"`
}

// LimitFor 返回端点限额，未配置时回退到默认值
func (c RateLimitConfig) LimitFor(endpoint string) int {
	if n, ok := c.Endpoints[endpoint]; ok && n > 0 {
		return n
	}
	return c.DefaultLimit
}

// AuthConfig 凭证解析配置
type AuthConfig struct {
	// 是否启用数据库 API Key
	APIKeysEnabled bool `yaml:"api_keys_enabled" env:"API_KEYS_ENABLED"`
	// JWT 配置
	JWT JWTConfig `yaml:"jwt" env:"JWT"`
}

// JWTConfig JWT 校验配置
type JWTConfig struct {
	// HS256 密钥
	Secret string `yaml:"secret" env:"SECRET"`
	// RS256 公钥（PEM）
	PublicKey string `yaml:"public_key" env:"PUBLIC_KEY"`
	// 期望的签发方
	Issuer string `yaml:"issuer" env:"ISSUER"`
	// 期望的受众
	Audience string `yaml:"audience" env:"AUDIENCE"`
}

// Enabled 是否配置了任意一种 JWT 校验密钥
func (c JWTConfig) Enabled() bool {
	return c.Secret != "" || c.PublicKey != ""
}

// AuditConfig 审计落地配置
type AuditConfig struct {
	// 落地方式: log, database, mongo
	Sink string `yaml:"sink" env:"SINK"`
	// MongoDB 连接串
	MongoURI string `yaml:"mongo_uri" env:"MONGO_URI"`
	// MongoDB 库名
	MongoDatabase string `yaml:"mongo_database" env:"MONGO_DATABASE"`
	// MongoDB 集合名
	MongoCollection string `yaml:"mongo_collection" env:"MONGO_COLLECTION"`
}

// InvokerConfig 目标 Agent 调用配置
type InvokerConfig struct {
	// 单次调用超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`

	// EchoFallback 未配置 endpoint 的 Agent 回显消息，仅用于本地开发
	EchoFallback bool `yaml:"echo_fallback" env:"ECHO_FALLBACK"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "AGENTFED",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, "tls_cert_file and tls_key_file must be set together")
	}

	switch c.Federation.ApprovalPolicy {
	case ApprovalResponderOnly, ApprovalEitherParty:
	default:
		errs = append(errs, fmt.Sprintf("unknown approval_policy %q", c.Federation.ApprovalPolicy))
	}
	switch c.Federation.ChannelCipher {
	case CipherAESGCM, CipherXChaCha:
	default:
		errs = append(errs, fmt.Sprintf("unknown channel_cipher %q", c.Federation.ChannelCipher))
	}
	if len(c.Federation.MasterKey) < 32 {
		errs = append(errs, "federation.master_key must be at least 32 bytes")
	}
	if c.Federation.ProtocolVersion == "" {
		errs = append(errs, "federation.protocol_version is required")
	}

	for expr, level := range c.Federation.ClassificationPatterns {
		if _, err := regexp.Compile(expr); err != nil {
			errs = append(errs, fmt.Sprintf("invalid classification pattern %q: %v", expr, err))
		}
		switch strings.ToLower(strings.TrimSpace(level)) {
		case "public", "internal", "confidential", "restricted":
		default:
			errs = append(errs, fmt.Sprintf("unknown classification level %q for pattern %q", level, expr))
		}
	}

	rl := c.Federation.RateLimit
	if rl.Window <= 0 {
		errs = append(errs, "rate_limit.window must be positive")
	}
	if rl.DefaultLimit <= 0 {
		errs = append(errs, "rate_limit.default_limit must be positive")
	}
	if rl.Backend != RateLimitMemory && rl.Backend != RateLimitRedis {
		errs = append(errs, fmt.Sprintf("unknown rate_limit.backend %q", rl.Backend))
	}

	switch c.Audit.Sink {
	case AuditSinkLog, AuditSinkDatabase:
	case AuditSinkMongo:
		if c.Audit.MongoURI == "" {
			errs = append(errs, "audit.mongo_uri is required for the mongo sink")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown audit.sink %q", c.Audit.Sink))
	}

	if !c.Auth.APIKeysEnabled && !c.Auth.JWT.Enabled() {
		errs = append(errs, "at least one credential resolver (api keys or jwt) must be enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite", "sqlite3":
		return d.Name
	default:
		return ""
	}
}
