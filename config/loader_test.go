// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMasterKey = "0123456789abcdef0123456789abcdef"

// --- 默认配置测试 ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// 验证服务器默认值
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)

	// 验证联邦默认值
	assert.Equal(t, "2.0", cfg.Federation.ProtocolVersion)
	assert.Equal(t, ApprovalResponderOnly, cfg.Federation.ApprovalPolicy)
	assert.Equal(t, CipherAESGCM, cfg.Federation.ChannelCipher)
	assert.Empty(t, cfg.Federation.MasterKey)
	assert.Equal(t, RateLimitMemory, cfg.Federation.RateLimit.Backend)
	assert.Equal(t, time.Minute, cfg.Federation.RateLimit.Window)
	assert.Equal(t, 60, cfg.Federation.RateLimit.DefaultLimit)

	// 验证 Redis 默认值
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)

	// 验证 Database 默认值
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)

	// 验证审计与日志默认值
	assert.Equal(t, AuditSinkLog, cfg.Audit.Sink)
	assert.False(t, cfg.Invoker.EchoFallback)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestRateLimitConfig_LimitFor(t *testing.T) {
	rl := RateLimitConfig{DefaultLimit: 60, Endpoints: map[string]int{"rpc": 5, "zero": 0}}
	assert.Equal(t, 5, rl.LimitFor("rpc"))
	assert.Equal(t, 60, rl.LimitFor("other"))
	assert.Equal(t, 60, rl.LimitFor("zero"))
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	// 不指定配置文件，应该返回默认值
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "agentfed", cfg.Telemetry.ServiceName)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s
  cors_allowed_origins: ["https://a.example", "https://b.example"]

federation:
  approval_policy: either_party
  channel_cipher: xchacha20-poly1305
  master_key: "` + testMasterKey + `"
  rate_limit:
    backend: redis
    window: 30s
    default_limit: 10
    endpoints:
      rpc: 3
  classification_patterns:
    "(?i)project falcon": restricted

audit:
  sink: database

log:
  level: "debug"
  format: "console"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSAllowedOrigins)

	assert.Equal(t, ApprovalEitherParty, cfg.Federation.ApprovalPolicy)
	assert.Equal(t, CipherXChaCha, cfg.Federation.ChannelCipher)
	assert.Equal(t, testMasterKey, cfg.Federation.MasterKey)
	assert.Equal(t, RateLimitRedis, cfg.Federation.RateLimit.Backend)
	assert.Equal(t, 30*time.Second, cfg.Federation.RateLimit.Window)
	assert.Equal(t, 3, cfg.Federation.RateLimit.LimitFor("rpc"))
	assert.Equal(t, 10, cfg.Federation.RateLimit.LimitFor("management"))
	assert.Equal(t, map[string]string{"(?i)project falcon": "restricted"}, cfg.Federation.ClassificationPatterns)

	assert.Equal(t, AuditSinkDatabase, cfg.Audit.Sink)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)

	// 未配置的字段保持默认值
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, "2.0", cfg.Federation.ProtocolVersion)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	envVars := map[string]string{
		"AGENTFED_SERVER_HTTP_PORT":                    "7777",
		"AGENTFED_SERVER_READ_TIMEOUT":                 "45s",
		"AGENTFED_SERVER_CORS_ALLOWED_ORIGINS":         "https://x.example, https://y.example",
		"AGENTFED_FEDERATION_MASTER_KEY":               testMasterKey,
		"AGENTFED_FEDERATION_RATE_LIMIT_DEFAULT_LIMIT": "15",
		"AGENTFED_AUTH_JWT_SECRET":                     "jwt-secret",
		"AGENTFED_AUTH_API_KEYS_ENABLED":               "false",
		"AGENTFED_TELEMETRY_SAMPLE_RATE":               "0.5",
		"AGENTFED_INVOKER_ECHO_FALLBACK":               "true",
	}

	for k, v := range envVars {
		t.Setenv(k, v)
	}

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"https://x.example", "https://y.example"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, testMasterKey, cfg.Federation.MasterKey)
	assert.Equal(t, 15, cfg.Federation.RateLimit.DefaultLimit)
	assert.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	assert.False(t, cfg.Auth.APIKeysEnabled)
	assert.Equal(t, 0.5, cfg.Telemetry.SampleRate)
	assert.True(t, cfg.Invoker.EchoFallback)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
federation:
  approval_policy: either_party
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	t.Setenv("AGENTFED_SERVER_HTTP_PORT", "9999")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	// 环境变量应该覆盖 YAML
	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	// YAML 值保持
	assert.Equal(t, ApprovalEitherParty, cfg.Federation.ApprovalPolicy)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("FEDTEST_SERVER_HTTP_PORT", "5555")

	cfg, err := NewLoader().WithEnvPrefix("FEDTEST").Load()
	require.NoError(t, err)

	assert.Equal(t, 5555, cfg.Server.HTTPPort)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("AGENTFED_SERVER_WRITE_TIMEOUT", "not-a-duration")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AGENTFED_SERVER_WRITE_TIMEOUT")
}

func TestLoader_WithValidator(t *testing.T) {
	validator := func(c *Config) error {
		if c.Server.HTTPPort < 1024 {
			return assert.AnError
		}
		return nil
	}

	t.Setenv("AGENTFED_SERVER_HTTP_PORT", "80")

	_, err := NewLoader().WithValidator(validator).Load()
	assert.Error(t, err)
}

func TestLoader_NonExistentFile(t *testing.T) {
	// 不存在的文件应该使用默认值，不报错
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	require.NoError(t, os.WriteFile(configPath, []byte("invalid: yaml: content: ["), 0644))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	assert.Error(t, err)
}

// --- 配置验证测试 ---

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Federation.MasterKey = testMasterKey
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			modify: func(c *Config) {},
		},
		{
			name:    "missing master key",
			modify:  func(c *Config) { c.Federation.MasterKey = "" },
			wantErr: "master_key",
		},
		{
			name:    "invalid HTTP port",
			modify:  func(c *Config) { c.Server.HTTPPort = 0 },
			wantErr: "HTTP port",
		},
		{
			name:    "tls cert without key",
			modify:  func(c *Config) { c.Server.TLSCertFile = "/etc/agentfed/tls.crt" },
			wantErr: "tls_cert_file",
		},
		{
			name:    "unknown approval policy",
			modify:  func(c *Config) { c.Federation.ApprovalPolicy = "anyone" },
			wantErr: "approval_policy",
		},
		{
			name:    "unknown cipher",
			modify:  func(c *Config) { c.Federation.ChannelCipher = "rot13" },
			wantErr: "channel_cipher",
		},
		{
			name:    "invalid classification pattern",
			modify:  func(c *Config) { c.Federation.ClassificationPatterns = map[string]string{`(`: "internal"} },
			wantErr: "classification pattern",
		},
		{
			name:    "unknown classification level",
			modify:  func(c *Config) { c.Federation.ClassificationPatterns = map[string]string{`falcon`: "secret"} },
			wantErr: "classification level",
		},
		{
			name:    "non-positive window",
			modify:  func(c *Config) { c.Federation.RateLimit.Window = 0 },
			wantErr: "rate_limit.window",
		},
		{
			name:    "unknown rate limit backend",
			modify:  func(c *Config) { c.Federation.RateLimit.Backend = "memcached" },
			wantErr: "rate_limit.backend",
		},
		{
			name:    "mongo sink without uri",
			modify:  func(c *Config) { c.Audit.Sink = AuditSinkMongo },
			wantErr: "mongo_uri",
		},
		{
			name: "no credential resolver",
			modify: func(c *Config) {
				c.Auth.APIKeysEnabled = false
			},
			wantErr: "credential resolver",
		},
		{
			name: "jwt only",
			modify: func(c *Config) {
				c.Auth.APIKeysEnabled = false
				c.Auth.JWT.Secret = "s"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), err.Error())
		})
	}
}

// --- DSN 测试 ---

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   DatabaseConfig
		expected string
	}{
		{
			name: "postgres",
			config: DatabaseConfig{
				Driver: "postgres", Host: "localhost", Port: 5432,
				User: "user", Password: "pass", Name: "db", SSLMode: "disable",
			},
			expected: "host=localhost port=5432 user=user password=pass dbname=db sslmode=disable",
		},
		{
			name: "mysql",
			config: DatabaseConfig{
				Driver: "mysql", Host: "localhost", Port: 3306,
				User: "user", Password: "pass", Name: "db",
			},
			expected: "user:pass@tcp(localhost:3306)/db?parseTime=true",
		},
		{
			name:     "sqlite",
			config:   DatabaseConfig{Driver: "sqlite", Name: "/tmp/agentfed.db"},
			expected: "/tmp/agentfed.db",
		},
		{
			name:     "unknown driver",
			config:   DatabaseConfig{Driver: "oracle"},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.DSN())
		})
	}
}

// --- MustLoad 测试 ---

func TestMustLoad_Success(t *testing.T) {
	cfg := MustLoad("/nonexistent/config.yaml")
	assert.NotNil(t, cfg)
}

func TestMustLoad_Panic(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("invalid: yaml: ["), 0644))

	assert.Panics(t, func() {
		MustLoad(configPath)
	})
}
