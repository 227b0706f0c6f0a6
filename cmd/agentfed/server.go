package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/BaSui01/agentfed/api/handlers"
	"github.com/BaSui01/agentfed/config"
	"github.com/BaSui01/agentfed/federation/agreement"
	"github.com/BaSui01/agentfed/federation/audit"
	"github.com/BaSui01/agentfed/federation/auth"
	"github.com/BaSui01/agentfed/federation/channel"
	"github.com/BaSui01/agentfed/federation/gateway"
	"github.com/BaSui01/agentfed/federation/invoke"
	"github.com/BaSui01/agentfed/federation/journal"
	"github.com/BaSui01/agentfed/federation/policy"
	"github.com/BaSui01/agentfed/federation/ratelimit"
	"github.com/BaSui01/agentfed/federation/signing"
	"github.com/BaSui01/agentfed/federation/store"
	"github.com/BaSui01/agentfed/internal/cache"
	"github.com/BaSui01/agentfed/internal/database"
	"github.com/BaSui01/agentfed/internal/metrics"
	"github.com/BaSui01/agentfed/internal/migration"
	"github.com/BaSui01/agentfed/internal/server"
	"github.com/BaSui01/agentfed/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// managementEndpoint 管理接口在限流配置中的端点名
const managementEndpoint = "management"

// rpcEndpoint 联邦 RPC 在限流配置中的端点名
const rpcEndpoint = "rpc"

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// ServerOptions 启动选项
type ServerOptions struct {
	AutoMigrate bool
}

// Server 是 agentfed 的主服务器
type Server struct {
	cfg    *config.Config
	opts   ServerOptions
	logger *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 基础设施
	otel      *telemetry.Providers
	pool      *database.PoolManager
	cache     *cache.Manager
	mongoSink *audit.MongoSink

	metricsCollector *metrics.Collector

	// 联邦组件
	store     *store.Store
	limiter   ratelimit.Limiter
	resolver  auth.Resolver
	sink      audit.Sink
	manager   *agreement.Manager
	journal   *journal.Journal
	keyring   *signing.Keyring
	gateway   *gateway.Gateway
	ipLimiter context.CancelFunc

	healthHandler *handlers.HealthHandler
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, opts ServerOptions) *Server {
	return &Server{cfg: cfg, opts: opts, logger: logger}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 依次初始化基础设施、联邦组件与 HTTP 服务
func (s *Server) Start() error {
	s.metricsCollector = metrics.NewCollector("agentfed", s.logger)

	otelProviders, err := telemetry.Init(s.cfg.Telemetry, Version, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	s.otel = otelProviders

	if err := s.initStorage(); err != nil {
		return fmt.Errorf("failed to init storage: %w", err)
	}
	if err := s.initFederation(); err != nil {
		return fmt.Errorf("failed to init federation: %w", err)
	}
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("database", s.cfg.Database.Driver),
		zap.String("rate_limit_backend", s.cfg.Federation.RateLimit.Backend),
	)
	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initStorage 打开数据库（可选迁移）与 Redis
func (s *Server) initStorage() error {
	if s.opts.AutoMigrate {
		m, err := migration.NewMigratorFromDatabaseConfig(s.cfg.Database)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		err = m.Up(context.Background())
		_ = m.Close()
		if err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		s.logger.Info("Database migrations applied")
	}

	pool, err := database.Open(s.cfg.Database, s.logger)
	if err != nil {
		return err
	}
	s.pool = pool.WithStatsRecorder(s.metricsCollector)
	s.store = store.New(s.pool, s.logger)

	if s.cfg.Federation.RateLimit.Backend == config.RateLimitRedis {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.Addr = s.cfg.Redis.Addr
		cacheCfg.Password = s.cfg.Redis.Password
		cacheCfg.DB = s.cfg.Redis.DB
		if s.cfg.Redis.PoolSize > 0 {
			cacheCfg.PoolSize = s.cfg.Redis.PoolSize
		}
		if s.cfg.Redis.MinIdleConns > 0 {
			cacheCfg.MinIdleConns = s.cfg.Redis.MinIdleConns
		}
		c, err := cache.NewManager(cacheCfg, s.logger)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		s.cache = c
	}
	return nil
}

// initFederation 装配凭证、限流、密钥、策略、协议、日志与网关
func (s *Server) initFederation() error {
	fed := s.cfg.Federation

	resolver, err := auth.NewResolver(s.cfg.Auth, s.store, s.logger)
	if err != nil {
		return err
	}
	s.resolver = resolver

	if s.cache != nil {
		s.limiter = ratelimit.NewRedisLimiter(s.cache, fed.RateLimit.Window, "")
	} else {
		s.limiter = ratelimit.NewMemoryLimiter(fed.RateLimit.Window)
	}

	sink, err := s.newAuditSink()
	if err != nil {
		return err
	}
	s.sink = sink

	vault, err := channel.NewVault(fed.MasterKey)
	if err != nil {
		return err
	}
	cipher, err := channel.NewCipher(fed.ChannelCipher)
	if err != nil {
		return err
	}

	s.manager = agreement.NewManager(s.store, vault, s.logger,
		agreement.WithApprovalPolicy(fed.ApprovalPolicy),
		agreement.WithCipher(fed.ChannelCipher),
		agreement.WithAuditSink(sink),
		agreement.WithRecorder(s.metricsCollector),
	)

	s.keyring = signing.NewKeyring(s.store, vault, s.logger)
	s.journal = journal.New(
		s.store,
		channel.NewKeyStore(s.store, vault, s.logger),
		s.keyring,
		s.store,
		s.logger,
		journal.WithCipher(cipher),
		journal.WithRecorder(s.metricsCollector),
	)

	classifier, err := policy.ClassifierFromPatterns(fed.ClassificationPatterns)
	if err != nil {
		return fmt.Errorf("classification patterns: %w", err)
	}

	s.gateway = gateway.New(gateway.Deps{
		Auth:       resolver,
		Limiter:    s.limiter,
		Directory:  s.store,
		Agreements: s.store,
		Policy: policy.NewEngine(s.store, s.store, s.logger,
			policy.WithClassifier(classifier),
			policy.WithRecorder(s.metricsCollector),
		),
		Invoker: invoke.NewHTTPInvoker(s.cfg.Invoker, s.logger),
		Journal: s.journal,
		Audit:   sink,
		Metrics: s.metricsCollector,
	}, gateway.Config{
		ProtocolVersion: fed.ProtocolVersion,
		RateLimit:       fed.RateLimit.LimitFor(rpcEndpoint),
	}, s.logger)

	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewPingCheck("database", s.store.Ping))
	if s.cache != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("redis", s.cache.Ping))
	}

	s.logger.Info("Federation components initialized",
		zap.String("approval_policy", fed.ApprovalPolicy),
		zap.String("channel_cipher", fed.ChannelCipher),
		zap.String("audit_sink", s.cfg.Audit.Sink),
	)
	return nil
}

func (s *Server) newAuditSink() (audit.Sink, error) {
	switch s.cfg.Audit.Sink {
	case config.AuditSinkDatabase:
		return audit.NewDatabaseSink(s.store), nil
	case config.AuditSinkMongo:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sink, err := audit.NewMongoSink(ctx, s.cfg.Audit.MongoURI, s.cfg.Audit.MongoDatabase, s.cfg.Audit.MongoCollection, s.logger)
		if err != nil {
			return nil, fmt.Errorf("connect audit mongo: %w", err)
		}
		s.mongoSink = sink
		return sink, nil
	default:
		return audit.NewLogSink(s.logger), nil
	}
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// routes 构建完整路由：健康检查免认证，/a2a 由网关自行认证与限流，
// /api/ 管理接口经过 IP 令牌桶、BearerAuth 与窗口限流
func (s *Server) routes(ctx context.Context) http.Handler {
	api := http.NewServeMux()
	handlers.NewAgreementHandler(s.manager, s.logger).Register(api)
	handlers.NewConversationHandler(s.manager, s.journal, s.logger).Register(api)
	handlers.NewCredentialHandler(s.store, s.sink, s.logger).Register(api)
	handlers.NewKeyHandler(s.keyring, s.sink, s.logger).Register(api)

	management := Chain(api,
		RateLimiter(ctx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
		BearerAuth(s.resolver, s.logger),
		ratelimit.Middleware(s.limiter, managementEndpoint, s.cfg.Federation.RateLimit.LimitFor(managementEndpoint), s.metricsCollector, s.logger),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))
	mux.Handle("/a2a", s.gateway)
	mux.Handle("/api/", management)

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		OTelTracing(),
		CORS(s.cfg.Server.CORSAllowedOrigins),
	)
}

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.ipLimiter = cancel

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
		MaxConnections:  s.cfg.Server.MaxConnections,
	}
	s.httpManager = server.NewManager(s.routes(ctx), serverConfig, s.logger)

	if s.cfg.Server.TLSCertFile != "" {
		if err := s.httpManager.StartTLS(s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile); err != nil {
			return err
		}
	} else if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started",
		zap.Int("port", s.cfg.Server.HTTPPort),
		zap.Bool("tls", s.cfg.Server.TLSCertFile != ""),
	)
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	if s.cfg.Server.MetricsPort == 0 {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号或服务器异常退出，然后释放全部资源
func (s *Server) WaitForShutdown() {
	if err := server.WaitForShutdown(s.logger, s.httpManager, s.metricsManager); err != nil {
		s.logger.Error("Server stopped with error", zap.Error(err))
	}
	s.Shutdown()
}

// Shutdown 释放基础设施，可重复调用
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout+5*time.Second)
	defer cancel()

	if err := server.ShutdownAll(ctx, s.httpManager, s.metricsManager); err != nil {
		s.logger.Error("HTTP shutdown error", zap.Error(err))
	}
	if s.ipLimiter != nil {
		s.ipLimiter()
	}
	if s.mongoSink != nil {
		if err := s.mongoSink.Close(ctx); err != nil {
			s.logger.Error("Audit sink close error", zap.Error(err))
		}
		s.mongoSink = nil
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Error("Redis close error", zap.Error(err))
		}
		s.cache = nil
	}
	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			s.logger.Error("Database close error", zap.Error(err))
		}
		s.pool = nil
	}
	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
		s.otel = nil
	}

	s.logger.Info("Graceful shutdown completed")
}
