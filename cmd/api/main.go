package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/academia-platform/aigov/internal/aiproxy"
	"github.com/academia-platform/aigov/internal/api"
	"github.com/academia-platform/aigov/internal/auth"
	"github.com/academia-platform/aigov/internal/config"
	"github.com/academia-platform/aigov/internal/database"
	"github.com/academia-platform/aigov/internal/governance"
	"github.com/academia-platform/aigov/internal/governance/audit"
	"github.com/academia-platform/aigov/internal/governance/legacy"
	"github.com/academia-platform/aigov/internal/governance/quota"
	"github.com/academia-platform/aigov/internal/middleware"
	"github.com/academia-platform/aigov/internal/middleware/admission"
	inats "github.com/academia-platform/aigov/internal/nats"
	iredis "github.com/academia-platform/aigov/internal/redis"
	"github.com/academia-platform/aigov/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.RunMigrations(cfg.DB.DSN(), cfg.DB.MigrationsPath); err != nil {
		slog.Error("running migrations", "error", err)
		os.Exit(1)
	}

	// Redis (burst guard)
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// NATS JetStream for audit events, optional
	var natsClient *inats.Client
	var publisher *inats.Publisher
	if cfg.NATS.Enabled {
		natsClient, err = inats.NewClient(ctx, cfg.NATS)
		if err != nil {
			slog.Error("connecting to nats", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		publisher = inats.NewPublisher(natsClient.JetStream())
	}

	// Governance core
	policyStore := quota.NewPolicyStore(pool)
	ledger := quota.NewUsageLedger(pool)
	enforcer := quota.NewEnforcer(policyStore, ledger)

	var auditNotifier quota.AuditNotifier
	if publisher != nil {
		auditNotifier = publisher
	}

	legacyStore := legacy.NewStore(pool)
	bridge := legacy.NewBridge(legacyStore)
	recorder := quota.NewRecorder(ledger, bridge, auditNotifier)

	auditRepo := audit.NewRepository(pool)
	govHandler := governance.NewHandler(enforcer, legacyStore, auditRepo, publisher)

	// Audit event persister
	if natsClient != nil {
		consumerMgr := inats.NewConsumerManager(natsClient.JetStream())
		auditConsumer := audit.NewConsumer(auditRepo, consumerMgr)
		go func() {
			if err := auditConsumer.Start(ctx); err != nil {
				slog.Error("audit consumer stopped", "error", err)
			}
		}()
	}

	// Auth
	jwtManager := auth.NewJWTManager(cfg.JWT.AccessSecret, cfg.JWT.AccessExpiry)

	// Admission + upstream proxy
	admissionMW := admission.NewAdmission(enforcer, recorder, auditNotifier, cfg.Upstream.DefaultProvider)
	proxy := aiproxy.New(cfg.Upstream)

	routerCfg := api.RouterConfig{
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
	}
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(redisClient, cfg.RateLimit.MaxReqs, cfg.RateLimit.WindowSec)
		routerCfg.AIRateLimiter = limiter.Middleware
	}

	router := api.NewRouter(pool, natsClient, routerCfg, api.HandlerSet{
		GetQuota:      govHandler.GetQuota,
		ListAuditLogs: govHandler.ListAuditLogs,

		GetLegacyUsage:       govHandler.GetLegacyUsage,
		IncrementLegacyUsage: govHandler.IncrementLegacyUsage,
		ResetLegacyUsage:     govHandler.ResetLegacyUsage,

		GeminiChat:  proxy.Handler("gemini"),
		GroqChat:    proxy.Handler("groq"),
		DefaultChat: proxy.Handler(cfg.Upstream.DefaultProvider),

		AuthMiddleware:      auth.Middleware(jwtManager),
		AdmissionMiddleware: admissionMW.Middleware,
	})

	srv := server.New(cfg.Server, router)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
