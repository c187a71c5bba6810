package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/leadscope/directory/internal/api"
	"github.com/leadscope/directory/internal/audit"
	"github.com/leadscope/directory/internal/auth"
	"github.com/leadscope/directory/internal/config"
	"github.com/leadscope/directory/internal/database"
	"github.com/leadscope/directory/internal/directory"
	"github.com/leadscope/directory/internal/middleware"
	inats "github.com/leadscope/directory/internal/nats"
	"github.com/leadscope/directory/internal/quota"
	iredis "github.com/leadscope/directory/internal/redis"
	"github.com/leadscope/directory/internal/server"
	"github.com/leadscope/directory/internal/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// NATS (optional)
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

	// Auth
	jwtManager := auth.NewJWTManager(
		cfg.JWT.AccessSecret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	authSvc := auth.NewService(jwtManager, redisClient)
	userRepo := users.NewRepository(pool)
	userSvc := users.NewService(userRepo)
	authHandler := auth.NewHandler(authSvc, userSvc)

	// Directory
	agencyRepo := directory.NewAgencyRepository(pool)
	contactRepo := directory.NewContactRepository(pool)
	dirSvc := directory.NewService(agencyRepo, contactRepo)
	dirHandler := directory.NewHandler(dirSvc)

	// Quota
	quotaStore := quota.NewRedisStore(redisClient)
	quotaPolicy := quota.Policy{Cap: cfg.Quota.Cap, Window: cfg.Quota.Window}
	var quotaEvents quota.EventPublisher
	if publisher != nil {
		quotaEvents = publisher
	}
	quotaSvc := quota.NewService(quotaStore, quotaPolicy, quotaEvents)
	quotaHandler := quota.NewHandler(quotaSvc, contactRepo)

	// Audit
	auditRepo := audit.NewRepository(pool)
	auditHandler := audit.NewHandler(auditRepo)
	if natsClient != nil {
		consumerMgr := inats.NewConsumerManager(natsClient.JetStream())
		consumer := audit.NewConsumer(auditRepo, consumerMgr)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("audit consumer stopped", "error", err)
			}
		}()
	}

	// Rate limit auth endpoints: 10 requests per minute per IP
	authLimiter := middleware.NewRateLimiter(redisClient, 10, 60)

	// Router
	router := api.NewRouter(pool, natsClient, api.RouterConfig{
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
		AuthRateLimiter:    authLimiter.Middleware,
	}, api.HandlerSet{
		Register: authHandler.Register,
		Login:    authHandler.Login,
		Refresh:  authHandler.Refresh,
		Logout:   authHandler.Logout,

		ListAgencies:   dirHandler.ListAgencies,
		ListContacts:   dirHandler.ListContacts,
		SearchContacts: dirHandler.SearchContacts,

		GetQuota:         quotaHandler.GetQuota,
		Unlock:           quotaHandler.Unlock,
		UnlockedContacts: quotaHandler.UnlockedContacts,

		ListAuditLogs: auditHandler.List,

		AuthMiddleware: auth.Middleware(authSvc),
	})

	// Start server
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
