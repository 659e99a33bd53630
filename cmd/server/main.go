package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shoesfit/partner-server-go/internal/audit"
	"github.com/shoesfit/partner-server-go/internal/config"
	"github.com/shoesfit/partner-server-go/internal/database"
	"github.com/shoesfit/partner-server-go/internal/handler"
	"github.com/shoesfit/partner-server-go/internal/jobs"
	"github.com/shoesfit/partner-server-go/internal/middleware"
	"github.com/shoesfit/partner-server-go/internal/obs"
	"github.com/shoesfit/partner-server-go/internal/redis"
	"github.com/shoesfit/partner-server-go/internal/repository"
	"github.com/shoesfit/partner-server-go/internal/service"
	"github.com/shoesfit/partner-server-go/internal/storage"
	"github.com/shoesfit/partner-server-go/internal/token"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	isProduction := os.Getenv("APP_ENV") == "production"
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	setLogLevel(cfg.LogLevel)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	obs.Init()

	partnerRepo := repository.NewPartnerRepository(db.DB)
	refreshTokenRepo := repository.NewRefreshTokenRepository(db.DB)
	securityEventRepo := repository.NewSecurityEventRepository(db.DB)

	auditDispatcher := audit.NewDispatcher(
		cfg.AuditQueueSize,
		audit.MultiSink{audit.NewStoreSink(securityEventRepo), audit.LogSink{}},
	)
	defer auditDispatcher.Close()

	issuer, err := token.NewIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTTL())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create token issuer")
	}

	uploader, err := storage.NewLocalUploader(cfg.UploadDir, cfg.UploadBaseURL, cfg.UploadBucket, cfg.MaxUploadBytes)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare upload directory")
	}

	guard := service.NewLoginGuard(cfg.LoginMaxAttempts, cfg.LockDuration())
	ledger := service.NewRefreshLedger(db, refreshTokenRepo, cfg.RefreshTTL(), cfg.RefreshAbsoluteTTL())
	authService := service.NewAuthService(db, partnerRepo, ledger, guard, issuer, uploader, auditDispatcher)
	rateLimiter := service.NewRateLimiter(redisClient.Client)

	trustedProxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid TRUSTED_PROXIES")
	}

	authMiddleware := middleware.NewAuthMiddleware(issuer, config.PartnerRole)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(middleware.DefaultMaxBodySize, cfg.MaxUploadBytes)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)
	authLimit := func(prefix string) func(http.Handler) http.Handler {
		return middleware.NewIPRateLimitMiddleware(
			rateLimiter, cfg.AuthRateLimitPerMin, config.AuthRateLimitWindow, prefix,
		).Handler
	}

	authHandler := handler.NewAuthHandler(authService, handler.AuthRouteMiddleware{
		RequireAuth:   authMiddleware.Required,
		OptionalAuth:  authMiddleware.Optional,
		LoginLimit:    authLimit("login"),
		RegisterLimit: authLimit("register"),
		RefreshLimit:  authLimit("refresh"),
	})
	healthHandler := handler.NewHealthHandler(map[string]handler.HealthCheck{
		"database": db.Ping,
		"redis":    redisClient.Healthy,
	})

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.TrustedRealIP(trustedProxies))
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(obs.Instrument)
	r.Use(securityHeadersMiddleware.Handler)
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", healthHandler.ServeHTTP)
	r.Handle("/metrics", obs.Handler())
	r.Mount("/auth", authHandler.Routes())

	cleanupJob := jobs.NewCleanupJob(ledger, cfg.CleanupInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
