package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/botnev/botnev-auth/internal/app"
	"github.com/botnev/botnev-auth/internal/auth"
	"github.com/botnev/botnev-auth/internal/captcha"
	"github.com/botnev/botnev-auth/internal/notifier"
	"github.com/botnev/botnev-auth/internal/observability"
	"github.com/botnev/botnev-auth/internal/platform/cache"
	"github.com/botnev/botnev-auth/internal/platform/db"
	"github.com/botnev/botnev-auth/internal/ratelimit"
	"github.com/botnev/botnev-auth/internal/users"
	"github.com/botnev/botnev-auth/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	tokens, err := auth.NewTokenStrategy(cfg.SessionTokenMode, cfg.SessionSecret)
	if err != nil {
		logger.Error("token strategy", slog.Any("error", err))
		os.Exit(1)
	}

	jobsClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	limiter := ratelimit.NewLimiter(
		ratelimit.NewRedisStore(redisClient),
		cfg.LoginMaxAttempts,
		cfg.LoginWindow,
		logger,
	)

	metrics := observability.NewMetrics()

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(auth.ServiceParams{
		Repo:     authRepo,
		Limiter:  limiter,
		Captcha:  captcha.NewHTTPVerifier(cfg.CaptchaVerifyURL, cfg.CaptchaSecret, logger),
		Notifier: notifier.NewQueueNotifier(jobsClient),
		Tokens:   tokens,
		Cache:    auth.NewSessionCache(redisClient, logger),
		Logger:   logger,
		Config: auth.ServiceConfig{
			SessionTTL:       cfg.SessionTTL,
			RememberTTL:      cfg.SessionRememberTTL,
			DeviceCodeTTL:    cfg.DeviceCodeTTL,
			SignupCodeTTL:    cfg.SignupCodeTTL,
			SignupCap:        cfg.SignupCap,
			SignupAllowEmail: cfg.SignupAllowEmail,
			BindFingerprint:  cfg.SessionBindDevice,
			FailureDelayMin:  cfg.FailureDelayMin,
			FailureDelayMax:  cfg.FailureDelayMax,
		},
	})
	authHandler := auth.NewHandler(logger, authService, metrics, cfg.IsProduction())

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo)
	usersHandler := users.NewHandler(logger, usersService, authService, cfg.IsProduction())

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		AuthHandler:  authHandler,
		UsersHandler: usersHandler,
		JobHandler:   jobHandler,
		Metrics:      metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
