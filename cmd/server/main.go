package main

import (
	"context"
	"crypto/ed25519"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/donut/internal/api"
	"github.com/eldtechnologies/donut/internal/api/middleware"
	"github.com/eldtechnologies/donut/internal/config"
	"github.com/eldtechnologies/donut/internal/crypto"
	"github.com/eldtechnologies/donut/internal/rounds"
	"github.com/eldtechnologies/donut/internal/slack"
	"github.com/eldtechnologies/donut/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Run migrations
	if cfg.DatabaseURL != "" {
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Msg("migrations completed")
	}

	// Initialize the history store: PostgreSQL when configured, SQLite otherwise
	var db store.DataStore
	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		db = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		db = sqliteStore
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite store")
	}
	defer db.Close()

	// Initialize Redis store
	var redisStore *store.RedisStore
	if cfg.RedisURL != "" {
		var err error
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		logger.Info().Msg("connected to Redis")
	}

	// Slack gateway
	var slackOpts []slack.Option
	if cfg.SlackAPIURL != "" {
		slackOpts = append(slackOpts, slack.WithAPIURL(cfg.SlackAPIURL))
	}
	slackClient := slack.NewClient(cfg.SlackBotToken, slackOpts...)

	deps := rounds.Deps{
		Store:     db,
		Gateway:   slackClient,
		Directory: slackClient,
		Logger:    logger,
	}
	if redisStore != nil {
		deps.Locker = redisStore
	}
	svc := rounds.NewService(deps, rounds.Config{
		CallTimeout:         cfg.CallTimeout,
		AnnounceConcurrency: cfg.AnnounceConcurrency,
		HistoryWindow:       cfg.HistoryWindow,
	})

	var operatorKey ed25519.PublicKey
	if cfg.OperatorPublicKey != "" {
		var err error
		operatorKey, err = crypto.ValidatePublicKey(cfg.OperatorPublicKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid OPERATOR_PUBLIC_KEY")
		}
	}

	// Create router
	router := api.NewRouter(api.Options{
		Logger:        logger,
		Store:         db,
		Redis:         redisStore,
		Rounds:        svc,
		SigningSecret: cfg.SlackSigningSecret,
		OperatorKey:   operatorKey,
		RateLimit: middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		},
	})

	// Create server. Round creation announces every group inside one request.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting donut server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
