package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/abdusco/shortlink/internal/analytics"
	"github.com/abdusco/shortlink/internal/config"
	"github.com/abdusco/shortlink/internal/db"
	"github.com/abdusco/shortlink/internal/handler"
	"github.com/abdusco/shortlink/internal/logger"
	"github.com/abdusco/shortlink/internal/repo"
	"github.com/abdusco/shortlink/internal/server"
	"github.com/rs/zerolog/log"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	cfg, err := config.LoadAnalytics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if err := logger.Setup(cfg.LogLevel, cfg.Debug); err != nil {
		log.Fatal().Err(err).Msg("failed to set up logging")
	}
	log.Logger = logger.With("analytics")

	ctx := context.Background()
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("application error")
	}
}

func run(ctx context.Context, cfg config.Analytics) error {
	log.Info().
		Str("version", version).
		Str("build_time", buildTime).
		Msg("starting analytics")

	store, err := db.Open(ctx, db.Options{URL: cfg.DatabaseURL, MaxOpenConns: cfg.MaxOpenConns}, repo.AnalyticsSchema)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	e := server.New(server.Options{CORSOrigin: cfg.CORSOrigin, RequestTimeout: cfg.RequestTimeout})
	defer e.Close()

	server.RegisterAnalytics(e,
		handler.NewEventHandler(analytics.NewService(repo.NewEventsRepo(store))),
		handler.NewHealthHandler(),
	)

	return server.Run(ctx, e, cfg.Addr(cfg.Port))
}
