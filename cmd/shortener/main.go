package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abdusco/shortlink/internal/account"
	"github.com/abdusco/shortlink/internal/auth"
	"github.com/abdusco/shortlink/internal/cache"
	"github.com/abdusco/shortlink/internal/config"
	"github.com/abdusco/shortlink/internal/db"
	"github.com/abdusco/shortlink/internal/handler"
	"github.com/abdusco/shortlink/internal/logger"
	"github.com/abdusco/shortlink/internal/notify"
	"github.com/abdusco/shortlink/internal/repo"
	"github.com/abdusco/shortlink/internal/server"
	"github.com/abdusco/shortlink/internal/shortener"
	"github.com/rs/zerolog/log"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	cfg, err := config.LoadShortener()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if err := logger.Setup(cfg.LogLevel, cfg.Debug); err != nil {
		log.Fatal().Err(err).Msg("failed to set up logging")
	}
	log.Logger = logger.With("shortener")

	ctx := context.Background()
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("application error")
	}
}

func run(ctx context.Context, cfg config.Shortener) error {
	log.Info().
		Str("version", version).
		Str("build_time", buildTime).
		Msg("starting shortener")

	store, err := db.Open(ctx, db.Options{URL: cfg.DatabaseURL, MaxOpenConns: cfg.MaxOpenConns}, repo.ShortenerSchema)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	var linkCache cache.Links = cache.NewMemory(cfg.CacheSize, cfg.CacheTTL)
	if cfg.RedisAddr != "" {
		redisCache, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.CacheTTL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisCache.Close()
		linkCache = redisCache
		log.Info().Str("addr", cfg.RedisAddr).Msg("using redis link cache")
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.AnalyticsURL != "" {
		httpNotifier := notify.NewHTTP(cfg.AnalyticsURL+"/events", cfg.NotifyTimeout)
		defer func() {
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpNotifier.Close(drainCtx); err != nil {
				log.Warn().Err(err).Msg("gave up waiting for analytics notifications")
			}
		}()
		notifier = httpNotifier
	}

	linksRepo := repo.NewLinksRepo(store)
	tokens := auth.NewTokens(cfg.JWTSecret)

	links := shortener.NewService(linksRepo, linkCache, notifier, shortener.Options{
		BaseURL:         cfg.BaseURL,
		CodeLength:      cfg.CodeLength,
		MaxCodeAttempts: cfg.MaxCodeAttempts,
	})
	accounts := account.NewService(
		repo.NewUsersRepo(store),
		auth.NewHasher(cfg.BcryptCost),
		tokens,
		shortener.NewMerger(linksRepo),
	)

	e := server.New(server.Options{CORSOrigin: cfg.CORSOrigin, RequestTimeout: cfg.RequestTimeout})
	defer e.Close()

	server.RegisterShortener(e, server.ShortenerRoutes{
		Resolver: auth.NewResolver(tokens),
		Links:    handler.NewLinkHandler(links, cfg.SecureCookies),
		Auth:     handler.NewAuthHandler(accounts, cfg.SecureCookies),
		Health:   handler.NewHealthHandler(),
	})

	return server.Run(ctx, e, cfg.Addr(cfg.Port))
}
