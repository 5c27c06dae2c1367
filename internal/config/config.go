// Package config loads service settings from the environment, after an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Common struct {
	Host           string        `env:"HOST" envDefault:"localhost"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	Debug          bool          `env:"DEBUG"`
	MaxOpenConns   int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"5s"`
	CORSOrigin     string        `env:"CORS_ORIGIN" envDefault:"http://localhost:5173"`
}

type Shortener struct {
	Common

	Port            string        `env:"PORT" envDefault:"3001"`
	DatabaseURL     string        `env:"DATABASE_URL" envDefault:"shortener.db"`
	BaseURL         string        `env:"BASE_URL"`
	JWTSecret       string        `env:"JWT_SECRET"`
	AnalyticsURL    string        `env:"ANALYTICS_URL"`
	NotifyTimeout   time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"3s"`
	CodeLength      int           `env:"CODE_LENGTH" envDefault:"6"`
	MaxCodeAttempts int           `env:"MAX_CODE_ATTEMPTS" envDefault:"2000"`
	BcryptCost      int           `env:"BCRYPT_COST"`
	SecureCookies   bool          `env:"SECURE_COOKIES"`
	RedisAddr       string        `env:"REDIS_ADDR"`
	CacheSize       int           `env:"CACHE_SIZE" envDefault:"10000"`
	CacheTTL        time.Duration `env:"CACHE_TTL" envDefault:"10m"`
}

type Analytics struct {
	Common

	Port        string `env:"PORT" envDefault:"4001"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"analytics.db"`
}

func (c Common) Addr(port string) string {
	return c.Host + ":" + port
}

func LoadShortener() (Shortener, error) {
	var cfg Shortener
	if err := load(&cfg); err != nil {
		return Shortener{}, err
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://" + cfg.Addr(cfg.Port)
	}
	if cfg.JWTSecret == "" {
		return Shortener{}, errors.New("JWT_SECRET is required")
	}
	if cfg.CodeLength < 1 || cfg.CodeLength > 32 {
		return Shortener{}, fmt.Errorf("CODE_LENGTH must be between 1 and 32, got %d", cfg.CodeLength)
	}
	if cfg.AnalyticsURL == "" {
		log.Warn().Msg("ANALYTICS_URL not set - redirects will not be reported")
	}
	return cfg, nil
}

func LoadAnalytics() (Analytics, error) {
	var cfg Analytics
	if err := load(&cfg); err != nil {
		return Analytics{}, err
	}
	return cfg, nil
}

func load(cfg any) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("failed to parse configuration from environment: %w", err)
	}
	return nil
}
