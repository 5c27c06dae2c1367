// Package server builds the echo instances of both services and runs them
// until their context is cancelled.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/abdusco/shortlink/internal/auth"
	"github.com/abdusco/shortlink/internal/handler"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

type Options struct {
	CORSOrigin     string
	RequestTimeout time.Duration
}

// New returns an echo instance with the middleware stack shared by both
// services.
func New(opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := log.Info()
			if v.Error != nil {
				event = log.Warn().Err(v.Error)
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	}))
	e.Use(middleware.Recover())

	cors := middleware.DefaultCORSConfig
	if opts.CORSOrigin != "" {
		cors.AllowOrigins = []string{opts.CORSOrigin}
		cors.AllowCredentials = true
	}
	e.Use(middleware.CORSWithConfig(cors))

	if opts.RequestTimeout > 0 {
		e.Use(middleware.ContextTimeoutWithConfig(middleware.ContextTimeoutConfig{
			Timeout: opts.RequestTimeout,
		}))
	}

	return e
}

type ShortenerRoutes struct {
	Resolver *auth.Resolver
	Links    *handler.LinkHandler
	Auth     *handler.AuthHandler
	Health   *handler.HealthHandler
}

// RegisterShortener mounts the shortening API. Reads resolve identity
// permissively; title edits and deletes require a bearer token.
func RegisterShortener(e *echo.Echo, r ShortenerRoutes) {
	e.Use(r.Resolver.Permissive())

	e.GET("/health", r.Health.Health)

	for _, g := range []*echo.Group{e.Group(""), e.Group("/api")} {
		g.POST("/shorten", r.Links.Shorten)
		g.GET("/history", r.Links.History)
		g.PATCH("/urls/:id", r.Links.UpdateTitle, r.Resolver.Strict())
		g.DELETE("/urls/:id", r.Links.Delete, r.Resolver.Strict())
	}

	authGroup := e.Group("/api/auth")
	authGroup.POST("/register", r.Auth.Register)
	authGroup.POST("/login", r.Auth.Login)

	// catch-all, must be registered last
	e.GET("/:code", r.Links.Redirect)
}

func RegisterAnalytics(e *echo.Echo, events *handler.EventHandler, health *handler.HealthHandler) {
	e.GET("/health", health.Health)
	e.POST("/events", events.Record)
	e.GET("/stats/:short_code", events.Stats)
	e.GET("/analytics/:short_code", events.Events)
}

// Run serves e on addr until ctx is cancelled, then shuts it down
// gracefully.
func Run(ctx context.Context, e *echo.Echo, addr string) error {
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- e.Start(addr)
	}()

	log.Info().Str("address", addr).Msg("server starting")

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutdown signal received, gracefully shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during graceful shutdown")
	}

	if err := <-serverErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	log.Info().Msg("server stopped")
	return nil
}
