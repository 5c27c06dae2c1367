// Package logger configures the global zerolog logger shared by both services.
package logger

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup sets the global level and, when pretty is set, switches to
// human-readable console output.
func Setup(level string, pretty bool) error {
	if level == "" {
		level = zerolog.InfoLevel.String()
	}

	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("failed to parse log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(parsed)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return nil
}

// With returns a child of the global logger carrying service-wide fields.
func With(service string) zerolog.Logger {
	return log.Logger.With().Str("service", service).Logger()
}
