package handler

import (
	"errors"
	"net/http"

	"github.com/abdusco/shortlink/internal"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// ErrorHandler renders every failure as {"error": "..."} with a status
// derived from the domain error.
func ErrorHandler(err error, c echo.Context) {
	// the request logger already rendered this error
	if c.Response().Committed {
		return
	}

	code, message := statusFor(err)

	event := log.Debug()
	if code >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.
		Int("code", code).
		Str("method", c.Request().Method).
		Str("path", c.Request().URL.Path).
		Err(err).
		Msg("http error")

	if err := c.JSON(code, map[string]any{"error": message}); err != nil {
		log.Error().Err(err).Msg("failed to write error response")
	}
}

func statusFor(err error) (int, string) {
	var validationErr *internal.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest, validationErr.Reason
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		message := http.StatusText(httpErr.Code)
		if msg, ok := httpErr.Message.(string); ok {
			message = msg
		}
		return httpErr.Code, message
	}

	switch {
	case errors.Is(err, internal.ErrUnauthenticated):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, internal.ErrInvalidCredentials):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, internal.ErrLinkNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, internal.ErrEmailExists):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
