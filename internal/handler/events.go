package handler

import (
	"net/http"

	"github.com/abdusco/shortlink/internal/analytics"
	"github.com/labstack/echo/v4"
)

type EventHandler struct {
	analytics *analytics.Service
}

func NewEventHandler(analytics *analytics.Service) *EventHandler {
	return &EventHandler{analytics: analytics}
}

type RecordEventRequest struct {
	EventType string         `json:"event_type"`
	ShortCode string         `json:"short_code"`
	Payload   map[string]any `json:"payload"`
}

type StatsResponse struct {
	ShortCode  string `json:"short_code"`
	ClickCount int64  `json:"click_count"`
}

func (h *EventHandler) Record(c echo.Context) error {
	var req RecordEventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	id, err := h.analytics.Record(c.Request().Context(), analytics.RecordInput{
		EventType: req.EventType,
		ShortCode: req.ShortCode,
		Payload:   req.Payload,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, map[string]any{"id": id})
}

func (h *EventHandler) Stats(c echo.Context) error {
	code := c.Param("short_code")

	count, err := h.analytics.ClickCount(c.Request().Context(), code)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, StatsResponse{ShortCode: code, ClickCount: count})
}

// Events lists the redirect events of a code, newest first.
func (h *EventHandler) Events(c echo.Context) error {
	events, err := h.analytics.EventsFor(c.Request().Context(), c.Param("short_code"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, events)
}
