// Package analytics records usage events and answers per-code queries.
package analytics

import (
	"context"
	"strings"

	"github.com/abdusco/shortlink/internal"
)

type EventStore interface {
	Insert(ctx context.Context, eventType string, shortCode *string, payload map[string]any) (int64, error)
	Count(ctx context.Context, shortCode, eventType string) (int64, error)
	List(ctx context.Context, shortCode, eventType string) ([]internal.Event, error)
}

type RecordInput struct {
	EventType string
	ShortCode string
	Payload   map[string]any
}

type Service struct {
	events EventStore
}

func NewService(events EventStore) *Service {
	return &Service{events: events}
}

// Record appends an event. The short code is stored as given, whether or
// not a link with that code exists.
func (s *Service) Record(ctx context.Context, in RecordInput) (int64, error) {
	if strings.TrimSpace(in.EventType) == "" {
		return 0, internal.NewValidationError("event_type required")
	}

	var shortCode *string
	if in.ShortCode != "" {
		shortCode = &in.ShortCode
	}
	return s.events.Insert(ctx, in.EventType, shortCode, in.Payload)
}

func (s *Service) ClickCount(ctx context.Context, shortCode string) (int64, error) {
	return s.events.Count(ctx, shortCode, internal.EventRedirect)
}

func (s *Service) EventsFor(ctx context.Context, shortCode string) ([]internal.Event, error) {
	return s.events.List(ctx, shortCode, internal.EventRedirect)
}
