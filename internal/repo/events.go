package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/abdusco/shortlink/internal"
	"github.com/abdusco/shortlink/internal/db"
	"github.com/doug-martin/goqu/v9"
	"github.com/rs/zerolog/log"
)

type eventRow struct {
	ID        int64   `db:"id"`
	EventType string  `db:"event_type"`
	ShortCode *string `db:"short_code"`
	Payload   *string `db:"payload"`
	CreatedAt Date    `db:"created_at"`
}

type EventsRepo struct {
	db *db.DB
}

func NewEventsRepo(db *db.DB) *EventsRepo {
	return &EventsRepo{db: db}
}

// Insert appends an event. short_code is not checked against any link.
func (r *EventsRepo) Insert(ctx context.Context, eventType string, shortCode *string, payload map[string]any) (int64, error) {
	var encoded *string
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("failed to encode payload: %w", err)
		}
		s := string(b)
		encoded = &s
	}

	now := Date(time.Now().UTC())
	insert := r.db.Goqu().Insert("events").
		Cols("event_type", "short_code", "payload", "created_at").
		Vals([]any{eventType, nullable(shortCode), nullable(encoded), now})

	id, err := r.db.InsertReturningID(ctx, insert)
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}

	log.Debug().Int64("id", id).Str("event_type", eventType).Msg("event recorded")
	return id, nil
}

func (r *EventsRepo) Count(ctx context.Context, shortCode, eventType string) (int64, error) {
	count, err := r.db.Goqu().From("events").
		Where(goqu.Ex{"short_code": shortCode, "event_type": eventType}).
		CountContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// List returns matching events newest first.
func (r *EventsRepo) List(ctx context.Context, shortCode, eventType string) ([]internal.Event, error) {
	query := r.db.Goqu().From("events").
		Select("id", "event_type", "short_code", "payload", "created_at").
		Where(goqu.Ex{"short_code": shortCode, "event_type": eventType}).
		Order(goqu.C("created_at").Desc(), goqu.C("id").Desc())

	var rows []eventRow
	if err := query.Executor().ScanStructsContext(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	events := make([]internal.Event, 0, len(rows))
	for _, row := range rows {
		event, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

func (r *eventRow) toDomain() (internal.Event, error) {
	event := internal.Event{
		ID:        r.ID,
		EventType: r.EventType,
		ShortCode: r.ShortCode,
		CreatedAt: r.CreatedAt.Time(),
	}
	if r.Payload != nil {
		if err := json.Unmarshal([]byte(*r.Payload), &event.Payload); err != nil {
			return internal.Event{}, fmt.Errorf("failed to decode payload of event %d: %w", r.ID, err)
		}
	}
	return event, nil
}
