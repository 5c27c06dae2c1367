// Package notify delivers usage events from the redirect path to the
// analytics service. Delivery is fire-and-forget: at most once, never
// retried, never awaited by the caller.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultTimeout = 3 * time.Second

type Event struct {
	EventType string         `json:"event_type"`
	ShortCode string         `json:"short_code,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

type Notifier interface {
	// Notify hands off event and returns immediately.
	Notify(ctx context.Context, event Event)
}

// HTTP posts each event to the analytics service from its own goroutine.
type HTTP struct {
	url     string
	client  *http.Client
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewHTTP(url string, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTP{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Notify detaches from ctx cancellation so the send outlives the request
// that triggered it. Failures are logged and dropped.
func (n *HTTP) Notify(ctx context.Context, event Event) {
	ctx = context.WithoutCancel(ctx)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(ctx, n.timeout)
		defer cancel()

		if err := n.send(ctx, event); err != nil {
			log.Warn().Err(err).
				Str("event_type", event.EventType).
				Str("short_code", event.ShortCode).
				Msg("analytics notification dropped")
			return
		}
		log.Debug().Str("short_code", event.ShortCode).Msg("analytics notified")
	}()
}

func (n *HTTP) send(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("analytics responded with status %d", resp.StatusCode)
	}
	return nil
}

// Close waits for in-flight notifications, giving up when ctx is done.
func (n *HTTP) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Nop discards events. It is used when no analytics endpoint is configured.
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}
