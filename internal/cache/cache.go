// Package cache keeps recently resolved short codes close to the redirect
// path. Entries map a short code to its destination URL.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultSize = 10_000
	DefaultTTL  = 10 * time.Minute
)

// Links is a best-effort lookaside cache: failures behave as misses.
// Delete leaves a tombstone, so a Set for the same code is ignored until the
// TTL runs out. A reader that loaded a link just before it was deleted
// cannot put it back.
type Links interface {
	Get(ctx context.Context, code string) (string, bool)
	Set(ctx context.Context, code, fullURL string)
	Delete(ctx context.Context, code string)
}

type Memory struct {
	// serializes Set against Delete
	mu   sync.Mutex
	lru  *expirable.LRU[string, string]
	gone *expirable.LRU[string, struct{}]
}

func NewMemory(size int, ttl time.Duration) *Memory {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		lru:  expirable.NewLRU[string, string](size, nil, ttl),
		gone: expirable.NewLRU[string, struct{}](size, nil, ttl),
	}
}

func (m *Memory) Get(_ context.Context, code string) (string, bool) {
	return m.lru.Get(code)
}

func (m *Memory) Set(_ context.Context, code, fullURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, gone := m.gone.Peek(code); gone {
		return
	}
	m.lru.Add(code, fullURL)
}

func (m *Memory) Delete(_ context.Context, code string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gone.Add(code, struct{}{})
	m.lru.Remove(code)
}
