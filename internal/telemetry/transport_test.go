package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
)

// memoryTransport is a sentry.Transport that keeps delivered events in memory.
type memoryTransport struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func newMemoryTransport() *memoryTransport { return &memoryTransport{} }

//nolint:gocritic // hugeParam: sentry.Transport signature
func (t *memoryTransport) Configure(sentry.ClientOptions) {}

func (t *memoryTransport) SendEvent(event *sentry.Event) {
	t.mu.Lock()
	t.events = append(t.events, event)
	t.mu.Unlock()
}

func (t *memoryTransport) Flush(time.Duration) bool { return true }

func (t *memoryTransport) FlushWithContext(ctx context.Context) bool { return ctx.Err() == nil }

func (t *memoryTransport) Close() {}

func (t *memoryTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}

// last returns the most recently delivered event, or nil.
func (t *memoryTransport) last() *sentry.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.events) == 0 {
		return nil
	}
	return t.events[len(t.events)-1]
}
