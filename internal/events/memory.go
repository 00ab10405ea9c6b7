package events

import (
	"context"
	"sync"
	"time"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/models"
)

// MemoryFeed is an in-process Feed for tests and dry runs.
type MemoryFeed struct {
	mu       sync.Mutex
	queue    []models.SyncEvent
	pending  int
	closed   bool
	maxBatch int
	notify   chan struct{}

	polls int
	acks  int
}

// NewMemoryFeed creates an empty feed. A non-positive maxBatch uses
// DefaultMaxBatch.
func NewMemoryFeed(maxBatch int) *MemoryFeed {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	return &MemoryFeed{maxBatch: maxBatch, notify: make(chan struct{}, 1)}
}

// Push enqueues events.
func (f *MemoryFeed) Push(events ...models.SyncEvent) {
	f.mu.Lock()
	f.queue = append(f.queue, events...)
	f.mu.Unlock()
	select {
	case f.notify <- struct{}{}:
	default:
	}
}

func (f *MemoryFeed) Poll(ctx context.Context, timeout time.Duration) ([]models.SyncEvent, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrFeedClosed
	}
	f.polls++
	f.pending = 0
	empty := len(f.queue) == 0
	f.mu.Unlock()

	if empty {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		case <-f.notify:
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrFeedClosed
	}
	n := min(len(f.queue), f.maxBatch)
	if n == 0 {
		return nil, nil
	}
	f.pending = n
	return append([]models.SyncEvent(nil), f.queue[:n]...), nil
}

func (f *MemoryFeed) Ack(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending == 0 {
		return ErrNoPending
	}
	f.queue = f.queue[f.pending:]
	f.pending = 0
	f.acks++
	return nil
}

func (f *MemoryFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.pending = 0
	return nil
}

// Len returns the number of events not yet acknowledged.
func (f *MemoryFeed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// Acks returns how many batches were acknowledged.
func (f *MemoryFeed) Acks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acks
}

// Polls returns how many times Poll was called.
func (f *MemoryFeed) Polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}
