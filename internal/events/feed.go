// Package events consumes source change notifications with at-least-once
// delivery: a polled batch stays pending until it is acknowledged, and a
// batch that is never acknowledged is delivered again.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/models"
)

var (
	// ErrNoPending is returned by Ack when no polled batch awaits acknowledgement.
	ErrNoPending = errors.New("no pending event batch")

	// ErrFeedClosed is returned when polling a closed feed.
	ErrFeedClosed = errors.New("event feed closed")

	// ErrMalformedEvent is returned for notifications that cannot be decoded.
	ErrMalformedEvent = errors.New("malformed event")
)

// DefaultMaxBatch bounds how many events one Poll returns.
const DefaultMaxBatch = 500

// Feed is a pull-based change feed consumed by a single loop.
type Feed interface {
	// Poll returns up to the feed's batch size of events, waiting at most
	// timeout when none are queued. An empty result is not an error. An
	// unacknowledged batch from an earlier Poll is released first and will
	// be delivered again.
	Poll(ctx context.Context, timeout time.Duration) ([]models.SyncEvent, error)

	// Ack commits consumption of the batch returned by the last Poll.
	Ack(ctx context.Context) error

	// Close releases the feed. A pending batch is released, not committed.
	Close() error
}
