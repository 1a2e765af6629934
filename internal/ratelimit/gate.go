// Package ratelimit implements the deduplication gate: a keyed sliding-window
// counter that caps how many times one logical event from one origin is
// recorded.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"example.com/attribution/internal/idempotency"
	"example.com/attribution/internal/logging"
	"example.com/attribution/internal/metrics"
)

// ErrStoreUnavailable wraps every failure of the backing counter store.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Store atomically increments the counter of key and returns the count after
// the increment. The first increment of a window starts its expiry.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Gate decides whether an occurrence may be recorded.
type Gate struct {
	store Store
}

func NewGate(store Store) *Gate { return &Gate{store: store} }

// Allow increments the window counter of key and reports whether the count
// before the increment was below limit. A store failure suppresses the
// occurrence: double counting during an outage is worse than a missed row.
func (g *Gate) Allow(ctx context.Context, key idempotency.DedupKey, limit int, window time.Duration) bool {
	if limit <= 0 {
		metrics.DedupDecisions.WithLabelValues(key.Operation, "suppressed").Inc()
		return false
	}
	n, err := g.store.Incr(ctx, key.Derive(), window)
	if err != nil {
		metrics.DedupDecisions.WithLabelValues(key.Operation, "store_error").Inc()
		logging.Ctx(ctx).Warn().Err(err).Str("operation", key.Operation).Msg("[dedup] store unavailable, suppressing")
		return false
	}
	if n <= int64(limit) {
		metrics.DedupDecisions.WithLabelValues(key.Operation, "allowed").Inc()
		return true
	}
	metrics.DedupDecisions.WithLabelValues(key.Operation, "suppressed").Inc()
	logging.Ctx(ctx).Debug().Str("key", key.String()).Int64("count", n).Msg("[dedup] suppressed")
	return false
}
