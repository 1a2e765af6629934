package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"example.com/attribution/internal/metrics"
)

// ErrUnknownCounter is returned for a counter outside the declared set.
var ErrUnknownCounter = errors.New("unknown counter")

// Counter names one monotonically increasing column.
type Counter struct {
	Table  string
	Column string
}

func (c Counter) String() string { return c.Table + "." + c.Column }

var (
	LinkClicks          = Counter{Table: "links", Column: "clicks"}
	FmPageViews         = Counter{Table: "fm_pages", Column: "views"}
	FmPageClicks        = Counter{Table: "fm_pages", Column: "clicks"}
	PageViews           = Counter{Table: "pages", Column: "views"}
	PageClicks          = Counter{Table: "pages", Column: "clicks"}
	WorkspaceLinkUsage  = Counter{Table: "workspaces", Column: "link_usage"}
	WorkspaceEventUsage = Counter{Table: "workspaces", Column: "event_usage"}
)

// Only these identifiers ever reach the SQL text.
var knownCounters = map[Counter]struct{}{
	LinkClicks:          {},
	FmPageViews:         {},
	FmPageClicks:        {},
	PageViews:           {},
	PageClicks:          {},
	WorkspaceLinkUsage:  {},
	WorkspaceEventUsage: {},
}

// Execer is satisfied by *pgxpool.Pool, pgx.Tx and *pgx.Conn.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Counters issues store-level increments.
type Counters struct {
	db Execer
}

func NewCounters(db Execer) *Counters { return &Counters{db: db} }

// IncrementSQL returns the single-statement increment of c.
func IncrementSQL(c Counter) string {
	table := pgx.Identifier{c.Table}.Sanitize()
	col := pgx.Identifier{c.Column}.Sanitize()
	return fmt.Sprintf("UPDATE %s SET %s = %s + $1 WHERE id = $2", table, col, col)
}

// Increment adds delta to counter on row id. The addition happens inside the
// UPDATE so concurrent increments never lose updates.
func (c *Counters) Increment(ctx context.Context, counter Counter, id string, delta int64) error {
	if _, ok := knownCounters[counter]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCounter, counter)
	}
	if delta <= 0 {
		return fmt.Errorf("increment %s: delta must be positive, got %d", counter, delta)
	}

	tag, err := c.db.Exec(ctx, IncrementSQL(counter), delta, id)
	if err != nil {
		metrics.CounterUpdates.WithLabelValues(counter.String(), "failed").Inc()
		return fmt.Errorf("increment %s: %w", counter, err)
	}
	if tag.RowsAffected() == 0 {
		metrics.CounterUpdates.WithLabelValues(counter.String(), "missing").Inc()
		return fmt.Errorf("increment %s id=%s: %w", counter, id, ErrNotFound)
	}
	metrics.CounterUpdates.WithLabelValues(counter.String(), "ok").Inc()
	return nil
}
