// Package pipeline records visitor interactions: dedup, counter update, then
// concurrent dispatch to the advertising and time-series sinks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"example.com/attribution/internal/domain"
	"example.com/attribution/internal/idempotency"
	"example.com/attribution/internal/pii"
	"example.com/attribution/internal/sink/meta"
	"example.com/attribution/internal/sink/timeseries"
	"example.com/attribution/internal/storage/postgres"
)

// ErrInvalidEvent rejects an occurrence before any side effect.
var ErrInvalidEvent = errors.New("invalid event")

type Limiter interface {
	Allow(ctx context.Context, key idempotency.DedupKey, limit int, window time.Duration) bool
}

type CounterStore interface {
	Increment(ctx context.Context, counter postgres.Counter, id string, delta int64) error
}

type AdReporter interface {
	ReportConversion(ctx context.Context, pixel domain.AdPixel, conv meta.Conversion, v domain.VisitorContext) domain.SinkDispatchResult
}

type Ingester interface {
	Ingest(ctx context.Context, datasource string, records ...domain.Record) (timeseries.IngestAck, error)
}

type Options struct {
	DedupLimit    int
	ClickWindow   time.Duration
	EventWindow   time.Duration
	AdTimeout     time.Duration
	IngestTimeout time.Duration
}

// DefaultOptions uses a one second click window outside production so test
// suites can exercise window expiry.
func DefaultOptions(env string) Options {
	clickWindow := time.Hour
	if env != "production" {
		clickWindow = time.Second
	}
	return Options{
		DedupLimit:    10,
		ClickWindow:   clickWindow,
		EventWindow:   time.Hour,
		AdTimeout:     3 * time.Second,
		IngestTimeout: 12 * time.Second,
	}
}

type Pipeline struct {
	limiter  Limiter
	counters CounterStore
	ads      AdReporter
	ingester Ingester
	opts     Options
	now      func() time.Time
}

func New(limiter Limiter, counters CounterStore, ads AdReporter, ingester Ingester, opts Options) *Pipeline {
	return &Pipeline{
		limiter:  limiter,
		counters: counters,
		ads:      ads,
		ingester: ingester,
		opts:     opts,
		now:      time.Now,
	}
}

// Result is returned for every recorded occurrence. A suppressed occurrence
// yields a nil Result.
type Result struct {
	Type       domain.EventType          `json:"type"`
	Datasource string                    `json:"datasource"`
	Ad         domain.SinkDispatchResult `json:"ad"`
	TimeSeries TimeSeriesResult          `json:"timeSeries"`
}

type TimeSeriesResult struct {
	Acked           bool   `json:"acked"`
	SuccessfulRows  int    `json:"successfulRows"`
	QuarantinedRows int    `json:"quarantinedRows"`
	Error           string `json:"error,omitempty"`
}

type LinkClick struct {
	Link    *domain.Link
	Visitor domain.VisitorContext
}

type CartEvent struct {
	Cart    *domain.Cart
	Type    domain.EventType
	Visitor domain.VisitorContext
}

type FmEvent struct {
	Page    *domain.FmPage
	Type    domain.EventType
	Visitor domain.VisitorContext
}

type PageEvent struct {
	Page    *domain.Page
	Type    domain.EventType
	Visitor domain.VisitorContext
}

// RecordLinkClick dedups on (ip, link) and bumps the link's click counter and
// its workspace's link usage.
func (p *Pipeline) RecordLinkClick(ctx context.Context, in LinkClick) (*Result, error) {
	l := in.Link
	if l == nil || l.ID == "" {
		return nil, fmt.Errorf("%w: link snapshot required", ErrInvalidEvent)
	}
	return p.run(ctx, occurrence{
		entity:  l,
		typ:     domain.LinkClick,
		visitor: in.Visitor,
		key: idempotency.DedupKey{
			Operation: idempotency.OpRecordLinkClick,
			IP:        in.Visitor.IP,
			SubjectID: l.ID,
		},
		window:      p.opts.ClickWindow,
		primary:     counterUpdate{postgres.LinkClicks, l.ID},
		secondary:   []counterUpdate{{postgres.WorkspaceLinkUsage, l.WorkspaceID}},
		href:        firstNonEmpty(l.Href(), in.Visitor.Href),
		shortKey:    l.Key,
		remarketing: l.Remarketing,
		pixel:       l.Pixel,
	})
}

// RecordCartEvent dedups on (ip, cart, type) and bumps the workspace's event
// usage.
func (p *Pipeline) RecordCartEvent(ctx context.Context, in CartEvent) (*Result, error) {
	c := in.Cart
	if c == nil || c.ID == "" {
		return nil, fmt.Errorf("%w: cart snapshot required", ErrInvalidEvent)
	}
	return p.run(ctx, occurrence{
		entity:  c,
		typ:     in.Type,
		visitor: in.Visitor,
		key: idempotency.DedupKey{
			Operation: idempotency.OpRecordCartEvent,
			IP:        in.Visitor.IP,
			SubjectID: c.ID,
			EventType: in.Type,
		},
		window:      p.opts.EventWindow,
		primary:     counterUpdate{postgres.WorkspaceEventUsage, c.WorkspaceID},
		href:        in.Visitor.Href,
		shortKey:    c.Key,
		remarketing: c.Remarketing,
		pixel:       c.Pixel,
		user:        pii.ExtraFromCustomer(c.Customer),
	})
}

func (p *Pipeline) RecordFmEvent(ctx context.Context, in FmEvent) (*Result, error) {
	pg := in.Page
	if pg == nil || pg.ID == "" {
		return nil, fmt.Errorf("%w: fm page snapshot required", ErrInvalidEvent)
	}
	counter := postgres.FmPageViews
	if in.Type == domain.FmLinkClick {
		counter = postgres.FmPageClicks
	}
	return p.run(ctx, occurrence{
		entity:  pg,
		typ:     in.Type,
		visitor: in.Visitor,
		key: idempotency.DedupKey{
			Operation: idempotency.OpRecordFmEvent,
			IP:        in.Visitor.IP,
			SubjectID: pg.ID,
			EventType: in.Type,
		},
		window:      p.opts.EventWindow,
		primary:     counterUpdate{counter, pg.ID},
		secondary:   []counterUpdate{{postgres.WorkspaceEventUsage, pg.WorkspaceID}},
		href:        in.Visitor.Href,
		shortKey:    pg.Key,
		remarketing: pg.Remarketing,
		pixel:       pg.Pixel,
	})
}

func (p *Pipeline) RecordPageEvent(ctx context.Context, in PageEvent) (*Result, error) {
	pg := in.Page
	if pg == nil || pg.ID == "" {
		return nil, fmt.Errorf("%w: page snapshot required", ErrInvalidEvent)
	}
	counter := postgres.PageViews
	if in.Type == domain.PageLinkClick || in.Type == domain.BioLinkClick {
		counter = postgres.PageClicks
	}
	return p.run(ctx, occurrence{
		entity:  pg,
		typ:     in.Type,
		visitor: in.Visitor,
		key: idempotency.DedupKey{
			Operation: idempotency.OpRecordPageEvent,
			IP:        in.Visitor.IP,
			SubjectID: pg.ID,
			EventType: in.Type,
		},
		window:      p.opts.EventWindow,
		primary:     counterUpdate{counter, pg.ID},
		secondary:   []counterUpdate{{postgres.WorkspaceEventUsage, pg.WorkspaceID}},
		href:        in.Visitor.Href,
		shortKey:    pg.Key,
		remarketing: pg.Remarketing,
		pixel:       pg.Pixel,
	})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
