package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"example.com/attribution/internal/domain"
	"example.com/attribution/internal/idempotency"
	"example.com/attribution/internal/logging"
	"example.com/attribution/internal/metrics"
	"example.com/attribution/internal/pii"
	"example.com/attribution/internal/sink/meta"
	"example.com/attribution/internal/storage/postgres"
)

// notReported is the reportedToMeta value when no conversion was accepted.
const notReported = "false"

type counterUpdate struct {
	counter postgres.Counter
	id      string
}

// occurrence is one family-independent interaction to record.
type occurrence struct {
	entity      domain.Entity
	typ         domain.EventType
	visitor     domain.VisitorContext
	key         idempotency.DedupKey
	window      time.Duration
	primary     counterUpdate
	secondary   []counterUpdate
	href        string
	shortKey    string
	remarketing bool
	pixel       *domain.AdPixel
	user        *pii.Extra
}

func (p *Pipeline) run(ctx context.Context, o occurrence) (*Result, error) {
	family := o.entity.Family()
	if f, ok := domain.FamilyOf(o.typ); !ok || f != family {
		return nil, fmt.Errorf("%w: %q is not a %s event", ErrInvalidEvent, o.typ, family)
	}
	log := logging.Ctx(ctx).With().
		Str("type", string(o.typ)).
		Str("asset_id", o.entity.AssetID()).
		Logger()

	if !p.limiter.Allow(ctx, o.key, p.opts.DedupLimit, o.window) {
		log.Debug().Msg("[pipeline] suppressed")
		return nil, nil
	}

	v := o.visitor.WithDefaults()
	now := p.now()
	datasource := family.Datasource()
	rec := domain.NewRecord(domain.AttributionEvent{
		Timestamp:   now,
		WorkspaceID: o.entity.Workspace(),
		SessionID:   v.SessionID,
		AssetID:     o.entity.AssetID(),
		Href:        o.href,
		Key:         o.shortKey,
		Type:        o.typ,
	}, v, domain.BuildEventData(family, o.typ, o.entity))
	rec["reportedToMeta"] = notReported

	// A record that fails its schema leaves every counter untouched.
	if err := domain.ValidateRecord(datasource, rec); err != nil {
		log.Error().Err(err).Msg("[pipeline] record rejected by schema")
		return nil, err
	}

	if err := p.updateCounters(ctx, o); err != nil {
		return nil, err
	}

	res, err := p.dispatch(ctx, o, v, datasource, rec, now)
	if err != nil {
		log.Error().Err(err).Msg("[pipeline] dispatch failed")
		return nil, err
	}
	log.Info().
		Bool("ad_reported", res.Ad.Reported).
		Bool("ts_acked", res.TimeSeries.Acked).
		Msg("[pipeline] recorded")
	return res, nil
}

// updateCounters always attempts every update. Only the primary counter's
// failure is returned.
func (p *Pipeline) updateCounters(ctx context.Context, o occurrence) error {
	primaryErr := p.counters.Increment(ctx, o.primary.counter, o.primary.id, 1)
	for _, u := range o.secondary {
		if err := p.counters.Increment(ctx, u.counter, u.id, 1); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("counter", u.counter.String()).Str("id", u.id).
				Msg("[pipeline] secondary counter update failed")
		}
	}
	if primaryErr != nil {
		return fmt.Errorf("increment %s %s: %w", o.primary.counter, o.primary.id, primaryErr)
	}
	return nil
}

// dispatch runs both sinks concurrently. The time-series row waits for the
// advertising outcome so it can carry reportedToMeta. Sink calls are detached
// from the caller's cancellation and bounded by their own timeouts.
func (p *Pipeline) dispatch(ctx context.Context, o occurrence, v domain.VisitorContext, datasource string, rec domain.Record, now time.Time) (*Result, error) {
	sctx := context.WithoutCancel(ctx)
	res := &Result{Type: o.typ, Datasource: datasource}
	adDone := make(chan domain.SinkDispatchResult, 1)

	var g errgroup.Group
	g.Go(func() error {
		adDone <- p.reportAd(sctx, o, v, now)
		return nil
	})
	g.Go(func() error {
		res.Ad = <-adDone
		if res.Ad.Reported && o.pixel != nil {
			rec["reportedToMeta"] = o.pixel.ID
		}

		ictx, cancel := context.WithTimeout(sctx, p.opts.IngestTimeout)
		defer cancel()
		ack, err := p.ingester.Ingest(ictx, datasource, rec)
		if err != nil {
			if errors.Is(err, domain.ErrSchema) {
				return err
			}
			logging.Ctx(ctx).Warn().Err(err).Str("datasource", datasource).Msg("[pipeline] time-series ingest failed")
			res.TimeSeries.Error = err.Error()
			return nil
		}
		res.TimeSeries = TimeSeriesResult{
			Acked:           true,
			SuccessfulRows:  ack.SuccessfulRows,
			QuarantinedRows: ack.QuarantinedRows,
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

func (p *Pipeline) reportAd(ctx context.Context, o occurrence, v domain.VisitorContext, now time.Time) domain.SinkDispatchResult {
	if !o.remarketing || o.pixel == nil {
		metrics.SinkDispatch.WithLabelValues("meta", "skipped").Inc()
		return domain.SinkDispatchResult{}
	}
	name, data := domain.ConversionFor(o.typ, o.entity)
	if name == "" {
		metrics.SinkDispatch.WithLabelValues("meta", "skipped").Inc()
		return domain.SinkDispatchResult{}
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.AdTimeout)
	defer cancel()
	res := p.ads.ReportConversion(ctx, *o.pixel, meta.Conversion{
		EventName:  name,
		EventTime:  now,
		SourceURL:  o.href,
		CustomData: data,
		User:       o.user,
	}, v)
	if !res.Reported {
		logging.Ctx(ctx).Warn().Str("event", name).Str("error", res.Error).Msg("[pipeline] conversion not reported")
	}
	return res
}
