package transporthttp

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/attribution/internal/config"
	"example.com/attribution/internal/domain"
	"example.com/attribution/internal/ingest"
	"example.com/attribution/internal/logging"
	"example.com/attribution/internal/pipeline"
	spg "example.com/attribution/internal/storage/postgres"
)

type Recorder interface {
	RecordLinkClick(ctx context.Context, in pipeline.LinkClick) (*pipeline.Result, error)
	RecordCartEvent(ctx context.Context, in pipeline.CartEvent) (*pipeline.Result, error)
	RecordFmEvent(ctx context.Context, in pipeline.FmEvent) (*pipeline.Result, error)
	RecordPageEvent(ctx context.Context, in pipeline.PageEvent) (*pipeline.Result, error)
}

type Enqueuer interface {
	Enqueue(job ingest.Job) bool
}

type Store interface {
	GetLink(ctx context.Context, id string) (*domain.Link, error)
	QueryLinkStats(ctx context.Context, linkID string) (spg.LinkStats, error)
	Ready(ctx context.Context) error
}

type ServerDeps struct {
	Cfg      *config.Config
	Pipeline Recorder
	Ingestor Enqueuer
	Store    Store

	// DedupPing checks the shared dedup store. Nil when windows are in memory.
	DedupPing func(ctx context.Context) error
}

func decodeJSONStrict(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// --- Health ---

func (d *ServerDeps) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (d *ServerDeps) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := d.Store.Ready(r.Context()); err != nil {
		WriteProblem(w, http.StatusServiceUnavailable, "not ready", "database not reachable", nil)
		return
	}
	if d.DedupPing != nil {
		if err := d.DedupPing(r.Context()); err != nil {
			WriteProblem(w, http.StatusServiceUnavailable, "not ready", "dedup store not reachable", nil)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

// --- Redirect ---

// HandleRedirect answers a short link visit immediately and records the click
// in the background.
func (d *ServerDeps) HandleRedirect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	linkID := chi.URLParam(r, "linkID")

	link, err := d.Store.GetLink(ctx, linkID)
	if errors.Is(err, spg.ErrNotFound) {
		WriteProblem(w, http.StatusNotFound, "not found", "unknown link", nil)
		return
	}
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("link_id", linkID).Msg("[api] link lookup failed")
		WriteProblem(w, http.StatusInternalServerError, "store error", "link lookup failed", nil)
		return
	}
	if link.URL == "" {
		WriteProblem(w, http.StatusNotFound, "not found", "link has no destination", nil)
		return
	}

	visitor := VisitorFromRequest(r)
	corrID := logging.CorrelationIDFromContext(ctx)
	job := ingest.Job{Name: "link_click", Run: func(jobCtx context.Context) error {
		jobCtx = logging.ContextWithCorrelationID(jobCtx, corrID)
		_, err := d.Pipeline.RecordLinkClick(jobCtx, pipeline.LinkClick{Link: link, Visitor: visitor})
		return err
	}}
	if ok := d.Ingestor.Enqueue(job); !ok {
		logging.Ctx(ctx).Warn().Str("link_id", linkID).Msg("[api] ingest queue full, click dropped")
	}

	http.Redirect(w, r, link.URL, http.StatusFound)
}

// --- Tracking ---

type trackLinkRequest struct {
	Visitor domain.VisitorContext `json:"visitor"`
	Link    domain.Link           `json:"link"`
}

type trackCartRequest struct {
	Type    domain.EventType      `json:"type" validate:"required"`
	Visitor domain.VisitorContext `json:"visitor"`
	Cart    domain.Cart           `json:"cart"`
}

type trackFmRequest struct {
	Type    domain.EventType      `json:"type" validate:"required"`
	Visitor domain.VisitorContext `json:"visitor"`
	Page    domain.FmPage         `json:"page"`
}

type trackPageRequest struct {
	Type    domain.EventType      `json:"type" validate:"required"`
	Visitor domain.VisitorContext `json:"visitor"`
	Page    domain.Page           `json:"page"`
}

func (d *ServerDeps) HandleTrackLink(w http.ResponseWriter, r *http.Request) {
	var req trackLinkRequest
	if !d.decodeTrack(w, r, &req, &req.Visitor) {
		return
	}
	res, err := d.Pipeline.RecordLinkClick(r.Context(), pipeline.LinkClick{Link: &req.Link, Visitor: req.Visitor})
	d.writeResult(w, r, res, err)
}

func (d *ServerDeps) HandleTrackCart(w http.ResponseWriter, r *http.Request) {
	var req trackCartRequest
	if !d.decodeTrack(w, r, &req, &req.Visitor) {
		return
	}
	res, err := d.Pipeline.RecordCartEvent(r.Context(), pipeline.CartEvent{Cart: &req.Cart, Type: req.Type, Visitor: req.Visitor})
	d.writeResult(w, r, res, err)
}

func (d *ServerDeps) HandleTrackFm(w http.ResponseWriter, r *http.Request) {
	var req trackFmRequest
	if !d.decodeTrack(w, r, &req, &req.Visitor) {
		return
	}
	res, err := d.Pipeline.RecordFmEvent(r.Context(), pipeline.FmEvent{Page: &req.Page, Type: req.Type, Visitor: req.Visitor})
	d.writeResult(w, r, res, err)
}

func (d *ServerDeps) HandleTrackPage(w http.ResponseWriter, r *http.Request) {
	var req trackPageRequest
	if !d.decodeTrack(w, r, &req, &req.Visitor) {
		return
	}
	res, err := d.Pipeline.RecordPageEvent(r.Context(), pipeline.PageEvent{Page: &req.Page, Type: req.Type, Visitor: req.Visitor})
	d.writeResult(w, r, res, err)
}

// decodeTrack decodes and validates a tracking body. A body without a visitor
// IP takes the visitor from the request itself.
func (d *ServerDeps) decodeTrack(w http.ResponseWriter, r *http.Request, req any, visitor *domain.VisitorContext) bool {
	defer DrainBody(r)
	if err := decodeJSONStrict(r, req); err != nil {
		WriteProblem(w, http.StatusBadRequest, "invalid json", err.Error(), nil)
		return false
	}
	if visitor.IP == "" {
		*visitor = VisitorFromRequest(r)
	}
	if err := validate.Struct(req); err != nil {
		WriteProblem(w, http.StatusBadRequest, "validation failed", "one or more fields are invalid", fieldErrors(err))
		return false
	}
	return true
}

func (d *ServerDeps) writeResult(w http.ResponseWriter, r *http.Request, res *pipeline.Result, err error) {
	switch {
	case errors.Is(err, pipeline.ErrInvalidEvent):
		WriteProblem(w, http.StatusBadRequest, "invalid event", err.Error(), nil)
	case errors.Is(err, domain.ErrSchema):
		WriteProblem(w, http.StatusInternalServerError, "schema mismatch", err.Error(), nil)
	case errors.Is(err, spg.ErrNotFound):
		WriteProblem(w, http.StatusNotFound, "not found", err.Error(), nil)
	case err != nil:
		logging.Ctx(r.Context()).Error().Err(err).Msg("[api] record failed")
		WriteProblem(w, http.StatusInternalServerError, "store error", "the occurrence could not be recorded", nil)
	case res == nil:
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

// --- Stats ---

func (d *ServerDeps) HandleLinkStats(w http.ResponseWriter, r *http.Request) {
	linkID := chi.URLParam(r, "linkID")
	stats, err := d.Store.QueryLinkStats(r.Context(), linkID)
	if errors.Is(err, spg.ErrNotFound) {
		WriteProblem(w, http.StatusNotFound, "not found", "unknown link", nil)
		return
	}
	if err != nil {
		WriteProblem(w, http.StatusInternalServerError, "query error", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- Router ---

func (d *ServerDeps) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestContext)
	r.Use(AccessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", d.HandleHealthz)
	r.Get("/readyz", d.HandleReadyz)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/l/{linkID}", d.HandleRedirect)

	r.Route("/v1", func(r chi.Router) {
		r.Use(APIKeyAuth(d.Cfg.APIKeySet()))

		r.Group(func(r chi.Router) {
			r.Use(BodyLimit(d.Cfg.HTTP.MaxBodyBytes))
			r.Use(RequireJSON)
			r.Post("/track/link", d.HandleTrackLink)
			r.Post("/track/cart", d.HandleTrackCart)
			r.Post("/track/fm", d.HandleTrackFm)
			r.Post("/track/page", d.HandleTrackPage)
		})

		r.With(RateLimitPerMinute(d.Cfg.HTTP.StatsRatePerMin)).Get("/links/{linkID}/stats", d.HandleLinkStats)
	})

	return r
}
