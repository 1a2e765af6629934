package timeseries

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"example.com/attribution/internal/domain"
)

func linkRecord() domain.Record {
	link := &domain.Link{ID: "L1", WorkspaceID: "W1", Domain: "brl.to", Key: "abc", URL: "https://example.com"}
	return domain.NewRecord(domain.AttributionEvent{
		Timestamp:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		WorkspaceID: "W1",
		AssetID:     "L1",
		Href:        link.Href(),
		Key:         "abc",
		Type:        domain.LinkClick,
	}, domain.VisitorContext{IP: "1.2.3.4"}.WithDefaults(),
		mergeInto(domain.BuildEventData(domain.FamilyLink, domain.LinkClick, link), "reportedToMeta", "false"))
}

func mergeInto(r domain.Record, k string, v any) domain.Record {
	r[k] = v
	return r
}

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return nil
}

func newTestClient(url string, rec *sleepRecorder) *Client {
	c := New(Config{Host: url, Token: "secret", Timeout: time.Second, DefaultRetryAfter: time.Second})
	c.sleep = rec.sleep
	return c
}

func TestIngestPostsNDJSON(t *testing.T) {
	var (
		gotAuth  string
		gotQuery string
		lines    int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query().Get("name")
		raw, _ := io.ReadAll(r.Body)
		sc := bufio.NewScanner(bytes.NewReader(raw))
		for sc.Scan() {
			var m map[string]any
			if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
				t.Errorf("line is not JSON: %v", err)
			}
			lines++
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"successful_rows":2,"quarantined_rows":0}`))
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	c := newTestClient(srv.URL, rec)
	ack, err := c.Ingest(context.Background(), "link_events", linkRecord(), linkRecord())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ack.SuccessfulRows != 2 {
		t.Errorf("expected 2 successful rows, got %+v", ack)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("expected bearer token, got %q", gotAuth)
	}
	if gotQuery != "link_events" {
		t.Errorf("expected datasource name, got %q", gotQuery)
	}
	if lines != 2 {
		t.Errorf("expected 2 NDJSON lines, got %d", lines)
	}
	if len(rec.waits) != 0 {
		t.Errorf("expected no retry, got %v", rec.waits)
	}
}

func TestIngestRetriesOnceAfterRetryAfter(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.Header().Set("X-RateLimit-Limit", "100")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"successful_rows":1,"quarantined_rows":0}`))
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	c := newTestClient(srv.URL, rec)
	ack, err := c.Ingest(context.Background(), "link_events", linkRecord())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ack.SuccessfulRows != 1 {
		t.Errorf("expected ack from the retry, got %+v", ack)
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Errorf("expected exactly 2 requests, got %d", got)
	}
	if len(rec.waits) != 1 || rec.waits[0] < 2*time.Second {
		t.Errorf("expected one wait of at least 2s, got %v", rec.waits)
	}
}

func TestIngestSecond429IsFatal(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	c := newTestClient(srv.URL, rec)
	_, err := c.Ingest(context.Background(), "link_events", linkRecord())
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Errorf("expected exactly 2 requests, got %d", got)
	}
	if len(rec.waits) != 1 || rec.waits[0] != time.Second {
		t.Errorf("expected the 1s default wait, got %v", rec.waits)
	}
}

func TestIngestServerErrorIsNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, &sleepRecorder{})
	_, err := c.Ingest(context.Background(), "link_events", linkRecord())
	if !errors.Is(err, ErrIngest) {
		t.Fatalf("expected ErrIngest, got %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("expected a single request, got %d", got)
	}
}

func TestIngestValidationFailureSendsNothing(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, &sleepRecorder{})

	bad := linkRecord()
	delete(bad, "reportedToMeta")
	_, err := c.Ingest(context.Background(), "link_events", linkRecord(), bad)
	if !errors.Is(err, domain.ErrSchema) {
		t.Fatalf("expected schema error, got %v", err)
	}

	_, err = c.Ingest(context.Background(), "no_such_source", linkRecord())
	if !errors.Is(err, domain.ErrSchema) {
		t.Fatalf("expected schema error for unknown datasource, got %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 0 {
		t.Errorf("expected no HTTP calls, got %d", got)
	}
}

func TestParseRetryAfter(t *testing.T) {
	c := New(Config{DefaultRetryAfter: time.Second})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", time.Second},
		{"3", 3 * time.Second},
		{"0", 0},
		{"soon", time.Second},
		{now.Add(5 * time.Second).Format(http.TimeFormat), 5 * time.Second},
		{now.Add(-5 * time.Second).Format(http.TimeFormat), 0},
	}
	for _, tt := range tests {
		if got := c.parseRetryAfter(tt.in); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
