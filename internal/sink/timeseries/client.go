// Package timeseries ships validated event records to the time-series
// store's NDJSON ingestion endpoint.
package timeseries

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"example.com/attribution/internal/domain"
	"example.com/attribution/internal/logging"
	"example.com/attribution/internal/metrics"
	"example.com/attribution/internal/sink"
)

const (
	sinkName    = "timeseries"
	maxAttempts = 2
)

var (
	// ErrRateLimited is returned when the endpoint answers 429 again after
	// the single retry.
	ErrRateLimited = errors.New("time-series ingest rate limited")
	// ErrIngest wraps transport failures and non-2xx answers.
	ErrIngest = errors.New("time-series ingest failed")
)

type Config struct {
	Host              string
	Token             string
	Timeout           time.Duration
	DefaultRetryAfter time.Duration
}

func DefaultConfig() Config {
	return Config{
		Host:              "https://api.tinybird.co",
		Timeout:           5 * time.Second,
		DefaultRetryAfter: time.Second,
	}
}

// IngestAck is the endpoint's row accounting for one POST.
type IngestAck struct {
	SuccessfulRows  int `json:"successful_rows"`
	QuarantinedRows int `json:"quarantined_rows"`
}

type Client struct {
	http       *http.Client
	host       string
	token      string
	timeout    time.Duration
	retryAfter time.Duration
	sleep      func(context.Context, time.Duration) error
	now        func() time.Time
}

func New(cfg Config) *Client {
	retryAfter := cfg.DefaultRetryAfter
	if retryAfter <= 0 {
		retryAfter = time.Second
	}
	return &Client{
		http:       sink.NewHTTPClient(cfg.Timeout + time.Second),
		host:       strings.TrimRight(cfg.Host, "/"),
		token:      cfg.Token,
		timeout:    cfg.Timeout,
		retryAfter: retryAfter,
		sleep:      sink.Sleep,
		now:        time.Now,
	}
}

// Ingest validates every record against the datasource schema and posts them
// as one NDJSON body. A validation failure returns an error wrapping
// domain.ErrSchema before anything is sent. A 429 is retried once after
// Retry-After.
func (c *Client) Ingest(ctx context.Context, datasource string, records ...domain.Record) (IngestAck, error) {
	if len(records) == 0 {
		return IngestAck{}, nil
	}
	for _, rec := range records {
		if err := domain.ValidateRecord(datasource, rec); err != nil {
			metrics.SinkDispatch.WithLabelValues(sinkName, "invalid").Inc()
			return IngestAck{}, err
		}
	}

	body, err := encodeNDJSON(records)
	if err != nil {
		return IngestAck{}, fmt.Errorf("encode %s: %w", datasource, err)
	}

	start := time.Now()
	defer func() {
		metrics.SinkDispatchDuration.WithLabelValues(sinkName).Observe(time.Since(start).Seconds())
	}()

	for attempt := 1; ; attempt++ {
		ack, wait, err := c.post(ctx, datasource, body)
		if err == nil {
			metrics.SinkDispatch.WithLabelValues(sinkName, "reported").Inc()
			return ack, nil
		}
		if !errors.Is(err, ErrRateLimited) || attempt >= maxAttempts {
			metrics.SinkDispatch.WithLabelValues(sinkName, "failed").Inc()
			return IngestAck{}, err
		}

		metrics.TimeSeriesRetries.Inc()
		logging.Ctx(ctx).Warn().Str("datasource", datasource).Dur("retry_after", wait).
			Msg("[timeseries] rate limited, retrying once")
		if err := c.sleep(ctx, wait); err != nil {
			metrics.SinkDispatch.WithLabelValues(sinkName, "failed").Inc()
			return IngestAck{}, fmt.Errorf("%w: %v", ErrIngest, err)
		}
	}
}

// post sends one attempt. On 429 it returns ErrRateLimited and the wait the
// endpoint asked for.
func (c *Client) post(ctx context.Context, datasource string, body []byte) (IngestAck, time.Duration, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	endpoint := c.host + "/v0/events?name=" + url.QueryEscape(datasource)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return IngestAck{}, 0, fmt.Errorf("%w: build request: %v", ErrIngest, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/x-ndjson")

	resp, err := c.http.Do(req)
	if err != nil {
		return IngestAck{}, 0, fmt.Errorf("%w: %v", ErrIngest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		wait := c.parseRetryAfter(resp.Header.Get("Retry-After"))
		return IngestAck{}, wait, fmt.Errorf("%w: %s (limit=%s remaining=%s reset=%s)", ErrRateLimited, datasource,
			resp.Header.Get("X-RateLimit-Limit"), resp.Header.Get("X-RateLimit-Remaining"), resp.Header.Get("X-RateLimit-Reset"))
	}
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return IngestAck{}, 0, fmt.Errorf("%w: %s status %d: %s", ErrIngest, datasource, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var ack IngestAck
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil && !errors.Is(err, io.EOF) {
		return IngestAck{}, 0, fmt.Errorf("%w: decode ack: %v", ErrIngest, err)
	}
	return ack, 0, nil
}

// parseRetryAfter accepts delay-seconds or an HTTP date and falls back to the
// configured default.
func (c *Client) parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return c.retryAfter
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(c.now()); d > 0 {
			return d
		}
		return 0
	}
	return c.retryAfter
}

func encodeNDJSON(records []domain.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range records {
		// Encode terminates each value with '\n'.
		if err := enc.Encode(rec); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
