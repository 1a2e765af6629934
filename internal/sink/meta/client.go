// Package meta reports conversions to the advertising network's server-side
// events endpoint.
package meta

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"example.com/attribution/internal/domain"
	"example.com/attribution/internal/logging"
	"example.com/attribution/internal/metrics"
	"example.com/attribution/internal/pii"
	"example.com/attribution/internal/sink"
)

const (
	sinkName     = "meta"
	breakerName  = "meta-conversions"
	actionSource = "website"
)

// ErrMissingCredential is reported when a pixel has no id or access token.
var ErrMissingCredential = errors.New("missing pixel credential")

type Config struct {
	APIHost       string
	APIVersion    string
	Environment   string
	TestEventCode string
	Timeout       time.Duration

	BreakerMaxRequests  uint32
	BreakerInterval     time.Duration
	BreakerTimeout      time.Duration
	BreakerMinRequests  uint32
	BreakerFailureRatio float64
}

func DefaultConfig() Config {
	return Config{
		APIHost:             "https://graph.facebook.com",
		APIVersion:          "v19.0",
		Environment:         "development",
		Timeout:             3 * time.Second,
		BreakerMaxRequests:  3,
		BreakerInterval:     time.Minute,
		BreakerTimeout:      30 * time.Second,
		BreakerMinRequests:  10,
		BreakerFailureRatio: 0.6,
	}
}

// Conversion is one occurrence to report.
type Conversion struct {
	EventName  string
	EventTime  time.Time
	SourceURL  string
	CustomData *domain.ConversionData
	EventID    string
	OptOut     bool
	User       *pii.Extra
}

type Client struct {
	http          *http.Client
	baseURL       string
	testEventCode string
	timeout       time.Duration
	settings      gobreaker.Settings
	now           func() time.Time

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func New(cfg Config) *Client {
	minRequests := cfg.BreakerMinRequests
	ratio := cfg.BreakerFailureRatio
	settings := gobreaker.Settings{
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= ratio
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			l := logging.WithComponent(sinkName)
			l.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("[meta] circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	}

	return &Client{
		http:          sink.NewHTTPClient(cfg.Timeout + time.Second),
		baseURL:       strings.TrimRight(cfg.APIHost, "/") + "/" + strings.Trim(cfg.APIVersion, "/"),
		testEventCode: sandboxCode(cfg),
		timeout:       cfg.Timeout,
		settings:      settings,
		now:           time.Now,
		breakers:      make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

// breaker returns the circuit breaker of one pixel. Pixels trip
// independently so one workspace's failures never block another's.
func (c *Client) breaker(pixelID string) *gobreaker.CircuitBreaker[struct{}] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[pixelID]; ok {
		return cb
	}
	st := c.settings
	st.Name = breakerName + "/" + pixelID
	cb := gobreaker.NewCircuitBreaker[struct{}](st)
	c.breakers[pixelID] = cb
	metrics.CircuitBreakerState.WithLabelValues(st.Name).Set(0)
	return cb
}

// statusError is a non-2xx answer from the conversions endpoint.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("conversions endpoint status %d: %s", e.code, e.body)
}

// countsAsSuccess keeps rejected credentials and payloads (4xx other than
// 429) out of the breaker's failure counts. Only transport errors, timeouts,
// throttling and 5xx trip it.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code/100 == 4 && se.code != http.StatusTooManyRequests
	}
	return false
}

// ReportConversion posts one server event for pixel. It never returns an
// error: every failure, including an open breaker or a timeout, is folded
// into the result.
func (c *Client) ReportConversion(ctx context.Context, pixel domain.AdPixel, conv Conversion, v domain.VisitorContext) domain.SinkDispatchResult {
	start := time.Now()
	defer func() {
		metrics.SinkDispatchDuration.WithLabelValues(sinkName).Observe(time.Since(start).Seconds())
	}()

	if pixel.ID == "" || pixel.AccessToken == "" {
		return c.fail(ctx, "skipped", ErrMissingCredential)
	}

	body, err := json.Marshal(c.request(pixel, conv, v))
	if err != nil {
		return c.fail(ctx, "failed", fmt.Errorf("encode conversion: %w", err))
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	_, err = c.breaker(pixel.ID).Execute(func() (struct{}, error) {
		return struct{}{}, c.post(ctx, pixel.ID, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return c.fail(ctx, "rejected", err)
		}
		return c.fail(ctx, "failed", err)
	}

	metrics.SinkDispatch.WithLabelValues(sinkName, "reported").Inc()
	return domain.SinkDispatchResult{Reported: true}
}

func (c *Client) fail(ctx context.Context, outcome string, err error) domain.SinkDispatchResult {
	metrics.SinkDispatch.WithLabelValues(sinkName, outcome).Inc()
	logging.Ctx(ctx).Warn().Err(err).Str("outcome", outcome).Msg("[meta] conversion not reported")
	return domain.SinkDispatchResult{Reported: false, Error: err.Error()}
}

func (c *Client) request(pixel domain.AdPixel, conv Conversion, v domain.VisitorContext) eventsRequest {
	now := c.now()
	at := conv.EventTime
	if at.IsZero() {
		at = now
	}
	id := conv.EventID
	if id == "" {
		id = uuid.NewString()
	}
	src := conv.SourceURL
	if src == "" {
		src = v.Href
	}

	ev := serverEvent{
		UserData:       pii.BuildHashedUserData(v, conv.User, now),
		EventName:      conv.EventName,
		EventTime:      at.Unix(),
		ActionSource:   actionSource,
		EventSourceURL: src,
		OptOut:         conv.OptOut,
		EventID:        id,
	}
	if d := conv.CustomData; d != nil {
		ev.CustomData = &customData{
			ContentIDs: d.ContentIDs,
			Value:      d.Value,
			Currency:   d.Currency,
			NumItems:   d.NumItems,
		}
	}

	return eventsRequest{
		AccessToken:   pixel.AccessToken,
		Data:          []serverEvent{ev},
		TestEventCode: c.testEventCode,
	}
}

func (c *Client) post(ctx context.Context, pixelID string, body []byte) error {
	url := fmt.Sprintf("%s/%s/events", c.baseURL, pixelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post conversion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(msg))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
