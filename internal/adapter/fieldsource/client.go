// Package fieldsource binds remote gridded datasets to domain.Field through
// a point-query HTTP service.
package fieldsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/exzackley/fondogis/internal/domain"
	"github.com/exzackley/fondogis/internal/observability"
	"github.com/sony/gobreaker"
)

// ErrNotFound reports a dataset slice the service does not carry.
var ErrNotFound = errors.New("field not found")

var errRetryable = errors.New("retryable status")

const (
	kindLattice = "lattice"
	kindValue   = "value"
)

// Client implements domain.FieldSource against a field service exposing
//
//	GET {base}/datasets/{dataset}/{variable}/lattice?scenario=&time=
//	GET {base}/datasets/{dataset}/{variable}/value?scenario=&time=&lat=&lon=
//
// The first returns the native lattice, the second {"value": number|null}.
type Client struct {
	token           string
	httpClient      *http.Client
	baseURL         string
	breaker         *gobreaker.CircuitBreaker
	maxRetries      uint64
	initialInterval time.Duration
	metrics         *observability.Metrics
	logger          *slog.Logger
}

// NewClient creates a field service client. Transient failures (network
// errors, 429, 5xx) are retried with exponential backoff behind a circuit
// breaker shared by every lookup.
func NewClient(baseURL, token string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		token:           token,
		httpClient:      &http.Client{Timeout: timeout},
		baseURL:         baseURL,
		breaker:         newBreaker("field-source"),
		maxRetries:      3,
		initialInterval: 200 * time.Millisecond,
		metrics:         metrics,
		logger:          logger,
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
	})
}

// Field fetches the slice's native lattice and returns a Field that queries
// values point by point.
func (c *Client) Field(ctx context.Context, key domain.FieldKey) (domain.Field, error) {
	var l domain.Lattice
	if err := c.get(ctx, kindLattice, c.endpoint(key, kindLattice, nil), &l); err != nil {
		return nil, fmt.Errorf("lattice %s/%s %s %s: %w", key.Dataset, key.Variable, key.Scenario, key.TimeLabel, err)
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &remoteField{client: c, key: key, lattice: l}, nil
}

type remoteField struct {
	client  *Client
	key     domain.FieldKey
	lattice domain.Lattice
}

func (f *remoteField) Lattice() domain.Lattice { return f.lattice }

func (f *remoteField) ValueAt(ctx context.Context, lat, lon float64) (domain.Value, error) {
	params := url.Values{
		"lat": {strconv.FormatFloat(lat, 'f', 6, 64)},
		"lon": {strconv.FormatFloat(lon, 'f', 6, 64)},
	}
	var resp valueResponse
	if err := f.client.get(ctx, kindValue, f.client.endpoint(f.key, kindValue, params), &resp); err != nil {
		return domain.Value{}, err
	}
	if !resp.Value.Valid {
		f.client.metrics.FieldLookups.WithLabelValues(kindValue, "absent").Inc()
	}
	return resp.Value, nil
}

type valueResponse struct {
	Value domain.Value `json:"value"`
}

func (c *Client) endpoint(key domain.FieldKey, kind string, extra url.Values) string {
	params := url.Values{
		"scenario": {key.Scenario},
		"time":     {key.TimeLabel},
	}
	for k, v := range extra {
		params[k] = v
	}
	return fmt.Sprintf("%s/datasets/%s/%s/%s?%s",
		c.baseURL, url.PathEscape(key.Dataset), url.PathEscape(key.Variable), kind, params.Encode())
}

// get performs one logical lookup, retrying transient failures, and decodes
// the JSON body into out.
func (c *Client) get(ctx context.Context, kind, fullURL string, out any) error {
	start := time.Now()
	err := backoff.Retry(func() error { return c.attempt(ctx, fullURL, out) }, c.backoff(ctx))
	c.metrics.FieldAPIDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	if err != nil {
		c.metrics.FieldLookups.WithLabelValues(kind, "error").Inc()
		c.logger.Debug("field lookup failed", "kind", kind, "error", err)
		return err
	}
	c.metrics.FieldLookups.WithLabelValues(kind, "success").Inc()
	return nil
}

func (c *Client) backoff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialInterval
	bo.MaxInterval = 5 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx)
}

func (c *Client) attempt(ctx context.Context, fullURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, doErr := c.httpClient.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, fmt.Errorf("%w: status %d: %s", errRetryable, resp.StatusCode, body)
		}
		return resp, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(fmt.Errorf("field service circuit open: %w", err))
		}
		return err
	}

	resp, ok := result.(*http.Response)
	if !ok {
		return backoff.Permanent(errors.New("unexpected result type from circuit breaker"))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return backoff.Permanent(ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return backoff.Permanent(fmt.Errorf("field service error: status %d: %s", resp.StatusCode, body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}
