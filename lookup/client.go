package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"goflare.io/stride/internal/retrier"
	"goflare.io/stride/pace"
	"goflare.io/stride/selection"
)

const (
	searchPath  = "/get_athletes_from_db"
	recordsPath = "/get_athlete_records"
	statusPath  = "/database_status"

	maxBodySize = 4 << 20
)

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL        string
	Timeout        time.Duration
	HTTPClient     *http.Client
	CircuitBreaker gobreaker.Settings
	Retrier        *retrier.Retrier
	Logger         *zap.Logger
}

// Client is the HTTP implementation of Service. Every call goes through a
// circuit breaker and a retrier; only transport failures and 5xx responses
// are retried.
type Client struct {
	base    *url.URL
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	retrier *retrier.Retrier
	tracer  trace.Tracer
	logger  *zap.Logger
}

var _ Service = (*Client)(nil)

// NewClient validates the base URL and builds the client.
func NewClient(cfg ClientConfig) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid lookup URL %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("lookup URL %q must be absolute", cfg.BaseURL)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	r := cfg.Retrier
	if r == nil {
		r, err = retrier.NewRetrier(3, 100*time.Millisecond, time.Second, 2, 0.1, retrier.ExponentialBackoff, IsRetryable)
		if err != nil {
			return nil, fmt.Errorf("failed to create retrier: %w", err)
		}
	}
	settings := cfg.CircuitBreaker
	if settings.Name == "" {
		settings.Name = "LookupCircuitBreaker"
	}
	if settings.IsSuccessful == nil {
		settings.IsSuccessful = isSuccessful
	}
	userOnStateChange := settings.OnStateChange
	settings.OnStateChange = func(name string, from, to gobreaker.State) {
		logger.Warn("Circuit breaker state changed",
			zap.String("name", name), zap.Stringer("from", from), zap.Stringer("to", to))
		if userOnStateChange != nil {
			userOnStateChange(name, from, to)
		}
	}

	return &Client{
		base:    base,
		http:    httpClient,
		breaker: gobreaker.NewCircuitBreaker(settings),
		retrier: r,
		tracer:  otel.Tracer("stride/lookup"),
		logger:  logger,
	}, nil
}

// SearchAthletes returns the athletes whose name matches query.
func (c *Client) SearchAthletes(ctx context.Context, query string) ([]selection.Athlete, error) {
	var athletes []selection.Athlete
	if err := c.get(ctx, searchPath, url.Values{"name": {query}}, &athletes); err != nil {
		return nil, err
	}
	if athletes == nil {
		athletes = []selection.Athlete{}
	}
	return athletes, nil
}

// FetchRecords returns the personal bests of id.
func (c *Client) FetchRecords(ctx context.Context, id string) (pace.Records, error) {
	var records pace.Records
	if err := c.get(ctx, recordsPath, url.Values{"ident": {id}}, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = pace.Records{}
	}
	return records, nil
}

// DatabaseStatus returns the size and freshness of the remote database.
func (c *Client) DatabaseStatus(ctx context.Context) (Status, error) {
	var status Status
	err := c.get(ctx, statusPath, nil, &status)
	return status, err
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	ctx, span := c.tracer.Start(ctx, "Lookup.Get", trace.WithAttributes(attribute.String("path", path)))
	defer span.End()

	endpoint := c.base.JoinPath(path)
	endpoint.RawQuery = query.Encode()

	err := c.executeWithResilience(ctx, func() error {
		return c.do(ctx, endpoint.String(), path, out)
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	}
	return nil
}

func (c *Client) executeWithResilience(ctx context.Context, f func() error) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.retrier.Run(ctx, f)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

func (c *Client) do(ctx context.Context, endpoint, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return &StatusError{Endpoint: path, Code: resp.StatusCode}
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// IsRetryable reports whether a failed call may succeed when repeated:
// transport failures and 5xx or 429 answers.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	return retrier.IsTemporary(err)
}

// isSuccessful keeps caller cancellations and 4xx answers from tripping the
// breaker.
func isSuccessful(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var statusErr *StatusError
	return errors.As(err, &statusErr) && !statusErr.Temporary()
}
