// Package fetch provides the shared outbound HTTP client used by all
// connectors and providers: fixed timeout, bounded retries with
// exponential backoff and jitter on transient transport errors, a
// per-host circuit breaker, and a global outbound rate limit.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const userAgent = "WorldMonitor/0.8 (+https://localhost)"

// statusError marks a non-2xx response. Only 429 and 5xx variants are
// retried; other statuses are payload problems, not transport ones.
type statusError struct {
	code int
	url  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.code, e.url)
}

func (e *statusError) transient() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

// Options configures a Fetcher.
type Options struct {
	Timeout     time.Duration // per-request timeout
	Retries     int           // additional attempts after the first
	BaseBackoff time.Duration // first retry delay, doubled per attempt
	RateLimit   rate.Limit    // outbound requests per second (0 = unlimited)
	RateBurst   int
}

// DefaultOptions mirrors the connector defaults: 12s timeout, two
// retries, 600ms base backoff, 4 req/s outbound.
func DefaultOptions() Options {
	return Options{
		Timeout:     12 * time.Second,
		Retries:     2,
		BaseBackoff: 600 * time.Millisecond,
		RateLimit:   4,
		RateBurst:   4,
	}
}

// Fetcher is a retrying, breaker-guarded HTTP client. Safe for
// concurrent use.
type Fetcher struct {
	client  *http.Client
	opts    Options
	limiter *rate.Limiter

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// New creates a Fetcher with the given options.
func New(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 12 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 600 * time.Millisecond
	}
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(opts.RateLimit, burst)
	}
	return &Fetcher{
		client:   &http.Client{Timeout: opts.Timeout},
		opts:     opts,
		limiter:  limiter,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// GetBytes downloads url, retrying transient failures.
func (f *Fetcher) GetBytes(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	breaker, err := f.breakerFor(rawURL)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= f.opts.Retries; attempt++ {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		body, err := breaker.Execute(func() (any, error) {
			return f.doGet(ctx, rawURL, headers)
		})
		if err == nil {
			return body.([]byte), nil
		}
		lastErr = err

		if !isTransient(err) || attempt >= f.opts.Retries {
			break
		}
		delay := f.opts.BaseBackoff<<attempt + time.Duration(rand.Int63n(int64(250*time.Millisecond)))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("request failed for %s: %w", rawURL, lastErr)
}

// GetJSON downloads url and decodes the response body into out.
func (f *Fetcher) GetJSON(ctx context.Context, rawURL string, out any) error {
	body, err := f.GetBytes(ctx, rawURL, map[string]string{"Accept": "application/json"})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", rawURL, err)
	}
	return nil
}

// GetXML downloads url with feed-friendly Accept headers and returns
// the raw document for the caller to parse.
func (f *Fetcher) GetXML(ctx context.Context, rawURL string) ([]byte, error) {
	return f.GetBytes(ctx, rawURL, map[string]string{
		"Accept": "application/rss+xml, application/atom+xml, text/xml",
	})
}

func (f *Fetcher) doGet(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json, application/rss+xml, application/atom+xml, text/xml, */*")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &statusError{code: resp.StatusCode, url: rawURL}
	}
	return io.ReadAll(resp.Body)
}

func (f *Fetcher) breakerFor(rawURL string) (*gobreaker.CircuitBreaker, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	host := parsed.Host

	f.mu.Lock()
	defer f.mu.Unlock()
	if breaker, ok := f.breakers[host]; ok {
		return breaker, nil
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    host,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	f.breakers[host] = breaker
	return breaker, nil
}

func isTransient(err error) bool {
	var status *statusError
	if errors.As(err, &status) {
		return status.transient()
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	// Everything else from client.Do is a transport-level failure
	// (dial, TLS, timeout) and worth retrying.
	return true
}

// EncodeQuery builds a query string, skipping empty values.
func EncodeQuery(params map[string]string) string {
	values := url.Values{}
	for key, value := range params {
		if value != "" {
			values.Set(key, value)
		}
	}
	return values.Encode()
}
