// Package fetcher performs the Package Cache's upstream HTTP GETs with a
// bounded retry schedule.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jrjohn/arcana-ssr/internal/observability"
)

// Error wraps an exhausted fetch: lastStatus is 0 if the connection never
// produced a response (transport error / timeout).
type Error struct {
	URL        string
	LastStatus int
	Cause      error
}

func (e *Error) Error() string {
	if e.LastStatus != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.LastStatus, e.Cause)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Config controls retry and timeout behavior.
type Config struct {
	Timeout      time.Duration // per-attempt timeout, default 60s
	MaxAttempts  int           // total attempts including the first, default 3
	RetryInterval time.Duration // fixed backoff between attempts, default 200ms
}

// DefaultConfig returns the spec's defaults: 60s per attempt, 3 total
// attempts, fixed retry schedule.
func DefaultConfig() Config {
	return Config{
		Timeout:       60 * time.Second,
		MaxAttempts:   3,
		RetryInterval: 200 * time.Millisecond,
	}
}

// Fetcher issues HTTP GETs for package URLs with a shared, process-wide
// connection pool and a fixed retry schedule: non-2xx and transport errors
// retry up to MaxAttempts total attempts; a malformed URL is a permanent
// failure, not retried.
type Fetcher struct {
	client  *http.Client
	cfg     Config
	metrics *observability.MetricsProvider
}

// New creates a Fetcher. client may be nil, in which case a client with
// cfg.Timeout as its per-request timeout is constructed. mp may be nil, in
// which case fetch metrics are skipped.
func New(cfg Config, client *http.Client, mp *observability.MetricsProvider) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Fetcher{client: client, cfg: cfg, metrics: mp}
}

// Fetch performs the GET, retrying transient failures up to cfg.MaxAttempts
// times on a fixed schedule. A malformed URL fails immediately without
// retry via backoff.Permanent.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (result []byte, err error) {
	if f.metrics != nil {
		start := time.Now()
		defer func() {
			outcome := "success"
			if err != nil {
				outcome = "failure"
			}
			f.metrics.RecordFetch(outcome, time.Since(start))
		}()
	}

	if _, perr := url.ParseRequestURI(rawURL); perr != nil {
		return nil, &Error{URL: rawURL, Cause: perr}
	}

	var body []byte
	var lastStatus int

	operation := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		lastStatus = resp.StatusCode
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		body = data
		return nil
	}

	maxAttempts := f.cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(f.cfg.RetryInterval), uint64(maxAttempts-1))
	bo = backoff.WithContext(bo, ctx)

	if err := backoff.Retry(operation, bo); err != nil {
		return nil, &Error{URL: rawURL, LastStatus: lastStatus, Cause: err}
	}
	return body, nil
}
