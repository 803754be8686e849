// Package apollo implements the Apollo-like GraphQL network shim installed
// into the sandbox when a render request carries apolloNetwork: an
// outbound-network adapter the bundle discovers via a well-known global
// slot rather than a hardcoded client library.
package apollo

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// BadURL is the sentinel the shim rejects on, matching the original
// behavior of treating it the same as an absent URL.
const BadURL = "BAD_URL"

// DefaultTimeout is the default bound on an Apollo request's latency, per
// spec.md: "SSR must bound its data-fetch latency."
const DefaultTimeout = time.Second

// Config describes one render request's apolloNetwork binding.
type Config struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration // 0 means DefaultTimeout
}

// Link is the HTTP transport behind the sandbox's Apollo client binding.
// Its Fetch races the real HTTP request against a timeout and forwards the
// caller-supplied headers verbatim.
type Link struct {
	client *http.Client
	cfg    Config
}

// NewLink creates a Link for the given render request's Apollo config.
func NewLink(client *http.Client, cfg Config) *Link {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Link{client: client, cfg: cfg}
}

// ErrMissingURL is returned when the link has no URL, or the sentinel
// BAD_URL, to reject.
var ErrMissingURL = errors.New("apollo: missing or invalid url")

// ErrTimeout is returned when the request exceeds its configured timeout.
var ErrTimeout = errors.New("apollo: request timed out")

// Fetch performs one GraphQL request. body is the raw request payload
// (typically a JSON-encoded {query, variables}). It races the HTTP
// roundtrip against cfg.Timeout and rejects non-200 responses.
func (l *Link) Fetch(ctx context.Context, body []byte) ([]byte, error) {
	if l.cfg.URL == "" || l.cfg.URL == BadURL {
		return nil, ErrMissingURL
	}

	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range l.cfg.Headers {
		req.Header.Set(k, v)
	}

	type result struct {
		body []byte
		err  error
	}
	done := make(chan result, 1)

	go func() {
		resp, err := l.client.Do(req)
		if err != nil {
			done <- result{err: err}
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			done <- result{err: errStatus(resp.StatusCode)}
			return
		}

		data, err := io.ReadAll(resp.Body)
		done <- result{body: data, err: err}
	}()

	select {
	case r := <-done:
		return r.body, r.err
	case <-ctx.Done():
		return nil, ErrTimeout
	}
}

type statusError int

func (e statusError) Error() string {
	return "apollo: unexpected status"
}

func errStatus(code int) error {
	return statusError(code)
}
