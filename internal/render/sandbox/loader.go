package sandbox

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/jrjohn/arcana-ssr/internal/render/cache"
	"github.com/jrjohn/arcana-ssr/internal/render/stats"
)

func encodeBody(body []byte) string {
	return base64.StdEncoding.EncodeToString(body)
}

// blankGIF is a 1x1 transparent GIF body used to satisfy image requests
// without ever touching the network; image loads are not diagnostics this
// loader reports as errors.
var blankGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x21,
	0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00,
	0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44,
	0x01, 0x00, 0x3b,
}

// resourceLoader intercepts the sandbox's outbound resource requests via
// the CDP Fetch domain: images are fulfilled synthetically, scripts/xhr
// route through the package cache, everything else passes through
// untouched.
type resourceLoader struct {
	logger   *zap.Logger
	location string
	doc      []byte
	cache    *cache.Cache
	fetch    cache.FetchFunc
	req      *stats.Request

	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup
}

func newResourceLoader(logger *zap.Logger, location string, doc []byte, c *cache.Cache, fetchFn cache.FetchFunc, req *stats.Request) *resourceLoader {
	return &resourceLoader{
		logger:   logger,
		location: location,
		doc:      doc,
		cache:    c,
		fetch:    fetchFn,
		req:      req,
	}
}

// handle is registered via chromedp.ListenTarget and runs on the chromedp
// event dispatch goroutine; it fans each paused request out to its own
// goroutine so a slow package fetch never blocks unrelated requests.
func (l *resourceLoader) handle(browserCtx context.Context) func(event interface{}) {
	return func(event interface{}) {
		ev, ok := event.(*fetch.EventRequestPaused)
		if !ok {
			return
		}

		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return
		}
		l.pending.Add(1)
		l.mu.Unlock()

		go func() {
			defer l.pending.Done()
			l.dispatch(browserCtx, ev)
		}()
	}
}

func (l *resourceLoader) dispatch(browserCtx context.Context, ev *fetch.EventRequestPaused) {
	cmdCtx, cancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer cancel()

	c := chromedp.FromContext(cmdCtx)
	if c == nil {
		return
	}
	execCtx := cdp.WithExecutor(cmdCtx, c.Target)

	switch {
	case ev.Request.URL == l.location && ev.ResourceType == network.ResourceTypeDocument:
		l.fulfill(execCtx, ev.RequestID, 200, "text/html; charset=utf-8", l.doc)

	case ev.ResourceType == network.ResourceTypeImage:
		l.fulfill(execCtx, ev.RequestID, 200, "image/gif", blankGIF)

	case ev.ResourceType == network.ResourceTypeScript || ev.ResourceType == network.ResourceTypeXHR || ev.ResourceType == network.ResourceTypeFetch:
		body, _, err := l.cache.GetOrFetch(cmdCtx, ev.Request.URL, l.req, l.fetch)
		if err != nil {
			l.logger.Warn("sandbox resource fetch failed", zap.String("url", ev.Request.URL), zap.Error(err))
			_ = fetch.FailRequest(ev.RequestID, network.ErrorReasonFailed).Do(execCtx)
			return
		}
		contentType := "application/javascript"
		if ev.ResourceType != network.ResourceTypeScript {
			contentType = "application/json"
		}
		l.fulfill(execCtx, ev.RequestID, 200, contentType, body)

	default:
		if err := fetch.ContinueRequest(ev.RequestID).Do(execCtx); err != nil {
			l.logger.Warn("sandbox failed to continue request", zap.String("url", ev.Request.URL), zap.Error(err))
		}
	}
}

func (l *resourceLoader) fulfill(ctx context.Context, id fetch.RequestID, status int64, contentType string, body []byte) {
	header := []*fetch.HeaderEntry{{Name: "Content-Type", Value: contentType}}
	if err := fetch.FulfillRequest(id, status).WithResponseHeaders(header).WithBody(encodeBody(body)).Do(ctx); err != nil {
		l.logger.Warn("sandbox failed to fulfill request", zap.Error(err))
	}
}

// close waits for in-flight pauses to finish (or the grace period to
// elapse) so no fulfill/continue call races the tab's disposal.
func (l *resourceLoader) close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		l.logger.Warn("sandbox resource loader close timed out waiting for in-flight loads")
	}
}
