// Package orchestrator drives one render request through the state machine
// RECEIVED -> VALIDATED -> FETCHING -> CONTEXT_READY -> AWAITING_RENDER ->
// RESPONDED, fanning out to the package cache, the sandbox, and back.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jrjohn/arcana-ssr/internal/dto/request"
	"github.com/jrjohn/arcana-ssr/internal/dto/response"
	"github.com/jrjohn/arcana-ssr/internal/render/apollo"
	"github.com/jrjohn/arcana-ssr/internal/render/cache"
	"github.com/jrjohn/arcana-ssr/internal/render/fetcher"
	"github.com/jrjohn/arcana-ssr/internal/render/sandbox"
	"github.com/jrjohn/arcana-ssr/internal/render/stats"
	pkgerrors "github.com/jrjohn/arcana-ssr/pkg/errors"
)

// defaultUnusedRetention bounds how long a cached package survives without
// being touched by a render before the next render's flush_unused sweeps it.
const defaultUnusedRetention = 5 * time.Minute

// Orchestrator owns the shared package cache, the fetcher, and the sandbox
// pool, and drives individual renders against them.
type Orchestrator struct {
	logger   *zap.Logger
	cache    *cache.Cache
	fetcher  *fetcher.Fetcher
	pool     *sandbox.Pool
	registry *stats.Registry
	tracer   trace.Tracer

	renderTimeout   time.Duration
	unusedRetention time.Duration
}

// New builds an Orchestrator. renderTimeout bounds the registered render
// callback's promise; tracer may be nil (spans are then skipped).
func New(logger *zap.Logger, c *cache.Cache, f *fetcher.Fetcher, pool *sandbox.Pool, registry *stats.Registry, tracer trace.Tracer, renderTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		logger:          logger,
		cache:           c,
		fetcher:         f,
		pool:            pool,
		registry:        registry,
		tracer:          tracer,
		renderTimeout:   renderTimeout,
		unusedRetention: defaultUnusedRetention,
	}
}

// FlushCache drops every cached package, used by the /flush endpoint.
func (o *Orchestrator) FlushCache() {
	o.cache.FlushAll()
}

// Render runs one request through the full state machine. The returned
// stats.Request is always populated, even on error, so callers can still
// log render-stats for a failed attempt.
func (o *Orchestrator) Render(ctx context.Context, body request.RenderBody) (*response.RenderResult, *stats.Request, error) {
	pending := o.registry.Begin()
	defer o.registry.End()

	statsReq := &stats.Request{PendingRenderRequests: pending}

	entryPoint := ""
	if len(body.URLs) > 0 {
		entryPoint = body.URLs[len(body.URLs)-1]
	}

	ctx, validateSpan := o.startSpan(ctx, "render.validated")
	err := validateInput(body)
	validateSpan.End()
	if err != nil {
		return nil, statsReq, err
	}

	jsURLs := filterJSURLs(body.URLs)
	if len(jsURLs) == 0 {
		return nil, statsReq, pkgerrors.NewInputError("no renderable .js urls in request", body.URLs)
	}

	o.cache.FlushUnused(time.Now().Add(-o.unusedRetention))

	ctx, fetchSpan := o.startSpan(ctx, "render.fetching")
	packages, err := o.fetchPackages(ctx, jsURLs, statsReq)
	fetchSpan.End()
	if err != nil {
		o.logger.Error(fmt.Sprintf("FETCH FAIL (%s)", entryPoint), zap.Error(err))
		return nil, statsReq, pkgerrors.NewFetchError(err.Error(), err)
	}

	ctx, contextSpan := o.startSpan(ctx, "render.context_ready")
	renderCtx, err := sandbox.NewContext(ctx, o.pool, sandbox.BuildRequest{
		Logger:   o.logger,
		Location: entryPoint,
		Globals:  body.Globals,
		Packages: packages,
		Apollo:   apolloConfig(body.ApolloNetwork),
		Stats:    statsReq,
		Cache:    o.cache,
		Fetch:    o.fetcher.Fetch,
	})
	contextSpan.End()
	if err != nil {
		o.logger.Error(fmt.Sprintf("RENDER FAIL (%s)", entryPoint), zap.Error(err))
		return nil, statsReq, pkgerrors.NewSandboxError(err.Error(), err, "")
	}
	defer renderCtx.Close()

	ctx, renderSpan := o.startSpan(ctx, "render.awaiting_render")
	defer renderSpan.End()

	bound, err := renderCtx.HasRenderCallback()
	if err != nil {
		o.logger.Error(fmt.Sprintf("RENDER FAIL (%s)", entryPoint), zap.Error(err))
		return nil, statsReq, pkgerrors.NewSandboxError(err.Error(), err, "")
	}
	if !bound {
		o.logger.Error(fmt.Sprintf("RENDER FAIL (%s)", entryPoint), zap.Error(sandbox.ErrNoRenderCallback))
		return nil, statsReq, pkgerrors.NewSandboxError(sandbox.ErrNoRenderCallback.Error(), sandbox.ErrNoRenderCallback, "")
	}

	html, css, err := renderCtx.Invoke(ctx, body.Props, o.renderTimeout)
	if err != nil {
		o.logger.Error(fmt.Sprintf("RENDER FAIL (%s)", entryPoint), zap.Error(err))
		return nil, statsReq, pkgerrors.NewSandboxError(err.Error(), err, "")
	}

	result := &response.RenderResult{HTML: html, CSS: json.RawMessage(css)}
	o.logRenderStats(entryPoint, statsReq)
	return result, statsReq, nil
}

func (o *Orchestrator) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if o.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return o.tracer.Start(ctx, name)
}

func (o *Orchestrator) logRenderStats(entryPoint string, statsReq *stats.Request) {
	encoded, err := json.Marshal(statsReq)
	if err != nil {
		o.logger.Warn("failed to encode render-stats", zap.Error(err))
		return
	}
	o.logger.Info(fmt.Sprintf("render-stats for %s: %s", entryPoint, string(encoded)))
}

// fetchPackages fetches every url in parallel but preserves the caller's
// ordering in the returned slice, since packages must execute in list
// order in the sandbox.
func (o *Orchestrator) fetchPackages(ctx context.Context, urls []string, statsReq *stats.Request) ([]sandbox.Package, error) {
	packages := make([]sandbox.Package, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			content, _, err := o.cache.GetOrFetch(gctx, u, statsReq, o.fetcher.Fetch)
			if err != nil {
				return err
			}
			packages[i] = sandbox.Package{URL: u, Content: content}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return packages, nil
}

// validateInput applies spec's RECEIVED -> VALIDATED checks: urls must be a
// non-empty list of valid absolute URLs, and globals.location, if present,
// must itself be a valid absolute URL. props's shape (object, not list) is
// already enforced by request.RenderBody's map[string]any field during JSON
// binding.
func validateInput(body request.RenderBody) error {
	if len(body.URLs) == 0 {
		return pkgerrors.NewInputError("urls must be a non-empty list", body.URLs)
	}
	for _, u := range body.URLs {
		if !isAbsoluteURL(u) {
			return pkgerrors.NewInputError("urls must contain only valid absolute urls", u)
		}
	}
	if body.Globals != nil {
		if loc, ok := body.Globals["location"]; ok {
			locStr, ok := loc.(string)
			if !ok || !isAbsoluteURL(locStr) {
				return pkgerrors.NewInputError("globals.location must be a valid absolute url", loc)
			}
		}
	}
	return nil
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.IsAbs() && u.Host != ""
}

// filterJSURLs keeps the subset matching startsWith("http") &&
// endsWith(".js"); everything else (stylesheets, fonts, etc. present in a
// mixed list) is dropped silently.
func filterJSURLs(urls []string) []string {
	var out []string
	for _, u := range urls {
		if strings.HasPrefix(u, "http") && strings.HasSuffix(u, ".js") {
			out = append(out, u)
		}
	}
	return out
}

func apolloConfig(in *request.ApolloNetwork) *apollo.Config {
	if in == nil {
		return nil
	}
	cfg := &apollo.Config{URL: in.URL, Headers: in.Headers}
	if in.Timeout > 0 {
		cfg.Timeout = time.Duration(in.Timeout) * time.Millisecond
	}
	return cfg
}
