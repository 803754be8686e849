package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/fetch"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/jrjohn/arcana-ssr/internal/render/apollo"
	"github.com/jrjohn/arcana-ssr/internal/render/cache"
	"github.com/jrjohn/arcana-ssr/internal/render/stats"
)

// State is the Render Context's lifecycle: NEW -> LOADED -> RENDERING ->
// CLOSED, transitioned exactly once in each direction.
type State int32

const (
	StateNew State = iota
	StateLoaded
	StateRendering
	StateClosed
)

// Package is one fetched script, attributed to its source URL for
// diagnostics, to be executed in list order.
type Package struct {
	URL     string
	Content []byte
}

// BuildRequest is the input to NewContext: everything the Render Context
// Factory needs to stand up one sandboxed DOM for one render request.
type BuildRequest struct {
	Logger   *zap.Logger
	Location string
	Globals  map[string]any
	Packages []Package
	Apollo   *apollo.Config
	Stats    *stats.Request
	Cache    *cache.Cache
	Fetch    cache.FetchFunc
}

// ErrNoRenderCallback is returned when the entry point never called
// __registerForSSR__.
var ErrNoRenderCallback = fmt.Errorf("sandbox: entry point never called __registerForSSR__")

// Context is a scoped resource wrapping one sandboxed DOM: the Chrome tab,
// its resource loader, and the SSR-active flag. It owns its tab exclusively
// and must be closed on every exit path.
type Context struct {
	logger   *zap.Logger
	location string

	tabCtx  context.Context
	release context.CancelFunc
	loader  *resourceLoader

	apolloLink *apollo.Link

	state atomic.Int32
}

// NewContext builds a Render Context per spec §4.4 steps 1-8: navigates a
// fresh tab whose main-frame document request is fulfilled with a minimal
// HTML document at the given location, installs the SSR protocol and timer
// patch, optionally the Apollo bindings, copies globals (excluding
// "location"), then evaluates each package in order, accumulating
// vmContextSize = sum(len(content))*2.
func NewContext(ctx context.Context, pool *Pool, req BuildRequest) (*Context, error) {
	tabCtx, release, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	rc := &Context{
		logger:   req.Logger,
		location: req.Location,
		tabCtx:   tabCtx,
		release:  release,
	}

	rc.loader = newResourceLoader(req.Logger, req.Location, []byte(minimalDocument), req.Cache, req.Fetch, req.Stats)
	chromedp.ListenTarget(tabCtx, rc.loader.handle(tabCtx))

	if req.Apollo != nil {
		rc.apolloLink = apollo.NewLink(nil, *req.Apollo)
		chromedp.ListenTarget(tabCtx, rc.apolloBindingHandler(tabCtx))
	}

	if err := chromedp.Run(tabCtx,
		fetch.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if req.Apollo != nil {
				return cdpruntime.AddBinding(apolloBindingName).Do(ctx)
			}
			return nil
		}),
		chromedp.Navigate(req.Location),
	); err != nil {
		rc.teardown()
		return nil, fmt.Errorf("sandbox: navigate: %w", err)
	}

	if err := rc.eval(setupScript); err != nil {
		rc.teardown()
		return nil, fmt.Errorf("sandbox: setup script: %w", err)
	}

	if req.Apollo != nil {
		if err := rc.eval(apolloSetupScript()); err != nil {
			rc.teardown()
			return nil, fmt.Errorf("sandbox: apollo script: %w", err)
		}
	}

	globalsJS, err := globalsScript(req.Globals)
	if err != nil {
		rc.teardown()
		return nil, err
	}
	if err := rc.eval(globalsJS); err != nil {
		rc.teardown()
		return nil, fmt.Errorf("sandbox: globals script: %w", err)
	}

	for _, pkg := range req.Packages {
		if err := rc.eval(string(pkg.Content)); err != nil {
			rc.teardown()
			return nil, fmt.Errorf("sandbox: executing %s: %w", pkg.URL, err)
		}
		if req.Stats != nil {
			req.Stats.AddVMContextSize(len(pkg.Content))
		}
	}

	if req.Stats != nil {
		req.Stats.CreatedVMContext = true
	}

	rc.state.Store(int32(StateLoaded))
	return rc, nil
}

func (rc *Context) eval(script string) error {
	return chromedp.Run(rc.tabCtx, chromedp.Evaluate(script, nil))
}

// HasRenderCallback reports whether the entry point registered a render
// callback via __registerForSSR__.
func (rc *Context) HasRenderCallback() (bool, error) {
	var bound bool
	err := chromedp.Run(rc.tabCtx, chromedp.Evaluate(
		`typeof window.__rrs !== 'undefined' && typeof window.__rrs.getRenderPromiseCallback === 'function'`,
		&bound,
	))
	return bound, err
}

// Invoke calls the registered render callback with (props, apolloClient)
// and awaits its returned promise, returning the harvested {html, css}.
func (rc *Context) Invoke(ctx context.Context, props map[string]any, timeout time.Duration) (html, css string, err error) {
	rc.state.Store(int32(StateRendering))

	propsJSON, err := json.Marshal(props)
	if err != nil {
		return "", "", err
	}

	apolloExpr := "null"
	if rc.apolloLink != nil {
		apolloExpr = "window.__APOLLO_CLIENT__"
	}

	expr := fmt.Sprintf(
		`(function(){ return Promise.resolve(window.__rrs.getRenderPromiseCallback(%s, %s)).then(function(r){ return JSON.stringify(r); }); })()`,
		string(propsJSON), apolloExpr,
	)

	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var resultJSON string
	runErr := chromedp.Run(evalCtx,
		chromedp.Evaluate(expr, &resultJSON, func(p *cdpruntime.EvaluateParams) *cdpruntime.EvaluateParams {
			return p.WithAwaitPromise(true).WithReturnByValue(true)
		}),
	)
	if runErr != nil {
		return "", "", runErr
	}

	var result struct {
		HTML string `json:"html"`
		CSS  any    `json:"css"`
	}
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return "", "", fmt.Errorf("sandbox: decoding render result: %w", err)
	}

	cssJSON, err := json.Marshal(result.CSS)
	if err != nil {
		return "", "", err
	}
	return result.HTML, string(cssJSON), nil
}

func (rc *Context) apolloBindingHandler(browserCtx context.Context) func(event interface{}) {
	return func(event interface{}) {
		ev, ok := event.(*cdpruntime.EventBindingCalled)
		if !ok || ev.Name != apolloBindingName {
			return
		}

		go func() {
			var call struct {
				ID   int             `json:"id"`
				Body json.RawMessage `json:"body"`
			}
			if err := json.Unmarshal([]byte(ev.Payload), &call); err != nil {
				rc.logger.Warn("sandbox: malformed apollo binding payload", zap.Error(err))
				return
			}

			body, err := rc.apolloLink.Fetch(browserCtx, call.Body)

			cmdCtx, cancel := context.WithTimeout(browserCtx, 5*time.Second)
			defer cancel()

			if err != nil {
				expr := fmt.Sprintf(`window.__apolloFetchReject__(%d, %s)`, call.ID, mustJSON(err.Error()))
				_ = chromedp.Run(cmdCtx, chromedp.Evaluate(expr, nil))
				return
			}
			expr := fmt.Sprintf(`window.__apolloFetchResolve__(%d, %s)`, call.ID, string(body))
			_ = chromedp.Run(cmdCtx, chromedp.Evaluate(expr, nil))
		}()
	}
}

// Close sets __SSR_ACTIVE__ false, closes the resource loader, and disposes
// the tab. Idempotent; safe to call from every exit path.
func (rc *Context) Close() error {
	if !rc.state.CompareAndSwap(int32(StateNew), int32(StateClosed)) &&
		!rc.state.CompareAndSwap(int32(StateLoaded), int32(StateClosed)) &&
		!rc.state.CompareAndSwap(int32(StateRendering), int32(StateClosed)) {
		return nil
	}

	_ = chromedp.Run(rc.tabCtx, chromedp.Evaluate(`window.__SSR_ACTIVE__ = false;`, nil))
	rc.teardown()
	return nil
}

func (rc *Context) teardown() {
	if rc.loader != nil {
		rc.loader.close()
	}
	if rc.release != nil {
		rc.release()
	}
}
