// Package sandbox implements the Render Context Factory and its Resource
// Loader: a headless-Chrome-backed DOM sandbox per render request, grounded
// on the ListenTarget/Fetch-domain pattern used for intercepting page
// traffic in a chromedp-driven renderer.
package sandbox

import (
	"context"
	"errors"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Config mirrors internal/config.SandboxConfig.
type Config struct {
	ChromePath string
	PoolSize   int
	Headless   bool
}

// ErrPoolClosed is returned by Acquire once the pool has been shut down.
var ErrPoolClosed = errors.New("sandbox: pool closed")

// Pool owns one headless Chrome browser process and bounds the number of
// concurrent render tabs against it. One Pool per process; one tab per
// in-flight render request.
type Pool struct {
	logger        *zap.Logger
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	sem           chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewPool launches the headless Chrome process and returns a Pool bounding
// concurrent render tabs to cfg.PoolSize.
func NewPool(cfg Config, logger *zap.Logger) (*Pool, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.Flag("headless", cfg.Headless))
	if cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithLogger(func(string, ...interface{}) {}))
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, err
	}

	poolSize := cfg.PoolSize
	if poolSize < 1 {
		poolSize = 1
	}

	return &Pool{
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		sem:           make(chan struct{}, poolSize),
	}, nil
}

// Acquire blocks until a render slot is free (or ctx is done) and returns a
// fresh tab context scoped to the pool's browser, plus a release func that
// must be called exactly once to tear the tab down and free the slot.
func (p *Pool) Acquire(ctx context.Context) (context.Context, context.CancelFunc, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		<-p.sem
		return nil, nil, ErrPoolClosed
	}

	tabCtx, tabCancel := chromedp.NewContext(p.browserCtx)
	release := func() {
		tabCancel()
		<-p.sem
	}
	return tabCtx, release, nil
}

// Close marks the pool closed, so later Acquire calls fail with
// ErrPoolClosed, and shuts the browser process down. It does not wait for
// tabs still in use to be released. Idempotent.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.browserCancel()
	p.allocCancel()
	return nil
}
