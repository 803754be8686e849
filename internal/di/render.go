package di

import (
	"context"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/jrjohn/arcana-ssr/internal/config"
	"github.com/jrjohn/arcana-ssr/internal/observability"
	"github.com/jrjohn/arcana-ssr/internal/render/cache"
	"github.com/jrjohn/arcana-ssr/internal/render/fetcher"
	"github.com/jrjohn/arcana-ssr/internal/render/orchestrator"
	"github.com/jrjohn/arcana-ssr/internal/render/sandbox"
	"github.com/jrjohn/arcana-ssr/internal/render/stats"
)

// RenderModule wires the package cache, fetcher, sandbox pool, and
// orchestrator that together implement the render pipeline, plus the
// cron-driven cache-size housekeeping tick.
var RenderModule = fx.Module("render",
	fx.Provide(
		provideCache,
		provideFetcher,
		provideSandboxPool,
		provideStatsRegistry,
		provideOrchestrator,
	),
	fx.Invoke(registerSandboxLifecycle, registerCacheHousekeeping),
)

func provideCache(mp *observability.MetricsProvider) *cache.Cache {
	return cache.New(mp)
}

func provideFetcher(cfg *config.RenderConfig, mp *observability.MetricsProvider) *fetcher.Fetcher {
	fetchCfg := fetcher.Config{
		Timeout:       cfg.FetchTimeout,
		MaxAttempts:   cfg.FetchMaxAttempts,
		RetryInterval: cfg.FetchRetryInterval,
	}
	if fetchCfg.Timeout <= 0 {
		fetchCfg.Timeout = fetcher.DefaultConfig().Timeout
	}
	if fetchCfg.RetryInterval <= 0 {
		fetchCfg.RetryInterval = fetcher.DefaultConfig().RetryInterval
	}
	return fetcher.New(fetchCfg, &http.Client{}, mp)
}

func provideSandboxPool(cfg *config.SandboxConfig, logger *zap.Logger) (*sandbox.Pool, error) {
	return sandbox.NewPool(sandbox.Config{
		ChromePath: cfg.ChromePath,
		PoolSize:   cfg.PoolSize,
		Headless:   cfg.Headless,
	}, logger)
}

func provideStatsRegistry(mp *observability.MetricsProvider) *stats.Registry {
	return stats.NewRegistry(mp)
}

func provideOrchestrator(
	logger *zap.Logger,
	c *cache.Cache,
	f *fetcher.Fetcher,
	pool *sandbox.Pool,
	registry *stats.Registry,
	tp *observability.TracingProvider,
	cfg *config.RenderConfig,
) *orchestrator.Orchestrator {
	renderTimeout := cfg.RenderTimeout
	if renderTimeout <= 0 {
		renderTimeout = 30 * time.Second
	}
	return orchestrator.New(logger, c, f, pool, registry, tp.Tracer(), renderTimeout)
}

func registerSandboxLifecycle(lc fx.Lifecycle, pool *sandbox.Pool, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("closing sandbox pool")
			return pool.Close()
		},
	})
}

// registerCacheHousekeeping runs a tick every CacheSweepInterval (one
// minute by default) that reports the package cache's size and reaps
// entries nobody has touched since the previous tick, so
// long-idle instances don't grow the cache unbounded between renders.
func registerCacheHousekeeping(lc fx.Lifecycle, c *cache.Cache, mp *observability.MetricsProvider, cfg *config.RenderConfig, logger *zap.Logger) {
	sweepInterval := cfg.CacheSweepInterval
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}

	scheduler := cron.New()
	_, err := scheduler.AddFunc("@every "+sweepInterval.String(), func() {
		c.FlushUnused(time.Now().Add(-sweepInterval))
		size := c.Size()
		mp.SetCacheSizeBytes(size)
		logger.Debug("cache housekeeping tick", zap.Int("cache_size_bytes", size))
	})
	if err != nil {
		logger.Error("failed to schedule cache housekeeping", zap.Error(err))
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			scheduler.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			<-scheduler.Stop().Done()
			return nil
		},
	})
}
