package di

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/jrjohn/arcana-ssr/internal/config"
	"github.com/jrjohn/arcana-ssr/internal/observability"
)

// ObservabilityModule provides metrics and tracing dependencies.
var ObservabilityModule = fx.Module("observability",
	fx.Provide(
		provideMetricsProvider,
		provideTracingProvider,
	),
	fx.Invoke(registerObservabilityLifecycle),
)

func provideMetricsProvider(app *config.AppConfig, logger *zap.Logger) (*observability.MetricsProvider, error) {
	cfg := observability.DefaultMetricsConfig()
	cfg.ServiceName = app.Name
	return observability.NewMetricsProvider(cfg, logger)
}

func provideTracingProvider(app *config.AppConfig, logger *zap.Logger) (*observability.TracingProvider, error) {
	cfg := observability.DefaultTracingConfig()
	cfg.ServiceName = app.Name
	cfg.Environment = app.Environment
	return observability.NewTracingProvider(cfg, logger)
}

func registerObservabilityLifecycle(lc fx.Lifecycle, mp *observability.MetricsProvider, tp *observability.TracingProvider, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := tp.Shutdown(ctx); err != nil {
				logger.Warn("tracing shutdown failed", zap.Error(err))
			}
			if err := mp.Shutdown(); err != nil {
				logger.Warn("metrics shutdown failed", zap.Error(err))
			}
			return nil
		},
	})
}
