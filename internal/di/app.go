package di

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/jrjohn/arcana-ssr/internal/config"
)

// AppModule aggregates all application modules that make up the render
// service: configuration, logging, observability, the render pipeline
// (cache/fetcher/sandbox/orchestrator), HTTP middleware, controllers and
// the HTTP server itself.
var AppModule = fx.Options(
	ConfigModule,
	LoggerModule,
	ObservabilityModule,
	RenderModule,
	MiddlewareModule,
	ControllerModule,
	HTTPServerModule,
)

// PrintBanner prints the application startup banner
func PrintBanner(cfg *config.Config, logger *zap.Logger) {
	logger.Info("===========================================")
	logger.Info("   Arcana SSR - Headless Render Service     ")
	logger.Info("===========================================")
	logger.Info("Application Info",
		zap.String("name", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)
	logger.Info("Sandbox Config",
		zap.String("chrome_path", cfg.Sandbox.ChromePath),
		zap.Int("pool_size", cfg.Sandbox.PoolSize),
		zap.Bool("headless", cfg.Sandbox.Headless),
	)
	logger.Info("===========================================")
}
