package di

import (
	"go.uber.org/fx"

	"github.com/jrjohn/arcana-ssr/internal/config"
	"github.com/jrjohn/arcana-ssr/internal/middleware"
)

// MiddlewareModule provides middleware dependencies.
var MiddlewareModule = fx.Module("middleware",
	fx.Provide(provideSecretChecker),
)

func provideSecretChecker(cfg *config.SecretConfig, app *config.AppConfig) *middleware.SecretChecker {
	return middleware.NewSecretChecker(cfg.FilePath, app.Dev)
}
