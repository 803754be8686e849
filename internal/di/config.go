package di

import (
	"go.uber.org/fx"

	"github.com/jrjohn/arcana-ssr/internal/config"
)

// ConfigModule provides configuration dependencies.
var ConfigModule = fx.Module("config",
	fx.Provide(
		config.Load,
		provideAppConfig,
		provideServerConfig,
		provideRenderConfig,
		provideSandboxConfig,
		provideSecretConfig,
		provideApolloConfig,
	),
)

func provideAppConfig(cfg *config.Config) *config.AppConfig {
	return &cfg.App
}

func provideServerConfig(cfg *config.Config) *config.ServerConfig {
	return &cfg.Server
}

func provideRenderConfig(cfg *config.Config) *config.RenderConfig {
	return &cfg.Render
}

func provideSandboxConfig(cfg *config.Config) *config.SandboxConfig {
	return &cfg.Sandbox
}

func provideSecretConfig(cfg *config.Config) *config.SecretConfig {
	return &cfg.Secret
}

func provideApolloConfig(cfg *config.Config) *config.ApolloConfig {
	return &cfg.Apollo
}
