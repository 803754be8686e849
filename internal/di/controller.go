package di

import (
	"go.uber.org/fx"

	httpctrl "github.com/jrjohn/arcana-ssr/internal/controller/http"
	"github.com/jrjohn/arcana-ssr/internal/middleware"
	"github.com/jrjohn/arcana-ssr/internal/render/orchestrator"
)

// ControllerModule provides HTTP controller dependencies.
var ControllerModule = fx.Module("controller",
	fx.Provide(provideRenderController),
)

func provideRenderController(
	orch *orchestrator.Orchestrator,
	secretChecker *middleware.SecretChecker,
) *httpctrl.RenderController {
	return httpctrl.NewRenderController(orch, secretChecker)
}
