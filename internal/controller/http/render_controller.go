// Package http exposes the SSR service's HTTP surface: /render, /flush,
// and the App-Engine-style status endpoints.
package http

import (
	"context"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"

	"github.com/jrjohn/arcana-ssr/internal/dto/request"
	"github.com/jrjohn/arcana-ssr/internal/dto/response"
	"github.com/jrjohn/arcana-ssr/internal/middleware"
	"github.com/jrjohn/arcana-ssr/internal/render/stats"
	pkgerrors "github.com/jrjohn/arcana-ssr/pkg/errors"
)

// Renderer is the subset of the Render Orchestrator the controller depends
// on; satisfied by *orchestrator.Orchestrator in production and by fakes in
// tests.
type Renderer interface {
	Render(ctx context.Context, body request.RenderBody) (*response.RenderResult, *stats.Request, error)
	FlushCache()
}

// processInstanceID identifies this process on /flush when GAE_INSTANCE is
// unset; it is generated once and stays the same for the process lifetime.
var processInstanceID = uuid.NewString()

// RenderController handles server-side render requests and the ambient
// App-Engine-style status probes that sit alongside them.
type RenderController struct {
	renderer      Renderer
	secretChecker *middleware.SecretChecker
}

// NewRenderController creates a new RenderController instance.
func NewRenderController(renderer Renderer, secretChecker *middleware.SecretChecker) *RenderController {
	return &RenderController{
		renderer:      renderer,
		secretChecker: secretChecker,
	}
}

// RegisterRoutes registers the render routes and the ambient probes.
func (c *RenderController) RegisterRoutes(router *gin.RouterGroup) {
	secret := middleware.RequireSecret(c.secretChecker)

	router.POST("/render", secret, c.Render)
	router.POST("/flush", secret, c.Flush)

	router.GET("/_api/ping", c.Ping)
	router.GET("/_api/version", c.Version)

	router.GET("/_ah/health", c.Ok)
	router.GET("/_ah/start", c.Ok)
	router.GET("/_ah/stop", c.Ok)
}

// Render handles POST /render.
func (c *RenderController) Render(ctx *gin.Context) {
	var body request.RenderBody
	if err := ctx.ShouldBindBodyWith(&body, binding.JSON); err != nil {
		ctx.JSON(http.StatusBadRequest, response.NewRenderError("malformed request body", nil, ""))
		return
	}

	result, _, err := c.renderer.Render(ctx.Request.Context(), body)
	if err != nil {
		writeRenderError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, result)
}

// Flush drops every cached package and returns the running instance's
// identity so callers can confirm which instance they flushed.
func (c *RenderController) Flush(ctx *gin.Context) {
	var body request.FlushBody
	if err := ctx.ShouldBindBodyWith(&body, binding.JSON); err != nil {
		ctx.JSON(http.StatusBadRequest, response.NewRenderError("malformed request body", nil, ""))
		return
	}

	c.renderer.FlushCache()

	instance := os.Getenv("GAE_INSTANCE")
	if instance == "" {
		instance = processInstanceID
	}
	ctx.String(http.StatusOK, "%s\n", instance)
}

// Ping answers GET /_api/ping.
func (c *RenderController) Ping(ctx *gin.Context) {
	ctx.String(http.StatusOK, "pong!\n")
}

// Version answers GET /_api/version with GAE_VERSION or "dev".
func (c *RenderController) Version(ctx *gin.Context) {
	version := os.Getenv("GAE_VERSION")
	if version == "" {
		version = "dev"
	}
	ctx.String(http.StatusOK, "%s\n", version)
}

// Ok answers the App Engine lifecycle probes.
func (c *RenderController) Ok(ctx *gin.Context) {
	ctx.String(http.StatusOK, "ok!\n")
}

func writeRenderError(ctx *gin.Context, err error) {
	appErr, ok := err.(*pkgerrors.AppError)
	if !ok {
		ctx.JSON(http.StatusInternalServerError, response.NewRenderError(err.Error(), nil, ""))
		return
	}

	ctx.JSON(appErr.Status, response.NewRenderError(appErr.Message, appErr.Value, appErr.Stack))
}
