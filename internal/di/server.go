package di

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/jrjohn/arcana-ssr/internal/config"
	httpctrl "github.com/jrjohn/arcana-ssr/internal/controller/http"
	"github.com/jrjohn/arcana-ssr/internal/middleware"
	"github.com/jrjohn/arcana-ssr/internal/observability"
)

// HTTPServerModule provides HTTP server dependencies.
var HTTPServerModule = fx.Module("http_server",
	fx.Provide(provideGinEngine),
	fx.Provide(provideHTTPServer),
	fx.Invoke(registerHTTPRoutes),
	fx.Invoke(startHTTPServer),
)

func provideGinEngine(app *config.AppConfig, server *config.ServerConfig, logger *zap.Logger, mp *observability.MetricsProvider) *gin.Engine {
	if !app.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	router.Use(middleware.BodyLimit(server.MaxBodyBytes))
	router.Use(observability.MetricsMiddleware(mp))
	router.Use(observability.TracingMiddleware(app.Name))

	return router
}

func provideHTTPServer(cfg *config.ServerConfig, router *gin.Engine) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func registerHTTPRoutes(router *gin.Engine, render *httpctrl.RenderController, mp *observability.MetricsProvider) {
	render.RegisterRoutes(router.Group(""))
	router.GET("/metrics", gin.WrapH(mp.Handler()))
}

func startHTTPServer(lc fx.Lifecycle, server *http.Server, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting HTTP server", zap.String("address", server.Addr))
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("HTTP server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping HTTP server")
			return server.Shutdown(ctx)
		},
	})
}
