// Package server exposes the ingestion engine over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/PresidentofMexico/openai-usage-metrics/internal/config"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/identity"
	identitydomain "github.com/PresidentofMexico/openai-usage-metrics/internal/identity/domain"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/ingest"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/ingest/pipeline"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/observability"
	obsmiddleware "github.com/PresidentofMexico/openai-usage-metrics/internal/observability/logger"
	obstracing "github.com/PresidentofMexico/openai-usage-metrics/internal/observability/tracing"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/reconcile"
	reconciledomain "github.com/PresidentofMexico/openai-usage-metrics/internal/reconcile/domain"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/usage"
	usagedomain "github.com/PresidentofMexico/openai-usage-metrics/internal/usage/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	identity.Module,
	usage.Module,
	ingest.Module,
	reconcile.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetricsMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	pipeline     *pipeline.Pipeline
	archive      pipeline.ArchiveRepository
	usagesvc     usagedomain.Service
	identitysvc  identitydomain.Service
	reconcilesvc reconciledomain.Service
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Pipeline     *pipeline.Pipeline
	Archive      pipeline.ArchiveRepository
	Usagesvc     usagedomain.Service
	Identitysvc  identitydomain.Service
	Reconcilesvc reconciledomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		pipeline:     p.Pipeline,
		archive:      p.Archive,
		usagesvc:     p.Usagesvc,
		identitysvc:  p.Identitysvc,
		reconcilesvc: p.Reconcilesvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Ingestion --------
	api.POST("/ingest/detect", s.DetectFormat)
	api.POST("/ingest/preview", s.PreviewIngest)
	api.POST("/ingest", s.IngestFile)

	// -------- Usage --------
	api.GET("/usage", s.ListUsage)
	api.GET("/usage/rollup/department", s.RollupByDepartment)
	api.GET("/usage/rollup/month", s.RollupByMonth)
	api.GET("/usage/rollup/week", s.RollupByWeek)

	// -------- Roster --------
	api.POST("/roster", s.UploadRoster)
	api.GET("/roster/stats", s.RosterStats)
	api.GET("/roster/unidentified", s.ListUnidentified)

	// -------- Reconciliation --------
	api.POST("/reconcile", s.RunReconciliation)

	// -------- Source archive --------
	api.GET("/source-files", s.ListSourceFiles)
	api.GET("/source-files/:id", s.GetSourceFile)
}
