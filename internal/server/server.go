package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/streamcred/streamcred/internal/account"
	"github.com/streamcred/streamcred/internal/config"
	"github.com/streamcred/streamcred/internal/idempotency"
	"github.com/streamcred/streamcred/internal/ingest"
	ingestservice "github.com/streamcred/streamcred/internal/ingest/service"
	"github.com/streamcred/streamcred/internal/observability"
	obsmiddleware "github.com/streamcred/streamcred/internal/observability/logger"
	obstracing "github.com/streamcred/streamcred/internal/observability/tracing"
	"github.com/streamcred/streamcred/internal/reward"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	idempotency.Module,
	account.Module,
	reward.Module,
	ingest.Module,
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

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine    *gin.Engine
	cfg       config.Config
	ingestSvc *ingestservice.Service
	log       *zap.Logger
}

type ServerParams struct {
	fx.In

	Engine    *gin.Engine
	Cfg       config.Config
	IngestSvc *ingestservice.Service
	Log       *zap.Logger
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:    p.Engine,
		cfg:       p.Cfg,
		ingestSvc: p.IngestSvc,
		log:       p.Log.Named("http.server"),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.POST("/webhooks/:provider", s.HandleWebhook)
	s.engine.GET("/webhooks/:provider", s.HandleWebhookInfo)
}
