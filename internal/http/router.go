package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/rapilink/backend/internal/config"
	"github.com/rapilink/backend/internal/http/handlers"
	"github.com/rapilink/backend/internal/http/middleware"

	_ "github.com/rapilink/backend/docs"
)

func Router(cfg config.Config, workflow handlers.Workflow, db handlers.Pinger, gatherer prometheus.Gatherer, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id", "X-User-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Workflow:  workflow,
		DB:        db,
		Validator: validator.New(),
		Logger:    logger,
	}

	r.GET("/healthz", h.Healthz)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	// Sync and sweep routes page through WispHub and are not bounded by REQUEST_TIMEOUT.
	api := r.Group("/api")
	api.Use(middleware.Actor())
	{
		api.POST("/sync", h.Sync)
		api.POST("/sync/mine", h.SyncMine)
	}

	bounded := api.Group("")
	bounded.Use(middleware.Timeout(cfg.RequestTimeout))
	{
		bounded.GET("/queue", h.Queue)

		bounded.POST("/processes", h.CreateProcess)
		bounded.POST("/processes/:id/steps", h.CreateStep)
		bounded.GET("/processes/:id/logs", h.ProcessLogs)
		bounded.POST("/work-items/:id/complete", h.CompleteWorkItem)
		bounded.POST("/work-items/:id/complete-sync", h.CompleteAndSync)
		bounded.POST("/work-items/:id/reassign", h.Reassign)
		bounded.POST("/work-items/:id/escalate", h.Escalate)

		bounded.GET("/neighborhoods", h.NeighborhoodsList)
		bounded.GET("/neighborhoods/nearest", h.NeighborhoodNearest)
		bounded.POST("/neighborhoods", h.NeighborhoodCreate)
		bounded.PUT("/neighborhoods/:id", h.NeighborhoodUpdate)
		bounded.DELETE("/neighborhoods/:id", h.NeighborhoodDelete)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.POST("/sync/global", h.SyncGlobal)
		admin.POST("/escalations/check", h.CheckTimeouts)
		admin.POST("/neighborhoods/geocode", h.NeighborhoodsGeocode)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
