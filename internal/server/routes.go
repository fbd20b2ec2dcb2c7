package server

import (
	"github.com/gin-gonic/gin"
	"github.com/nulzo/modelmart/internal/server/middleware"
	v1 "github.com/nulzo/modelmart/internal/server/v1"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) SetupRoutes() {
	s.router.Use(middleware.CORS(s.config.Server.CORSOrigins))
	s.router.Use(middleware.ErrorHandler(s.logger))

	healthHandler := v1.NewHealthHandler()
	s.router.GET("/health", healthHandler.Health)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api/v1")
	if s.config.RateLimit.Enabled {
		s.limiter = middleware.NewRateLimiter(s.config.RateLimit.RequestsPerSecond, s.config.RateLimit.Burst, s.logger)
		api.Use(s.limiter.Middleware())
	}
	{
		models := v1.NewModelHandler(s.deps.Catalog)
		api.GET("/models", models.List)
		api.GET("/models/:id", models.Get)

		chains := v1.NewChainHandler(s.deps.Chains)
		api.GET("/chains", chains.List)

		deployments := v1.NewDeploymentHandler(s.deps.Registry, s.deps.Chains)
		api.GET("/deployments", deployments.List)
		api.GET("/deployments/:id", deployments.Get)
		api.POST("/deployments", deployments.Create)

		stats := v1.NewStatsHandler(s.deps.Stats)
		api.GET("/stats", stats.Overview)
		api.GET("/stats/daily", stats.Daily)
	}
}
