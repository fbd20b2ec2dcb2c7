package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/nulzo/modelmart/internal/analytics"
	"github.com/nulzo/modelmart/internal/catalog"
	"github.com/nulzo/modelmart/internal/chain"
	"github.com/nulzo/modelmart/internal/config"
	"github.com/nulzo/modelmart/internal/registry"
	"github.com/nulzo/modelmart/internal/server/middleware"
	"github.com/nulzo/modelmart/internal/server/validator"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Dependencies are the services exposed over HTTP.
type Dependencies struct {
	Catalog  *catalog.Catalog
	Chains   *chain.Directory
	Registry registry.Service
	Stats    analytics.Service
}

type Server struct {
	router *gin.Engine
	config *config.Config
	logger *zap.Logger
	deps   Dependencies

	limiter *middleware.RateLimiter
}

func New(cfg *config.Config, logger *zap.Logger, deps Dependencies) (*Server, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := validator.InitValidator(deps.Chains); err != nil {
		return nil, err
	}

	engine := gin.New()

	engine.Use(ginzap.RecoveryWithZap(logger, true))
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Logger(logger))
	engine.Use(middleware.Metrics())
	if cfg.Tracing.Enabled {
		engine.Use(middleware.Tracing(cfg.Tracing.ServiceName))
	}

	s := &Server{
		router: engine,
		config: cfg,
		logger: logger,
		deps:   deps,
	}

	s.SetupRoutes()
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort("", s.config.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if s.limiter != nil {
		go s.sweepLimiter(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) sweepLimiter(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.limiter.Sweep(now); n > 0 {
				s.logger.Debug("evicted idle rate limiters", zap.Int("count", n))
			}
		}
	}
}
