package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aviroy619/critical-css-service/pkg/api"
	"github.com/aviroy619/critical-css-service/pkg/health"
	"github.com/aviroy619/critical-css-service/pkg/logger"
	"github.com/aviroy619/critical-css-service/pkg/pool"
)

// Server owns the HTTP listener and the service lifecycle
type Server struct {
	services *Services
	httpSrv  *http.Server
	log      *logger.Logger
}

// NewServer builds the router and binds it to the configured address
func NewServer(services *Services) *Server {
	log := services.Logger.WithComponent("server")

	if services.Config.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(api.RequestIDMiddleware())
	router.Use(api.RequestLogger(services.Logger))
	router.Use(api.CORSMiddleware())

	handler := api.NewHandler(
		services.Pool,
		services.Store,
		services.Extractor,
		services.Uploader,
		services.Limiter,
		services.Monitor,
		services.Logger,
	)
	handler.RegisterRoutes(router, services.Config.APIKey)

	return &Server{
		services: services,
		httpSrv: &http.Server{
			Addr:         services.Config.Address,
			Handler:      router,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  90 * time.Second,
		},
		log: log,
	}
}

// Start pre-warms the browser pool and serves HTTP until Shutdown.
// It blocks until the listener stops.
func (s *Server) Start() error {
	initCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := s.services.Pool.Initialize(initCtx); err != nil {
		// Degraded start: workers are created on demand instead.
		s.log.WarnWithErr("pool pre-warm failed", err)
		s.services.Monitor.SetComponentStatus("browser_pool", health.StatusDegraded, err.Error())
	}

	s.services.Refresher.Start()

	s.log.Info("http server listening", "address", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, drains the pool, and closes storage.
// Safe to call once; the context bounds only the HTTP drain.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down http server")
	err := s.httpSrv.Shutdown(ctx)

	s.services.Refresher.Stop()

	s.services.Pool.Shutdown(&pool.ShutdownOptions{
		GracePeriod: s.services.Config.Pool.ShutdownGracePeriod(),
		OnGracePeriodStart: func(busy int, grace time.Duration) {
			s.log.Info("waiting for busy workers",
				"busy", busy,
				"grace_ms", grace.Milliseconds())
		},
	})

	if closeErr := s.services.Store.Close(); closeErr != nil {
		s.log.ErrorWithErr("failed to close storage", closeErr)
		if err == nil {
			err = closeErr
		}
	}

	s.log.Info("shutdown complete")
	return err
}
