package api

import (
	"context"
	"net/http"
	"time"

	"example.com/storefront/services/orders/config"
	"example.com/storefront/services/orders/internal/api/handlers"
	"example.com/storefront/services/orders/internal/api/middleware"
	"example.com/storefront/services/orders/internal/metrics"
	"example.com/storefront/services/orders/internal/repository"
	"example.com/storefront/services/orders/internal/stream"
	"example.com/storefront/services/orders/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Server represents the HTTP server
type Server struct {
	config     config.Config
	router     *gin.Engine
	httpServer *http.Server

	orders   handlers.OrderAdminService
	invoices handlers.InvoiceAdminService
	users    repository.UserRepository
	registry *stream.Registry
	metrics  *metrics.Metrics
	tracer   tracing.Tracer
}

// NewServer creates a new HTTP server
func NewServer(
	cfg config.Config,
	orders handlers.OrderAdminService,
	invoices handlers.InvoiceAdminService,
	users repository.UserRepository,
	registry *stream.Registry,
	m *metrics.Metrics,
	tracer tracing.Tracer,
) *Server {
	server := &Server{
		config:   cfg,
		orders:   orders,
		invoices: invoices,
		users:    users,
		registry: registry,
		metrics:  m,
		tracer:   tracer,
	}

	server.router = server.setupRouter()
	server.httpServer = &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      server.router,
		ReadTimeout:  cfg.ServerTimeout,
		WriteTimeout: 0, // SSE connections stay open
	}

	return server
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter() *gin.Engine {
	if s.config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())

	auth := middleware.Auth(s.users)
	admin := middleware.RequireAdmin()

	ordersHandler := handlers.NewOrdersHandler(s.orders, s.invoices, s.tracer)
	ordersHandler.RegisterRoutes(router, auth, admin)

	streamHandler := handlers.NewStreamHandler(s.registry)
	streamHandler.RegisterRoutes(router, auth)

	metricsHandler := handlers.NewMetricsHandler(s.metrics)
	metricsHandler.RegisterRoutes(router)

	return router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.ServerAddress).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}
