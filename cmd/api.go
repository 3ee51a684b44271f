package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"example.com/storefront/services/orders/config"
	"example.com/storefront/services/orders/internal/api"
	"example.com/storefront/services/orders/internal/cache"
	"example.com/storefront/services/orders/internal/database"
	"example.com/storefront/services/orders/internal/email"
	"example.com/storefront/services/orders/internal/messaging"
	"example.com/storefront/services/orders/internal/metrics"
	"example.com/storefront/services/orders/internal/repository"
	"example.com/storefront/services/orders/internal/service"
	"example.com/storefront/services/orders/internal/stream"
	"example.com/storefront/services/orders/internal/tracing"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server for order administration and the live update stream`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	db, readOnlyDB, err := database.Connect(cfg.DB)
	if err != nil {
		return err
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
	}

	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
	}

	var events messaging.EventPublisher
	bus, err := messaging.NewServiceBus(cfg.Azure, tracer)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Service Bus, continuing without event publishing")
	} else if bus != nil {
		events = bus
		defer bus.Close(context.Background())
	}

	store := repository.NewStore(db, readOnlyDB)
	registry := stream.NewRegistry()
	collector := metrics.NewMetrics()
	mailer := email.NewMailer(cfg.Email)

	reconciler := service.NewReconcileService(store, registry, events, collector, tracer)
	orderService := service.NewOrderService(store, redisCache, mailer, events, reconciler, collector, tracer)

	collector.SetHealth("database", true)
	collector.SetHealth("cache", redisCache != nil)

	server := api.NewServer(cfg, orderService, reconciler, store.Users(), registry, collector, tracer)

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	}()

	<-ctx.Done()

	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Shutting down API server")
	return nil
}
