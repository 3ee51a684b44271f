package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"example.com/storefront/services/orders/config"
	"example.com/storefront/services/orders/internal/cache"
	"example.com/storefront/services/orders/internal/database"
	"example.com/storefront/services/orders/internal/email"
	"example.com/storefront/services/orders/internal/messaging"
	"example.com/storefront/services/orders/internal/metrics"
	"example.com/storefront/services/orders/internal/repository"
	"example.com/storefront/services/orders/internal/service"
	"example.com/storefront/services/orders/internal/stream"
	"example.com/storefront/services/orders/internal/tracing"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker to process payment notifications and run the invoice maintenance sweeps`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

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

	bus, err := messaging.NewServiceBus(cfg.Azure, tracer)
	if err != nil {
		return err
	}
	defer bus.Close(context.Background())

	store := repository.NewStore(db, readOnlyDB)
	registry := stream.NewRegistry()
	collector := metrics.NewMetrics()
	mailer := email.NewMailer(cfg.Email)

	reconciler := service.NewReconcileService(store, registry, bus, collector, tracer)
	orderService := service.NewOrderService(store, redisCache, mailer, bus, reconciler, collector, tracer)

	// Payment notification consumer
	g.Go(func() error {
		log.Info().Str("queue", cfg.Azure.PaymentsQueue).Msg("Starting payment notification processor")
		return bus.ProcessMessages(ctx, orderService.ProcessPaymentMessage)
	})

	// Invoice maintenance sweeps
	g.Go(func() error {
		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.Maintenance.EmptyInvoiceSweepInterval),
			gocron.NewTask(func() {
				if _, err := reconciler.CleanupEmptyPeriodInvoices(ctx); err != nil {
					log.Error().Err(err).Msg("Empty invoice sweep failed")
				}
			}),
		)
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.Maintenance.OverdueSweepInterval),
			gocron.NewTask(func() {
				if _, err := reconciler.MarkOverdueInvoices(ctx, cfg.Maintenance.OverdueGrace); err != nil {
					log.Error().Err(err).Msg("Overdue sweep failed")
				}
			}),
		)
		if err != nil {
			return err
		}

		scheduler.Start()
		log.Info().Msg("Invoice maintenance scheduler started")

		<-ctx.Done()
		return scheduler.Shutdown()
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}

	log.Info().Msg("Shutting down worker")
	return nil
}
