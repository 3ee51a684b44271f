package cmd

import (
	"context"

	"example.com/storefront/services/orders/config"
	"example.com/storefront/services/orders/internal/database"
	"example.com/storefront/services/orders/internal/metrics"
	"example.com/storefront/services/orders/internal/repository"
	"example.com/storefront/services/orders/internal/service"
	"example.com/storefront/services/orders/internal/stream"
	"example.com/storefront/services/orders/internal/tracing"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var cleanupDryRun bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Rebuild invoice integrity",
	Long: `Scan every invoice, drop references to orders that no longer exist,
recompute amounts from the surviving orders, and delete invoices left
without any resolvable order. Use --dry-run to preview the result.`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "report what would change without modifying anything")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	db, readOnlyDB, err := database.Connect(cfg.DB)
	if err != nil {
		return err
	}

	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
	}

	store := repository.NewStore(db, readOnlyDB)
	reconciler := service.NewReconcileService(store, stream.NewRegistry(), nil, metrics.NewMetrics(), tracer)

	report, err := reconciler.ForceCleanupInvalidInvoices(context.Background(), cleanupDryRun)
	if err != nil {
		return err
	}

	log.Info().
		Bool("dry_run", cleanupDryRun).
		Int("deleted", report.Deleted).
		Int("updated", report.Updated).
		Msg("Invoice cleanup finished")

	return nil
}
