package service

import (
	"context"
	"time"

	"example.com/storefront/services/orders/internal/messaging"
	"example.com/storefront/services/orders/internal/metrics"
	"example.com/storefront/services/orders/internal/models"
	"example.com/storefront/services/orders/internal/repository"
	"example.com/storefront/services/orders/internal/stream"
	"example.com/storefront/services/orders/internal/tracing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// CleanupReport summarizes a force-cleanup sweep for the operator
type CleanupReport struct {
	Deleted int `json:"deleted"`
	Updated int `json:"updated"`
}

// ReconcileService keeps invoice aggregates consistent with the order
// lifecycle: every order identifier referenced by an invoice must
// resolve to a live order, and an invoice's amount must equal the sum
// of the totals of the orders it references. Each operation runs in a
// single database transaction; on any failure the transaction aborts
// and no partial invoice updates are retained.
type ReconcileService struct {
	store    repository.Store
	registry *stream.Registry
	events   messaging.EventPublisher
	metrics  *metrics.Metrics
	tracer   tracing.Tracer
}

// NewReconcileService creates a new reconciliation service
func NewReconcileService(
	store repository.Store,
	registry *stream.Registry,
	events messaging.EventPublisher,
	collector *metrics.Metrics,
	tracer tracing.Tracer,
) *ReconcileService {
	return &ReconcileService{
		store:    store,
		registry: registry,
		events:   events,
		metrics:  collector,
		tracer:   tracer,
	}
}

// RemoveOrderFromInvoices strips an order's identifier from every
// invoice that references it, subtracts the order's total from each
// invoice amount while the order record is still resolvable, drops
// invoice items whose product came exclusively from the removed order,
// and deletes period invoices left with no orders. Callers must treat
// it as all-or-nothing.
func (s *ReconcileService) RemoveOrderFromInvoices(ctx context.Context, orderID uuid.UUID) error {
	txn := s.tracer.StartTransaction("reconcile-remove-order")
	defer s.tracer.EndTransaction(txn)

	var notifications []stream.Event

	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		invoices, err := tx.Invoices().FindByOrderID(ctx, orderID)
		if err != nil {
			return errors.Wrap(err, "failed to find invoices referencing order")
		}

		// The order may already be gone; amounts are only adjusted
		// while its record is still resolvable.
		order, err := tx.Orders().GetByID(ctx, orderID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return errors.Wrap(err, "failed to load order")
		}

		for i := range invoices {
			invoice := &invoices[i]

			if err := tx.Invoices().RemoveOrder(ctx, invoice.ID, orderID); err != nil {
				return err
			}

			if order != nil {
				invoice.Amount -= order.Total
				if invoice.Amount < 0 {
					invoice.Amount = 0
				}
				if err := s.dropExclusiveItems(ctx, tx, invoice, order); err != nil {
					return err
				}
			}

			remaining, err := tx.Invoices().OrderIDs(ctx, invoice.ID)
			if err != nil {
				return err
			}

			if invoice.Type == models.InvoiceTypePeriod && len(remaining) == 0 {
				// A period invoice billing nothing is invalid and is
				// deleted rather than left dangling.
				if err := tx.Invoices().Delete(ctx, invoice.ID); err != nil {
					return err
				}
				notifications = append(notifications, stream.Event{
					Kind: "invoice.deleted", EntityID: invoice.Number,
				})
				continue
			}

			if err := tx.Invoices().Save(ctx, invoice); err != nil {
				return err
			}
			notifications = append(notifications, stream.Event{
				Kind: "invoice.updated", EntityID: invoice.Number,
			})
		}

		return nil
	})
	if err != nil {
		s.tracer.RecordError(txn, err)
		if s.metrics != nil {
			s.metrics.RecordError("reconcile_remove_order")
		}
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordSuccess("reconcile_remove_order")
	}
	s.notify(ctx, notifications)
	return nil
}

// dropExclusiveItems filters an invoice's denormalized items down to
// those whose product is still supplied by at least one remaining
// order. Products that only the removed order contributed are dropped.
func (s *ReconcileService) dropExclusiveItems(ctx context.Context, tx repository.Store, invoice *models.Invoice, removed *models.Order) error {
	removedProducts := make(map[uuid.UUID]bool, len(removed.Items))
	for _, item := range removed.Items {
		removedProducts[item.ProductID] = true
	}

	remainingIDs, err := tx.Invoices().OrderIDs(ctx, invoice.ID)
	if err != nil {
		return err
	}
	remainingOrders, err := tx.Orders().GetByIDs(ctx, remainingIDs)
	if err != nil {
		return err
	}

	surviving := make(map[uuid.UUID]bool)
	for _, o := range remainingOrders {
		for _, item := range o.Items {
			surviving[item.ProductID] = true
		}
	}

	kept := make([]models.InvoiceItem, 0, len(invoice.Items))
	for _, item := range invoice.Items {
		if removedProducts[item.ProductID] && !surviving[item.ProductID] {
			continue
		}
		kept = append(kept, item)
	}

	if len(kept) == len(invoice.Items) {
		return nil
	}

	if err := tx.Invoices().ReplaceItems(ctx, invoice.ID, kept); err != nil {
		return err
	}
	invoice.Items = kept
	return nil
}

// CleanupEmptyPeriodInvoices deletes every period invoice left with no
// order references. Safe to run repeatedly; a second run right after a
// first finds nothing to delete.
func (s *ReconcileService) CleanupEmptyPeriodInvoices(ctx context.Context) (int, error) {
	txn := s.tracer.StartTransaction("reconcile-cleanup-empty")
	defer s.tracer.EndTransaction(txn)

	var notifications []stream.Event
	deleted := 0

	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		invoices, err := tx.Invoices().FindEmptyPeriod(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to find empty period invoices")
		}

		for i := range invoices {
			if err := tx.Invoices().Delete(ctx, invoices[i].ID); err != nil {
				return err
			}
			deleted++
			notifications = append(notifications, stream.Event{
				Kind: "invoice.deleted", EntityID: invoices[i].Number,
			})
		}
		return nil
	})
	if err != nil {
		s.tracer.RecordError(txn, err)
		return 0, err
	}

	if deleted > 0 {
		log.Info().Int("deleted", deleted).Msg("Removed empty period invoices")
	}
	s.notify(ctx, notifications)
	return deleted, nil
}

// ForceCleanupInvalidInvoices sweeps every invoice in the store. An
// invoice with zero resolvable orders is deleted outright, regardless
// of type. An invoice with a mix of live and dead references is
// rewritten: dead references dropped, amount recomputed as the sum of
// the surviving orders' totals, items rebuilt from the surviving
// orders' line items. Aggregates are always fully recomputed from the
// live order set, never patched incrementally.
//
// With dryRun set, the sweep reports what it would delete and update
// without mutating anything.
func (s *ReconcileService) ForceCleanupInvalidInvoices(ctx context.Context, dryRun bool) (CleanupReport, error) {
	txn := s.tracer.StartTransaction("reconcile-force-cleanup")
	defer s.tracer.EndTransaction(txn)

	start := time.Now()
	var report CleanupReport
	var notifications []stream.Event

	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		invoices, err := tx.Invoices().ListAll(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to list invoices")
		}

		for i := range invoices {
			invoice := &invoices[i]

			refIDs, err := tx.Invoices().OrderIDs(ctx, invoice.ID)
			if err != nil {
				return err
			}
			surviving, err := tx.Orders().GetByIDs(ctx, refIDs)
			if err != nil {
				return err
			}

			if len(surviving) == 0 {
				report.Deleted++
				if dryRun {
					continue
				}
				if err := tx.Invoices().Delete(ctx, invoice.ID); err != nil {
					return err
				}
				notifications = append(notifications, stream.Event{
					Kind: "invoice.deleted", EntityID: invoice.Number,
				})
				continue
			}

			if len(surviving) == len(refIDs) {
				continue
			}

			report.Updated++
			if dryRun {
				continue
			}

			live := make(map[uuid.UUID]bool, len(surviving))
			var amount int64
			var items []models.InvoiceItem
			for _, o := range surviving {
				live[o.ID] = true
				amount += o.Total
				for _, item := range o.Items {
					items = append(items, models.InvoiceItem{
						InvoiceID: invoice.ID,
						ProductID: item.ProductID,
						Quantity:  item.Quantity,
						UnitPrice: item.UnitPrice,
					})
				}
			}

			for _, refID := range refIDs {
				if !live[refID] {
					if err := tx.Invoices().RemoveOrder(ctx, invoice.ID, refID); err != nil {
						return err
					}
				}
			}
			if err := tx.Invoices().ReplaceItems(ctx, invoice.ID, items); err != nil {
				return err
			}

			invoice.Amount = amount
			invoice.Items = items
			if err := tx.Invoices().Save(ctx, invoice); err != nil {
				return err
			}
			notifications = append(notifications, stream.Event{
				Kind: "invoice.updated", EntityID: invoice.Number,
			})
		}
		return nil
	})
	if err != nil {
		s.tracer.RecordError(txn, err)
		return CleanupReport{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordTimer("reconcile_force_cleanup", time.Since(start))
	}
	log.Info().Int("deleted", report.Deleted).Int("updated", report.Updated).
		Bool("dry_run", dryRun).Msg("Invoice integrity sweep finished")
	s.notify(ctx, notifications)
	return report, nil
}

// MarkOverdueInvoices flips pending invoices whose billing period
// ended more than the grace window ago to overdue
func (s *ReconcileService) MarkOverdueInvoices(ctx context.Context, grace time.Duration) (int64, error) {
	var updated int64
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		updated, err = tx.Invoices().MarkOverdue(ctx, time.Now().Add(-grace))
		return err
	})
	if err != nil {
		return 0, err
	}
	if updated > 0 {
		log.Info().Int64("updated", updated).Msg("Marked invoices overdue")
		s.notify(ctx, []stream.Event{{Kind: "invoice.overdue", Detail: "sweep"}})
	}
	return updated, nil
}

// notify fans the given events out to live stream subscribers and the
// message bus. It runs after the transaction has committed, so a
// delivery failure is logged and never affects the mutation.
func (s *ReconcileService) notify(ctx context.Context, events []stream.Event) {
	for _, event := range events {
		if s.registry != nil {
			s.registry.Broadcast(event)
		}
		if s.events != nil {
			err := s.events.Publish(ctx, messaging.Event{
				Kind:      event.Kind,
				EntityID:  event.EntityID,
				Detail:    event.Detail,
				Timestamp: event.Timestamp,
			})
			if err != nil {
				log.Warn().Err(err).Str("kind", event.Kind).Str("entity_id", event.EntityID).
					Msg("Failed to publish event to message bus")
			}
		}
	}
}
