package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"example.com/storefront/services/orders/internal/cache"
	"example.com/storefront/services/orders/internal/email"
	"example.com/storefront/services/orders/internal/messaging"
	"example.com/storefront/services/orders/internal/metrics"
	"example.com/storefront/services/orders/internal/models"
	"example.com/storefront/services/orders/internal/repository"
	"example.com/storefront/services/orders/internal/tracing"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultRejectionReason is recorded when a rejection carries no reason
const DefaultRejectionReason = "Payment could not be verified"

const orderListCacheTTL = 30 * time.Second

// ListOrdersParams narrows and pages the admin order listing
type ListOrdersParams struct {
	Page     int
	Limit    int
	Status   string
	Language string
	ViewMode string
}

// ListOrdersResult is the admin order listing page
type ListOrdersResult struct {
	Orders      []models.Order `json:"orders"`
	HasMore     bool           `json:"hasMore"`
	TotalOrders int64          `json:"totalOrders"`
}

// OrderLineRequest is one requested order line
type OrderLineRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// CreateOrderRequest is the order intake payload
type CreateOrderRequest struct {
	UserID         uuid.UUID
	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
	AddressPrimary string
	AddressSecond  string
	Latitude       *float64
	Longitude      *float64
	DeliveryMethod int
	DeliveryCost   int64
	PaymentMethod  string
	Type           models.OrderType
	Items          []OrderLineRequest
}

// OrderService exposes the order administration operations and keeps
// dependent state (stock, invoices, customer notifications) in sync
// with order status transitions.
type OrderService struct {
	store      repository.Store
	cache      *cache.RedisCache
	mailer     email.Mailer
	events     messaging.EventPublisher
	reconciler *ReconcileService
	metrics    *metrics.Metrics
	tracer     tracing.Tracer
}

// NewOrderService creates a new order service
func NewOrderService(
	store repository.Store,
	redisCache *cache.RedisCache,
	mailer email.Mailer,
	events messaging.EventPublisher,
	reconciler *ReconcileService,
	collector *metrics.Metrics,
	tracer tracing.Tracer,
) *OrderService {
	return &OrderService{
		store:      store,
		cache:      redisCache,
		mailer:     mailer,
		events:     events,
		reconciler: reconciler,
		metrics:    collector,
		tracer:     tracer,
	}
}

// List returns a page of orders filtered by status and view mode.
// Pages are cached briefly; any order mutation invalidates the cache.
func (s *OrderService) List(ctx context.Context, params ListOrdersParams) (*ListOrdersResult, error) {
	txn := s.tracer.StartTransaction("list-orders")
	defer s.tracer.EndTransaction(txn)

	filter := repository.ListOrdersFilter{
		Status:    models.OrderStatus(params.Status),
		OrderType: viewModeToType(params.ViewMode),
		Page:      params.Page,
		Limit:     params.Limit,
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	cacheKey := cache.GetOrderListKey(params.Status, params.ViewMode, filter.Page, filter.Limit)
	if s.cache != nil {
		var cached ListOrdersResult
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	orders, total, err := s.store.Orders().List(ctx, filter)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	result := &ListOrdersResult{
		Orders:      orders,
		HasMore:     int64(filter.Page*filter.Limit) < total,
		TotalOrders: total,
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, result, orderListCacheTTL); err != nil {
			log.Debug().Err(err).Msg("Failed to cache order listing")
		}
	}

	return result, nil
}

// CreateOrder records a new order and attaches it to billing: a fresh
// one-time invoice for one-time orders, or the customer's open period
// invoice (created on demand) for period orders.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*models.Order, error) {
	txn := s.tracer.StartTransaction("create-order")
	defer s.tracer.EndTransaction(txn)

	if len(req.Items) == 0 {
		return nil, ErrEmptyOrder
	}
	if req.Type == "" {
		req.Type = models.OrderTypeOneTime
	}

	var order *models.Order
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		now := time.Now()

		var subtotal int64
		items := make([]models.OrderItem, 0, len(req.Items))
		for _, line := range req.Items {
			product, err := tx.Products().GetByID(ctx, line.ProductID)
			if err != nil {
				return errors.Wrapf(err, "failed to resolve product %s", line.ProductID)
			}
			qty := line.Quantity
			if qty <= 0 {
				qty = 1
			}
			subtotal += product.Price * int64(qty)
			items = append(items, models.OrderItem{
				ID:        uuid.New(),
				ProductID: product.ID,
				Quantity:  qty,
				UnitPrice: product.Price,
			})
		}

		number, err := nextOrderNumber(ctx, tx, req.Type, now)
		if err != nil {
			return err
		}

		order = &models.Order{
			ID:             uuid.New(),
			Number:         number,
			UserID:         req.UserID,
			CustomerName:   req.CustomerName,
			CustomerEmail:  req.CustomerEmail,
			CustomerPhone:  req.CustomerPhone,
			AddressPrimary: req.AddressPrimary,
			AddressSecond:  req.AddressSecond,
			Latitude:       req.Latitude,
			Longitude:      req.Longitude,
			DeliveryMethod: req.DeliveryMethod,
			DeliveryCost:   req.DeliveryCost,
			Subtotal:       subtotal,
			Total:          subtotal + req.DeliveryCost,
			PaymentMethod:  req.PaymentMethod,
			Type:           req.Type,
			Status:         models.OrderStatusPending,
			Items:          items,
		}
		if err := tx.Orders().Create(ctx, order); err != nil {
			return err
		}

		return s.attachToInvoice(ctx, tx, order, now)
	})
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	s.invalidateListCache(ctx)
	if s.metrics != nil {
		s.metrics.IncrementCounter("orders_created")
	}
	s.publish(ctx, "order.created", order.Number)

	return order, nil
}

// attachToInvoice creates or extends the invoice billing a new order
func (s *OrderService) attachToInvoice(ctx context.Context, tx repository.Store, order *models.Order, now time.Time) error {
	invoiceItems := make([]models.InvoiceItem, 0, len(order.Items))
	for _, item := range order.Items {
		invoiceItems = append(invoiceItems, models.InvoiceItem{
			ID:        uuid.New(),
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	if order.Type == models.OrderTypeOneTime {
		invoice := &models.Invoice{
			ID:              uuid.New(),
			Number:          nextInvoiceNumber(now),
			UserID:          order.UserID,
			Type:            models.InvoiceTypeOneTime,
			Amount:          order.Total,
			Status:          models.InvoiceStatusPending,
			BillingAddress:  order.AddressPrimary,
			ShippingAddress: order.AddressPrimary,
			Items:           invoiceItems,
		}
		if err := tx.Invoices().Create(ctx, invoice); err != nil {
			return err
		}
		if err := tx.Invoices().AddOrder(ctx, invoice.ID, order.ID); err != nil {
			return err
		}
		order.InvoiceNumber = &invoice.Number
		return tx.Orders().Save(ctx, order)
	}

	// Period orders accumulate into the open period invoice
	invoice, err := tx.Invoices().FindOpenPeriodByUser(ctx, order.UserID, now)
	if errors.Is(err, repository.ErrNotFound) {
		periodStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		periodEnd := periodStart.AddDate(0, 1, 0).Add(-time.Second)
		invoice = &models.Invoice{
			ID:              uuid.New(),
			Number:          nextInvoiceNumber(now),
			UserID:          order.UserID,
			Type:            models.InvoiceTypePeriod,
			Status:          models.InvoiceStatusPending,
			BillingAddress:  order.AddressPrimary,
			ShippingAddress: order.AddressPrimary,
			PeriodStart:     &periodStart,
			PeriodEnd:       &periodEnd,
		}
		if err := tx.Invoices().Create(ctx, invoice); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	invoice.Amount += order.Total
	combined := append(invoice.Items, invoiceItems...)
	if err := tx.Invoices().ReplaceItems(ctx, invoice.ID, combined); err != nil {
		return err
	}
	invoice.Items = combined
	if err := tx.Invoices().Save(ctx, invoice); err != nil {
		return err
	}
	if err := tx.Invoices().AddOrder(ctx, invoice.ID, order.ID); err != nil {
		return err
	}

	order.InvoiceNumber = &invoice.Number
	return tx.Orders().Save(ctx, order)
}

// ConfirmPayment moves an order to processing, decrements stock for
// each line item (floored at zero), and marks the associated one-time
// invoice paid. Confirming an order already at processing or later is
// rejected so stock is never decremented twice.
func (s *OrderService) ConfirmPayment(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	txn := s.tracer.StartTransaction("confirm-payment")
	defer s.tracer.EndTransaction(txn)

	var order *models.Order
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		order, err = s.loadOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if !order.Status.PaymentConfirmable() {
			if order.Status == models.OrderStatusCancelled {
				return ErrInvalidTransition
			}
			return ErrAlreadyConfirmed
		}

		order.Status = models.OrderStatusProcessing
		if err := tx.Orders().Save(ctx, order); err != nil {
			return err
		}

		for _, item := range order.Items {
			if err := tx.Products().DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					log.Warn().Str("product_id", item.ProductID.String()).
						Str("order", order.Number).
						Msg("Product missing during stock decrement, skipping")
					continue
				}
				return err
			}
		}

		return s.markOneTimeInvoicesPaid(ctx, tx, order)
	})
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	s.afterTransition(ctx, order, email.PaymentConfirmed(order))
	return order, nil
}

// MarkShipped moves an order to shipped. The order must already have a
// logistics vehicle assigned; without one the call fails and the order
// is left untouched.
func (s *OrderService) MarkShipped(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	txn := s.tracer.StartTransaction("mark-shipped")
	defer s.tracer.EndTransaction(txn)

	var order *models.Order
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		order, err = s.loadOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if order.VehicleID == nil {
			return ErrNoVehicleAssigned
		}
		if !order.Status.CanTransition(models.OrderStatusShipped) {
			return ErrInvalidTransition
		}

		order.Status = models.OrderStatusShipped
		return tx.Orders().Save(ctx, order)
	})
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	s.afterTransition(ctx, order, email.OrderShipped(order))
	return order, nil
}

// MarkDelivered moves a shipped order to delivered and settles its
// invoices: a one-time invoice is marked paid immediately; a period
// invoice is marked paid only once every order it references is
// delivered.
func (s *OrderService) MarkDelivered(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	txn := s.tracer.StartTransaction("mark-delivered")
	defer s.tracer.EndTransaction(txn)

	var order *models.Order
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		order, err = s.loadOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if order.Status != models.OrderStatusShipped {
			return ErrNotShipped
		}

		order.Status = models.OrderStatusDelivered
		if err := tx.Orders().Save(ctx, order); err != nil {
			return err
		}

		return s.syncInvoicesForOrder(ctx, tx, order)
	})
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	s.afterTransition(ctx, order, email.OrderDelivered(order))
	return order, nil
}

// RejectPayment cancels an order and records the rejection reason,
// defaulting to a generic message when none is supplied
func (s *OrderService) RejectPayment(ctx context.Context, orderID uuid.UUID, reason string) (*models.Order, error) {
	txn := s.tracer.StartTransaction("reject-payment")
	defer s.tracer.EndTransaction(txn)

	if reason == "" {
		reason = DefaultRejectionReason
	}

	var order *models.Order
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		order, err = s.loadOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if !order.Status.CanTransition(models.OrderStatusCancelled) {
			return ErrInvalidTransition
		}

		order.Status = models.OrderStatusCancelled
		order.RejectReason = &reason
		if err := tx.Orders().Save(ctx, order); err != nil {
			return err
		}

		return s.syncInvoicesForOrder(ctx, tx, order)
	})
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	s.afterTransition(ctx, order, email.PaymentRejected(order, reason))
	return order, nil
}

// Delete removes an order. Reconciliation runs first so no invoice is
// left referencing the order; if reconciliation fails the order is NOT
// deleted and the failure is surfaced.
func (s *OrderService) Delete(ctx context.Context, orderID uuid.UUID) error {
	txn := s.tracer.StartTransaction("delete-order")
	defer s.tracer.EndTransaction(txn)

	order, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrOrderNotFound
		}
		return err
	}

	if err := s.reconciler.RemoveOrderFromInvoices(ctx, orderID); err != nil {
		s.tracer.RecordError(txn, err)
		return errors.Wrap(ErrInvoiceCleanup, err.Error())
	}

	if err := s.store.Orders().Delete(ctx, orderID); err != nil {
		s.tracer.RecordError(txn, err)
		return err
	}

	s.invalidateListCache(ctx)
	if s.metrics != nil {
		s.metrics.IncrementCounter("orders_deleted")
	}
	s.publish(ctx, "order.deleted", order.Number)

	log.Info().Str("order", order.Number).Msg("Order deleted")
	return nil
}

// paymentNotification is the payload of a payment-verification message
type paymentNotification struct {
	OrderNumber string `json:"order_number"`
	Reference   string `json:"reference"`
}

// ProcessPaymentMessage applies a payment notification from the bus as
// a confirm-payment transition. Notifications for orders already
// confirmed are dropped, so redelivery is harmless.
func (s *OrderService) ProcessPaymentMessage(ctx context.Context, message *azservicebus.ReceivedMessage, txn *newrelic.Transaction) error {
	var notification paymentNotification
	if err := json.Unmarshal(message.Body, &notification); err != nil {
		return errors.Wrap(err, "failed to unmarshal payment notification")
	}
	if notification.OrderNumber == "" {
		return errors.New("payment notification missing order number")
	}

	s.tracer.AddAttribute(txn, "order_number", notification.OrderNumber)

	order, err := s.store.Orders().GetByNumber(ctx, notification.OrderNumber)
	if err != nil {
		return errors.Wrap(err, "failed to resolve order for payment notification")
	}

	if _, err := s.ConfirmPayment(ctx, order.ID); err != nil {
		if errors.Is(err, ErrAlreadyConfirmed) {
			log.Info().Str("order", order.Number).Msg("Payment already confirmed, dropping notification")
			return nil
		}
		return err
	}

	log.Info().Str("order", order.Number).Str("reference", notification.Reference).
		Msg("Payment notification applied")
	return nil
}

// loadOrder fetches an order inside a transaction, mapping the
// repository sentinel to the business error
func (s *OrderService) loadOrder(ctx context.Context, tx repository.Store, orderID uuid.UUID) (*models.Order, error) {
	order, err := tx.Orders().GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// markOneTimeInvoicesPaid marks the one-time invoices billing an order
// as paid, defaulting the payment date to now
func (s *OrderService) markOneTimeInvoicesPaid(ctx context.Context, tx repository.Store, order *models.Order) error {
	invoices, err := tx.Invoices().FindByOrderID(ctx, order.ID)
	if err != nil {
		return err
	}
	for i := range invoices {
		invoice := &invoices[i]
		if invoice.Type != models.InvoiceTypeOneTime {
			continue
		}
		if markInvoicePaid(invoice) {
			if err := tx.Invoices().Save(ctx, invoice); err != nil {
				return err
			}
		}
	}
	return nil
}

// syncInvoicesForOrder re-derives the status of every invoice billing
// the order: paid when all referenced orders are delivered, cancelled
// when all are cancelled
func (s *OrderService) syncInvoicesForOrder(ctx context.Context, tx repository.Store, order *models.Order) error {
	invoices, err := tx.Invoices().FindByOrderID(ctx, order.ID)
	if err != nil {
		return err
	}

	for i := range invoices {
		invoice := &invoices[i]

		refIDs, err := tx.Invoices().OrderIDs(ctx, invoice.ID)
		if err != nil {
			return err
		}
		referenced, err := tx.Orders().GetByIDs(ctx, refIDs)
		if err != nil {
			return err
		}
		if len(referenced) == 0 || len(referenced) != len(refIDs) {
			continue
		}

		derived, ok := deriveInvoiceStatus(referenced)
		if !ok || invoice.Status == derived {
			continue
		}

		changed := false
		switch derived {
		case models.InvoiceStatusPaid:
			changed = markInvoicePaid(invoice)
		case models.InvoiceStatusCancelled:
			if invoice.Status != models.InvoiceStatusPaid {
				invoice.Status = models.InvoiceStatusCancelled
				changed = true
			}
		}
		if changed {
			if err := tx.Invoices().Save(ctx, invoice); err != nil {
				return err
			}
		}
	}
	return nil
}

// afterTransition runs the post-commit side effects of a status
// change: metrics, cache invalidation, event publication, and the
// best-effort customer notification.
func (s *OrderService) afterTransition(ctx context.Context, order *models.Order, msg email.Message) {
	if s.metrics != nil {
		s.metrics.RecordStatusTransition(string(order.Status))
	}
	s.invalidateListCache(ctx)
	s.publish(ctx, "order."+string(order.Status), order.Number)

	if s.mailer != nil {
		if err := s.mailer.Send(ctx, msg); err != nil {
			// Email is best-effort: the database mutation has already
			// committed, so the failure is logged and swallowed.
			log.Warn().Err(err).Str("order", order.Number).Str("to", msg.To).
				Msg("Failed to send notification email")
		}
	}

	log.Info().Str("order", order.Number).Str("status", string(order.Status)).
		Msg("Order status updated")
}

func (s *OrderService) invalidateListCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPrefix(ctx, cache.OrderListKeyPrefix); err != nil {
		log.Debug().Err(err).Msg("Failed to invalidate order list cache")
	}
}

func (s *OrderService) publish(ctx context.Context, kind, entityID string) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, messaging.Event{Kind: kind, EntityID: entityID}); err != nil {
		log.Warn().Err(err).Str("kind", kind).Msg("Failed to publish event")
	}
}

// deriveInvoiceStatus derives an invoice status from the orders it
// references: paid when every order is delivered, cancelled when every
// order is cancelled. The second return is false when neither holds.
func deriveInvoiceStatus(orders []models.Order) (models.InvoiceStatus, bool) {
	allDelivered := true
	allCancelled := true
	for _, o := range orders {
		if o.Status != models.OrderStatusDelivered {
			allDelivered = false
		}
		if o.Status != models.OrderStatusCancelled {
			allCancelled = false
		}
	}
	if allDelivered {
		return models.InvoiceStatusPaid, true
	}
	if allCancelled {
		return models.InvoiceStatusCancelled, true
	}
	return "", false
}

// markInvoicePaid marks an invoice paid, defaulting the payment date
// to now when unset. Returns whether anything changed.
func markInvoicePaid(invoice *models.Invoice) bool {
	if invoice.Status == models.InvoiceStatusPaid {
		return false
	}
	invoice.Status = models.InvoiceStatusPaid
	if invoice.PaymentDate == nil {
		now := time.Now()
		invoice.PaymentDate = &now
	}
	return true
}

// viewModeToType maps the admin view mode to an order type filter
func viewModeToType(viewMode string) models.OrderType {
	switch viewMode {
	case "one-time":
		return models.OrderTypeOneTime
	case "period":
		return models.OrderTypePeriod
	default:
		return ""
	}
}

// nextOrderNumber generates the next human-readable order number for
// the month, ORD-YYYYMM-NNNN (PORD-... for period orders)
func nextOrderNumber(ctx context.Context, tx repository.Store, orderType models.OrderType, now time.Time) (string, error) {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	count, err := tx.Orders().CountCreatedSince(ctx, monthStart)
	if err != nil {
		return "", err
	}

	prefix := "ORD"
	if orderType == models.OrderTypePeriod {
		prefix = "PORD"
	}
	return fmt.Sprintf("%s-%s-%04d", prefix, now.Format("200601"), count+1), nil
}

// nextInvoiceNumber generates a unique invoice number, independent of
// order numbering
func nextInvoiceNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("INV-%s-%s", now.Format("200601"), suffix)
}
