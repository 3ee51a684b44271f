package handlers

import (
	"context"
	"net/http"
	"strconv"

	"example.com/storefront/services/orders/internal/api/middleware"
	"example.com/storefront/services/orders/internal/models"
	"example.com/storefront/services/orders/internal/service"
	"example.com/storefront/services/orders/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// OrderAdminService is the order administration surface the handler
// drives
type OrderAdminService interface {
	List(ctx context.Context, params service.ListOrdersParams) (*service.ListOrdersResult, error)
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*models.Order, error)
	ConfirmPayment(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	MarkShipped(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	MarkDelivered(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	RejectPayment(ctx context.Context, orderID uuid.UUID, reason string) (*models.Order, error)
	Delete(ctx context.Context, orderID uuid.UUID) error
}

// InvoiceAdminService is the invoice maintenance surface
type InvoiceAdminService interface {
	ForceCleanupInvalidInvoices(ctx context.Context, dryRun bool) (service.CleanupReport, error)
}

// OrdersHandler handles order administration HTTP requests
type OrdersHandler struct {
	orders   OrderAdminService
	invoices InvoiceAdminService
	tracer   tracing.Tracer
}

// NewOrdersHandler creates a new orders handler
func NewOrdersHandler(orders OrderAdminService, invoices InvoiceAdminService, tracer tracing.Tracer) *OrdersHandler {
	return &OrdersHandler{orders: orders, invoices: invoices, tracer: tracer}
}

// UpdateOrderRequest selects one status-transition action for an order
type UpdateOrderRequest struct {
	OrderID         string `json:"orderId"`
	ConfirmPayment  bool   `json:"confirmPayment"`
	MarkAsShipped   bool   `json:"markAsShipped"`
	MarkAsDelivered bool   `json:"markAsDelivered"`
	RejectPayment   bool   `json:"rejectPayment"`
	RejectionReason string `json:"rejectionReason"`
}

// CreateOrderRequest is the order intake payload
type CreateOrderRequest struct {
	CustomerName   string                     `json:"customerName" binding:"required"`
	CustomerEmail  string                     `json:"customerEmail" binding:"required"`
	CustomerPhone  string                     `json:"customerPhone"`
	AddressPrimary string                     `json:"addressPrimary" binding:"required"`
	AddressSecond  string                     `json:"addressSecondary"`
	Latitude       *float64                   `json:"latitude"`
	Longitude      *float64                   `json:"longitude"`
	DeliveryMethod int                        `json:"deliveryMethod"`
	DeliveryCost   int64                      `json:"deliveryCost"`
	PaymentMethod  string                     `json:"paymentMethod"`
	OrderType      string                     `json:"orderType"`
	Items          []service.OrderLineRequest `json:"items" binding:"required"`
}

// HandleListOrders returns a page of orders filtered by status and
// view mode. Read-only; both address languages are returned and the
// client picks by the language parameter.
func (h *OrdersHandler) HandleListOrders(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-list-orders")
	defer h.tracer.EndTransaction(txn)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	result, err := h.orders.List(c.Request.Context(), service.ListOrdersParams{
		Page:     page,
		Limit:    limit,
		Status:   c.Query("status"),
		Language: c.Query("language"),
		ViewMode: c.Query("viewMode"),
	})
	if err != nil {
		h.tracer.RecordError(txn, err)
		WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders":      result.Orders,
		"hasMore":     result.HasMore,
		"totalOrders": result.TotalOrders,
	})
}

// HandleCreateOrder records a new order and attaches it to billing
func (h *OrdersHandler) HandleCreateOrder(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-create-order")
	defer h.tracer.EndTransaction(txn)

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		WriteError(c, NewValidationError(err.Error()))
		return
	}

	user, err := middleware.GetUserFromContext(c)
	if err != nil {
		WriteError(c, ErrUnauthorized)
		return
	}

	orderType := models.OrderType(req.OrderType)
	if orderType != models.OrderTypePeriod {
		orderType = models.OrderTypeOneTime
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), service.CreateOrderRequest{
		UserID:         user.ID,
		CustomerName:   req.CustomerName,
		CustomerEmail:  req.CustomerEmail,
		CustomerPhone:  req.CustomerPhone,
		AddressPrimary: req.AddressPrimary,
		AddressSecond:  req.AddressSecond,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		DeliveryMethod: req.DeliveryMethod,
		DeliveryCost:   req.DeliveryCost,
		PaymentMethod:  req.PaymentMethod,
		Type:           orderType,
		Items:          req.Items,
	})
	if err != nil {
		h.tracer.RecordError(txn, err)
		WriteError(c, MapServiceError(err))
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "order": order})
}

// HandleUpdateOrder applies a status-transition action to an order
func (h *OrdersHandler) HandleUpdateOrder(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-update-order")
	defer h.tracer.EndTransaction(txn)

	var req UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		WriteError(c, NewValidationError(err.Error()))
		return
	}
	if req.OrderID == "" {
		WriteError(c, ErrMissingOrderID)
		return
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		WriteError(c, NewValidationError("orderId is not a valid identifier"))
		return
	}

	h.tracer.AddAttribute(txn, "order_id", req.OrderID)

	ctx := c.Request.Context()
	var order *models.Order
	switch {
	case req.ConfirmPayment:
		order, err = h.orders.ConfirmPayment(ctx, orderID)
	case req.MarkAsShipped:
		order, err = h.orders.MarkShipped(ctx, orderID)
	case req.MarkAsDelivered:
		order, err = h.orders.MarkDelivered(ctx, orderID)
	case req.RejectPayment:
		order, err = h.orders.RejectPayment(ctx, orderID, req.RejectionReason)
	default:
		WriteError(c, NewValidationError("no action specified"))
		return
	}
	if err != nil {
		h.tracer.RecordError(txn, err)
		WriteError(c, MapServiceError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "order": order})
}

// HandleDeleteOrder removes an order after reconciling the invoices
// that reference it. Admin only; if reconciliation fails the order is
// kept and the failure surfaced.
func (h *OrdersHandler) HandleDeleteOrder(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-delete-order")
	defer h.tracer.EndTransaction(txn)

	rawID := c.Query("orderId")
	if rawID == "" {
		WriteError(c, ErrMissingOrderID)
		return
	}
	orderID, err := uuid.Parse(rawID)
	if err != nil {
		WriteError(c, ErrOrderNotFound)
		return
	}

	if err := h.orders.Delete(c.Request.Context(), orderID); err != nil {
		h.tracer.RecordError(txn, err)
		mapped := MapServiceError(err)
		if mapped == err {
			// Unclassified failures during delete get the delete code
			log.Error().Err(err).Str("order_id", rawID).Msg("Order deletion failed")
			mapped = ErrDeleteFailed
		}
		WriteError(c, mapped)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "deletedOrderId": rawID})
}

// HandleForceCleanup runs the invoice integrity sweep. Admin only;
// pass dryRun=true to preview without mutating.
func (h *OrdersHandler) HandleForceCleanup(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-force-cleanup")
	defer h.tracer.EndTransaction(txn)

	dryRun := c.Query("dryRun") == "true"

	report, err := h.invoices.ForceCleanupInvalidInvoices(c.Request.Context(), dryRun)
	if err != nil {
		h.tracer.RecordError(txn, err)
		WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"dryRun":  dryRun,
		"deleted": report.Deleted,
		"updated": report.Updated,
	})
}

// RegisterRoutes registers the handler's routes
func (h *OrdersHandler) RegisterRoutes(router gin.IRouter, auth, admin gin.HandlerFunc) {
	group := router.Group("/api/admin")
	group.Use(auth)

	group.GET("/orders", h.HandleListOrders)
	group.PUT("/orders", h.HandleUpdateOrder)
	group.POST("/orders", admin, h.HandleCreateOrder)
	group.DELETE("/orders", admin, h.HandleDeleteOrder)
	group.POST("/invoices/cleanup", admin, h.HandleForceCleanup)
}
