package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"example.com/storefront/services/orders/internal/api/middleware"
	"example.com/storefront/services/orders/internal/models"
	"example.com/storefront/services/orders/internal/service"
	"example.com/storefront/services/orders/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock order service for testing
type MockOrderAdminService struct {
	mock.Mock
}

func (m *MockOrderAdminService) List(ctx context.Context, params service.ListOrdersParams) (*service.ListOrdersResult, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ListOrdersResult), args.Error(1)
}

func (m *MockOrderAdminService) CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*models.Order, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderAdminService) ConfirmPayment(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderAdminService) MarkShipped(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderAdminService) MarkDelivered(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderAdminService) RejectPayment(ctx context.Context, orderID uuid.UUID, reason string) (*models.Order, error) {
	args := m.Called(ctx, orderID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderAdminService) Delete(ctx context.Context, orderID uuid.UUID) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

type MockInvoiceAdminService struct {
	mock.Mock
}

func (m *MockInvoiceAdminService) ForceCleanupInvalidInvoices(ctx context.Context, dryRun bool) (service.CleanupReport, error) {
	args := m.Called(ctx, dryRun)
	return args.Get(0).(service.CleanupReport), args.Error(1)
}

func setupTestRouter(orders OrderAdminService, invoices InvoiceAdminService, user *models.User) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	auth := func(c *gin.Context) {
		c.Set(middleware.UserContextKey, user)
		c.Next()
	}
	admin := middleware.RequireAdmin()

	tracer := &tracing.NewRelicTracer{}
	handler := NewOrdersHandler(orders, invoices, tracer)
	handler.RegisterRoutes(router, auth, admin)

	return router
}

func adminUser() *models.User {
	return &models.User{ID: uuid.New(), Email: "admin@example.com", Admin: true}
}

func TestListOrders(t *testing.T) {
	mockOrders := new(MockOrderAdminService)
	mockOrders.On("List", mock.Anything, mock.AnythingOfType("service.ListOrdersParams")).
		Return(&service.ListOrdersResult{
			Orders:      []models.Order{{Number: "ORD-202608-0001", Status: models.OrderStatusPending}},
			HasMore:     true,
			TotalOrders: 42,
		}, nil)

	router := setupTestRouter(mockOrders, nil, adminUser())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/admin/orders?page=2&limit=10&status=pending", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Orders      []models.Order `json:"orders"`
		HasMore     bool           `json:"hasMore"`
		TotalOrders int64          `json:"totalOrders"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Orders, 1)
	require.True(t, body.HasMore)
	require.Equal(t, int64(42), body.TotalOrders)

	params := mockOrders.Calls[0].Arguments.Get(1).(service.ListOrdersParams)
	require.Equal(t, 2, params.Page)
	require.Equal(t, 10, params.Limit)
	require.Equal(t, "pending", params.Status)

	mockOrders.AssertExpectations(t)
}

func TestUpdateOrderConfirmPayment(t *testing.T) {
	orderID := uuid.New()
	mockOrders := new(MockOrderAdminService)
	mockOrders.On("ConfirmPayment", mock.Anything, orderID).
		Return(&models.Order{ID: orderID, Status: models.OrderStatusProcessing}, nil)

	router := setupTestRouter(mockOrders, nil, adminUser())

	payload := `{"orderId":"` + orderID.String() + `","confirmPayment":true}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/admin/orders", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"success":true`)
	mockOrders.AssertExpectations(t)
}

func TestUpdateOrderMissingID(t *testing.T) {
	router := setupTestRouter(new(MockOrderAdminService), nil, adminUser())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/admin/orders", strings.NewReader(`{"confirmPayment":true}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "MISSING_ORDER_ID")
}

func TestUpdateOrderNoAction(t *testing.T) {
	router := setupTestRouter(new(MockOrderAdminService), nil, adminUser())

	payload := `{"orderId":"` + uuid.New().String() + `"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/admin/orders", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}

func TestUpdateOrderInvalidTransition(t *testing.T) {
	orderID := uuid.New()
	mockOrders := new(MockOrderAdminService)
	mockOrders.On("MarkShipped", mock.Anything, orderID).
		Return(nil, service.ErrNoVehicleAssigned)

	router := setupTestRouter(mockOrders, nil, adminUser())

	payload := `{"orderId":"` + orderID.String() + `","markAsShipped":true}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/admin/orders", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	mockOrders.AssertExpectations(t)
}

func TestDeleteOrder(t *testing.T) {
	orderID := uuid.New()
	mockOrders := new(MockOrderAdminService)
	mockOrders.On("Delete", mock.Anything, orderID).Return(nil)

	router := setupTestRouter(mockOrders, nil, adminUser())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/admin/orders?orderId="+orderID.String(), nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"deletedOrderId":"`+orderID.String()+`"`)
	mockOrders.AssertExpectations(t)
}

func TestDeleteOrderMissingID(t *testing.T) {
	router := setupTestRouter(new(MockOrderAdminService), nil, adminUser())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/admin/orders", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "MISSING_ORDER_ID")
}

func TestDeleteOrderNotFound(t *testing.T) {
	orderID := uuid.New()
	mockOrders := new(MockOrderAdminService)
	mockOrders.On("Delete", mock.Anything, orderID).Return(service.ErrOrderNotFound)

	router := setupTestRouter(mockOrders, nil, adminUser())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/admin/orders?orderId="+orderID.String(), nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "ORDER_NOT_FOUND")
	mockOrders.AssertExpectations(t)
}

func TestDeleteOrderInvoiceCleanupFails(t *testing.T) {
	orderID := uuid.New()
	mockOrders := new(MockOrderAdminService)
	mockOrders.On("Delete", mock.Anything, orderID).Return(service.ErrInvoiceCleanup)

	router := setupTestRouter(mockOrders, nil, adminUser())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/admin/orders?orderId="+orderID.String(), nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, w.Body.String(), "INVOICE_CLEANUP_ERROR")
	mockOrders.AssertExpectations(t)
}

func TestDeleteOrderRequiresAdmin(t *testing.T) {
	mockOrders := new(MockOrderAdminService)
	regular := &models.User{ID: uuid.New(), Email: "user@example.com", Admin: false}
	router := setupTestRouter(mockOrders, nil, regular)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/admin/orders?orderId="+uuid.New().String(), nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), "UNAUTHORIZED")
	mockOrders.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestForceCleanupDryRun(t *testing.T) {
	mockInvoices := new(MockInvoiceAdminService)
	mockInvoices.On("ForceCleanupInvalidInvoices", mock.Anything, true).
		Return(service.CleanupReport{Deleted: 3, Updated: 2}, nil)

	router := setupTestRouter(new(MockOrderAdminService), mockInvoices, adminUser())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/admin/invoices/cleanup?dryRun=true", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"deleted":3`)
	require.Contains(t, w.Body.String(), `"dryRun":true`)
	mockInvoices.AssertExpectations(t)
}
