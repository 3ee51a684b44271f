package handlers

import (
	"net/http"

	"example.com/storefront/services/orders/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// APIError represents an API error with a machine-readable code
type APIError struct {
	Message    string
	StatusCode int
	Code       string
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// Common API errors
var (
	ErrUnauthorized   = &APIError{Message: "Unauthorized", StatusCode: http.StatusUnauthorized, Code: "UNAUTHORIZED"}
	ErrMissingOrderID = &APIError{Message: "orderId is required", StatusCode: http.StatusBadRequest, Code: "MISSING_ORDER_ID"}
	ErrOrderNotFound  = &APIError{Message: "Order not found", StatusCode: http.StatusNotFound, Code: "ORDER_NOT_FOUND"}
	ErrInvoiceCleanup = &APIError{Message: "Failed to clean up invoices for order", StatusCode: http.StatusInternalServerError, Code: "INVOICE_CLEANUP_ERROR"}
	ErrDeleteFailed   = &APIError{Message: "Failed to delete order", StatusCode: http.StatusInternalServerError, Code: "DELETE_ERROR"}
	ErrInternal       = &APIError{Message: "Internal server error", StatusCode: http.StatusInternalServerError, Code: "INTERNAL_ERROR"}
)

// NewValidationError creates a 400 error with a specific reason
func NewValidationError(message string) *APIError {
	return &APIError{Message: message, StatusCode: http.StatusBadRequest, Code: "VALIDATION_ERROR"}
}

// WriteError writes an error response with its machine-readable code
func WriteError(c *gin.Context, err error) {
	var apiError *APIError
	if errors.As(err, &apiError) {
		c.JSON(apiError.StatusCode, gin.H{"error": apiError.Message, "code": apiError.Code})
		return
	}

	// Log unknown errors with their stack context
	log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Unhandled error")
	c.JSON(http.StatusInternalServerError, gin.H{"error": ErrInternal.Message, "code": ErrInternal.Code})
}

// MapServiceError translates business errors to API errors
func MapServiceError(err error) error {
	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		return ErrOrderNotFound
	case errors.Is(err, service.ErrNoVehicleAssigned):
		return NewValidationError("no vehicle assigned")
	case errors.Is(err, service.ErrNotShipped):
		return NewValidationError("order must be shipped before it can be delivered")
	case errors.Is(err, service.ErrAlreadyConfirmed):
		return NewValidationError("payment already confirmed")
	case errors.Is(err, service.ErrInvalidTransition):
		return NewValidationError("invalid status transition")
	case errors.Is(err, service.ErrEmptyOrder):
		return NewValidationError("order has no line items")
	case errors.Is(err, service.ErrInvoiceCleanup):
		return ErrInvoiceCleanup
	default:
		return err
	}
}
