package service

import "errors"

// Business errors surfaced to the API layer. Handlers map these to
// HTTP status codes and machine-readable error codes.
var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrNoVehicleAssigned = errors.New("no vehicle assigned")
	ErrNotShipped        = errors.New("order has not been shipped")
	ErrAlreadyConfirmed  = errors.New("payment already confirmed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvoiceCleanup    = errors.New("failed to remove order from invoices")
	ErrEmptyOrder        = errors.New("order has no line items")
)
