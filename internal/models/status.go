package models

// OrderStatus is the lifecycle state of an order
type OrderStatus string

const (
	OrderStatusPending             OrderStatus = "pending"
	OrderStatusPendingVerification OrderStatus = "pending_payment_verification"
	OrderStatusProcessing          OrderStatus = "processing"
	OrderStatusShipped             OrderStatus = "shipped"
	OrderStatusDelivered           OrderStatus = "delivered"
	OrderStatusCancelled           OrderStatus = "cancelled"
)

// orderTransitions is the order lifecycle state machine:
// pending -> pending_payment_verification | processing -> shipped -> delivered,
// with any pre-delivery state allowed to move to cancelled.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:             {OrderStatusPendingVerification, OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusPendingVerification: {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing:          {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:             {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered:           {},
	OrderStatusCancelled:           {},
}

// CanTransition reports whether an order may move from its current
// status to the target status. The vehicle gate on shipped and the
// shipped gate on delivered are enforced by the service layer on top
// of this table.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	for _, next := range orderTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions
func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// PaymentConfirmable reports whether confirming payment is still legal.
// Orders already at processing or later are rejected so stock is never
// decremented twice for the same order.
func (s OrderStatus) PaymentConfirmable() bool {
	return s == OrderStatusPending || s == OrderStatusPendingVerification
}
