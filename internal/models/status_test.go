package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		from    OrderStatus
		to      OrderStatus
		allowed bool
	}{
		{OrderStatusPending, OrderStatusProcessing, true},
		{OrderStatusPending, OrderStatusPendingVerification, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusDelivered, false},
		{OrderStatusPendingVerification, OrderStatusProcessing, true},
		{OrderStatusProcessing, OrderStatusShipped, true},
		{OrderStatusProcessing, OrderStatusDelivered, false},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusShipped, OrderStatusCancelled, true},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusProcessing, false},
	}

	for _, tc := range cases {
		require.Equal(t, tc.allowed, tc.from.CanTransition(tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestTerminalStatuses(t *testing.T) {
	require.True(t, OrderStatusDelivered.IsTerminal())
	require.True(t, OrderStatusCancelled.IsTerminal())
	require.False(t, OrderStatusShipped.IsTerminal())
}

func TestPaymentConfirmable(t *testing.T) {
	require.True(t, OrderStatusPending.PaymentConfirmable())
	require.True(t, OrderStatusPendingVerification.PaymentConfirmable())

	// Already confirmed or later: confirming again must be rejected
	require.False(t, OrderStatusProcessing.PaymentConfirmable())
	require.False(t, OrderStatusShipped.PaymentConfirmable())
	require.False(t, OrderStatusDelivered.PaymentConfirmable())
	require.False(t, OrderStatusCancelled.PaymentConfirmable())
}
