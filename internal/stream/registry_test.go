package stream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	r := NewRegistry()

	a := r.AddClient("dashboard-a")
	b := r.AddClient("dashboard-b")
	require.Equal(t, 2, r.Count())

	r.Broadcast(Event{Kind: "invoice.updated", EntityID: "inv-1"})

	require.Equal(t, "inv-1", (<-a).EntityID)
	require.Equal(t, "inv-1", (<-b).EntityID)
}

func TestRemoveClientStopsDelivery(t *testing.T) {
	r := NewRegistry()

	ch := r.AddClient("dashboard")
	r.RemoveClient("dashboard")
	require.Equal(t, 0, r.Count())

	// Channel is closed on removal
	_, open := <-ch
	require.False(t, open)

	// Broadcasting with no subscribers is a no-op
	r.Broadcast(Event{Kind: "invoice.updated", EntityID: "inv-1"})
}

func TestSlowSubscriberDoesNotBlockBroadcast(t *testing.T) {
	r := NewRegistry()

	slow := r.AddClient("slow")
	// Fill the buffer without ever draining it
	for i := 0; i < cap(slow)+5; i++ {
		r.Broadcast(Event{Kind: "invoice.updated", EntityID: "inv-1"})
	}

	fast := r.AddClient("fast")
	r.Broadcast(Event{Kind: "invoice.deleted", EntityID: "inv-2"})
	require.Equal(t, "inv-2", (<-fast).EntityID)
}
