package stream

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Event is one invoice-set update pushed to live subscribers
type Event struct {
	Kind      string    `json:"kind"`
	EntityID  string    `json:"entity_id"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Registry fans invoice-set updates out to registered subscribers. It
// is owned by the service layer and injected where broadcasts happen;
// there is no package-level shared instance.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]chan Event
}

// NewRegistry creates an empty subscriber registry
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]chan Event)}
}

// AddClient registers a subscriber and returns its event channel
func (r *Registry) AddClient(id string) <-chan Event {
	ch := make(chan Event, 16)

	r.mu.Lock()
	// Replace a stale channel registered under the same id
	if old, ok := r.clients[id]; ok {
		close(old)
	}
	r.clients[id] = ch
	r.mu.Unlock()

	return ch
}

// RemoveClient unregisters a subscriber and closes its channel
func (r *Registry) RemoveClient(id string) {
	r.mu.Lock()
	if ch, ok := r.clients[id]; ok {
		close(ch)
		delete(r.clients, id)
	}
	r.mu.Unlock()
}

// Broadcast delivers an event to every subscriber. Delivery is
// best-effort: a subscriber whose buffer is full is skipped so one
// slow consumer cannot stall the rest.
func (r *Registry) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, ch := range r.clients {
		select {
		case ch <- event:
		default:
			log.Warn().Str("client_id", id).Str("kind", event.Kind).
				Msg("Subscriber buffer full, dropping event")
		}
	}
}

// Count returns the number of live subscribers
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
