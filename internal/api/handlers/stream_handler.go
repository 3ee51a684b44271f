package handlers

import (
	"io"
	"net/http"

	"example.com/storefront/services/orders/internal/stream"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// StreamHandler serves server-sent events for order and invoice
// changes. Delivery is best effort; clients are expected to refetch
// on reconnect.
type StreamHandler struct {
	registry *stream.Registry
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(registry *stream.Registry) *StreamHandler {
	return &StreamHandler{registry: registry}
}

// HandleStream subscribes the caller to the event feed until the
// connection closes
func (h *StreamHandler) HandleStream(c *gin.Context) {
	clientID := uuid.New().String()
	events := h.registry.AddClient(clientID)
	defer h.registry.RemoveClient(clientID)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	log.Debug().Str("client_id", clientID).Msg("Stream client connected")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(event.Kind, event)
			return true
		case <-ctx.Done():
			return false
		}
	})

	log.Debug().Str("client_id", clientID).Msg("Stream client disconnected")
}

// RegisterRoutes registers the handler's routes
func (h *StreamHandler) RegisterRoutes(router gin.IRouter, auth gin.HandlerFunc) {
	router.GET("/api/admin/invoices/stream", auth, h.HandleStream)
}
