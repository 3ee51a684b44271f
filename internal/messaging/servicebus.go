package messaging

import (
	"context"
	"encoding/json"
	"time"

	"example.com/storefront/services/orders/config"
	"example.com/storefront/services/orders/internal/tracing"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Event is a message published after an order or invoice mutation so
// downstream consumers can react without polling
type Event struct {
	Kind      string    `json:"kind"`
	EntityID  string    `json:"entity_id"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventPublisher publishes domain events to the message bus
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
	Close(ctx context.Context) error
}

// MessageHandler processes one received message
type MessageHandler func(ctx context.Context, message *azservicebus.ReceivedMessage, txn *newrelic.Transaction) error

// ServiceBus wraps an Azure Service Bus client with a sender for the
// events queue and a receiver loop for the payments queue
type ServiceBus struct {
	client        *azservicebus.Client
	sender        *azservicebus.Sender
	paymentsQueue string
	tracer        tracing.Tracer
}

// NewServiceBus creates a new Service Bus client
func NewServiceBus(cfg config.AzureConfig, tracer tracing.Tracer) (*ServiceBus, error) {
	if cfg.ConnectionString == "" {
		return nil, errors.New("Azure Service Bus connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus client")
	}

	sender, err := client.NewSender(cfg.EventsQueue, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus sender")
	}

	return &ServiceBus{
		client:        client,
		sender:        sender,
		paymentsQueue: cfg.PaymentsQueue,
		tracer:        tracer,
	}, nil
}

// Publish sends a domain event to the events queue
func (s *ServiceBus) Publish(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	msg := &azservicebus.Message{
		Body: data,
		ApplicationProperties: map[string]interface{}{
			"kind": event.Kind,
		},
	}

	if err := s.sender.SendMessage(ctx, msg, nil); err != nil {
		return errors.Wrap(err, "failed to send event")
	}

	return nil
}

// ProcessMessages receives payment notifications and hands each to the
// handler; handled messages are completed, failed ones abandoned so the
// bus redelivers them.
func (s *ServiceBus) ProcessMessages(ctx context.Context, handler MessageHandler) error {
	receiver, err := s.client.NewReceiverForQueue(s.paymentsQueue, &azservicebus.ReceiverOptions{
		ReceiveMode: azservicebus.ReceiveModePeekLock,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create Service Bus receiver")
	}
	defer receiver.Close(context.Background())

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		messages, err := receiver.ReceiveMessages(ctx, 10, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "failed to receive messages")
		}

		for _, message := range messages {
			txn := s.tracer.StartTransaction("process-payment-notification")

			if err := handler(ctx, message, txn); err != nil {
				log.Error().Err(err).Str("message_id", message.MessageID).
					Msg("Failed to process message, abandoning for redelivery")
				s.tracer.RecordError(txn, err)
				if abandonErr := receiver.AbandonMessage(ctx, message, nil); abandonErr != nil {
					log.Error().Err(abandonErr).Str("message_id", message.MessageID).
						Msg("Failed to abandon message")
				}
				s.tracer.EndTransaction(txn)
				continue
			}

			if err := receiver.CompleteMessage(ctx, message, nil); err != nil {
				log.Error().Err(err).Str("message_id", message.MessageID).
					Msg("Failed to complete message")
				s.tracer.RecordError(txn, err)
			}
			s.tracer.EndTransaction(txn)
		}
	}
}

// Close closes the sender and the client
func (s *ServiceBus) Close(ctx context.Context) error {
	if s.sender != nil {
		if err := s.sender.Close(ctx); err != nil {
			return err
		}
	}
	if s.client != nil {
		return s.client.Close(ctx)
	}
	return nil
}
