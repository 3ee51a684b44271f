package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"example.com/storefront/services/orders/config"
	"example.com/storefront/services/orders/internal/models"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Message is an outbound notification
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer sends customer notifications. Sending is best-effort across
// the whole service: callers log failures and never propagate them.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// NewMailer creates a mailer from configuration. With email disabled a
// no-op mailer is returned, so callers never need to branch.
func NewMailer(cfg config.EmailConfig) Mailer {
	if !cfg.Enabled || cfg.Host == "" {
		log.Warn().Msg("Email sending disabled, notifications will be dropped")
		return &noopMailer{}
	}
	return &smtpMailer{cfg: cfg}
}

// smtpMailer delivers over plain SMTP with optional auth
type smtpMailer struct {
	cfg config.EmailConfig
}

func (m *smtpMailer) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("message has no recipient")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	if msg.HTML != "" {
		b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
		b.WriteString(msg.HTML)
	} else {
		b.WriteString("\r\n")
		b.WriteString(msg.Text)
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{msg.To}, []byte(b.String())); err != nil {
		return errors.Wrap(err, "failed to send email")
	}
	return nil
}

// noopMailer drops every message
type noopMailer struct{}

func (m *noopMailer) Send(ctx context.Context, msg Message) error {
	log.Debug().Str("to", msg.To).Str("subject", msg.Subject).Msg("Email disabled, dropping message")
	return nil
}

// PaymentConfirmed builds the payment confirmation notification
func PaymentConfirmed(order *models.Order) Message {
	return Message{
		To:      order.CustomerEmail,
		Subject: fmt.Sprintf("Payment confirmed for order %s", order.Number),
		Text: fmt.Sprintf("Hi %s,\n\nWe have confirmed your payment for order %s. "+
			"Your order is now being processed.\n", order.CustomerName, order.Number),
	}
}

// OrderShipped builds the shipping notification
func OrderShipped(order *models.Order) Message {
	return Message{
		To:      order.CustomerEmail,
		Subject: fmt.Sprintf("Order %s has shipped", order.Number),
		Text: fmt.Sprintf("Hi %s,\n\nYour order %s is on its way.\n",
			order.CustomerName, order.Number),
	}
}

// OrderDelivered builds the delivery notification
func OrderDelivered(order *models.Order) Message {
	return Message{
		To:      order.CustomerEmail,
		Subject: fmt.Sprintf("Order %s delivered", order.Number),
		Text: fmt.Sprintf("Hi %s,\n\nYour order %s has been delivered. "+
			"Thank you for shopping with us.\n", order.CustomerName, order.Number),
	}
}

// PaymentRejected builds the rejection notification
func PaymentRejected(order *models.Order, reason string) Message {
	return Message{
		To:      order.CustomerEmail,
		Subject: fmt.Sprintf("Payment for order %s could not be verified", order.Number),
		Text: fmt.Sprintf("Hi %s,\n\nYour payment for order %s was rejected: %s\n",
			order.CustomerName, order.Number, reason),
	}
}
