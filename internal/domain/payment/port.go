package payment

import (
	"context"
	"errors"
)

// ErrInvalidSignature is returned for webhook payloads that fail verification.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// CheckoutRequest describes a hosted checkout for a success-fee invoice.
type CheckoutRequest struct {
	DealID        string
	InvoiceNumber string
	AmountCents   int64
	Description   string
	CustomerEmail string
}

// CheckoutSession is what the processor returns.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// EventType enum (subset the service reacts to)
type EventType string

const (
	EventCheckoutCompleted EventType = "checkout.session.completed"
	EventPaymentSucceeded  EventType = "payment_intent.succeeded"
	EventPaymentFailed     EventType = "payment_intent.payment_failed"
)

// Event is a verified webhook notification.
type Event struct {
	ID        string
	Type      EventType
	DealID    string
	SessionID string
}

// Gateway port for the payment processor
type Gateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	ParseWebhook(payload []byte, signature string) (Event, error)
}
