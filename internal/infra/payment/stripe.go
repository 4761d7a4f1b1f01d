// Package payment adapts Stripe Checkout to the payment.Gateway port.
package payment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/bryanwahyu/research-market/internal/domain/errs"
	domain "github.com/bryanwahyu/research-market/internal/domain/payment"
)

// ErrNotConfigured is returned when no secret key was provided.
var ErrNotConfigured = fmt.Errorf("payment processor not configured: %w", errs.ErrUnavailable)

// metadataDealID is the metadata key carrying the deal id on sessions and intents.
const metadataDealID = "deal_id"

type Stripe struct {
	api           *client.API
	webhookSecret string
	successURL    string
	cancelURL     string
	currency      string
}

// NewStripe buat client Stripe. An empty secret key yields a gateway that
// still verifies webhooks but refuses to create sessions.
func NewStripe(secretKey, webhookSecret, successURL, cancelURL, currency string) *Stripe {
	s := &Stripe{
		webhookSecret: webhookSecret,
		successURL:    successURL,
		cancelURL:     cancelURL,
		currency:      currency,
	}
	if secretKey != "" {
		s.api = client.New(secretKey, nil)
	}
	return s
}

// CreateCheckout implementasi payment.Gateway
func (s *Stripe) CreateCheckout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutSession, error) {
	if s.api == nil {
		return domain.CheckoutSession{}, ErrNotConfigured
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.successURL),
		CancelURL:         stripe.String(s.cancelURL),
		ClientReferenceID: stripe.String(req.DealID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(s.currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String("Success fee " + req.InvoiceNumber),
					Description: stripe.String(req.Description),
				},
				UnitAmount: stripe.Int64(req.AmountCents),
			},
			Quantity: stripe.Int64(1),
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{metadataDealID: req.DealID, "invoice_number": req.InvoiceNumber},
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.Context = ctx
	params.AddMetadata(metadataDealID, req.DealID)
	params.AddMetadata("invoice_number", req.InvoiceNumber)

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return domain.CheckoutSession{}, fmt.Errorf("stripe checkout: %w", err)
	}
	return domain.CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// ParseWebhook verifies the Stripe-Signature header and extracts the deal reference.
func (s *Stripe) ParseWebhook(payload []byte, signature string) (domain.Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return domain.Event{}, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}

	out := domain.Event{ID: ev.ID, Type: domain.EventType(ev.Type)}
	if ev.Data == nil {
		return out, nil
	}
	switch out.Type {
	case domain.EventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
			return domain.Event{}, fmt.Errorf("decoding checkout session: %w", err)
		}
		out.SessionID = sess.ID
		out.DealID = sess.Metadata[metadataDealID]
		if out.DealID == "" {
			out.DealID = sess.ClientReferenceID
		}
	case domain.EventPaymentSucceeded, domain.EventPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return domain.Event{}, fmt.Errorf("decoding payment intent: %w", err)
		}
		out.DealID = pi.Metadata[metadataDealID]
	}
	return out, nil
}
