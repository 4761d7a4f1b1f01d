package payment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"

	domain "github.com/bryanwahyu/research-market/internal/domain/payment"
)

const testSecret = "whsec_test_secret"

func sign(t *testing.T, payload string) (string, []byte) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return signed.Header, signed.Payload
}

func TestParseWebhook_CheckoutCompleted(t *testing.T) {
	s := NewStripe("", testSecret, "", "", "usd")
	header, body := sign(t, `{
  "id": "evt_1",
  "object": "event",
  "api_version": "2020-08-27",
  "type": "checkout.session.completed",
  "data": {"object": {"id": "cs_test_123", "object": "checkout.session", "metadata": {"deal_id": "deal-1"}}}
}`)

	ev, err := s.ParseWebhook(body, header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, domain.EventCheckoutCompleted, ev.Type)
	assert.Equal(t, "deal-1", ev.DealID)
	assert.Equal(t, "cs_test_123", ev.SessionID)
}

func TestParseWebhook_ClientReferenceFallback(t *testing.T) {
	s := NewStripe("", testSecret, "", "", "usd")
	header, body := sign(t, `{
  "id": "evt_2", "object": "event", "type": "checkout.session.completed",
  "data": {"object": {"id": "cs_test_9", "object": "checkout.session", "client_reference_id": "deal-9"}}
}`)
	ev, err := s.ParseWebhook(body, header)
	require.NoError(t, err)
	assert.Equal(t, "deal-9", ev.DealID)
}

func TestParseWebhook_PaymentFailed(t *testing.T) {
	s := NewStripe("", testSecret, "", "", "usd")
	header, body := sign(t, `{
  "id": "evt_3", "object": "event", "type": "payment_intent.payment_failed",
  "data": {"object": {"id": "pi_1", "object": "payment_intent", "metadata": {"deal_id": "deal-3"}}}
}`)
	ev, err := s.ParseWebhook(body, header)
	require.NoError(t, err)
	assert.Equal(t, domain.EventPaymentFailed, ev.Type)
	assert.Equal(t, "deal-3", ev.DealID)
	assert.Empty(t, ev.SessionID)
}

func TestParseWebhook_BadSignature(t *testing.T) {
	s := NewStripe("", testSecret, "", "", "usd")
	_, body := sign(t, `{"id":"evt_4","object":"event","type":"checkout.session.completed","data":{"object":{}}}`)

	_, err := s.ParseWebhook(body, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)

	other := NewStripe("", "whsec_other", "", "", "usd")
	header, body := sign(t, `{"id":"evt_5","object":"event","type":"checkout.session.completed","data":{"object":{}}}`)
	_, err = other.ParseWebhook(body, header)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestCreateCheckout_NotConfigured(t *testing.T) {
	s := NewStripe("", testSecret, "", "", "usd")
	_, err := s.CreateCheckout(context.Background(), domain.CheckoutRequest{DealID: "d", AmountCents: 100})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestStripe_ImplementsGateway(t *testing.T) {
	var _ domain.Gateway = (*Stripe)(nil)
}
