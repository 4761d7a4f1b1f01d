package deals

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bryanwahyu/research-market/internal/application"
	domain "github.com/bryanwahyu/research-market/internal/domain/deals"
	"github.com/bryanwahyu/research-market/internal/domain/errs"
	"github.com/bryanwahyu/research-market/internal/domain/listings"
	"github.com/bryanwahyu/research-market/internal/domain/payment"
	"github.com/bryanwahyu/research-market/internal/metrics"
)

// MaxDocumentSize caps a single deal document upload.
const MaxDocumentSize = 25 << 20

// Service implements use-cases untuk Deal
type Service struct {
	Repo      domain.Repository
	Listings  listings.Repository
	Payments  payment.Gateway
	Documents domain.DocumentStore
	Clock     application.Clock
	Log       *zap.Logger
}

// CommitCommand is an investor's non-binding commitment on a listing.
type CommitCommand struct {
	InvestorID string
	ListingID  string
	Amount     float64
	Instrument domain.Instrument
	Timeline   string
	Message    string
}

// Commit opens a deal in committed.
func (s *Service) Commit(ctx context.Context, cmd CommitCommand) (*domain.Deal, error) {
	if strings.TrimSpace(cmd.InvestorID) == "" {
		return nil, errs.ErrUnauthorized
	}
	if cmd.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", errs.ErrValidation)
	}
	if cmd.Instrument == "" {
		cmd.Instrument = domain.InstrumentFlexible
	}
	if !cmd.Instrument.Valid() {
		return nil, fmt.Errorf("%w: unknown instrument %q", errs.ErrValidation, cmd.Instrument)
	}
	l, err := s.Listings.Get(ctx, cmd.ListingID)
	if err != nil {
		return nil, err
	}
	if l.OwnerID == cmd.InvestorID {
		return nil, fmt.Errorf("%w: cannot commit to your own listing", errs.ErrValidation)
	}

	d := domain.New(domain.ID(uuid.NewString()), s.Clock.Now())
	d.ListingID = l.ID
	d.InvestorID = cmd.InvestorID
	d.ResearcherID = l.OwnerID
	d.PaperRef = l.PaperRef
	d.Amount = cmd.Amount
	d.Instrument = cmd.Instrument
	d.Timeline = strings.TrimSpace(cmd.Timeline)
	d.Message = strings.TrimSpace(cmd.Message)
	if err := s.Repo.Create(ctx, d); err != nil {
		return nil, err
	}
	metrics.DealTransitions.WithLabelValues(string(d.Status)).Inc()
	s.Log.Info("deal committed",
		zap.String("deal_id", string(d.ID)),
		zap.String("listing_id", l.ID),
		zap.Float64("amount", d.Amount),
		zap.String("instrument", string(d.Instrument)))
	return d, nil
}

// Get returns a deal the caller is a party to.
func (s *Service) Get(ctx context.Context, userID string, id domain.ID) (*domain.Deal, error) {
	d, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.HasParty(userID) {
		return nil, errs.ErrNotFoundOrForbidden
	}
	return d, nil
}

// List returns the caller's deals, newest first.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]*domain.Deal, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	out, err := s.Repo.ListByParty(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*domain.Deal{}
	}
	return out, nil
}

// UpdateStatus moves the deal forward and recomputes progress and milestones.
func (s *Service) UpdateStatus(ctx context.Context, userID string, id domain.ID, next domain.Status, note string) (*domain.Deal, error) {
	d, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := d.Apply(next, strings.TrimSpace(note), s.Clock.Now()); err != nil {
		return nil, err
	}
	if err := s.Repo.Update(ctx, d); err != nil {
		return nil, err
	}
	metrics.DealTransitions.WithLabelValues(string(d.Status)).Inc()
	s.Log.Info("deal status updated",
		zap.String("deal_id", string(d.ID)),
		zap.String("status", string(d.Status)),
		zap.Int("progress", d.Progress),
		zap.String("by", userID))
	return d, nil
}

// Invoice computes a fresh success-fee invoice. Not stored.
func (s *Service) Invoice(ctx context.Context, userID string, id domain.ID) (*domain.Invoice, error) {
	d, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	inv, err := domain.ComputeInvoice(d, s.Clock.Now())
	if err != nil {
		return nil, err
	}
	metrics.InvoicesComputed.Inc()
	return inv, nil
}

// Checkout is returned to the client to redirect to the hosted payment page.
type Checkout struct {
	URL       string          `json:"url"`
	SessionID string          `json:"session_id"`
	Invoice   *domain.Invoice `json:"invoice"`
}

// InitiatePayment creates a hosted checkout for the success fee. The deal
// itself stays in closing; only the payment sub-state moves to pending.
func (s *Service) InitiatePayment(ctx context.Context, userID, email string, id domain.ID) (*Checkout, error) {
	d, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if d.PaymentStatus == domain.PaymentPaid {
		return nil, fmt.Errorf("%w: success fee already paid", errs.ErrInvalidState)
	}
	inv, err := domain.ComputeInvoice(d, s.Clock.Now())
	if err != nil {
		return nil, err
	}
	metrics.InvoicesComputed.Inc()

	sess, err := s.Payments.CreateCheckout(ctx, payment.CheckoutRequest{
		DealID:        string(d.ID),
		InvoiceNumber: inv.Number,
		AmountCents:   inv.AmountCents(),
		Description:   fmt.Sprintf("Success fee %s for deal %s (%s, %.2f)", inv.Number, d.ID, d.Instrument, d.Amount),
		CustomerEmail: email,
	})
	if err != nil {
		return nil, fmt.Errorf("creating checkout: %w", err)
	}

	d.CheckoutSessionID = sess.ID
	d.PaymentStatus = domain.PaymentPending
	d.LastUpdate = s.Clock.Now()
	if err := s.Repo.Update(ctx, d); err != nil {
		return nil, err
	}
	s.Log.Info("checkout created",
		zap.String("deal_id", string(d.ID)),
		zap.String("invoice", inv.Number),
		zap.String("session_id", sess.ID),
		zap.Float64("total_due", inv.TotalDue))
	return &Checkout{URL: sess.URL, SessionID: sess.ID, Invoice: inv}, nil
}

// HandlePaymentEvent applies a verified processor webhook. Events for
// unknown deals are acknowledged and dropped.
func (s *Service) HandlePaymentEvent(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.Payments.ParseWebhook(payload, signature)
	if err != nil {
		return err
	}
	metrics.PaymentEvents.WithLabelValues(string(ev.Type)).Inc()
	log := s.Log.With(zap.String("event_id", ev.ID), zap.String("type", string(ev.Type)))

	var paid bool
	switch ev.Type {
	case payment.EventCheckoutCompleted, payment.EventPaymentSucceeded:
		paid = true
	case payment.EventPaymentFailed:
	default:
		log.Debug("payment event ignored")
		return nil
	}

	d, err := s.dealForEvent(ctx, ev)
	if errors.Is(err, errs.ErrNotFoundOrForbidden) {
		log.Warn("payment event for unknown deal", zap.String("deal_id", ev.DealID), zap.String("session_id", ev.SessionID))
		return nil
	}
	if err != nil {
		return err
	}

	now := s.Clock.Now()
	switch {
	case paid:
		if d.PaymentStatus == domain.PaymentPaid {
			return nil
		}
		d.MarkPaid(now)
	case d.PaymentStatus == domain.PaymentPaid:
		// sudah lunas, event gagal yang telat diabaikan
		return nil
	default:
		d.PaymentStatus = domain.PaymentFailed
		d.LastUpdate = now
	}
	if err := s.Repo.Update(ctx, d); err != nil {
		return err
	}
	log.Info("deal payment updated", zap.String("deal_id", string(d.ID)), zap.String("payment_status", string(d.PaymentStatus)))
	return nil
}

func (s *Service) dealForEvent(ctx context.Context, ev payment.Event) (*domain.Deal, error) {
	if ev.DealID != "" {
		return s.Repo.Get(ctx, domain.ID(ev.DealID))
	}
	if ev.SessionID != "" {
		return s.Repo.FindByCheckoutSession(ctx, ev.SessionID)
	}
	return nil, errs.ErrNotFoundOrForbidden
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// UploadDocument stores a checklist document and marks it uploaded.
func (s *Service) UploadDocument(ctx context.Context, userID string, id domain.ID, name, filename, contentType string, size int64, body io.Reader) (*domain.Deal, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: document name is required", errs.ErrValidation)
	}
	if size <= 0 || size > MaxDocumentSize {
		return nil, fmt.Errorf("%w: document size must be within 1..%d bytes", errs.ErrValidation, MaxDocumentSize)
	}
	d, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	file := unsafeName.ReplaceAllString(path.Base(filename), "_")
	if file == "" || file == "." || file == "_" {
		file = "document"
	}
	key := fmt.Sprintf("deals/%s/%s/%s", d.ID, unsafeName.ReplaceAllString(strings.ToLower(name), "-"), file)
	stored, err := s.Documents.Put(ctx, key, contentType, size, body)
	if err != nil {
		return nil, fmt.Errorf("storing document: %w", err)
	}

	d.MarkDocument(name, stored, s.Clock.Now())
	if err := s.Repo.Update(ctx, d); err != nil {
		return nil, err
	}
	s.Log.Info("deal document uploaded", zap.String("deal_id", string(d.ID)), zap.String("document", name), zap.String("key", stored))
	return d, nil
}
