package deals

import (
	"fmt"
	"time"

	"github.com/bryanwahyu/research-market/internal/domain/errs"
)

var (
	// ErrInvalidTransition rejects a backward or unknown status change.
	ErrInvalidTransition = fmt.Errorf("%w: deal transition", errs.ErrInvalidState)
	// ErrNotInvoiceable is returned when billing a deal outside closing.
	ErrNotInvoiceable = fmt.Errorf("%w: deal not invoiceable", errs.ErrInvalidState)
)

// ID tipe untuk Deal
type ID string

// Status enum, in pipeline order.
type Status string

const (
	StatusCommitted    Status = "committed"
	StatusDueDiligence Status = "due_diligence"
	StatusTermSheet    Status = "term_sheet"
	StatusClosing      Status = "closing"
	StatusClosed       Status = "closed"
)

var pipeline = []Status{StatusCommitted, StatusDueDiligence, StatusTermSheet, StatusClosing, StatusClosed}

var progressByStatus = map[Status]int{
	StatusCommitted:    15,
	StatusDueDiligence: 45,
	StatusTermSheet:    75,
	StatusClosing:      90,
	StatusClosed:       100,
}

// Index returns the position of s in the pipeline, or -1 when unknown.
func (s Status) Index() int {
	for i, p := range pipeline {
		if p == s {
			return i
		}
	}
	return -1
}

// Progress is the fixed percentage for a status.
func (s Status) Progress() int { return progressByStatus[s] }

// Instrument enum
type Instrument string

const (
	InstrumentSAFE        Instrument = "safe"
	InstrumentConvertible Instrument = "convertible_note"
	InstrumentEquity      Instrument = "equity"
	InstrumentRevenue     Instrument = "revenue_share"
	InstrumentFlexible    Instrument = "flexible"
)

// Valid reports whether i is a known instrument.
func (i Instrument) Valid() bool {
	switch i {
	case InstrumentSAFE, InstrumentConvertible, InstrumentEquity, InstrumentRevenue, InstrumentFlexible:
		return true
	}
	return false
}

// PaymentStatus is the sub-state tracking the success-fee payment.
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// Milestone is one of the four fixed checkpoints of a deal.
type Milestone struct {
	Name        string     `json:"name"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Document is a checklist item; Key is set once uploaded.
type Document struct {
	Name     string `json:"name"`
	Uploaded bool   `json:"uploaded"`
	Key      string `json:"key,omitempty"`
}

var milestoneNames = []string{"Commitment", "Due Diligence", "Term Sheet", "Closing"}

// DefaultDocuments is the checklist every new deal starts with.
var DefaultDocuments = []string{"Pitch Deck", "Financial Statements", "Cap Table", "IP Assignment", "Term Sheet"}

// Aggregate Root: Deal
type Deal struct {
	ID                ID            `json:"id"`
	ListingID         string        `json:"listing_id"`
	InvestorID        string        `json:"investor_id"`
	ResearcherID      string        `json:"researcher_id"`
	PaperRef          string        `json:"paper_id,omitempty"`
	Amount            float64       `json:"amount"`
	Instrument        Instrument    `json:"instrument"`
	Timeline          string        `json:"timeline,omitempty"`
	Message           string        `json:"message,omitempty"`
	Status            Status        `json:"status"`
	Progress          int           `json:"progress"`
	Milestones        []Milestone   `json:"milestones"`
	Documents         []Document    `json:"documents"`
	Notes             string        `json:"notes,omitempty"`
	PaymentStatus     PaymentStatus `json:"payment_status"`
	CheckoutSessionID string        `json:"checkout_session_id,omitempty"`
	PaidAt            *time.Time    `json:"paid_at,omitempty"`
	Version           int64         `json:"version"`
	CreatedAt         time.Time     `json:"created_at"`
	LastUpdate        time.Time     `json:"last_update"`
}

// New builds a freshly committed deal.
func New(id ID, now time.Time) *Deal {
	d := &Deal{
		ID:            id,
		Status:        StatusCommitted,
		PaymentStatus: PaymentUnpaid,
		CreatedAt:     now,
		LastUpdate:    now,
	}
	d.Milestones = make([]Milestone, len(milestoneNames))
	for i, n := range milestoneNames {
		d.Milestones[i] = Milestone{Name: n}
	}
	for _, n := range DefaultDocuments {
		d.Documents = append(d.Documents, Document{Name: n})
	}
	d.recompute(now)
	return d
}

// HasParty reports whether userID is the investor or the researcher.
func (d *Deal) HasParty(userID string) bool {
	return userID != "" && (d.InvestorID == userID || d.ResearcherID == userID)
}

// Apply moves the deal to next and records note. A deal advances one stage
// at a time; re-applying the current status just replaces the note. Closing
// a deal requires the success fee to be paid.
func (d *Deal) Apply(next Status, note string, now time.Time) error {
	ni, ci := next.Index(), d.Status.Index()
	if ni < 0 {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next)
	}
	if ni < ci {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, next)
	}
	if ni > ci+1 {
		return fmt.Errorf("%w: %s -> %s skips %s", ErrInvalidTransition, d.Status, next, pipeline[ci+1])
	}
	if next == StatusClosed && d.Status != StatusClosed && d.PaymentStatus != PaymentPaid {
		return fmt.Errorf("%w: success fee not paid", ErrInvalidTransition)
	}
	d.Status = next
	if note != "" {
		d.Notes = note
	}
	d.LastUpdate = now
	d.recompute(now)
	return nil
}

// recompute derives progress and milestone flags from status.
func (d *Deal) recompute(now time.Time) {
	d.Progress = d.Status.Progress()
	si := d.Status.Index()
	for i := range d.Milestones {
		done := i <= si
		if done && !d.Milestones[i].Completed {
			t := now
			d.Milestones[i].CompletedAt = &t
		}
		if !done {
			d.Milestones[i].CompletedAt = nil
		}
		d.Milestones[i].Completed = done
	}
}

// MarkDocument flips a checklist item to uploaded, adding it when unknown.
func (d *Deal) MarkDocument(name, key string, now time.Time) {
	for i := range d.Documents {
		if d.Documents[i].Name == name {
			d.Documents[i].Uploaded = true
			d.Documents[i].Key = key
			d.LastUpdate = now
			return
		}
	}
	d.Documents = append(d.Documents, Document{Name: name, Uploaded: true, Key: key})
	d.LastUpdate = now
}

// MarkPaid records a completed success-fee payment. Idempotent.
func (d *Deal) MarkPaid(at time.Time) {
	if d.PaymentStatus == PaymentPaid {
		return
	}
	d.PaymentStatus = PaymentPaid
	d.PaidAt = &at
	d.LastUpdate = at
}
