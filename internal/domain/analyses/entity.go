package analyses

import (
	"fmt"
	"strings"
	"time"

	"github.com/bryanwahyu/research-market/internal/domain/errs"
)

// ID is the internal primary key of an analysis record.
type ID string

// CorrelationID is the externally shared token joining an analysis with
// the artifacts the workflow engine writes (candidates, activity, reports).
type CorrelationID string

// Status enum
type Status string

const (
	StatusProcessing Status = "processing"
	StatusPending    Status = "pending"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether an analysis may move from one status to another.
//
//	processing -> pending | completed | failed
//	pending    -> processing | failed
//
// completed and failed are terminal.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusProcessing:
		return to == StatusPending || to == StatusCompleted || to == StatusFailed
	case StatusPending:
		return to == StatusProcessing || to == StatusFailed
	}
	return false
}

// Scores value object, every field is 0-100 and nil until computed.
type Scores struct {
	Technical   *float64 `json:"technical_score"`
	Market      *float64 `json:"market_score"`
	IP          *float64 `json:"ip_score"`
	Competitive *float64 `json:"competitive_score"`
	Risk        *float64 `json:"risk_score"`
	Commercial  *float64 `json:"commercial_score"`
	CVS         *float64 `json:"cvs_score"`
}

// ProgressNotes drives the lightweight 4-step progress bar. It is always
// written as a whole so replays of the same write leave it unchanged.
type ProgressNotes struct {
	Validated       bool       `json:"validated"`
	PaperSelected   bool       `json:"paper_selected"`
	AnalysisRunning bool       `json:"analysis_running"`
	ReportReady     bool       `json:"report_ready"`
	SelectedTitle   string     `json:"selected_title,omitempty"`
	ConfirmedAt     *time.Time `json:"confirmed_at,omitempty"`
}

// Aggregate Root: Analysis
type Analysis struct {
	ID             ID            `json:"id"`
	AnalysisID     CorrelationID `json:"analysis_id"`
	OwnerID        string        `json:"owner_id"`
	RequesterEmail string        `json:"requester_email"`
	Query          string        `json:"query"`
	Title          string        `json:"title"`
	Domain         string        `json:"domain"`
	MaxPapers      int           `json:"max_papers"`
	Status         Status        `json:"status"`
	Scores         Scores        `json:"scores"`
	TRL            *int          `json:"trl"`
	TAM            *float64      `json:"tam"`

	PaperID               *string `json:"paper_id"`
	AutoSelectedPaperID   *string `json:"auto_selected_paper_id"`
	UserOverrodeSelection bool    `json:"user_overrode_selection"`

	Summary         string        `json:"summary,omitempty"`
	Recommendations string        `json:"recommendations,omitempty"`
	CVSReport       *string       `json:"-"`
	Notes           ProgressNotes `json:"notes"`
	Error           string        `json:"error,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OwnedBy compares against the canonical owner key (internal user id).
func (a *Analysis) OwnedBy(userID string) bool {
	return userID != "" && a.OwnerID == userID
}

// TitleFromQuery derives a short title the way listings display it.
func TitleFromQuery(q string) string {
	q = strings.Join(strings.Fields(q), " ")
	const max = 80
	r := []rune(q)
	if len(r) <= max {
		return q
	}
	return strings.TrimSpace(string(r[:max-3])) + "..."
}

// Outcome is what the engine reports when a run finishes successfully.
type Outcome struct {
	Scores          Scores
	TRL             *int
	TAM             *float64
	Summary         string
	Recommendations string
	CVSReport       string
}

// TechnicalReport is written by the engine, keyed by correlation id.
type TechnicalReport struct {
	AnalysisID CorrelationID `json:"analysis_id"`
	Format     string        `json:"format"` // html | markdown
	Body       string        `json:"-"`
	CreatedAt  time.Time     `json:"created_at"`
}

// TransitionTo moves the record to the next status.
func (a *Analysis) TransitionTo(next Status, now time.Time) error {
	if !CanTransition(a.Status, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, next)
	}
	a.Status = next
	a.UpdatedAt = now
	return nil
}

// Complete stores the engine's results. cvs is mandatory: a completed
// record always carries a score and no other status does.
func (a *Analysis) Complete(o Outcome, now time.Time) error {
	if o.Scores.CVS == nil {
		return fmt.Errorf("%w: cvs_score is required to complete", errs.ErrValidation)
	}
	if err := a.TransitionTo(StatusCompleted, now); err != nil {
		return err
	}
	a.Scores = o.Scores
	a.TRL = o.TRL
	a.TAM = o.TAM
	a.Summary = o.Summary
	a.Recommendations = o.Recommendations
	if o.CVSReport != "" {
		report := o.CVSReport
		a.CVSReport = &report
	}
	a.Notes = ProgressNotes{
		Validated:     true,
		PaperSelected: a.PaperID != nil,
		ReportReady:   true,
		SelectedTitle: a.Notes.SelectedTitle,
		ConfirmedAt:   a.Notes.ConfirmedAt,
	}
	a.Error = ""
	return nil
}

// Fail marks the record failed with reason. Failing a failed record is a no-op.
func (a *Analysis) Fail(reason string, now time.Time) error {
	if a.Status == StatusFailed {
		return nil
	}
	if err := a.TransitionTo(StatusFailed, now); err != nil {
		return err
	}
	a.Error = reason
	a.Notes.AnalysisRunning = false
	return nil
}
