// Package checkpoint implements the human-in-the-loop paper selection that
// pauses an analysis after discovery and resumes it with the chosen paper.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bryanwahyu/research-market/internal/application"
	domain "github.com/bryanwahyu/research-market/internal/domain/analyses"
	"github.com/bryanwahyu/research-market/internal/domain/errs"
	"github.com/bryanwahyu/research-market/internal/domain/outbox"
	"github.com/bryanwahyu/research-market/internal/domain/papers"
	"github.com/bryanwahyu/research-market/internal/domain/workflow"
	"github.com/bryanwahyu/research-market/internal/metrics"
)

// State of the checkpoint as seen by the client.
type State string

const (
	StateAwaitingCandidates State = "awaiting_candidates"
	StateCandidatesReady    State = "candidates_ready"
	StateResumed            State = "resumed"
	StateClosed             State = "closed"
)

// Triggerer queues a one-way call to the workflow engine.
type Triggerer interface {
	Enqueue(ctx context.Context, kind outbox.Kind, analysisID string, payload any) error
}

type Service struct {
	Analyses domain.Repository
	Papers   papers.Repository
	Trigger  Triggerer
	Clock    application.Clock
	Log      *zap.Logger

	// PollInterval is the hint returned to clients while waiting.
	PollInterval time.Duration
	// StallAfter bounds the wait for candidates before the view reports stalled.
	StallAfter time.Duration
}

// View is the checkpoint screen for one analysis.
type View struct {
	AnalysisID         string              `json:"analysis_id"`
	Status             domain.Status       `json:"status"`
	State              State               `json:"state"`
	Query              string              `json:"query"`
	Candidates         []*papers.Candidate `json:"candidates"`
	DefaultCandidateID string              `json:"default_candidate_id,omitempty"`
	SelectedPaperID    *string             `json:"selected_paper_id"`
	Stalled            bool                `json:"stalled"`
	PollAfterMS        int64               `json:"poll_after_ms,omitempty"`
}

// View returns the candidates and the recommended default for the caller's analysis.
func (s *Service) View(ctx context.Context, ownerID string, cid domain.CorrelationID) (*View, error) {
	a, err := s.load(ctx, ownerID, cid)
	if err != nil {
		return nil, err
	}
	cs, err := s.Papers.ListByAnalysis(ctx, string(cid))
	if err != nil {
		return nil, err
	}
	papers.SortByRelevance(cs)
	if cs == nil {
		cs = []*papers.Candidate{}
	}

	v := &View{
		AnalysisID:      string(a.AnalysisID),
		Status:          a.Status,
		Query:           a.Query,
		Candidates:      cs,
		SelectedPaperID: a.PaperID,
	}
	if def := papers.Default(cs); def != nil {
		v.DefaultCandidateID = def.ID
	}

	switch {
	case a.Status.Terminal():
		v.State = StateClosed
	case a.PaperID != nil:
		v.State = StateResumed
	case a.Status == domain.StatusPending && len(cs) > 0:
		v.State = StateCandidatesReady
	default:
		v.State = StateAwaitingCandidates
		v.PollAfterMS = s.pollInterval().Milliseconds()
		if s.StallAfter > 0 && s.Clock.Now().Sub(a.UpdatedAt) > s.StallAfter {
			v.Stalled = true
		}
	}
	return v, nil
}

// Confirmation is the outcome of a confirmed selection.
type Confirmation struct {
	AnalysisID            string        `json:"analysis_id"`
	Status                domain.Status `json:"status"`
	PaperID               string        `json:"paper_id"`
	PaperTitle            string        `json:"paper_title"`
	AutoSelectedPaperID   *string       `json:"auto_selected_paper_id"`
	UserOverrodeSelection bool          `json:"user_overrode_selection"`
	State                 State         `json:"state"`
}

// Confirm records the chosen candidate, puts the analysis back into
// processing and queues the resume trigger. A failed trigger does not undo
// the selection: the engine also finds resumable records by polling.
func (s *Service) Confirm(ctx context.Context, ownerID string, cid domain.CorrelationID, candidateID string) (*Confirmation, error) {
	candidateID = strings.TrimSpace(candidateID)
	if candidateID == "" {
		return nil, papers.ErrNoSelection
	}
	a, err := s.load(ctx, ownerID, cid)
	if err != nil {
		return nil, err
	}
	cs, err := s.Papers.ListByAnalysis(ctx, string(cid))
	if err != nil {
		return nil, err
	}
	papers.SortByRelevance(cs)
	chosen := papers.Find(cs, candidateID)
	if chosen == nil {
		return nil, fmt.Errorf("%w: candidate %s does not belong to this analysis", errs.ErrValidation, candidateID)
	}

	// konfirmasi ulang dengan paper yang sama: balikin hasil sebelumnya
	if a.Status == domain.StatusProcessing && a.PaperID != nil && *a.PaperID == chosen.PaperRef {
		return confirmation(a, chosen), nil
	}
	if a.Status != domain.StatusPending {
		return nil, fmt.Errorf("%w: analysis is %s, not awaiting a selection", errs.ErrInvalidState, a.Status)
	}

	def := papers.Default(cs)
	overrode := def == nil || def.ID != chosen.ID
	now := s.Clock.Now()

	if err := a.TransitionTo(domain.StatusProcessing, now); err != nil {
		return nil, err
	}
	ref := chosen.PaperRef
	a.PaperID = &ref
	a.UserOverrodeSelection = overrode
	a.AutoSelectedPaperID = nil
	if !overrode {
		auto := chosen.PaperRef
		a.AutoSelectedPaperID = &auto
	}
	confirmedAt := now
	a.Notes = domain.ProgressNotes{
		Validated:       true,
		PaperSelected:   true,
		AnalysisRunning: true,
		SelectedTitle:   chosen.Title,
		ConfirmedAt:     &confirmedAt,
	}
	if err := s.Analyses.Update(ctx, a); err != nil {
		return nil, err
	}
	metrics.AnalysisTransitions.WithLabelValues(string(domain.StatusProcessing)).Inc()
	metrics.CheckpointConfirmations.WithLabelValues(strconv.FormatBool(overrode)).Inc()

	log := s.Log.With(zap.String("analysis_id", string(cid)), zap.String("paper_id", ref))
	payload := workflow.ResumePayload{
		AnalysisID: string(a.AnalysisID),
		PaperID:    ref,
		PaperTitle: chosen.Title,
		Query:      a.Query,
		UserEmail:  a.RequesterEmail,
		Domain:     a.Domain,
		Trigger:    workflow.ResumeTrigger,
	}
	if err := s.Trigger.Enqueue(ctx, outbox.KindAnalysisResume, string(a.AnalysisID), payload); err != nil {
		log.Error("queue resume trigger", zap.Error(err))
	}
	log.Info("paper selection confirmed", zap.Bool("overrode_default", overrode))
	return confirmation(a, chosen), nil
}

func (s *Service) load(ctx context.Context, ownerID string, cid domain.CorrelationID) (*domain.Analysis, error) {
	a, err := s.Analyses.GetByCorrelation(ctx, cid)
	if err != nil {
		if errors.Is(err, domain.ErrAnalysisNotFound) {
			return nil, errs.ErrNotFoundOrForbidden
		}
		return nil, err
	}
	if !a.OwnedBy(ownerID) {
		return nil, errs.ErrNotFoundOrForbidden
	}
	return a, nil
}

func (s *Service) pollInterval() time.Duration {
	if s.PollInterval <= 0 {
		return 2 * time.Second
	}
	return s.PollInterval
}

func confirmation(a *domain.Analysis, chosen *papers.Candidate) *Confirmation {
	return &Confirmation{
		AnalysisID:            string(a.AnalysisID),
		Status:                a.Status,
		PaperID:               chosen.PaperRef,
		PaperTitle:            chosen.Title,
		AutoSelectedPaperID:   a.AutoSelectedPaperID,
		UserOverrodeSelection: a.UserOverrodeSelection,
		State:                 StateResumed,
	}
}
