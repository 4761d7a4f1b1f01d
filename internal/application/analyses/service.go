package analyses

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bryanwahyu/research-market/internal/application"
	"github.com/bryanwahyu/research-market/internal/domain/activity"
	domain "github.com/bryanwahyu/research-market/internal/domain/analyses"
	"github.com/bryanwahyu/research-market/internal/domain/errs"
	"github.com/bryanwahyu/research-market/internal/domain/listings"
	"github.com/bryanwahyu/research-market/internal/domain/outbox"
	"github.com/bryanwahyu/research-market/internal/domain/papers"
	"github.com/bryanwahyu/research-market/internal/domain/workflow"
	"github.com/bryanwahyu/research-market/internal/metrics"
)

// MaxPapersLimit is the upper bound accepted for max_papers.
const MaxPapersLimit = 50

// Triggerer queues a one-way call to the workflow engine.
type Triggerer interface {
	Enqueue(ctx context.Context, kind outbox.Kind, analysisID string, payload any) error
}

// Service implements use-cases untuk Analysis
// Service is safe for concurrent use.
type Service struct {
	Repo     domain.Repository
	Reports  domain.ReportRepository
	Papers   papers.Repository
	Activity activity.Repository
	Listings listings.Repository
	Trigger  Triggerer
	Clock    application.Clock
	Log      *zap.Logger

	DefaultMaxPapers int
}

//
// ==== USE CASES ====
//

// SubmitCommand untuk submit analysis baru
type SubmitCommand struct {
	OwnerID   string
	Email     string
	Query     string
	Domain    string
	MaxPapers int
}

// Submit creates the record in processing and queues the start trigger.
// It returns as soon as the trigger is queued; the engine run is never awaited.
func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (*domain.Analysis, error) {
	query := strings.TrimSpace(cmd.Query)
	area := strings.TrimSpace(cmd.Domain)
	email := strings.TrimSpace(cmd.Email)
	switch {
	case strings.TrimSpace(cmd.OwnerID) == "":
		return nil, errs.ErrUnauthorized
	case query == "":
		return nil, fmt.Errorf("%w: query is required", errs.ErrValidation)
	case area == "":
		return nil, fmt.Errorf("%w: domain is required", errs.ErrValidation)
	case email == "":
		return nil, fmt.Errorf("%w: requester email is required", errs.ErrValidation)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: requester email %q is invalid", errs.ErrValidation, email)
	}

	maxPapers := cmd.MaxPapers
	if maxPapers == 0 {
		maxPapers = s.DefaultMaxPapers
	}
	if maxPapers < 1 || maxPapers > MaxPapersLimit {
		return nil, fmt.Errorf("%w: max_papers must be between 1 and %d", errs.ErrValidation, MaxPapersLimit)
	}

	now := s.Clock.Now()
	a := &domain.Analysis{
		ID:             domain.ID(uuid.NewString()),
		AnalysisID:     domain.CorrelationID(uuid.NewString()),
		OwnerID:        cmd.OwnerID,
		RequesterEmail: email,
		Query:          query,
		Title:          domain.TitleFromQuery(query),
		Domain:         area,
		MaxPapers:      maxPapers,
		Status:         domain.StatusProcessing,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.Repo.Create(ctx, a); err != nil {
		return nil, err
	}

	payload := workflow.StartPayload{
		Query:        a.Query,
		UserEmail:    a.RequesterEmail,
		Domain:       a.Domain,
		AnalysisID:   string(a.AnalysisID),
		MaxPapers:    a.MaxPapers,
		MinCitations: workflow.DefaultMinCitations,
		MinYear:      workflow.DefaultMinYear,
	}
	if err := s.Trigger.Enqueue(ctx, outbox.KindAnalysisStart, string(a.AnalysisID), payload); err != nil {
		// tanpa event di outbox record ini tidak akan pernah jalan
		s.Log.Error("queue start trigger", zap.String("analysis_id", string(a.AnalysisID)), zap.Error(err))
		_ = s.MarkTriggerFailed(context.Background(), a.AnalysisID, err)
		return nil, err
	}

	metrics.AnalysesSubmitted.Inc()
	metrics.AnalysisTransitions.WithLabelValues(string(domain.StatusProcessing)).Inc()
	s.Log.Info("analysis submitted",
		zap.String("id", string(a.ID)),
		zap.String("analysis_id", string(a.AnalysisID)),
		zap.String("owner_id", a.OwnerID),
		zap.Int("max_papers", a.MaxPapers))
	return a, nil
}

// Get returns an analysis owned by ownerID.
func (s *Service) Get(ctx context.Context, ownerID string, id domain.ID) (*domain.Analysis, error) {
	a, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, hideMissing(err)
	}
	if !a.OwnedBy(ownerID) {
		return nil, errs.ErrNotFoundOrForbidden
	}
	return a, nil
}

// Page represents a paginated response with data and metadata
type Page struct {
	Data       []*domain.Analysis `json:"data"`
	Page       int                `json:"page"`
	PageSize   int                `json:"pageSize"`
	TotalItems int64              `json:"totalItems"`
	TotalPages int                `json:"totalPages"`
}

// List returns the caller's analyses, newest first.
func (s *Service) List(ctx context.Context, ownerID string, page, pageSize int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	items, total, err := s.Repo.ListByOwner(ctx, ownerID, page, pageSize)
	if err != nil {
		return Page{}, err
	}
	if items == nil {
		items = []*domain.Analysis{}
	}
	return Page{
		Data:       items,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: total,
		TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
	}, nil
}

// Delete removes an analysis owned by ownerID. A published analysis has to
// stay because its listing refers to it.
func (s *Service) Delete(ctx context.Context, ownerID string, id domain.ID) error {
	a, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if s.Listings != nil {
		l, err := s.Listings.GetByAnalysis(ctx, string(a.ID))
		if err != nil {
			return err
		}
		if l != nil {
			return fmt.Errorf("%w: analysis is published as listing %s", errs.ErrInvalidState, l.ID)
		}
	}
	if err := s.Repo.Delete(ctx, a.ID); err != nil {
		return hideMissing(err)
	}
	s.Log.Info("analysis deleted", zap.String("id", string(a.ID)), zap.String("analysis_id", string(a.AnalysisID)))
	return nil
}

// Progress replays the activity log for the analysis with correlation id cid.
// Records of other owners are reported as missing.
func (s *Service) Progress(ctx context.Context, ownerID string, cid domain.CorrelationID) (activity.Progress, error) {
	a, err := s.Repo.GetByCorrelation(ctx, cid)
	if err != nil {
		return activity.Progress{}, err
	}
	if !a.OwnedBy(ownerID) {
		return activity.Progress{}, domain.ErrAnalysisNotFound
	}
	entries, err := s.Activity.ListByAnalysis(ctx, string(cid))
	if err != nil {
		return activity.Progress{}, err
	}
	return activity.Replay(string(cid), entries), nil
}

// TechnicalReport returns the engine's technical report as HTML.
func (s *Service) TechnicalReport(ctx context.Context, ownerID string, cid domain.CorrelationID) (string, error) {
	a, err := s.Repo.GetByCorrelation(ctx, cid)
	if err != nil {
		return "", hideMissing(err)
	}
	if !a.OwnedBy(ownerID) {
		return "", errs.ErrNotFoundOrForbidden
	}
	r, err := s.Reports.TechnicalReport(ctx, cid)
	if err != nil {
		return "", err
	}
	if r == nil || strings.TrimSpace(r.Body) == "" {
		return "", domain.ErrReportNotReady
	}
	return renderHTML(r.Format, r.Body)
}

// CVSReport returns the stored CVS report HTML for the analysis with internal id.
func (s *Service) CVSReport(ctx context.Context, ownerID string, id domain.ID) (string, error) {
	a, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return "", err
	}
	if a.CVSReport == nil || strings.TrimSpace(*a.CVSReport) == "" {
		return "", domain.ErrReportNotReady
	}
	return *a.CVSReport, nil
}

// user-facing lookups never distinguish missing from foreign
func hideMissing(err error) error {
	if errors.Is(err, domain.ErrAnalysisNotFound) {
		return errs.ErrNotFoundOrForbidden
	}
	return err
}
