package analyses

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bryanwahyu/research-market/internal/domain/activity"
	domain "github.com/bryanwahyu/research-market/internal/domain/analyses"
	"github.com/bryanwahyu/research-market/internal/domain/errs"
	"github.com/bryanwahyu/research-market/internal/domain/papers"
	"github.com/bryanwahyu/research-market/internal/metrics"
)

// Engine-facing use cases. The workflow engine calls these as it runs; every
// one of them is safe to retry.

const conflictRetries = 3

// errUnchanged lets a mutation skip the write.
var errUnchanged = errors.New("unchanged")

// CandidateInput is one paper proposed by the engine.
type CandidateInput struct {
	Title          string          `json:"title"`
	Authors        []string        `json:"authors"`
	Abstract       string          `json:"abstract"`
	Year           int             `json:"year"`
	CitationCount  int             `json:"citation_count"`
	RelevanceScore float64         `json:"relevance_score"`
	PaperID        string          `json:"paper_id"`
	URL            string          `json:"url"`
	Metadata       papers.Metadata `json:"metadata"`
}

// RecordCandidates stores the discovered papers, then moves the record to
// pending. Candidates are written first so a pending record always has them.
// A retry after a failed status write keeps the batch stored the first time.
func (s *Service) RecordCandidates(ctx context.Context, cid domain.CorrelationID, in []CandidateInput) error {
	if len(in) == 0 {
		return fmt.Errorf("%w: at least one candidate is required", errs.ErrValidation)
	}
	flagged := 0
	seen := make(map[string]bool, len(in))
	for i, c := range in {
		ref := strings.TrimSpace(c.PaperID)
		if strings.TrimSpace(c.Title) == "" || ref == "" {
			return fmt.Errorf("%w: candidate %d needs title and paper_id", errs.ErrValidation, i)
		}
		if seen[ref] {
			return fmt.Errorf("%w: paper_id %q listed twice", errs.ErrValidation, ref)
		}
		seen[ref] = true
		if c.RelevanceScore < 0 || c.RelevanceScore > 1 {
			return fmt.Errorf("%w: candidate %d relevance_score must be within 0..1", errs.ErrValidation, i)
		}
		if c.Metadata.AutoSelected {
			flagged++
		}
	}
	if flagged > 1 {
		return fmt.Errorf("%w: only one candidate may be auto_selected", errs.ErrValidation)
	}

	a, err := s.Repo.GetByCorrelation(ctx, cid)
	if err != nil {
		return err
	}
	if a.Status == domain.StatusPending {
		// retry dari engine, kandidat sudah tersimpan
		return nil
	}
	if a.Status != domain.StatusProcessing || a.PaperID != nil {
		return fmt.Errorf("%w: candidates arrived while %s", domain.ErrInvalidTransition, a.Status)
	}

	now := s.Clock.Now()
	cs := make([]*papers.Candidate, 0, len(in))
	for _, c := range in {
		authors := c.Authors
		if authors == nil {
			authors = []string{}
		}
		cs = append(cs, &papers.Candidate{
			ID:             uuid.NewString(),
			AnalysisID:     string(cid),
			Title:          strings.TrimSpace(c.Title),
			Authors:        authors,
			Abstract:       c.Abstract,
			Year:           c.Year,
			CitationCount:  c.CitationCount,
			RelevanceScore: c.RelevanceScore,
			PaperRef:       strings.TrimSpace(c.PaperID),
			URL:            c.URL,
			Metadata:       c.Metadata,
			CreatedAt:      now,
		})
	}
	saved, err := s.Papers.SaveBatch(ctx, cs)
	if err != nil {
		return err
	}
	if !saved {
		s.Log.Info("candidates already stored, batch ignored", zap.String("analysis_id", string(cid)))
	}

	_, err = s.mutate(ctx, cid, func(a *domain.Analysis) error {
		if a.Status == domain.StatusPending {
			return errUnchanged
		}
		if err := a.TransitionTo(domain.StatusPending, now); err != nil {
			return err
		}
		a.Notes = domain.ProgressNotes{Validated: true}
		return nil
	})
	if err != nil {
		return err
	}
	metrics.AnalysisTransitions.WithLabelValues(string(domain.StatusPending)).Inc()
	s.Log.Info("checkpoint reached", zap.String("analysis_id", string(cid)), zap.Int("candidates", len(cs)))
	return nil
}

// ActivityInput is one activity log entry reported by the engine.
type ActivityInput struct {
	Agent    activity.AgentID     `json:"agent"`
	Status   activity.EntryStatus `json:"status"`
	Progress int                  `json:"progress"`
	Message  string               `json:"message"`
	Error    string               `json:"error"`
}

// AppendActivity appends one log entry. Entries are never updated; the
// timestamp is assigned here so the log order matches arrival order.
func (s *Service) AppendActivity(ctx context.Context, cid domain.CorrelationID, in ActivityInput) (*activity.Entry, error) {
	if !activity.KnownAgent(in.Agent) {
		return nil, fmt.Errorf("%w: unknown agent %q", errs.ErrValidation, in.Agent)
	}
	if !in.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown activity status %q", errs.ErrValidation, in.Status)
	}
	if in.Progress < 0 || in.Progress > 100 {
		return nil, fmt.Errorf("%w: progress must be within 0..100", errs.ErrValidation)
	}
	if _, err := s.Repo.GetByCorrelation(ctx, cid); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	e := &activity.Entry{
		ID:         id.String(),
		AnalysisID: string(cid),
		Agent:      in.Agent,
		Status:     in.Status,
		Progress:   in.Progress,
		Message:    in.Message,
		Error:      in.Error,
		CreatedAt:  s.Clock.Now(),
	}
	if err := s.Activity.Append(ctx, e); err != nil {
		return nil, err
	}

	if in.Agent == activity.AgentValidation && in.Status == activity.EntryCompleted {
		_, err := s.mutate(ctx, cid, func(a *domain.Analysis) error {
			if a.Status.Terminal() || a.Notes.Validated {
				return errUnchanged
			}
			notes := a.Notes
			notes.Validated = true
			notes.AnalysisRunning = true
			a.Notes = notes
			a.UpdatedAt = e.CreatedAt
			return nil
		})
		if err != nil {
			s.Log.Warn("update progress notes", zap.String("analysis_id", string(cid)), zap.Error(err))
		}
	}
	return e, nil
}

// CompleteInput carries the final results of a run.
type CompleteInput struct {
	Scores          domain.Scores `json:"scores"`
	TRL             *int          `json:"trl"`
	TAM             *float64      `json:"tam"`
	Summary         string        `json:"summary"`
	Recommendations string        `json:"recommendations"`
	CVSReport       string        `json:"cvs_report"`
	ReportFormat    string        `json:"report_format"`
}

// Complete stores scores and the CVS report and closes the record.
// Completing an already completed record is a no-op.
func (s *Service) Complete(ctx context.Context, cid domain.CorrelationID, in CompleteInput) (*domain.Analysis, error) {
	if err := validateScores(in.Scores); err != nil {
		return nil, err
	}
	if in.TRL != nil && (*in.TRL < 1 || *in.TRL > 9) {
		return nil, fmt.Errorf("%w: trl must be within 1..9", errs.ErrValidation)
	}
	if in.TAM != nil && *in.TAM < 0 {
		return nil, fmt.Errorf("%w: tam must not be negative", errs.ErrValidation)
	}
	report := in.CVSReport
	if strings.TrimSpace(report) != "" {
		html, err := renderHTML(in.ReportFormat, report)
		if err != nil {
			return nil, err
		}
		report = html
	}

	now := s.Clock.Now()
	a, err := s.mutate(ctx, cid, func(a *domain.Analysis) error {
		if a.Status == domain.StatusCompleted {
			return errUnchanged
		}
		return a.Complete(domain.Outcome{
			Scores:          in.Scores,
			TRL:             in.TRL,
			TAM:             in.TAM,
			Summary:         in.Summary,
			Recommendations: in.Recommendations,
			CVSReport:       report,
		}, now)
	})
	if err != nil {
		return nil, err
	}
	metrics.AnalysisTransitions.WithLabelValues(string(domain.StatusCompleted)).Inc()
	s.Log.Info("analysis completed", zap.String("analysis_id", string(cid)), zap.Float64p("cvs", a.Scores.CVS))
	return a, nil
}

// Fail closes the record with reason.
func (s *Service) Fail(ctx context.Context, cid domain.CorrelationID, reason string) (*domain.Analysis, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "analysis failed"
	}
	now := s.Clock.Now()
	a, err := s.mutate(ctx, cid, func(a *domain.Analysis) error {
		if a.Status == domain.StatusFailed {
			return errUnchanged
		}
		return a.Fail(reason, now)
	})
	if err != nil {
		return nil, err
	}
	metrics.AnalysisTransitions.WithLabelValues(string(domain.StatusFailed)).Inc()
	s.Log.Warn("analysis failed", zap.String("analysis_id", string(cid)), zap.String("reason", reason))
	return a, nil
}

// MarkTriggerFailed fails a record whose start trigger could not be
// delivered. Records that already moved on are left alone.
func (s *Service) MarkTriggerFailed(ctx context.Context, cid domain.CorrelationID, cause error) error {
	now := s.Clock.Now()
	_, err := s.mutate(ctx, cid, func(a *domain.Analysis) error {
		if a.Status != domain.StatusProcessing || a.PaperID != nil || a.Notes.Validated {
			return errUnchanged
		}
		return a.Fail(fmt.Sprintf("workflow trigger failed: %v", cause), now)
	})
	if errors.Is(err, domain.ErrAnalysisNotFound) {
		return nil
	}
	if err == nil {
		metrics.AnalysisTransitions.WithLabelValues(string(domain.StatusFailed)).Inc()
	}
	return err
}

// SaveTechnicalReport replaces the technical report for cid.
func (s *Service) SaveTechnicalReport(ctx context.Context, cid domain.CorrelationID, format, body string) error {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatHTML
	}
	if format != FormatHTML && format != FormatMarkdown {
		return fmt.Errorf("%w: report format %q", errs.ErrValidation, format)
	}
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("%w: report body is empty", errs.ErrValidation)
	}
	if _, err := s.Repo.GetByCorrelation(ctx, cid); err != nil {
		return err
	}
	return s.Reports.SaveTechnicalReport(ctx, &domain.TechnicalReport{
		AnalysisID: cid,
		Format:     format,
		Body:       body,
		CreatedAt:  s.Clock.Now(),
	})
}

// Resumable lists records the engine should continue: processing with a
// paper chosen at the checkpoint.
func (s *Service) Resumable(ctx context.Context, limit int) ([]*domain.Analysis, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.Repo.Resumable(ctx, limit)
}

// mutate loads the record, applies fn and writes it back, retrying on a
// lost version race.
func (s *Service) mutate(ctx context.Context, cid domain.CorrelationID, fn func(*domain.Analysis) error) (*domain.Analysis, error) {
	for attempt := 0; ; attempt++ {
		a, err := s.Repo.GetByCorrelation(ctx, cid)
		if err != nil {
			return nil, err
		}
		if err := fn(a); err != nil {
			if errors.Is(err, errUnchanged) {
				return a, nil
			}
			return nil, err
		}
		err = s.Repo.Update(ctx, a)
		if errors.Is(err, errs.ErrConflict) && attempt < conflictRetries {
			continue
		}
		if err != nil {
			return nil, err
		}
		return a, nil
	}
}

func validateScores(sc domain.Scores) error {
	if sc.CVS == nil {
		return fmt.Errorf("%w: cvs_score is required", errs.ErrValidation)
	}
	for name, v := range map[string]*float64{
		"technical_score":   sc.Technical,
		"market_score":      sc.Market,
		"ip_score":          sc.IP,
		"competitive_score": sc.Competitive,
		"risk_score":        sc.Risk,
		"commercial_score":  sc.Commercial,
		"cvs_score":         sc.CVS,
	} {
		if v != nil && (*v < 0 || *v > 100) {
			return fmt.Errorf("%w: %s must be within 0..100", errs.ErrValidation, name)
		}
	}
	return nil
}
