package listings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bryanwahyu/research-market/internal/application"
	"github.com/bryanwahyu/research-market/internal/domain/analyses"
	"github.com/bryanwahyu/research-market/internal/domain/errs"
	domain "github.com/bryanwahyu/research-market/internal/domain/listings"
)

// Service publishes completed analyses to the marketplace.
type Service struct {
	Repo     domain.Repository
	Analyses analyses.Repository
	Clock    application.Clock
	Log      *zap.Logger
}

// Publish lists a completed analysis. Publishing twice returns the existing listing.
func (s *Service) Publish(ctx context.Context, ownerID string, id analyses.ID) (*domain.Listing, error) {
	a, err := s.Analyses.Get(ctx, id)
	if errors.Is(err, analyses.ErrAnalysisNotFound) {
		return nil, errs.ErrNotFoundOrForbidden
	}
	if err != nil {
		return nil, err
	}
	if !a.OwnedBy(ownerID) {
		return nil, errs.ErrNotFoundOrForbidden
	}
	if a.Status != analyses.StatusCompleted || a.Scores.CVS == nil {
		return nil, fmt.Errorf("%w: only completed analyses can be published", errs.ErrInvalidState)
	}

	existing, err := s.Repo.GetByAnalysis(ctx, string(a.ID))
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	l := &domain.Listing{
		ID:          uuid.NewString(),
		AnalysisRef: string(a.ID),
		OwnerID:     a.OwnerID,
		Title:       a.Title,
		Domain:      a.Domain,
		CVSScore:    *a.Scores.CVS,
		TRL:         a.TRL,
		TAM:         a.TAM,
		Summary:     a.Summary,
		PublishedAt: s.Clock.Now(),
	}
	if a.PaperID != nil {
		l.PaperRef = *a.PaperID
	}
	if err := s.Repo.Create(ctx, l); err != nil {
		return nil, err
	}
	s.Log.Info("listing published", zap.String("listing_id", l.ID), zap.String("analysis", l.AnalysisRef), zap.Float64("cvs", l.CVSScore))
	return l, nil
}

// Browse returns published listings, newest first.
func (s *Service) Browse(ctx context.Context, f domain.Filter, page, pageSize int) (domain.Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	if f.MinCVS < 0 || f.MinCVS > 100 {
		return domain.Page{}, fmt.Errorf("%w: min_cvs must be within 0..100", errs.ErrValidation)
	}
	f.Domain = strings.TrimSpace(f.Domain)
	return s.Repo.Browse(ctx, f, page, pageSize)
}

// Get returns one listing.
func (s *Service) Get(ctx context.Context, id string) (*domain.Listing, error) {
	return s.Repo.Get(ctx, id)
}
