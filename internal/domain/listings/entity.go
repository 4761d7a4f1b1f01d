package listings

import (
	"context"
	"time"
)

// Listing is a completed analysis published to investors.
type Listing struct {
	ID          string    `json:"id"`
	AnalysisRef string    `json:"analysis_ref"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	Domain      string    `json:"domain"`
	PaperRef    string    `json:"paper_id,omitempty"`
	CVSScore    float64   `json:"cvs_score"`
	TRL         *int      `json:"trl"`
	TAM         *float64  `json:"tam"`
	Summary     string    `json:"summary,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// Filter narrows Browse results. Zero values mean no filter.
type Filter struct {
	Domain string
	MinCVS float64
}

// Page represents a paginated response with data and metadata
type Page struct {
	Data       []*Listing `json:"data"`
	Page       int        `json:"page"`
	PageSize   int        `json:"pageSize"`
	Total      int64      `json:"totalItems"`
	TotalPages int        `json:"totalPages"`
}

// Repository port for listings
type Repository interface {
	Create(ctx context.Context, l *Listing) error
	Get(ctx context.Context, id string) (*Listing, error)
	// GetByAnalysis returns nil, nil when the analysis was never published.
	GetByAnalysis(ctx context.Context, analysisRef string) (*Listing, error)
	Browse(ctx context.Context, f Filter, page, pageSize int) (Page, error)
}
