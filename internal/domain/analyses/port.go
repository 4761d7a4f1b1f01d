package analyses

import "context"

// Repository port (interface untuk persistence)
type Repository interface {
	Create(ctx context.Context, a *Analysis) error
	Get(ctx context.Context, id ID) (*Analysis, error)
	GetByCorrelation(ctx context.Context, cid CorrelationID) (*Analysis, error)
	ListByOwner(ctx context.Context, owner string, page, pageSize int) ([]*Analysis, int64, error)

	// Update writes every mutable column when the stored version still equals
	// a.Version, then bumps a.Version. A stale version yields errs.ErrConflict.
	Update(ctx context.Context, a *Analysis) error
	Delete(ctx context.Context, id ID) error

	// Resumable lists records the engine should pick up: processing with a paper chosen.
	Resumable(ctx context.Context, limit int) ([]*Analysis, error)
}

// ReportRepository stores technical reports keyed by correlation id.
type ReportRepository interface {
	SaveTechnicalReport(ctx context.Context, r *TechnicalReport) error
	// TechnicalReport returns nil, nil when the engine has not written one yet.
	TechnicalReport(ctx context.Context, cid CorrelationID) (*TechnicalReport, error)
}
