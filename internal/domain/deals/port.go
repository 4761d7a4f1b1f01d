package deals

import (
	"context"
	"io"
)

// Repository port (interface untuk persistence)
type Repository interface {
	Create(ctx context.Context, d *Deal) error
	Get(ctx context.Context, id ID) (*Deal, error)
	// ListByParty returns deals where userID is investor or researcher, newest first.
	ListByParty(ctx context.Context, userID string, limit int) ([]*Deal, error)
	// Update writes the deal when the stored version matches d.Version, then bumps it.
	Update(ctx context.Context, d *Deal) error
	// FindByCheckoutSession resolves a payment event that carries no deal metadata.
	FindByCheckoutSession(ctx context.Context, sessionID string) (*Deal, error)
}

// DocumentStore port (interface untuk penyimpanan dokumen deal)
type DocumentStore interface {
	Put(ctx context.Context, key, contentType string, size int64, body io.Reader) (string, error)
}
