package papers

import "context"

// Repository port for paper candidates
type Repository interface {
	// SaveBatch inserts candidates in one transaction. All candidates belong
	// to one analysis; when that analysis already has candidates nothing is
	// written and saved is false.
	SaveBatch(ctx context.Context, cs []*Candidate) (saved bool, err error)
	// ListByAnalysis returns candidates for a correlation id, relevance descending.
	ListByAnalysis(ctx context.Context, analysisID string) ([]*Candidate, error)
	CountByAnalysis(ctx context.Context, analysisID string) (int, error)
}
