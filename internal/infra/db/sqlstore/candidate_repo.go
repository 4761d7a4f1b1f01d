package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bryanwahyu/research-market/internal/domain/papers"
)

type CandidateRepository struct {
	db      *sql.DB
	dialect Dialect
}

func NewCandidateRepository(db *sql.DB, d Dialect) *CandidateRepository {
	return &CandidateRepository{db: db, dialect: d}
}

// SaveBatch inserts all candidates in one transaction, keeping their order in rank_pos.
// Candidates are written once per analysis: a batch for an analysis that
// already has rows is dropped, and uq_candidates_paper rejects a concurrent
// duplicate insert.
func (r *CandidateRepository) SaveBatch(ctx context.Context, cs []*papers.Candidate) (bool, error) {
	if len(cs) == 0 {
		return false, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin candidates tx: %w", err)
	}
	defer tx.Rollback()

	var existing int
	count := r.dialect.Rebind(`SELECT COUNT(*) FROM paper_candidates WHERE analysis_id=?`)
	if err := tx.QueryRowContext(ctx, count, cs[0].AnalysisID).Scan(&existing); err != nil {
		return false, fmt.Errorf("counting candidates: %w", err)
	}
	if existing > 0 {
		return false, nil
	}

	q := r.dialect.Rebind(`
INSERT INTO paper_candidates
  (id, analysis_id, title, authors, abstract, year, citation_count, relevance_score,
   paper_ref, url, metadata, rank_pos, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return false, fmt.Errorf("preparing candidate insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range cs {
		if c.AnalysisID != cs[0].AnalysisID {
			return false, fmt.Errorf("candidate batch spans analyses %q and %q", cs[0].AnalysisID, c.AnalysisID)
		}
		authors := c.Authors
		if authors == nil {
			authors = []string{}
		}
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.AnalysisID, c.Title, mustJSON(authors), emptyToNull(c.Abstract), c.Year, c.CitationCount,
			c.RelevanceScore, c.PaperRef, emptyToNull(c.URL), mustJSON(c.Metadata), i, c.CreatedAt.UTC(),
		); err != nil {
			return false, fmt.Errorf("inserting candidate %q: %w", c.PaperRef, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit candidates: %w", err)
	}
	return true, nil
}

// ListByAnalysis returns candidates relevance-descending; ties keep write order.
func (r *CandidateRepository) ListByAnalysis(ctx context.Context, analysisID string) ([]*papers.Candidate, error) {
	q := r.dialect.Rebind(`
SELECT id, analysis_id, title, authors, abstract, year, citation_count, relevance_score,
       paper_ref, url, metadata, created_at
FROM paper_candidates
WHERE analysis_id=?
ORDER BY relevance_score DESC, rank_pos ASC`)
	rows, err := r.db.QueryContext(ctx, q, analysisID)
	if err != nil {
		return nil, fmt.Errorf("querying candidates: %w", err)
	}
	defer rows.Close()

	var out []*papers.Candidate
	for rows.Next() {
		var (
			c             papers.Candidate
			authors, meta sql.NullString
			abstract, url sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.AnalysisID, &c.Title, &authors, &abstract, &c.Year, &c.CitationCount,
			&c.RelevanceScore, &c.PaperRef, &url, &meta, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Abstract = abstract.String
		c.URL = url.String
		if err := decodeJSON(authors, &c.Authors); err != nil {
			return nil, fmt.Errorf("decoding authors: %w", err)
		}
		if err := decodeJSON(meta, &c.Metadata); err != nil {
			return nil, fmt.Errorf("decoding candidate metadata: %w", err)
		}
		c.CreatedAt = c.CreatedAt.UTC()
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (r *CandidateRepository) CountByAnalysis(ctx context.Context, analysisID string) (int, error) {
	var n int
	q := r.dialect.Rebind(`SELECT COUNT(*) FROM paper_candidates WHERE analysis_id=?`)
	if err := r.db.QueryRowContext(ctx, q, analysisID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting candidates: %w", err)
	}
	return n, nil
}
