package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	domain "github.com/bryanwahyu/research-market/internal/domain/analyses"
	"github.com/bryanwahyu/research-market/internal/domain/errs"
)

type AnalysisRepository struct {
	db      *sql.DB
	dialect Dialect
}

func NewAnalysisRepository(db *sql.DB, d Dialect) *AnalysisRepository {
	return &AnalysisRepository{db: db, dialect: d}
}

const analysisColumns = `id, analysis_id, owner_id, requester_email, query, title, domain, max_papers, status,
       technical_score, market_score, ip_score, competitive_score, risk_score, commercial_score, cvs_score,
       trl, tam, paper_id, auto_selected_paper_id, user_overrode_selection,
       summary, recommendations, cvs_report, notes, error, version, created_at, updated_at`

// Create inserts a new analysis row with version 1.
func (r *AnalysisRepository) Create(ctx context.Context, a *domain.Analysis) error {
	q := r.dialect.Rebind(`
INSERT INTO analyses (` + analysisColumns + `)
VALUES (?,?,?,?,?,?,?,?,?, ?,?,?,?,?,?,?, ?,?,?,?,?, ?,?,?,?,?,?,?,?)`)

	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	a.Version = 1

	_, err := r.db.ExecContext(ctx, q,
		a.ID, a.AnalysisID, a.OwnerID, a.RequesterEmail, a.Query, a.Title, a.Domain, a.MaxPapers, a.Status,
		nullFloat(a.Scores.Technical), nullFloat(a.Scores.Market), nullFloat(a.Scores.IP),
		nullFloat(a.Scores.Competitive), nullFloat(a.Scores.Risk), nullFloat(a.Scores.Commercial), nullFloat(a.Scores.CVS),
		nullInt(a.TRL), nullFloat(a.TAM), nullString(a.PaperID), nullString(a.AutoSelectedPaperID), a.UserOverrodeSelection,
		emptyToNull(a.Summary), emptyToNull(a.Recommendations), nullString(a.CVSReport), mustJSON(a.Notes), emptyToNull(a.Error),
		a.Version, a.CreatedAt.UTC(), a.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting analysis: %w", err)
	}
	return nil
}

// Get by internal id
func (r *AnalysisRepository) Get(ctx context.Context, id domain.ID) (*domain.Analysis, error) {
	q := r.dialect.Rebind(`SELECT ` + analysisColumns + ` FROM analyses WHERE id=? LIMIT 1`)
	a, err := scanAnalysis(r.db.QueryRowContext(ctx, q, id))
	if isNoRows(err) {
		return nil, domain.ErrAnalysisNotFound
	}
	return a, err
}

// GetByCorrelation looks a record up by the id shared with the engine.
func (r *AnalysisRepository) GetByCorrelation(ctx context.Context, cid domain.CorrelationID) (*domain.Analysis, error) {
	q := r.dialect.Rebind(`SELECT ` + analysisColumns + ` FROM analyses WHERE analysis_id=? LIMIT 1`)
	a, err := scanAnalysis(r.db.QueryRowContext(ctx, q, cid))
	if isNoRows(err) {
		return nil, domain.ErrAnalysisNotFound
	}
	return a, err
}

// ListByOwner returns one page of the owner's analyses, newest first, plus the total.
func (r *AnalysisRepository) ListByOwner(ctx context.Context, owner string, page, pageSize int) ([]*domain.Analysis, int64, error) {
	_, pageSize, off := offset(page, pageSize)

	var total int64
	cq := r.dialect.Rebind(`SELECT COUNT(*) FROM analyses WHERE owner_id=?`)
	if err := r.db.QueryRowContext(ctx, cq, owner).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting analyses: %w", err)
	}

	q := r.dialect.Rebind(`SELECT ` + analysisColumns + `
FROM analyses WHERE owner_id=?
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?`)
	rows, err := r.db.QueryContext(ctx, q, owner, pageSize, off)
	if err != nil {
		return nil, 0, fmt.Errorf("querying analyses: %w", err)
	}
	defer rows.Close()

	var out []*domain.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// Update writes every mutable column guarded by the version column.
func (r *AnalysisRepository) Update(ctx context.Context, a *domain.Analysis) error {
	q := r.dialect.Rebind(`
UPDATE analyses SET
  status=?, technical_score=?, market_score=?, ip_score=?, competitive_score=?, risk_score=?,
  commercial_score=?, cvs_score=?, trl=?, tam=?, paper_id=?, auto_selected_paper_id=?,
  user_overrode_selection=?, summary=?, recommendations=?, cvs_report=?, notes=?, error=?,
  version=?, updated_at=?
WHERE id=? AND version=?`)

	next := a.Version + 1
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, q,
		a.Status, nullFloat(a.Scores.Technical), nullFloat(a.Scores.Market), nullFloat(a.Scores.IP),
		nullFloat(a.Scores.Competitive), nullFloat(a.Scores.Risk), nullFloat(a.Scores.Commercial), nullFloat(a.Scores.CVS),
		nullInt(a.TRL), nullFloat(a.TAM), nullString(a.PaperID), nullString(a.AutoSelectedPaperID),
		a.UserOverrodeSelection, emptyToNull(a.Summary), emptyToNull(a.Recommendations), nullString(a.CVSReport),
		mustJSON(a.Notes), emptyToNull(a.Error),
		next, a.UpdatedAt.UTC(),
		a.ID, a.Version,
	)
	if err != nil {
		return fmt.Errorf("updating analysis: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating analysis: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("analysis %s version %d: %w", a.ID, a.Version, errs.ErrConflict)
	}
	a.Version = next
	return nil
}

// Delete removes the row. Correlated candidates and activity stay for audit.
func (r *AnalysisRepository) Delete(ctx context.Context, id domain.ID) error {
	q := r.dialect.Rebind(`DELETE FROM analyses WHERE id=?`)
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("deleting analysis: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAnalysisNotFound
	}
	return nil
}

// Resumable lists processing records that already have a paper selected.
func (r *AnalysisRepository) Resumable(ctx context.Context, limit int) ([]*domain.Analysis, error) {
	if limit <= 0 {
		limit = 50
	}
	q := r.dialect.Rebind(`SELECT ` + analysisColumns + `
FROM analyses
WHERE status=? AND paper_id IS NOT NULL
ORDER BY updated_at ASC
LIMIT ?`)
	rows, err := r.db.QueryContext(ctx, q, domain.StatusProcessing, limit)
	if err != nil {
		return nil, fmt.Errorf("querying resumable analyses: %w", err)
	}
	defer rows.Close()

	var out []*domain.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAnalysis(row rowScanner) (*domain.Analysis, error) {
	var (
		a                                       domain.Analysis
		tech, market, ip, comp, risk, comm, cvs sql.NullFloat64
		trl                                     sql.NullInt64
		tam                                     sql.NullFloat64
		paperID, autoID                         sql.NullString
		summary, recs, report, notes, errText   sql.NullString
	)
	if err := row.Scan(
		&a.ID, &a.AnalysisID, &a.OwnerID, &a.RequesterEmail, &a.Query, &a.Title, &a.Domain, &a.MaxPapers, &a.Status,
		&tech, &market, &ip, &comp, &risk, &comm, &cvs,
		&trl, &tam, &paperID, &autoID, &a.UserOverrodeSelection,
		&summary, &recs, &report, &notes, &errText, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.Scores = domain.Scores{
		Technical:   floatPtr(tech),
		Market:      floatPtr(market),
		IP:          floatPtr(ip),
		Competitive: floatPtr(comp),
		Risk:        floatPtr(risk),
		Commercial:  floatPtr(comm),
		CVS:         floatPtr(cvs),
	}
	a.TRL = intPtr(trl)
	a.TAM = floatPtr(tam)
	a.PaperID = stringPtr(paperID)
	a.AutoSelectedPaperID = stringPtr(autoID)
	a.Summary = summary.String
	a.Recommendations = recs.String
	a.CVSReport = stringPtr(report)
	a.Error = errText.String
	if err := decodeJSON(notes, &a.Notes); err != nil {
		return nil, fmt.Errorf("decoding notes: %w", err)
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}
