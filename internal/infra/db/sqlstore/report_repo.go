package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	domain "github.com/bryanwahyu/research-market/internal/domain/analyses"
)

type ReportRepository struct {
	db      *sql.DB
	dialect Dialect
}

func NewReportRepository(db *sql.DB, d Dialect) *ReportRepository {
	return &ReportRepository{db: db, dialect: d}
}

// SaveTechnicalReport replaces the report for the correlation id.
func (r *ReportRepository) SaveTechnicalReport(ctx context.Context, rep *domain.TechnicalReport) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin report tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, r.dialect.Rebind(`DELETE FROM technical_reports WHERE analysis_id=?`), rep.AnalysisID); err != nil {
		return fmt.Errorf("replacing report: %w", err)
	}
	q := r.dialect.Rebind(`INSERT INTO technical_reports (analysis_id, format, body, created_at) VALUES (?,?,?,?)`)
	if _, err := tx.ExecContext(ctx, q, rep.AnalysisID, rep.Format, rep.Body, rep.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("inserting report: %w", err)
	}
	return tx.Commit()
}

func (r *ReportRepository) TechnicalReport(ctx context.Context, cid domain.CorrelationID) (*domain.TechnicalReport, error) {
	q := r.dialect.Rebind(`SELECT analysis_id, format, body, created_at FROM technical_reports WHERE analysis_id=?`)
	var rep domain.TechnicalReport
	err := r.db.QueryRowContext(ctx, q, cid).Scan(&rep.AnalysisID, &rep.Format, &rep.Body, &rep.CreatedAt)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying report: %w", err)
	}
	return &rep, nil
}
