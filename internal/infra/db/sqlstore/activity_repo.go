package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bryanwahyu/research-market/internal/domain/activity"
)

type ActivityRepository struct {
	db      *sql.DB
	dialect Dialect
}

func NewActivityRepository(db *sql.DB, d Dialect) *ActivityRepository {
	return &ActivityRepository{db: db, dialect: d}
}

// Append inserts one entry. Entries are never updated.
func (r *ActivityRepository) Append(ctx context.Context, e *activity.Entry) error {
	q := r.dialect.Rebind(`
INSERT INTO activity_log (id, analysis_id, agent, status, progress, message, error, created_at)
VALUES (?,?,?,?,?,?,?,?)`)
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.AnalysisID, e.Agent, e.Status, e.Progress, emptyToNull(e.Message), emptyToNull(e.Error), e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("appending activity: %w", err)
	}
	return nil
}

// ListByAnalysis returns the full log oldest first. Ids are time-ordered
// so they break ties between entries written in the same instant.
func (r *ActivityRepository) ListByAnalysis(ctx context.Context, analysisID string) ([]*activity.Entry, error) {
	q := r.dialect.Rebind(`
SELECT id, analysis_id, agent, status, progress, message, error, created_at
FROM activity_log
WHERE analysis_id=?
ORDER BY created_at ASC, id ASC`)
	rows, err := r.db.QueryContext(ctx, q, analysisID)
	if err != nil {
		return nil, fmt.Errorf("querying activity: %w", err)
	}
	defer rows.Close()

	var out []*activity.Entry
	for rows.Next() {
		var e activity.Entry
		var msg, errText sql.NullString
		if err := rows.Scan(&e.ID, &e.AnalysisID, &e.Agent, &e.Status, &e.Progress, &msg, &errText, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Message = msg.String
		e.Error = errText.String
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, &e)
	}
	return out, rows.Err()
}
