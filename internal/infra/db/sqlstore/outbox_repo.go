package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bryanwahyu/research-market/internal/domain/errs"
	"github.com/bryanwahyu/research-market/internal/domain/outbox"
)

type OutboxRepository struct {
	db      *sql.DB
	dialect Dialect
}

func NewOutboxRepository(db *sql.DB, d Dialect) *OutboxRepository {
	return &OutboxRepository{db: db, dialect: d}
}

const outboxColumns = `id, kind, analysis_id, payload, status, attempts, last_error, next_attempt_at, created_at, delivered_at`

func (r *OutboxRepository) Enqueue(ctx context.Context, e *outbox.Event) error {
	q := r.dialect.Rebind(`INSERT INTO outbox_events (` + outboxColumns + `) VALUES (?,?,?,?,?,?,?,?,?,?)`)
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.Kind, e.AnalysisID, string(e.Payload), e.Status, e.Attempts, emptyToNull(e.LastError),
		e.NextAttemptAt.UTC(), e.CreatedAt.UTC(), nullTime(e.DeliveredAt))
	if err != nil {
		return fmt.Errorf("enqueueing outbox event: %w", err)
	}
	return nil
}

func (r *OutboxRepository) Get(ctx context.Context, id string) (*outbox.Event, error) {
	q := r.dialect.Rebind(`SELECT ` + outboxColumns + ` FROM outbox_events WHERE id=?`)
	e, err := scanEvent(r.db.QueryRowContext(ctx, q, id))
	if isNoRows(err) {
		return nil, errs.ErrNotFoundOrForbidden
	}
	return e, err
}

func (r *OutboxRepository) Due(ctx context.Context, now time.Time, limit int) ([]*outbox.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	q := r.dialect.Rebind(`SELECT ` + outboxColumns + `
FROM outbox_events
WHERE status=? AND next_attempt_at <= ?
ORDER BY next_attempt_at ASC, created_at ASC
LIMIT ?`)
	rows, err := r.db.QueryContext(ctx, q, outbox.StatusPending, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("querying due events: %w", err)
	}
	defer rows.Close()

	var out []*outbox.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *OutboxRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	q := r.dialect.Rebind(`UPDATE outbox_events SET status=?, attempts=attempts+1, delivered_at=?, last_error=NULL WHERE id=?`)
	_, err := r.db.ExecContext(ctx, q, outbox.StatusDelivered, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("marking event delivered: %w", err)
	}
	return nil
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id string, attempts int, lastErr string, next time.Time, dead bool) error {
	status := outbox.StatusPending
	if dead {
		status = outbox.StatusDead
	}
	q := r.dialect.Rebind(`UPDATE outbox_events SET status=?, attempts=?, last_error=?, next_attempt_at=? WHERE id=?`)
	_, err := r.db.ExecContext(ctx, q, status, attempts, emptyToNull(lastErr), next.UTC(), id)
	if err != nil {
		return fmt.Errorf("marking event failed: %w", err)
	}
	return nil
}

func scanEvent(row rowScanner) (*outbox.Event, error) {
	var (
		e         outbox.Event
		payload   string
		lastErr   sql.NullString
		delivered sql.NullTime
	)
	if err := row.Scan(&e.ID, &e.Kind, &e.AnalysisID, &payload, &e.Status, &e.Attempts, &lastErr,
		&e.NextAttemptAt, &e.CreatedAt, &delivered); err != nil {
		return nil, err
	}
	e.Payload = []byte(payload)
	e.LastError = lastErr.String
	e.DeliveredAt = timePtr(delivered)
	e.NextAttemptAt = e.NextAttemptAt.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}
