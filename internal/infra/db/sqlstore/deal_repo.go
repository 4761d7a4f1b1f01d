package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bryanwahyu/research-market/internal/domain/deals"
	"github.com/bryanwahyu/research-market/internal/domain/errs"
)

type DealRepository struct {
	db      *sql.DB
	dialect Dialect
}

func NewDealRepository(db *sql.DB, d Dialect) *DealRepository {
	return &DealRepository{db: db, dialect: d}
}

const dealColumns = `id, listing_id, investor_id, researcher_id, paper_ref, amount, instrument, timeline, message,
       status, progress, milestones, documents, notes, payment_status, checkout_session_id, paid_at,
       version, created_at, last_update`

func (r *DealRepository) Create(ctx context.Context, d *deals.Deal) error {
	q := r.dialect.Rebind(`INSERT INTO deals (` + dealColumns + `)
VALUES (?,?,?,?,?,?,?,?,?, ?,?,?,?,?,?,?,?, ?,?,?)`)
	d.Version = 1
	_, err := r.db.ExecContext(ctx, q,
		d.ID, d.ListingID, d.InvestorID, d.ResearcherID, emptyToNull(d.PaperRef), d.Amount, d.Instrument,
		emptyToNull(d.Timeline), emptyToNull(d.Message),
		d.Status, d.Progress, mustJSON(d.Milestones), mustJSON(d.Documents), emptyToNull(d.Notes),
		d.PaymentStatus, emptyToNull(d.CheckoutSessionID), nullTime(d.PaidAt),
		d.Version, d.CreatedAt.UTC(), d.LastUpdate.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting deal: %w", err)
	}
	return nil
}

func (r *DealRepository) Get(ctx context.Context, id deals.ID) (*deals.Deal, error) {
	q := r.dialect.Rebind(`SELECT ` + dealColumns + ` FROM deals WHERE id=?`)
	d, err := scanDeal(r.db.QueryRowContext(ctx, q, id))
	if isNoRows(err) {
		return nil, errs.ErrNotFoundOrForbidden
	}
	return d, err
}

func (r *DealRepository) FindByCheckoutSession(ctx context.Context, sessionID string) (*deals.Deal, error) {
	q := r.dialect.Rebind(`SELECT ` + dealColumns + ` FROM deals WHERE checkout_session_id=?`)
	d, err := scanDeal(r.db.QueryRowContext(ctx, q, sessionID))
	if isNoRows(err) {
		return nil, errs.ErrNotFoundOrForbidden
	}
	return d, err
}

func (r *DealRepository) ListByParty(ctx context.Context, userID string, limit int) ([]*deals.Deal, error) {
	if limit <= 0 {
		limit = 50
	}
	q := r.dialect.Rebind(`SELECT ` + dealColumns + `
FROM deals
WHERE investor_id=? OR researcher_id=?
ORDER BY last_update DESC, id DESC
LIMIT ?`)
	rows, err := r.db.QueryContext(ctx, q, userID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying deals: %w", err)
	}
	defer rows.Close()

	var out []*deals.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Update writes the mutable columns guarded by version.
func (r *DealRepository) Update(ctx context.Context, d *deals.Deal) error {
	q := r.dialect.Rebind(`
UPDATE deals SET
  status=?, progress=?, milestones=?, documents=?, notes=?,
  payment_status=?, checkout_session_id=?, paid_at=?, version=?, last_update=?
WHERE id=? AND version=?`)
	next := d.Version + 1
	if d.LastUpdate.IsZero() {
		d.LastUpdate = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, q,
		d.Status, d.Progress, mustJSON(d.Milestones), mustJSON(d.Documents), emptyToNull(d.Notes),
		d.PaymentStatus, emptyToNull(d.CheckoutSessionID), nullTime(d.PaidAt), next, d.LastUpdate.UTC(),
		d.ID, d.Version,
	)
	if err != nil {
		return fmt.Errorf("updating deal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating deal: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("deal %s version %d: %w", d.ID, d.Version, errs.ErrConflict)
	}
	d.Version = next
	return nil
}

func scanDeal(row rowScanner) (*deals.Deal, error) {
	var (
		d                                deals.Deal
		paper, timeline, message, notes  sql.NullString
		milestones, documents, sessionID sql.NullString
		paidAt                           sql.NullTime
	)
	if err := row.Scan(
		&d.ID, &d.ListingID, &d.InvestorID, &d.ResearcherID, &paper, &d.Amount, &d.Instrument, &timeline, &message,
		&d.Status, &d.Progress, &milestones, &documents, &notes, &d.PaymentStatus, &sessionID, &paidAt,
		&d.Version, &d.CreatedAt, &d.LastUpdate,
	); err != nil {
		return nil, err
	}
	d.PaperRef = paper.String
	d.Timeline = timeline.String
	d.Message = message.String
	d.Notes = notes.String
	d.CheckoutSessionID = sessionID.String
	d.PaidAt = timePtr(paidAt)
	if err := decodeJSON(milestones, &d.Milestones); err != nil {
		return nil, fmt.Errorf("decoding milestones: %w", err)
	}
	if err := decodeJSON(documents, &d.Documents); err != nil {
		return nil, fmt.Errorf("decoding documents: %w", err)
	}
	d.CreatedAt = d.CreatedAt.UTC()
	d.LastUpdate = d.LastUpdate.UTC()
	return &d, nil
}
