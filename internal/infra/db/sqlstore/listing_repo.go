package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	"github.com/bryanwahyu/research-market/internal/domain/errs"
	"github.com/bryanwahyu/research-market/internal/domain/listings"
)

type ListingRepository struct {
	db      *sql.DB
	dialect Dialect
}

func NewListingRepository(db *sql.DB, d Dialect) *ListingRepository {
	return &ListingRepository{db: db, dialect: d}
}

const listingColumns = `id, analysis_ref, owner_id, title, domain, paper_ref, cvs_score, trl, tam, summary, published_at`

func (r *ListingRepository) Create(ctx context.Context, l *listings.Listing) error {
	q := r.dialect.Rebind(`INSERT INTO listings (` + listingColumns + `) VALUES (?,?,?,?,?,?,?,?,?,?,?)`)
	_, err := r.db.ExecContext(ctx, q,
		l.ID, l.AnalysisRef, l.OwnerID, l.Title, l.Domain, emptyToNull(l.PaperRef), l.CVSScore,
		nullInt(l.TRL), nullFloat(l.TAM), emptyToNull(l.Summary), l.PublishedAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting listing: %w", err)
	}
	return nil
}

func (r *ListingRepository) Get(ctx context.Context, id string) (*listings.Listing, error) {
	q := r.dialect.Rebind(`SELECT ` + listingColumns + ` FROM listings WHERE id=?`)
	l, err := scanListing(r.db.QueryRowContext(ctx, q, id))
	if isNoRows(err) {
		return nil, errs.ErrNotFoundOrForbidden
	}
	return l, err
}

func (r *ListingRepository) GetByAnalysis(ctx context.Context, analysisRef string) (*listings.Listing, error) {
	q := r.dialect.Rebind(`SELECT ` + listingColumns + ` FROM listings WHERE analysis_ref=?`)
	l, err := scanListing(r.db.QueryRowContext(ctx, q, analysisRef))
	if isNoRows(err) {
		return nil, nil
	}
	return l, err
}

// Browse with offset + limit (classic pagination)
func (r *ListingRepository) Browse(ctx context.Context, f listings.Filter, page, pageSize int) (listings.Page, error) {
	page, pageSize, off := offset(page, pageSize)

	var where []string
	var args []any
	if f.Domain != "" {
		where = append(where, "domain = ?")
		args = append(args, f.Domain)
	}
	if f.MinCVS > 0 {
		where = append(where, "cvs_score >= ?")
		args = append(args, f.MinCVS)
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, r.dialect.Rebind(`SELECT COUNT(*) FROM listings`+cond), args...).Scan(&total); err != nil {
		return listings.Page{}, fmt.Errorf("counting listings: %w", err)
	}

	q := r.dialect.Rebind(`SELECT ` + listingColumns + ` FROM listings` + cond + `
ORDER BY published_at DESC, id DESC
LIMIT ? OFFSET ?`)
	rows, err := r.db.QueryContext(ctx, q, append(args, pageSize, off)...)
	if err != nil {
		return listings.Page{}, fmt.Errorf("querying listings: %w", err)
	}
	defer rows.Close()

	data := []*listings.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return listings.Page{}, fmt.Errorf("scanning row: %w", err)
		}
		data = append(data, l)
	}
	if err := rows.Err(); err != nil {
		return listings.Page{}, fmt.Errorf("iterating rows: %w", err)
	}

	return listings.Page{
		Data:       data,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	}, nil
}

func scanListing(row rowScanner) (*listings.Listing, error) {
	var (
		l              listings.Listing
		paper, summary sql.NullString
		trl            sql.NullInt64
		tam            sql.NullFloat64
	)
	if err := row.Scan(&l.ID, &l.AnalysisRef, &l.OwnerID, &l.Title, &l.Domain, &paper, &l.CVSScore,
		&trl, &tam, &summary, &l.PublishedAt); err != nil {
		return nil, err
	}
	l.PaperRef = paper.String
	l.Summary = summary.String
	l.TRL = intPtr(trl)
	l.TAM = floatPtr(tam)
	l.PublishedAt = l.PublishedAt.UTC()
	return &l, nil
}
