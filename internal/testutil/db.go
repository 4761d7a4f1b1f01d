// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/research-market/internal/infra/db/sqlite"
	"github.com/bryanwahyu/research-market/internal/infra/db/sqlstore"
)

// Stores bundles every SQL repository over one database.
type Stores struct {
	DB         *sql.DB
	Analyses   *sqlstore.AnalysisRepository
	Reports    *sqlstore.ReportRepository
	Candidates *sqlstore.CandidateRepository
	Activity   *sqlstore.ActivityRepository
	Listings   *sqlstore.ListingRepository
	Deals      *sqlstore.DealRepository
	Outbox     *sqlstore.OutboxRepository
}

// NewStores opens a migrated SQLite database in a temp dir. It is closed
// when the test ends.
func NewStores(t testing.TB) *Stores {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlstore.Migrate(ctx, db, sqlstore.SQLite))

	d := sqlstore.SQLite
	return &Stores{
		DB:         db,
		Analyses:   sqlstore.NewAnalysisRepository(db, d),
		Reports:    sqlstore.NewReportRepository(db, d),
		Candidates: sqlstore.NewCandidateRepository(db, d),
		Activity:   sqlstore.NewActivityRepository(db, d),
		Listings:   sqlstore.NewListingRepository(db, d),
		Deals:      sqlstore.NewDealRepository(db, d),
		Outbox:     sqlstore.NewOutboxRepository(db, d),
	}
}
