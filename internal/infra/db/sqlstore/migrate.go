package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Migration is one ordered schema step.
type Migration struct {
	Version     int
	Description string
	Statements  []string
}

// migrations is append-only; never edit a released step.
var migrations = []Migration{
	{
		Version:     1,
		Description: "analyses, candidates, activity log, reports",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS analyses (
  id VARCHAR(64) PRIMARY KEY,
  analysis_id VARCHAR(64) NOT NULL UNIQUE,
  owner_id VARCHAR(64) NOT NULL,
  requester_email VARCHAR(320) NOT NULL,
  query {{TEXT}} NOT NULL,
  title VARCHAR(255) NOT NULL,
  domain VARCHAR(128) NOT NULL,
  max_papers INTEGER NOT NULL,
  status VARCHAR(32) NOT NULL,
  technical_score DOUBLE PRECISION NULL,
  market_score DOUBLE PRECISION NULL,
  ip_score DOUBLE PRECISION NULL,
  competitive_score DOUBLE PRECISION NULL,
  risk_score DOUBLE PRECISION NULL,
  commercial_score DOUBLE PRECISION NULL,
  cvs_score DOUBLE PRECISION NULL,
  trl INTEGER NULL,
  tam DOUBLE PRECISION NULL,
  paper_id VARCHAR(255) NULL,
  auto_selected_paper_id VARCHAR(255) NULL,
  user_overrode_selection BOOLEAN NOT NULL,
  summary {{TEXT}} NULL,
  recommendations {{TEXT}} NULL,
  cvs_report {{TEXT}} NULL,
  notes {{TEXT}} NULL,
  error {{TEXT}} NULL,
  version BIGINT NOT NULL,
  created_at {{TS}} NOT NULL,
  updated_at {{TS}} NOT NULL
)`,
			`CREATE INDEX idx_analyses_owner ON analyses (owner_id, created_at)`,
			`CREATE INDEX idx_analyses_status ON analyses (status)`,
			`CREATE TABLE IF NOT EXISTS paper_candidates (
  id VARCHAR(64) PRIMARY KEY,
  analysis_id VARCHAR(64) NOT NULL,
  title {{TEXT}} NOT NULL,
  authors {{TEXT}} NOT NULL,
  abstract {{TEXT}} NULL,
  year INTEGER NOT NULL,
  citation_count INTEGER NOT NULL,
  relevance_score DOUBLE PRECISION NOT NULL,
  paper_ref VARCHAR(255) NOT NULL,
  url {{TEXT}} NULL,
  metadata {{TEXT}} NOT NULL,
  rank_pos INTEGER NOT NULL,
  created_at {{TS}} NOT NULL
)`,
			`CREATE INDEX idx_candidates_analysis ON paper_candidates (analysis_id)`,
			`CREATE TABLE IF NOT EXISTS activity_log (
  id VARCHAR(64) PRIMARY KEY,
  analysis_id VARCHAR(64) NOT NULL,
  agent VARCHAR(32) NOT NULL,
  status VARCHAR(32) NOT NULL,
  progress INTEGER NOT NULL,
  message {{TEXT}} NULL,
  error {{TEXT}} NULL,
  created_at {{TS}} NOT NULL
)`,
			`CREATE INDEX idx_activity_analysis ON activity_log (analysis_id, created_at)`,
			`CREATE TABLE IF NOT EXISTS technical_reports (
  analysis_id VARCHAR(64) PRIMARY KEY,
  format VARCHAR(16) NOT NULL,
  body {{TEXT}} NOT NULL,
  created_at {{TS}} NOT NULL
)`,
		},
	},
	{
		Version:     2,
		Description: "listings and deals",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS listings (
  id VARCHAR(64) PRIMARY KEY,
  analysis_ref VARCHAR(64) NOT NULL UNIQUE REFERENCES analyses(id),
  owner_id VARCHAR(64) NOT NULL,
  title VARCHAR(255) NOT NULL,
  domain VARCHAR(128) NOT NULL,
  paper_ref VARCHAR(255) NULL,
  cvs_score DOUBLE PRECISION NOT NULL,
  trl INTEGER NULL,
  tam DOUBLE PRECISION NULL,
  summary {{TEXT}} NULL,
  published_at {{TS}} NOT NULL
)`,
			`CREATE INDEX idx_listings_published ON listings (published_at)`,
			`CREATE TABLE IF NOT EXISTS deals (
  id VARCHAR(64) PRIMARY KEY,
  listing_id VARCHAR(64) NOT NULL REFERENCES listings(id),
  investor_id VARCHAR(64) NOT NULL,
  researcher_id VARCHAR(64) NOT NULL,
  paper_ref VARCHAR(255) NULL,
  amount DOUBLE PRECISION NOT NULL,
  instrument VARCHAR(32) NOT NULL,
  timeline VARCHAR(64) NULL,
  message {{TEXT}} NULL,
  status VARCHAR(32) NOT NULL,
  progress INTEGER NOT NULL,
  milestones {{TEXT}} NOT NULL,
  documents {{TEXT}} NOT NULL,
  notes {{TEXT}} NULL,
  payment_status VARCHAR(16) NOT NULL,
  checkout_session_id VARCHAR(255) NULL,
  paid_at {{TS}} NULL,
  version BIGINT NOT NULL,
  created_at {{TS}} NOT NULL,
  last_update {{TS}} NOT NULL
)`,
			`CREATE INDEX idx_deals_investor ON deals (investor_id)`,
			`CREATE INDEX idx_deals_researcher ON deals (researcher_id)`,
			`CREATE INDEX idx_deals_checkout ON deals (checkout_session_id)`,
		},
	},
	{
		Version:     3,
		Description: "trigger outbox",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS outbox_events (
  id VARCHAR(64) PRIMARY KEY,
  kind VARCHAR(32) NOT NULL,
  analysis_id VARCHAR(64) NOT NULL,
  payload {{TEXT}} NOT NULL,
  status VARCHAR(16) NOT NULL,
  attempts INTEGER NOT NULL,
  last_error {{TEXT}} NULL,
  next_attempt_at {{TS}} NOT NULL,
  created_at {{TS}} NOT NULL,
  delivered_at {{TS}} NULL
)`,
			`CREATE INDEX idx_outbox_due ON outbox_events (status, next_attempt_at)`,
		},
	},
	{
		Version:     4,
		Description: "one row per paper per analysis",
		Statements: []string{
			`CREATE UNIQUE INDEX uq_candidates_paper ON paper_candidates (analysis_id, paper_ref)`,
		},
	},
}

// LatestVersion is the version of the last migration.
func LatestVersion() int { return migrations[len(migrations)-1].Version }

// Migrate brings the schema up to date. Applied versions are tracked in
// schema_migrations; each step runs at most once.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	create := d.ddl(`CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  description VARCHAR(255) NOT NULL,
  applied_at {{TS}} NOT NULL
)`)
	if _, err := db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	current, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		for i, stmt := range m.Statements {
			if _, err := db.ExecContext(ctx, d.ddl(stmt)); err != nil {
				return fmt.Errorf("migration %d (%s) statement %d: %w", m.Version, m.Description, i+1, err)
			}
		}
		_, err := db.ExecContext(ctx,
			d.Rebind(`INSERT INTO schema_migrations (version, description, applied_at) VALUES (?,?,?)`),
			m.Version, m.Description, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("recording migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration, 0 on a fresh database.
func SchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&v); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return int(v.Int64), nil
}
