package sqlstore_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/research-market/internal/domain/activity"
	"github.com/bryanwahyu/research-market/internal/domain/analyses"
	"github.com/bryanwahyu/research-market/internal/domain/deals"
	"github.com/bryanwahyu/research-market/internal/domain/errs"
	"github.com/bryanwahyu/research-market/internal/domain/listings"
	"github.com/bryanwahyu/research-market/internal/domain/outbox"
	"github.com/bryanwahyu/research-market/internal/domain/papers"
	"github.com/bryanwahyu/research-market/internal/infra/db/sqlstore"
	"github.com/bryanwahyu/research-market/internal/testutil"
)

var base = time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC)

func newAnalysis(owner string, at time.Time) *analyses.Analysis {
	return &analyses.Analysis{
		ID:             analyses.ID(uuid.NewString()),
		AnalysisID:     analyses.CorrelationID(uuid.NewString()),
		OwnerID:        owner,
		RequesterEmail: owner + "@lab.example",
		Query:          "solid state electrolytes",
		Title:          "solid state electrolytes",
		Domain:         "energy",
		MaxPapers:      10,
		Status:         analyses.StatusProcessing,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	s := testutil.NewStores(t)
	ctx := context.Background()

	require.NoError(t, sqlstore.Migrate(ctx, s.DB, sqlstore.SQLite))
	v, err := sqlstore.SchemaVersion(ctx, s.DB)
	require.NoError(t, err)
	assert.Equal(t, sqlstore.LatestVersion(), v)
}

func TestAnalysisRepository_RoundTrip(t *testing.T) {
	s := testutil.NewStores(t)
	ctx := context.Background()

	a := newAnalysis("u-1", base)
	require.NoError(t, s.Analyses.Create(ctx, a))
	assert.Equal(t, int64(1), a.Version)

	got, err := s.Analyses.GetByCorrelation(ctx, a.AnalysisID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, analyses.StatusProcessing, got.Status)
	assert.Nil(t, got.Scores.CVS)
	assert.Nil(t, got.PaperID)
	assert.True(t, base.Equal(got.CreatedAt))

	cvs, trl := 72.5, 5
	paper := "p-9"
	confirmed := base.Add(time.Minute)
	got.Status = analyses.StatusCompleted
	got.Scores.CVS = &cvs
	got.TRL = &trl
	got.PaperID = &paper
	got.UserOverrodeSelection = true
	got.Notes = analyses.ProgressNotes{Validated: true, PaperSelected: true, ReportReady: true, ConfirmedAt: &confirmed}
	got.UpdatedAt = base.Add(time.Hour)
	require.NoError(t, s.Analyses.Update(ctx, got))
	assert.Equal(t, int64(2), got.Version)

	again, err := s.Analyses.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, analyses.StatusCompleted, again.Status)
	assert.Equal(t, 72.5, *again.Scores.CVS)
	assert.Equal(t, 5, *again.TRL)
	assert.Equal(t, "p-9", *again.PaperID)
	assert.True(t, again.UserOverrodeSelection)
	assert.True(t, again.Notes.ReportReady)
	require.NotNil(t, again.Notes.ConfirmedAt)
	assert.True(t, confirmed.Equal(*again.Notes.ConfirmedAt))
}

func TestAnalysisRepository_VersionConflict(t *testing.T) {
	s := testutil.NewStores(t)
	ctx := context.Background()

	a := newAnalysis("u-1", base)
	require.NoError(t, s.Analyses.Create(ctx, a))

	first, err := s.Analyses.Get(ctx, a.ID)
	require.NoError(t, err)
	second, err := s.Analyses.Get(ctx, a.ID)
	require.NoError(t, err)

	first.Status = analyses.StatusPending
	require.NoError(t, s.Analyses.Update(ctx, first))

	second.Status = analyses.StatusFailed
	err = s.Analyses.Update(ctx, second)
	assert.ErrorIs(t, err, errs.ErrConflict)

	stored, err := s.Analyses.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, analyses.StatusPending, stored.Status)
}

func TestAnalysisRepository_NotFound(t *testing.T) {
	s := testutil.NewStores(t)
	ctx := context.Background()

	_, err := s.Analyses.Get(ctx, "missing")
	assert.ErrorIs(t, err, analyses.ErrAnalysisNotFound)
	_, err = s.Analyses.GetByCorrelation(ctx, "missing")
	assert.ErrorIs(t, err, analyses.ErrAnalysisNotFound)
	assert.ErrorIs(t, s.Analyses.Delete(ctx, "missing"), analyses.ErrAnalysisNotFound)
}

func TestAnalysisRepository_ListByOwner(t *testing.T) {
	s := testutil.NewStores(t)
	ctx := context.Background()

	var ids []analyses.ID
	for i := 0; i < 5; i++ {
		a := newAnalysis("u-1", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, s.Analyses.Create(ctx, a))
		ids = append(ids, a.ID)
	}
	require.NoError(t, s.Analyses.Create(ctx, newAnalysis("u-2", base)))

	page, total, err := s.Analyses.ListByOwner(ctx, "u-1", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page, 2)
	assert.Equal(t, ids[4], page[0].ID, "newest first")
	assert.Equal(t, ids[3], page[1].ID)

	last, _, err := s.Analyses.ListByOwner(ctx, "u-1", 3, 2)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, ids[0], last[0].ID)
}

func TestAnalysisRepository_Resumable(t *testing.T) {
	s := testutil.NewStores(t)
	ctx := context.Background()

	waiting := newAnalysis("u-1", base)
	require.NoError(t, s.Analyses.Create(ctx, waiting))

	chosen := newAnalysis("u-1", base)
	paper := "p-1"
	chosen.PaperID = &paper
	require.NoError(t, s.Analyses.Create(ctx, chosen))

	list, err := s.Analyses.Resumable(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, chosen.ID, list[0].ID)
}

func TestCandidateRepository_Ordering(t *testing.T) {
	s := testutil.NewStores(t)
	ctx := context.Background()

	var batch []*papers.Candidate
	for i, score := range []float64{0.70, 0.99, 0.70, 0.92} {
		batch = append(batch, &papers.Candidate{
			ID:             uuid.NewString(),
			AnalysisID:     "cid-1",
			Title:          fmt.Sprintf("paper %d", i),
			Authors:        []string{"Ada", "Grace"},
			Year:           2021,
			RelevanceScore: score,
			PaperRef:       fmt.Sprintf("ref-%d", i),
			Metadata:       papers.Metadata{AutoSelected: i == 3, SelectionReason: "best fit"},
			CreatedAt:      base,
		})
	}
	saved, err := s.Candidates.SaveBatch(ctx, batch)
	require.NoError(t, err)
	assert.True(t, saved)

	got, err := s.Candidates.ListByAnalysis(ctx, "cid-1")
	require.NoError(t, err)
	var titles []string
	for _, c := range got {
		titles = append(titles, c.Title)
	}
	assert.Equal(t, []string{"paper 1", "paper 3", "paper 0", "paper 2"}, titles)
	assert.Equal(t, []string{"Ada", "Grace"}, got[0].Authors)
	assert.True(t, got[1].Metadata.AutoSelected)
	assert.Equal(t, "best fit", got[1].Metadata.SelectionReason)

	n, err := s.Candidates.CountByAnalysis(ctx, "cid-1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	none, err := s.Candidates.ListByAnalysis(ctx, "cid-2")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCandidateRepository_WrittenOnce(t *testing.T) {
	s := testutil.NewStores(t)
	ctx := context.Background()

	batch := func() []*papers.Candidate {
		var out []*papers.Candidate
		for i := 0; i < 3; i++ {
			out = append(out, &papers.Candidate{
				ID: uuid.NewString(), AnalysisID: "cid-1", Title: fmt.Sprintf("paper %d", i),
				RelevanceScore: 0.5, PaperRef: fmt.Sprintf("ref-%d", i),
				Metadata: papers.Metadata{AutoSelected: i == 0}, CreatedAt: base,
			})
		}
		return out
	}

	first := batch()
	saved, err := s.Candidates.SaveBatch(ctx, first)
	require.NoError(t, err)
	require.True(t, saved)

	saved, err = s.Candidates.SaveBatch(ctx, batch())
	require.NoError(t, err)
	assert.False(t, saved)

	got, err := s.Candidates.ListByAnalysis(ctx, "cid-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, first[0].ID, got[0].ID, "first batch kept")

	saved, err = s.Candidates.SaveBatch(ctx, nil)
	require.NoError(t, err)
	assert.False(t, saved)

	mixed := batch()
	mixed[1].AnalysisID = "cid-2"
	mixed[0].AnalysisID = "cid-2"
	_, err = s.Candidates.SaveBatch(ctx, mixed)
	assert.Error(t, err, "one batch, one analysis")
}

func TestCandidateRepository_UniquePaperPerAnalysis(t *testing.T) {
	s := testutil.NewStores(t)
	ctx := context.Background()

	dup := []*papers.Candidate{
		{ID: uuid.NewString(), AnalysisID: "cid-9", Title: "a", PaperRef: "W1", CreatedAt: base},
		{ID: uuid.NewString(), AnalysisID: "cid-9", Title: "b", PaperRef: "W1", CreatedAt: base},
	}
	_, err := s.Candidates.SaveBatch(ctx, dup)
	require.Error(t, err)

	n, err := s.Candidates.CountByAnalysis(ctx, "cid-9")
	require.NoError(t, err)
	assert.Zero(t, n, "failed batch rolls back")
}

func TestActivityRepository_Order(t *testing.T) {
	s := testutil.NewStores(t)
	ctx := context.Background()

	// same instant: v7 ids keep insertion order
	for i, st := range []activity.EntryStatus{activity.EntryStarted, activity.EntryInProgress, activity.EntryCompleted} {
		id, err := uuid.NewV7()
		require.NoError(t, err)
		require.NoError(t, s.Activity.Append(ctx, &activity.Entry{
			ID:         id.String(),
			AnalysisID: "cid-1",
			Agent:      activity.AgentValidation,
			Status:     st,
			Progress:   i * 50,
			CreatedAt:  base,
		}))
	}
	got, err := s.Activity.ListByAnalysis(ctx, "cid-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, activity.EntryStarted, got[0].Status)
	assert.Equal(t, activity.EntryInProgress, got[1].Status)
	assert.Equal(t, activity.EntryCompleted, got[2].Status)
}

func TestReportRepository(t *testing.T) {
	s := testutil.NewStores(t)
	ctx := context.Background()

	none, err := s.Reports.TechnicalReport(ctx, "cid-1")
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, s.Reports.SaveTechnicalReport(ctx, &analyses.TechnicalReport{
		AnalysisID: "cid-1", Format: "markdown", Body: "# draft", CreatedAt: base,
	}))
	require.NoError(t, s.Reports.SaveTechnicalReport(ctx, &analyses.TechnicalReport{
		AnalysisID: "cid-1", Format: "html", Body: "<h1>final</h1>", CreatedAt: base.Add(time.Minute),
	}))

	rep, err := s.Reports.TechnicalReport(ctx, "cid-1")
	require.NoError(t, err)
	require.NotNil(t, rep)
	assert.Equal(t, "html", rep.Format)
	assert.Equal(t, "<h1>final</h1>", rep.Body)
}

func TestListingRepository_Browse(t *testing.T) {
	s := testutil.NewStores(t)
	ctx := context.Background()

	for i, l := range []struct {
		domain string
		cvs    float64
	}{{"energy", 80}, {"energy", 55}, {"biotech", 91}} {
		require.NoError(t, s.Listings.Create(ctx, &listings.Listing{
			ID:          uuid.NewString(),
			AnalysisRef: fmt.Sprintf("a-%d", i),
			OwnerID:     "u-1",
			Title:       fmt.Sprintf("listing %d", i),
			Domain:      l.domain,
			CVSScore:    l.cvs,
			PublishedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	page, err := s.Listings.Browse(ctx, listings.Filter{Domain: "energy", MinCVS: 60}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "listing 0", page.Data[0].Title)

	all, err := s.Listings.Browse(ctx, listings.Filter{}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.Total)
	assert.Equal(t, 2, all.TotalPages)
	assert.Equal(t, "listing 2", all.Data[0].Title)

	byRef, err := s.Listings.GetByAnalysis(ctx, "a-1")
	require.NoError(t, err)
	require.NotNil(t, byRef)
	assert.Equal(t, 55.0, byRef.CVSScore)

	missing, err := s.Listings.GetByAnalysis(ctx, "a-9")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDealRepository(t *testing.T) {
	s := testutil.NewStores(t)
	ctx := context.Background()

	d := deals.New(deals.ID(uuid.NewString()), base)
	d.ListingID = "l-1"
	d.InvestorID = "inv-1"
	d.ResearcherID = "res-1"
	d.Amount = 500000
	d.Instrument = deals.InstrumentSAFE
	require.NoError(t, s.Deals.Create(ctx, d))

	got, err := s.Deals.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, deals.StatusCommitted, got.Status)
	assert.Equal(t, 15, got.Progress)
	require.Len(t, got.Milestones, 4)
	assert.True(t, got.Milestones[0].Completed)
	assert.Len(t, got.Documents, len(deals.DefaultDocuments))

	require.NoError(t, got.Apply(deals.StatusDueDiligence, "nda signed", base.Add(time.Hour)))
	got.CheckoutSessionID = "cs_test_1"
	require.NoError(t, s.Deals.Update(ctx, got))

	stale := *d
	stale.Notes = "stale write"
	assert.ErrorIs(t, s.Deals.Update(ctx, &stale), errs.ErrConflict)

	bySession, err := s.Deals.FindByCheckoutSession(ctx, "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, d.ID, bySession.ID)
	assert.Equal(t, "nda signed", bySession.Notes)
	assert.Equal(t, 45, bySession.Progress)

	for _, party := range []string{"inv-1", "res-1"} {
		list, err := s.Deals.ListByParty(ctx, party, 10)
		require.NoError(t, err)
		assert.Len(t, list, 1, party)
	}
	outsider, err := s.Deals.ListByParty(ctx, "someone", 10)
	require.NoError(t, err)
	assert.Empty(t, outsider)

	_, err = s.Deals.Get(ctx, "missing")
	assert.ErrorIs(t, err, errs.ErrNotFoundOrForbidden)
}

func TestOutboxRepository_Due(t *testing.T) {
	s := testutil.NewStores(t)
	ctx := context.Background()

	early := &outbox.Event{ID: "e-1", Kind: outbox.KindAnalysisStart, AnalysisID: "cid-1", Payload: []byte(`{"a":1}`),
		Status: outbox.StatusPending, NextAttemptAt: base, CreatedAt: base}
	later := &outbox.Event{ID: "e-2", Kind: outbox.KindAnalysisResume, AnalysisID: "cid-1", Payload: []byte(`{}`),
		Status: outbox.StatusPending, NextAttemptAt: base.Add(time.Hour), CreatedAt: base}
	require.NoError(t, s.Outbox.Enqueue(ctx, early))
	require.NoError(t, s.Outbox.Enqueue(ctx, later))

	due, err := s.Outbox.Due(ctx, base.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "e-1", due[0].ID)
	assert.JSONEq(t, `{"a":1}`, string(due[0].Payload))

	require.NoError(t, s.Outbox.MarkFailed(ctx, "e-1", 1, "connection refused", base.Add(2*time.Minute), false))
	due, err = s.Outbox.Due(ctx, base.Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	require.NoError(t, s.Outbox.MarkFailed(ctx, "e-2", 3, "boom", base, true))
	require.NoError(t, s.Outbox.MarkDelivered(ctx, "e-1", base.Add(3*time.Minute)))

	due, err = s.Outbox.Due(ctx, base.Add(24*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due, "delivered and dead events are never due")

	e1, err := s.Outbox.Get(ctx, "e-1")
	require.NoError(t, err)
	assert.Equal(t, outbox.StatusDelivered, e1.Status)
	assert.Equal(t, 2, e1.Attempts)
	assert.Empty(t, e1.LastError)
	require.NotNil(t, e1.DeliveredAt)

	e2, err := s.Outbox.Get(ctx, "e-2")
	require.NoError(t, err)
	assert.Equal(t, outbox.StatusDead, e2.Status)
	assert.Equal(t, "boom", e2.LastError)
}
