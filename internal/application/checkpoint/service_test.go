package checkpoint_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/bryanwahyu/research-market/internal/application"
	appanalyses "github.com/bryanwahyu/research-market/internal/application/analyses"
	"github.com/bryanwahyu/research-market/internal/application/checkpoint"
	"github.com/bryanwahyu/research-market/internal/domain/analyses"
	"github.com/bryanwahyu/research-market/internal/domain/errs"
	"github.com/bryanwahyu/research-market/internal/domain/outbox"
	"github.com/bryanwahyu/research-market/internal/domain/papers"
	"github.com/bryanwahyu/research-market/internal/domain/workflow"
	"github.com/bryanwahyu/research-market/internal/testutil"
)

type recordingTrigger struct {
	mu      sync.Mutex
	resumes []workflow.ResumePayload
	err     error
}

func (r *recordingTrigger) Enqueue(_ context.Context, kind outbox.Kind, _ string, payload any) error {
	if kind != outbox.KindAnalysisResume {
		return nil
	}
	if r.err != nil {
		return r.err
	}
	b, _ := json.Marshal(payload)
	var p workflow.ResumePayload
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	r.mu.Lock()
	r.resumes = append(r.resumes, p)
	r.mu.Unlock()
	return nil
}

type fixture struct {
	analyses *appanalyses.Service
	svc      *checkpoint.Service
	trigger  *recordingTrigger
	clock    *application.FixedClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := testutil.NewStores(t)
	trig := &recordingTrigger{}
	clock := application.NewFixedClock(time.Date(2026, 4, 2, 14, 0, 0, 0, time.UTC))
	log := zaptest.NewLogger(t)
	return &fixture{
		analyses: &appanalyses.Service{
			Repo: st.Analyses, Reports: st.Reports, Papers: st.Candidates, Activity: st.Activity,
			Listings: st.Listings, Trigger: trig, Clock: clock, Log: log, DefaultMaxPapers: 10,
		},
		svc: &checkpoint.Service{
			Analyses: st.Analyses, Papers: st.Candidates, Trigger: trig, Clock: clock, Log: log,
			PollInterval: 1500 * time.Millisecond, StallAfter: 5 * time.Minute,
		},
		trigger: trig,
		clock:   clock,
	}
}

func (f *fixture) submit(t *testing.T) *analyses.Analysis {
	t.Helper()
	a, err := f.analyses.Submit(context.Background(), appanalyses.SubmitCommand{
		OwnerID: "u-1", Email: "ada@lab.example", Query: "quantum dot displays", Domain: "materials",
	})
	require.NoError(t, err)
	return a
}

// three candidates; the engine recommends the 0.92 one
func (f *fixture) reachCheckpoint(t *testing.T, a *analyses.Analysis) {
	t.Helper()
	err := f.analyses.RecordCandidates(context.Background(), a.AnalysisID, []appanalyses.CandidateInput{
		{Title: "Cadmium-free QDs", PaperID: "P-085", RelevanceScore: 0.85},
		{Title: "QD electroluminescence", PaperID: "P-099", RelevanceScore: 0.99},
		{Title: "Perovskite QD LEDs", PaperID: "P-092", RelevanceScore: 0.92,
			Metadata: papers.Metadata{AutoSelected: true, SelectionReason: "best TRL"}},
	})
	require.NoError(t, err)
}

func candidateID(t *testing.T, v *checkpoint.View, paperRef string) string {
	t.Helper()
	for _, c := range v.Candidates {
		if c.PaperRef == paperRef {
			return c.ID
		}
	}
	t.Fatalf("candidate %s not in view", paperRef)
	return ""
}

func TestView_AwaitingAndStalled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.submit(t)

	v, err := f.svc.View(ctx, "u-1", a.AnalysisID)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StateAwaitingCandidates, v.State)
	assert.Empty(t, v.Candidates)
	assert.NotNil(t, v.Candidates)
	assert.Equal(t, int64(1500), v.PollAfterMS)
	assert.False(t, v.Stalled)

	f.clock.Advance(6 * time.Minute)
	v, err = f.svc.View(ctx, "u-1", a.AnalysisID)
	require.NoError(t, err)
	assert.True(t, v.Stalled)
}

func TestView_CandidatesReady(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.submit(t)
	f.reachCheckpoint(t, a)

	v, err := f.svc.View(ctx, "u-1", a.AnalysisID)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StateCandidatesReady, v.State)
	assert.Equal(t, analyses.StatusPending, v.Status)
	require.Len(t, v.Candidates, 3)
	assert.Equal(t, "P-099", v.Candidates[0].PaperRef, "relevance descending")
	assert.Equal(t, candidateID(t, v, "P-092"), v.DefaultCandidateID)
	assert.Nil(t, v.SelectedPaperID)
	assert.Zero(t, v.PollAfterMS)
}

func TestConfirm_OverrideDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.submit(t)
	f.reachCheckpoint(t, a)

	v, err := f.svc.View(ctx, "u-1", a.AnalysisID)
	require.NoError(t, err)

	res, err := f.svc.Confirm(ctx, "u-1", a.AnalysisID, candidateID(t, v, "P-099"))
	require.NoError(t, err)
	assert.Equal(t, analyses.StatusProcessing, res.Status)
	assert.Equal(t, "P-099", res.PaperID)
	assert.True(t, res.UserOverrodeSelection)
	assert.Nil(t, res.AutoSelectedPaperID)
	assert.Equal(t, checkpoint.StateResumed, res.State)

	got, err := f.analyses.Get(ctx, "u-1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, "P-099", *got.PaperID)
	assert.True(t, got.Notes.PaperSelected)
	assert.True(t, got.Notes.AnalysisRunning)
	assert.Equal(t, "QD electroluminescence", got.Notes.SelectedTitle)
	require.NotNil(t, got.Notes.ConfirmedAt)

	require.Len(t, f.trigger.resumes, 1)
	assert.Equal(t, workflow.ResumePayload{
		AnalysisID: string(a.AnalysisID),
		PaperID:    "P-099",
		PaperTitle: "QD electroluminescence",
		Query:      "quantum dot displays",
		UserEmail:  "ada@lab.example",
		Domain:     "materials",
		Trigger:    "user_paper_selection",
	}, f.trigger.resumes[0])

	v, err = f.svc.View(ctx, "u-1", a.AnalysisID)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StateResumed, v.State)
}

func TestConfirm_AcceptDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.submit(t)
	f.reachCheckpoint(t, a)

	v, err := f.svc.View(ctx, "u-1", a.AnalysisID)
	require.NoError(t, err)
	res, err := f.svc.Confirm(ctx, "u-1", a.AnalysisID, v.DefaultCandidateID)
	require.NoError(t, err)
	assert.False(t, res.UserOverrodeSelection)
	require.NotNil(t, res.AutoSelectedPaperID)
	assert.Equal(t, "P-092", *res.AutoSelectedPaperID)
}

func TestConfirm_RepeatIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.submit(t)
	f.reachCheckpoint(t, a)
	v, err := f.svc.View(ctx, "u-1", a.AnalysisID)
	require.NoError(t, err)

	first, err := f.svc.Confirm(ctx, "u-1", a.AnalysisID, candidateID(t, v, "P-085"))
	require.NoError(t, err)
	second, err := f.svc.Confirm(ctx, "u-1", a.AnalysisID, candidateID(t, v, "P-085"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, f.trigger.resumes, 1, "resume queued once")

	_, err = f.svc.Confirm(ctx, "u-1", a.AnalysisID, candidateID(t, v, "P-099"))
	assert.ErrorIs(t, err, errs.ErrInvalidState, "different paper after resume")
}

func TestConfirm_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.submit(t)

	_, err := f.svc.Confirm(ctx, "u-1", a.AnalysisID, "")
	assert.ErrorIs(t, err, papers.ErrNoSelection)

	_, err = f.svc.Confirm(ctx, "u-1", a.AnalysisID, "no-such-candidate")
	assert.ErrorIs(t, err, errs.ErrValidation)

	f.reachCheckpoint(t, a)
	v, err := f.svc.View(ctx, "u-1", a.AnalysisID)
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, "intruder", a.AnalysisID, v.DefaultCandidateID)
	assert.ErrorIs(t, err, errs.ErrNotFoundOrForbidden)
	_, err = f.svc.View(ctx, "intruder", a.AnalysisID)
	assert.ErrorIs(t, err, errs.ErrNotFoundOrForbidden)

	_, err = f.analyses.Fail(ctx, a.AnalysisID, "engine gave up")
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, "u-1", a.AnalysisID, v.DefaultCandidateID)
	assert.ErrorIs(t, err, errs.ErrInvalidState)

	v, err = f.svc.View(ctx, "u-1", a.AnalysisID)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StateClosed, v.State)
}

func TestConfirm_TriggerFailureKeepsSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.submit(t)
	f.reachCheckpoint(t, a)
	v, err := f.svc.View(ctx, "u-1", a.AnalysisID)
	require.NoError(t, err)

	f.trigger.err = errors.New("outbox down")
	res, err := f.svc.Confirm(ctx, "u-1", a.AnalysisID, v.DefaultCandidateID)
	require.NoError(t, err)
	assert.Equal(t, analyses.StatusProcessing, res.Status)

	resumable, err := f.analyses.Resumable(ctx, 10)
	require.NoError(t, err)
	require.Len(t, resumable, 1, "engine can still pick it up by polling")
}
