package workflow

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	domain "github.com/bryanwahyu/research-market/internal/domain/workflow"
)

func TestClient_PostsPayload(t *testing.T) {
	var gotPath, gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotPath, gotType, gotBody = r.URL.Path, r.Header.Get("Content-Type"), string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/webhook/start", srv.URL+"/webhook/resume", time.Second, zaptest.NewLogger(t))

	require.NoError(t, c.Start(context.Background(), []byte(`{"analysis_id":"cid-1"}`)))
	assert.Equal(t, "/webhook/start", gotPath)
	assert.Equal(t, "application/json", gotType)
	assert.JSONEq(t, `{"analysis_id":"cid-1"}`, gotBody)

	require.NoError(t, c.Resume(context.Background(), []byte(`{}`)))
	assert.Equal(t, "/webhook/resume", gotPath)
}

func TestClient_Non2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "workflow inactive", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, time.Second, zaptest.NewLogger(t))
	err := c.Start(context.Background(), []byte(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTriggerFailed)
	assert.Contains(t, err.Error(), "404")
}

func TestClient_SlowEngineCountsAsIssued(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL, srv.URL, 150*time.Millisecond, zaptest.NewLogger(t))
	start := time.Now()
	err := c.Start(context.Background(), []byte(`{"analysis_id":"cid-slow"}`))
	assert.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second, "never waits for the run")
}

func TestClient_UnreachableFails(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, url, time.Second, zaptest.NewLogger(t))
	err := c.Start(context.Background(), []byte(`{}`))
	assert.ErrorIs(t, err, domain.ErrTriggerFailed)
}

func TestClient_BadURL(t *testing.T) {
	c := NewClient("://nope", "", time.Second, zaptest.NewLogger(t))
	assert.ErrorIs(t, c.Start(context.Background(), nil), domain.ErrTriggerFailed)
}

func TestClient_ImplementsEngine(t *testing.T) {
	var _ domain.Engine = (*Client)(nil)
}
