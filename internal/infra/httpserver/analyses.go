package httpserver

import (
	"net/http"
	"strings"

	appanalyses "github.com/bryanwahyu/research-market/internal/application/analyses"
	"github.com/bryanwahyu/research-market/internal/domain/analyses"
	"github.com/bryanwahyu/research-market/internal/middleware"
)

// POST /v1/analyses
// Body: {"query": "...", "domain": "...", "max_papers": 10}
// Returns 202 immediately; the engine run is followed through /progress.
func (r *Router) handleSubmit(w http.ResponseWriter, req *http.Request) error {
	id, err := caller(req)
	if err != nil {
		return err
	}
	var body struct {
		Query     string `json:"query"`
		Domain    string `json:"domain"`
		Email     string `json:"email"`
		MaxPapers int    `json:"max_papers"`
	}
	if err := decodeJSON(req, &body); err != nil {
		return err
	}
	// email dari token, body cuma fallback
	email := id.Email
	if email == "" {
		email = body.Email
	}

	a, err := r.analyses.Submit(req.Context(), appanalyses.SubmitCommand{
		OwnerID:   id.UserID,
		Email:     email,
		Query:     middleware.SanitizeString(body.Query),
		Domain:    middleware.SanitizeString(body.Domain),
		MaxPapers: body.MaxPapers,
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusAccepted, map[string]any{
		"id":          a.ID,
		"analysis_id": a.AnalysisID,
		"status":      a.Status,
		"message":     "analysis started in background",
		"queuedAt":    now(),
	})
}

// GET /v1/analyses?page=&page_size=
func (r *Router) handleList(w http.ResponseWriter, req *http.Request) error {
	id, err := caller(req)
	if err != nil {
		return err
	}
	q := req.URL.Query()
	page := middleware.QueryInt(q.Get("page"), 1)
	size := middleware.ValidateLimit(middleware.QueryInt(q.Get("page_size"), 20))

	list, err := r.analyses.List(req.Context(), id.UserID, page, size)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/analyses/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id, err := caller(req)
	if err != nil {
		return err
	}
	aid, err := pathID(req, "id")
	if err != nil {
		return err
	}
	a, err := r.analyses.Get(req.Context(), id.UserID, analyses.ID(aid))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, a)
}

// DELETE /v1/analyses/{id}
func (r *Router) handleDelete(w http.ResponseWriter, req *http.Request) error {
	id, err := caller(req)
	if err != nil {
		return err
	}
	aid, err := pathID(req, "id")
	if err != nil {
		return err
	}
	if err := r.analyses.Delete(req.Context(), id.UserID, analyses.ID(aid)); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// GET /v1/analyses/{id}/progress  (id = correlation id)
func (r *Router) handleProgress(w http.ResponseWriter, req *http.Request) error {
	id, err := caller(req)
	if err != nil {
		return err
	}
	cid, err := pathID(req, "id")
	if err != nil {
		return err
	}
	p, err := r.analyses.Progress(req.Context(), id.UserID, analyses.CorrelationID(cid))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, p)
}

// GET /v1/analyses/{id}/technical-report  (id = correlation id)
func (r *Router) handleTechnicalReport(w http.ResponseWriter, req *http.Request) error {
	id, err := caller(req)
	if err != nil {
		return err
	}
	cid, err := pathID(req, "id")
	if err != nil {
		return err
	}
	html, err := r.analyses.TechnicalReport(req.Context(), id.UserID, analyses.CorrelationID(cid))
	if err != nil {
		return err
	}
	return writeHTML(w, html)
}

// GET /v1/analyses/{id}/cvs-report
func (r *Router) handleCVSReport(w http.ResponseWriter, req *http.Request) error {
	id, err := caller(req)
	if err != nil {
		return err
	}
	aid, err := pathID(req, "id")
	if err != nil {
		return err
	}
	html, err := r.analyses.CVSReport(req.Context(), id.UserID, analyses.ID(aid))
	if err != nil {
		return err
	}
	return writeHTML(w, html)
}

// GET /v1/analyses/{id}/checkpoint  (id = correlation id)
func (r *Router) handleCheckpoint(w http.ResponseWriter, req *http.Request) error {
	id, err := caller(req)
	if err != nil {
		return err
	}
	cid, err := pathID(req, "id")
	if err != nil {
		return err
	}
	v, err := r.checkpoint.View(req.Context(), id.UserID, analyses.CorrelationID(cid))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, v)
}

// POST /v1/analyses/{id}/checkpoint
// Body: {"candidate_id": "<id>"}
func (r *Router) handleConfirm(w http.ResponseWriter, req *http.Request) error {
	id, err := caller(req)
	if err != nil {
		return err
	}
	cid, err := pathID(req, "id")
	if err != nil {
		return err
	}
	var body struct {
		CandidateID string `json:"candidate_id"`
	}
	if err := decodeJSON(req, &body); err != nil {
		return err
	}
	res, err := r.checkpoint.Confirm(req.Context(), id.UserID, analyses.CorrelationID(cid), strings.TrimSpace(body.CandidateID))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, res)
}

// POST /v1/analyses/{id}/listing
func (r *Router) handlePublish(w http.ResponseWriter, req *http.Request) error {
	id, err := caller(req)
	if err != nil {
		return err
	}
	aid, err := pathID(req, "id")
	if err != nil {
		return err
	}
	l, err := r.listings.Publish(req.Context(), id.UserID, analyses.ID(aid))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, l)
}
