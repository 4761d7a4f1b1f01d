package httpserver

import (
	"net/http"

	appanalyses "github.com/bryanwahyu/research-market/internal/application/analyses"
	"github.com/bryanwahyu/research-market/internal/domain/analyses"
	"github.com/bryanwahyu/research-market/internal/middleware"
)

// Routes called by the workflow engine, authenticated with X-Engine-Token.

func engineAnalysisID(req *http.Request) (analyses.CorrelationID, error) {
	cid, err := pathID(req, "analysisId")
	return analyses.CorrelationID(cid), err
}

// POST /v1/engine/analyses/{analysisId}/candidates
// Body: {"candidates": [...]}
func (r *Router) handleEngineCandidates(w http.ResponseWriter, req *http.Request) error {
	cid, err := engineAnalysisID(req)
	if err != nil {
		return err
	}
	var body struct {
		Candidates []appanalyses.CandidateInput `json:"candidates"`
	}
	if err := decodeJSON(req, &body); err != nil {
		return err
	}
	if err := r.analyses.RecordCandidates(req.Context(), cid, body.Candidates); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"analysis_id": cid, "status": analyses.StatusPending})
}

// POST /v1/engine/analyses/{analysisId}/activity
func (r *Router) handleEngineActivity(w http.ResponseWriter, req *http.Request) error {
	cid, err := engineAnalysisID(req)
	if err != nil {
		return err
	}
	var body appanalyses.ActivityInput
	if err := decodeJSON(req, &body); err != nil {
		return err
	}
	body.Message = middleware.SanitizeString(body.Message)
	body.Error = middleware.SanitizeString(body.Error)
	e, err := r.analyses.AppendActivity(req.Context(), cid, body)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, e)
}

// POST /v1/engine/analyses/{analysisId}/complete
func (r *Router) handleEngineComplete(w http.ResponseWriter, req *http.Request) error {
	cid, err := engineAnalysisID(req)
	if err != nil {
		return err
	}
	var body appanalyses.CompleteInput
	if err := decodeJSON(req, &body); err != nil {
		return err
	}
	a, err := r.analyses.Complete(req.Context(), cid, body)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"analysis_id": a.AnalysisID, "status": a.Status})
}

// POST /v1/engine/analyses/{analysisId}/fail
// Body: {"error": "..."}
func (r *Router) handleEngineFail(w http.ResponseWriter, req *http.Request) error {
	cid, err := engineAnalysisID(req)
	if err != nil {
		return err
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := decodeJSON(req, &body); err != nil {
		return err
	}
	a, err := r.analyses.Fail(req.Context(), cid, middleware.SanitizeString(body.Error))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"analysis_id": a.AnalysisID, "status": a.Status})
}

// POST /v1/engine/analyses/{analysisId}/technical-report
// Body: {"format": "html|markdown", "body": "..."}
func (r *Router) handleEngineTechnicalReport(w http.ResponseWriter, req *http.Request) error {
	cid, err := engineAnalysisID(req)
	if err != nil {
		return err
	}
	var body struct {
		Format string `json:"format"`
		Body   string `json:"body"`
	}
	if err := decodeJSON(req, &body); err != nil {
		return err
	}
	if err := r.analyses.SaveTechnicalReport(req.Context(), cid, body.Format, body.Body); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

type resumableItem struct {
	AnalysisID string `json:"analysisId"`
	PaperID    string `json:"paperId"`
	PaperTitle string `json:"paperTitle,omitempty"`
	Query      string `json:"query"`
	UserEmail  string `json:"user_email"`
	Domain     string `json:"domain"`
}

// GET /v1/engine/analyses/resumable?limit=
// Polling path for the engine: processing records with a chosen paper.
func (r *Router) handleEngineResumable(w http.ResponseWriter, req *http.Request) error {
	limit := middleware.QueryInt(req.URL.Query().Get("limit"), 50)
	list, err := r.analyses.Resumable(req.Context(), limit)
	if err != nil {
		return err
	}
	out := make([]resumableItem, 0, len(list))
	for _, a := range list {
		item := resumableItem{
			AnalysisID: string(a.AnalysisID),
			PaperTitle: a.Notes.SelectedTitle,
			Query:      a.Query,
			UserEmail:  a.RequesterEmail,
			Domain:     a.Domain,
		}
		if a.PaperID != nil {
			item.PaperID = *a.PaperID
		}
		out = append(out, item)
	}
	return writeJSON(w, http.StatusOK, out)
}
