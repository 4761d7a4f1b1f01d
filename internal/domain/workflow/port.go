package workflow

import (
	"context"
	"errors"
)

// ErrTriggerFailed wraps any failure to issue a trigger to the engine.
var ErrTriggerFailed = errors.New("workflow trigger failed")

// Fixed defaults sent with every start trigger.
const (
	DefaultMinCitations = 0
	DefaultMinYear      = 2015
	ResumeTrigger       = "user_paper_selection"
)

// StartPayload is the JSON body of the initial trigger.
type StartPayload struct {
	Query        string `json:"query"`
	UserEmail    string `json:"user_email"`
	Domain       string `json:"domain"`
	AnalysisID   string `json:"analysis_id"`
	MaxPapers    int    `json:"max_papers"`
	MinCitations int    `json:"min_citations"`
	MinYear      int    `json:"min_year"`
}

// ResumePayload is the JSON body of the post-checkpoint trigger.
type ResumePayload struct {
	AnalysisID string `json:"analysisId"`
	PaperID    string `json:"paperId"`
	PaperTitle string `json:"paperTitle"`
	Query      string `json:"query"`
	UserEmail  string `json:"user_email"`
	Domain     string `json:"domain"`
	Trigger    string `json:"trigger"`
}

// Engine port for the external workflow engine. Implementations return as
// soon as the request has been issued; they never wait for the run.
type Engine interface {
	Start(ctx context.Context, body []byte) error
	Resume(ctx context.Context, body []byte) error
}
