package papers

import (
	"errors"
	"sort"
	"time"
)

// ErrNoSelection is returned when a checkpoint is confirmed without a candidate.
var ErrNoSelection = errors.New("no paper selected")

// Metadata bag written by the engine next to each candidate.
type Metadata struct {
	TRL                 *int     `json:"trl,omitempty"`
	Feasibility         *float64 `json:"feasibility,omitempty"`
	CommercialPotential *float64 `json:"commercial_potential,omitempty"`
	AutoSelected        bool     `json:"auto_selected"`
	SelectionReason     string   `json:"selection_reason,omitempty"`
}

// Candidate is one paper proposed by the engine for a checkpoint.
// Candidates are immutable once written.
type Candidate struct {
	ID             string    `json:"id"`
	AnalysisID     string    `json:"analysis_id"`
	Title          string    `json:"title"`
	Authors        []string  `json:"authors"`
	Abstract       string    `json:"abstract,omitempty"`
	Year           int       `json:"year,omitempty"`
	CitationCount  int       `json:"citation_count"`
	RelevanceScore float64   `json:"relevance_score"`
	PaperRef       string    `json:"paper_id"`
	URL            string    `json:"url,omitempty"`
	Metadata       Metadata  `json:"metadata"`
	CreatedAt      time.Time `json:"created_at"`
}

// SortByRelevance orders candidates relevance-descending. Ties keep write order.
func SortByRelevance(cs []*Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		return cs[i].RelevanceScore > cs[j].RelevanceScore
	})
}

// Default picks the recommended candidate: the one flagged auto_selected,
// otherwise the first of the list (callers pass relevance-descending order).
func Default(cs []*Candidate) *Candidate {
	if len(cs) == 0 {
		return nil
	}
	for _, c := range cs {
		if c.Metadata.AutoSelected {
			return c
		}
	}
	return cs[0]
}

// Find returns the candidate with the given id, or nil.
func Find(cs []*Candidate, id string) *Candidate {
	for _, c := range cs {
		if c.ID == id {
			return c
		}
	}
	return nil
}
