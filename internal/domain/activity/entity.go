package activity

import (
	"context"
	"time"
)

// AgentID names one stage of the engine pipeline.
type AgentID string

const (
	AgentValidation  AgentID = "validation"
	AgentDiscovery   AgentID = "discovery"
	AgentTechnical   AgentID = "technical"
	AgentMarket      AgentID = "market"
	AgentCompetitive AgentID = "competitive"
	AgentIP          AgentID = "ip"
	AgentStrategy    AgentID = "strategy"
	AgentReport      AgentID = "report"
)

// Agent describes a pipeline stage for display.
type Agent struct {
	ID          AgentID
	Name        string
	Description string
}

// Agents is the canonical pipeline order. Replay output always follows it.
var Agents = []Agent{
	{AgentValidation, "Query Validation", "Checks the research query and domain"},
	{AgentDiscovery, "Paper Discovery", "Searches literature for relevant papers"},
	{AgentTechnical, "Technical Analysis", "Assesses feasibility and technology readiness"},
	{AgentMarket, "Market Sizing", "Estimates the total addressable market"},
	{AgentCompetitive, "Competitive Analysis", "Maps competitors and alternatives"},
	{AgentIP, "IP Landscape", "Reviews patents and freedom to operate"},
	{AgentStrategy, "Commercial Strategy", "Builds the go-to-market recommendation"},
	{AgentReport, "Report Generation", "Computes the CVS and writes the report"},
}

// KnownAgent reports whether id is part of the pipeline.
func KnownAgent(id AgentID) bool {
	for _, a := range Agents {
		if a.ID == id {
			return true
		}
	}
	return false
}

// EntryStatus is the lifecycle state carried by one log entry.
type EntryStatus string

const (
	EntryStarted    EntryStatus = "started"
	EntryInProgress EntryStatus = "in_progress"
	EntryCompleted  EntryStatus = "completed"
	EntryFailed     EntryStatus = "failed"
)

// Valid reports whether s is a known entry status.
func (s EntryStatus) Valid() bool {
	switch s {
	case EntryStarted, EntryInProgress, EntryCompleted, EntryFailed:
		return true
	}
	return false
}

// Entry is one append-only activity log row written by the engine.
type Entry struct {
	ID         string      `json:"id"`
	AnalysisID string      `json:"analysis_id"`
	Agent      AgentID     `json:"agent"`
	Status     EntryStatus `json:"status"`
	Progress   int         `json:"progress"`
	Message    string      `json:"message,omitempty"`
	Error      string      `json:"error,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Repository port for the activity log
type Repository interface {
	Append(ctx context.Context, e *Entry) error
	// ListByAnalysis returns every entry for the analysis, oldest first.
	ListByAnalysis(ctx context.Context, analysisID string) ([]*Entry, error)
}
