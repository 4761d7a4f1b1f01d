package activity

import (
	"math"
	"time"
)

// AgentStatus is the displayed state of one agent after replay.
type AgentStatus string

const (
	AgentPending    AgentStatus = "pending"
	AgentStarted    AgentStatus = "started"
	AgentInProgress AgentStatus = "in_progress"
	AgentCompleted  AgentStatus = "completed"
	AgentFailed     AgentStatus = "failed"
)

// WorkflowStatus is the aggregate state derived from all agents.
type WorkflowStatus string

const (
	WorkflowPending    WorkflowStatus = "pending"
	WorkflowInProgress WorkflowStatus = "in_progress"
	WorkflowCompleted  WorkflowStatus = "completed"
	WorkflowFailed     WorkflowStatus = "failed"
)

// AgentState is one row of the progress view.
type AgentState struct {
	ID          AgentID     `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Status      AgentStatus `json:"status"`
	Progress    int         `json:"progress"`
	Duration    *float64    `json:"duration"`
	StartedAt   *time.Time  `json:"startedAt"`
	CompletedAt *time.Time  `json:"completedAt"`
	Error       *string     `json:"error"`
}

// Progress is the reconstructed workflow view for one analysis.
type Progress struct {
	AnalysisID      string         `json:"analysisId"`
	Agents          []AgentState   `json:"agents"`
	OverallProgress int            `json:"overallProgress"`
	CurrentAgent    *AgentID       `json:"currentAgent"`
	CurrentStep     string         `json:"currentStep"`
	TotalDuration   float64        `json:"totalDuration"`
	Status          WorkflowStatus `json:"status"`
	StartedAt       *time.Time     `json:"startedAt"`
	CompletedAt     *time.Time     `json:"completedAt"`
}

// Done reports whether polling can stop.
func (p Progress) Done() bool {
	return p.Status == WorkflowCompleted || p.Status == WorkflowFailed
}

// Replay folds the activity log of one analysis into a Progress view.
// entries must be in creation order; they are never modified, so calling
// Replay again on the same slice yields the same result.
func Replay(analysisID string, entries []*Entry) Progress {
	agents := make([]AgentState, len(Agents))
	index := make(map[AgentID]int, len(Agents))
	for i, a := range Agents {
		agents[i] = AgentState{
			ID:          a.ID,
			Name:        a.Name,
			Description: a.Description,
			Status:      AgentPending,
		}
		index[a.ID] = i
	}

	var workflowStart *time.Time
	for _, e := range entries {
		i, ok := index[e.Agent]
		if !ok {
			continue
		}
		ag := &agents[i]
		at := e.CreatedAt

		switch e.Status {
		case EntryStarted:
			ag.Status = AgentStarted
			if ag.StartedAt == nil {
				ag.StartedAt = timePtr(at)
			}
			ag.Progress = 0
			if workflowStart == nil {
				workflowStart = timePtr(at)
			}
		case EntryInProgress:
			ag.Status = AgentInProgress
			ag.Progress = clampProgress(e.Progress)
			if ag.StartedAt == nil {
				ag.StartedAt = timePtr(at)
			}
		case EntryCompleted:
			ag.Status = AgentCompleted
			ag.Progress = 100
			ag.CompletedAt = timePtr(at)
			ag.Duration = durationBetween(ag.StartedAt, ag.CompletedAt)
		case EntryFailed:
			ag.Status = AgentFailed
			msg := e.Error
			ag.Error = &msg
			ag.CompletedAt = timePtr(at)
			ag.Duration = durationBetween(ag.StartedAt, ag.CompletedAt)
		}
	}

	p := Progress{
		AnalysisID: analysisID,
		Agents:     agents,
		StartedAt:  workflowStart,
	}

	var completed, active int
	var failed bool
	for i := range agents {
		ag := &agents[i]
		switch ag.Status {
		case AgentCompleted:
			completed++
		case AgentStarted, AgentInProgress:
			active++
			if p.CurrentAgent == nil {
				id := ag.ID
				p.CurrentAgent = &id
				p.CurrentStep = ag.Name
			}
		case AgentFailed:
			failed = true
		}
		if ag.Duration != nil {
			p.TotalDuration += *ag.Duration
		}
	}

	switch {
	case failed:
		p.Status = WorkflowFailed
	case completed == len(agents):
		p.Status = WorkflowCompleted
	case active > 0 || completed > 0:
		p.Status = WorkflowInProgress
	default:
		p.Status = WorkflowPending
	}

	p.OverallProgress = int(math.Round(100 * float64(completed) / float64(len(agents))))

	last := agents[len(agents)-1]
	if last.Status == AgentCompleted {
		p.CompletedAt = last.CompletedAt
	}

	if p.CurrentStep == "" {
		switch p.Status {
		case WorkflowFailed:
			p.CurrentStep = "Analysis failed"
		case WorkflowCompleted:
			p.CurrentStep = "Analysis complete"
		case WorkflowPending:
			p.CurrentStep = "Waiting to start"
		default:
			p.CurrentStep = "Waiting for next agent"
		}
	}
	return p
}

func durationBetween(start, end *time.Time) *float64 {
	if start == nil || end == nil {
		return nil
	}
	d := end.Sub(*start).Seconds()
	return &d
}

func clampProgress(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func timePtr(t time.Time) *time.Time { return &t }
