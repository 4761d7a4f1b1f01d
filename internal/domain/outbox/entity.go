package outbox

import (
	"context"
	"encoding/json"
	"time"
)

// Kind selects the webhook an event is delivered to.
type Kind string

const (
	KindAnalysisStart  Kind = "analysis.start"
	KindAnalysisResume Kind = "analysis.resume"
)

// Status enum
type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusDead      Status = "dead"
)

// Event is a trigger waiting to be delivered to the workflow engine.
type Event struct {
	ID            string          `json:"id"`
	Kind          Kind            `json:"kind"`
	AnalysisID    string          `json:"analysis_id"`
	Payload       json.RawMessage `json:"payload"`
	Status        Status          `json:"status"`
	Attempts      int             `json:"attempts"`
	LastError     string          `json:"last_error,omitempty"`
	NextAttemptAt time.Time       `json:"next_attempt_at"`
	CreatedAt     time.Time       `json:"created_at"`
	DeliveredAt   *time.Time      `json:"delivered_at,omitempty"`
}

// Repository port for the outbox
type Repository interface {
	Enqueue(ctx context.Context, e *Event) error
	Get(ctx context.Context, id string) (*Event, error)
	// Due returns pending events with NextAttemptAt <= now, oldest first.
	Due(ctx context.Context, now time.Time, limit int) ([]*Event, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	// MarkFailed records one failed attempt; status becomes dead when dead is true.
	MarkFailed(ctx context.Context, id string, attempts int, lastErr string, next time.Time, dead bool) error
}
