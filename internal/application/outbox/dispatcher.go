package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/research-market/internal/application"
	domain "github.com/bryanwahyu/research-market/internal/domain/outbox"
	"github.com/bryanwahyu/research-market/internal/domain/workflow"
	"github.com/bryanwahyu/research-market/internal/metrics"
)

// DeadHandler dipanggil sekali waktu event jadi dead.
type DeadHandler func(ctx context.Context, e *domain.Event, cause error)

// Dispatcher delivers outbox events to the workflow engine. Each event gets
// one immediate attempt on enqueue; the cron schedule retries the rest.
type Dispatcher struct {
	Repo        domain.Repository
	Engine      workflow.Engine
	Clock       application.Clock
	Log         *zap.Logger
	MaxAttempts int
	Backoff     time.Duration
	BatchSize   int
	Parallelism int
	OnDead      DeadHandler

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

// Enqueue stores a new pending event and fires the first delivery attempt in
// the background. The stored NextAttemptAt is pushed out by one backoff so
// the scheduler does not race the immediate attempt.
func (d *Dispatcher) Enqueue(ctx context.Context, kind domain.Kind, analysisID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", kind, err)
	}
	now := d.Clock.Now()
	e := &domain.Event{
		ID:            uuid.NewString(),
		Kind:          kind,
		AnalysisID:    analysisID,
		Payload:       body,
		Status:        domain.StatusPending,
		NextAttemptAt: now.Add(d.backoff()),
		CreatedAt:     now,
	}
	if err := d.Repo.Enqueue(ctx, e); err != nil {
		return err
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		// jalan di background, jangan pakai ctx request
		d.deliver(context.Background(), e)
	}()
	return nil
}

// RunOnce delivers every due event once and returns how many were delivered.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	due, err := d.Repo.Due(ctx, d.Clock.Now(), d.batchSize())
	if err != nil {
		return 0, fmt.Errorf("loading due events: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	var (
		mu        sync.Mutex
		delivered int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.parallelism())
	for _, e := range due {
		e := e
		g.Go(func() error {
			if d.deliver(gctx, e) {
				mu.Lock()
				delivered++
				mu.Unlock()
			}
			return nil
		})
	}
	err = g.Wait()
	return delivered, err
}

// Schedule registers RunOnce on c with the given cron spec.
func (d *Dispatcher) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := d.RunOnce(ctx)
		if err != nil {
			d.Log.Error("outbox run failed", zap.Error(err))
			return
		}
		if n > 0 {
			d.Log.Info("outbox run", zap.Int("delivered", n))
		}
	})
}

// Wait blocks until background first attempts have finished.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// deliver makes one attempt for e. Returns true on success.
func (d *Dispatcher) deliver(ctx context.Context, e *domain.Event) bool {
	if !d.claim(e.ID) {
		return false
	}
	defer d.release(e.ID)

	log := d.Log.With(
		zap.String("event_id", e.ID),
		zap.String("kind", string(e.Kind)),
		zap.String("analysis_id", e.AnalysisID),
	)

	sendErr := d.send(ctx, e)
	now := d.Clock.Now()
	if sendErr == nil {
		if err := d.Repo.MarkDelivered(ctx, e.ID, now); err != nil {
			log.Error("mark delivered", zap.Error(err))
		}
		metrics.TriggerDeliveries.WithLabelValues(string(e.Kind), "delivered").Inc()
		log.Info("trigger delivered", zap.Int("attempt", e.Attempts+1))
		return true
	}

	attempts := e.Attempts + 1
	dead := attempts >= d.maxAttempts()
	next := now.Add(d.backoff() * time.Duration(attempts))
	if err := d.Repo.MarkFailed(ctx, e.ID, attempts, sendErr.Error(), next, dead); err != nil {
		log.Error("mark failed", zap.Error(err))
	}

	if !dead {
		metrics.TriggerDeliveries.WithLabelValues(string(e.Kind), "failed").Inc()
		log.Warn("trigger failed, will retry",
			zap.Int("attempt", attempts), zap.Time("next_attempt_at", next), zap.Error(sendErr))
		return false
	}

	metrics.TriggerDeliveries.WithLabelValues(string(e.Kind), "dead").Inc()
	log.Error("trigger dead", zap.Int("attempts", attempts), zap.Error(sendErr))
	if d.OnDead != nil {
		d.OnDead(ctx, e, sendErr)
	}
	return false
}

func (d *Dispatcher) send(ctx context.Context, e *domain.Event) error {
	switch e.Kind {
	case domain.KindAnalysisStart:
		return d.Engine.Start(ctx, e.Payload)
	case domain.KindAnalysisResume:
		return d.Engine.Resume(ctx, e.Payload)
	}
	return fmt.Errorf("unknown outbox kind %q", e.Kind)
}

func (d *Dispatcher) claim(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inflight == nil {
		d.inflight = make(map[string]struct{})
	}
	if _, busy := d.inflight[id]; busy {
		return false
	}
	d.inflight[id] = struct{}{}
	return true
}

func (d *Dispatcher) release(id string) {
	d.mu.Lock()
	delete(d.inflight, id)
	d.mu.Unlock()
}

func (d *Dispatcher) maxAttempts() int {
	if d.MaxAttempts < 1 {
		return 3
	}
	return d.MaxAttempts
}

func (d *Dispatcher) backoff() time.Duration {
	if d.Backoff <= 0 {
		return 30 * time.Second
	}
	return d.Backoff
}

func (d *Dispatcher) batchSize() int {
	if d.BatchSize <= 0 {
		return 20
	}
	return d.BatchSize
}

func (d *Dispatcher) parallelism() int {
	if d.Parallelism <= 0 {
		return 4
	}
	return d.Parallelism
}
