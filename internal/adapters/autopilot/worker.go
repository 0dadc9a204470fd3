// Package autopilot runs one worker per counter that keeps calling the next
// participant whenever the counter is idle.
package autopilot

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/okian/lineup/internal/domain/assignment"
	"github.com/okian/lineup/internal/domain/inflight"
	"github.com/okian/lineup/internal/domain/model"
	"github.com/okian/lineup/pkg/logger"
	"github.com/okian/lineup/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultInterval     = 3 * time.Second
	poolShutdownTimeout = 30 * time.Second
)

// Tick outcomes used as metric labels.
const (
	OutcomeClaimed     = "claimed"
	OutcomeCompleted   = "completed"
	OutcomeServing     = "serving"
	OutcomeLineEmpty   = "line_empty"
	OutcomeCounterBusy = "counter_busy"
	OutcomeInFlight    = "in_flight"
	OutcomeError       = "error"
)

// Claimer is the assignment surface the workers drive.
type Claimer interface {
	ClaimNext(ctx context.Context, lineID, counterID string) (assignment.Claim, error)
	CompleteService(ctx context.Context, entryID string) (model.QueueEntry, error)
}

// LineLister lists the lines a counter may serve.
type LineLister interface {
	ListLines(ctx context.Context) ([]model.Line, error)
}

// Worker is a looping caller.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or Shutdown is called.
	Run(ctx context.Context)

	// Shutdown stops the worker and waits for the current tick to finish.
	Shutdown(ctx context.Context) error
}

type serving struct {
	entryID string
	due     time.Time
}

// CounterWorker claims for a single counter on every tick.
type CounterWorker struct {
	claimer   Claimer
	lines     LineLister
	guard     inflight.Guard
	counterID string
	name      string

	interval        time.Duration
	serviceDuration time.Duration
	now             func() time.Time

	// only touched by the Run goroutine
	current *serving

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewCounterWorker creates a worker for counterID.
func NewCounterWorker(claimer Claimer, lines LineLister, guard inflight.Guard, counterID string, opts ...Option) *CounterWorker {
	w := &CounterWorker{
		claimer:   claimer,
		lines:     lines,
		guard:     guard,
		counterID: counterID,
		name:      "autopilot-" + counterID,
		interval:  defaultInterval,
		now:       time.Now,
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Nop(),
	}

	for _, opt := range opts {
		opt(w)
	}

	w.logger = w.logger.Named(w.name)
	return w
}

// Run starts the worker loop.
func (w *CounterWorker) Run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case <-ticker.C:
			metrics.RecordAutopilotTick(w.tick(ctx))
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *CounterWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// tick performs one claim or completion round and reports its outcome.
// Line empty and counter busy are expected and only logged at debug level.
func (w *CounterWorker) tick(ctx context.Context) string {
	if !w.guard.TryAcquire(ctx, w.counterID) {
		return OutcomeInFlight
	}
	defer w.guard.Release(ctx, w.counterID)

	if w.current != nil {
		return w.finish(ctx)
	}

	lines, err := w.lines.ListLines(ctx)
	if err != nil {
		w.logger.Error(ctx, "list lines failed", logger.Error(err))
		return OutcomeError
	}
	byUrgency(lines)

	for _, line := range lines {
		claim, err := w.claimer.ClaimNext(ctx, line.ID, w.counterID)
		switch {
		case err == nil:
			w.logger.Info(ctx, "called next participant",
				logger.String("line_id", line.ID),
				logger.String("entry_id", claim.Entry.ID),
				logger.Int("attempts", claim.Attempts),
			)
			if w.serviceDuration > 0 {
				w.current = &serving{entryID: claim.Entry.ID, due: w.now().Add(w.serviceDuration)}
			}
			return OutcomeClaimed
		case errors.Is(err, model.ErrLineEmpty):
			continue
		case errors.Is(err, model.ErrCounterBusy):
			w.logger.Debug(ctx, "counter busy")
			return OutcomeCounterBusy
		default:
			w.logger.Error(ctx, "claim next failed", logger.String("line_id", line.ID), logger.Error(err))
			metrics.RecordErrorByComponent("autopilot", "claim_failed")
			return OutcomeError
		}
	}

	w.logger.Debug(ctx, "all lines empty", logger.Int("lines", len(lines)))
	return OutcomeLineEmpty
}

func (w *CounterWorker) finish(ctx context.Context) string {
	if w.now().Before(w.current.due) {
		return OutcomeServing
	}

	entryID := w.current.entryID
	_, err := w.claimer.CompleteService(ctx, entryID)
	switch {
	case err == nil:
		w.current = nil
		return OutcomeCompleted
	case errors.Is(err, model.ErrInvalidTransition), errors.Is(err, model.ErrNotFound):
		// finished by someone else
		w.current = nil
		return OutcomeCompleted
	default:
		w.logger.Error(ctx, "complete service failed", logger.String("entry_id", entryID), logger.Error(err))
		return OutcomeError
	}
}

// byUrgency orders lines by deadline, lines without one last.
func byUrgency(lines []model.Line) {
	slices.SortStableFunc(lines, func(a, b model.Line) int {
		switch {
		case a.DeadlineAt == nil && b.DeadlineAt == nil:
		case a.DeadlineAt == nil:
			return 1
		case b.DeadlineAt == nil:
			return -1
		default:
			if c := a.DeadlineAt.Compare(*b.DeadlineAt); c != 0 {
				return c
			}
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// Pool manages one worker per counter.
type Pool struct {
	workers []*CounterWorker
	started atomic.Bool
	logger  logger.Logger
}

// NewPool creates a worker for every counter id. opts apply to every worker.
func NewPool(claimer Claimer, lines LineLister, guard inflight.Guard, counterIDs []string, opts ...Option) *Pool {
	if guard == nil {
		guard = inflight.NewGuard()
	}
	p := &Pool{
		workers: make([]*CounterWorker, 0, len(counterIDs)),
		logger:  logger.Nop(),
	}
	probe := &CounterWorker{logger: p.logger}
	for _, opt := range opts {
		opt(probe)
	}
	p.logger = probe.logger.Named("autopilot-pool")

	for _, id := range counterIDs {
		p.workers = append(p.workers, NewCounterWorker(claimer, lines, guard, id, opts...))
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	metrics.UpdateAutopilotWorkers(len(p.workers))
	p.logger.Info(ctx, "autopilot started", logger.Int("workers", len(p.workers)))
}

// Shutdown gracefully shuts down the entire worker pool.
func (p *Pool) Shutdown(ctx context.Context) error {
	if !p.started.Load() {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var errs []error
	for _, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.String("counter_id", w.counterID))
			errs = append(errs, err)
		}
	}
	metrics.UpdateAutopilotWorkers(0)
	return errors.Join(errs...)
}
