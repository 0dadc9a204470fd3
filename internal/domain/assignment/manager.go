// Package assignment binds waiting entries to counters and moves them through
// their lifecycle.
//
// ClaimNext selects the top-ranked WAITING entry and commits WAITING->CALLED
// through a compare-and-swap in the store. A lost race excludes the lost
// candidate and re-selects, up to a bounded number of attempts.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/lineup/internal/domain/model"
	"github.com/okian/lineup/internal/domain/ordering"
	"github.com/okian/lineup/pkg/logger"
)

// DefaultMaxAttempts bounds claim re-selection after lost races.
const DefaultMaxAttempts = 5

// Store is the persistence the manager needs. Claim and Release must be
// atomic: Claim succeeds only while the entry is WAITING and the counter IDLE,
// Release only while the entry is CALLED.
type Store interface {
	GetCounter(ctx context.Context, id string) (model.Counter, error)
	GetLine(ctx context.Context, id string) (model.Line, error)
	ListWaiting(ctx context.Context, lineID string) ([]model.QueueEntry, error)
	Claim(ctx context.Context, entryID, counterID string, at time.Time) (model.QueueEntry, error)
	Release(ctx context.Context, entryID string, to model.EntryStatus, at time.Time) (model.QueueEntry, error)
}

// Publisher delivers notifications. Delivery failures never undo a committed
// transition.
type Publisher interface {
	Publish(ctx context.Context, n model.Notification) error
}

// Claim is the result of ClaimNext. Entry is only set on success; Attempts
// and Conflicts are reported either way.
type Claim struct {
	Entry     model.QueueEntry
	Attempts  int
	Conflicts int
}

// Manager implements the counter assignment state machine.
type Manager struct {
	store       Store
	policy      *ordering.Policy
	publisher   Publisher
	log         logger.Logger
	now         func() time.Time
	maxAttempts int
}

// New creates a Manager on top of store.
func New(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:       store,
		policy:      ordering.New(nil),
		log:         logger.Nop(),
		now:         time.Now,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ClaimNext binds the top-ranked WAITING entry of lineID to counterID.
//
// It fails with ErrCounterBusy when the counter is serving, ErrNotFound when the
// counter or line is unknown, and ErrLineEmpty when nothing could be claimed
// within the attempt budget.
func (m *Manager) ClaimNext(ctx context.Context, lineID, counterID string) (Claim, error) {
	counter, err := m.store.GetCounter(ctx, counterID)
	if err != nil {
		return Claim{}, fmt.Errorf("claim next: %w", err)
	}
	if counter.Status == model.CounterBusy {
		return Claim{}, fmt.Errorf("claim next on counter %s: %w", counterID, model.ErrCounterBusy)
	}
	line, err := m.store.GetLine(ctx, lineID)
	if err != nil {
		return Claim{}, fmt.Errorf("claim next: %w", err)
	}

	lost := make(map[string]struct{})
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Claim{Attempts: attempt - 1, Conflicts: len(lost)}, err
		}

		now := m.now()
		waiting, err := m.store.ListWaiting(ctx, lineID)
		if err != nil {
			return Claim{Attempts: attempt, Conflicts: len(lost)}, fmt.Errorf("claim next: list waiting: %w", err)
		}
		candidates := make([]model.QueueEntry, 0, len(waiting))
		for _, e := range waiting {
			if _, skip := lost[e.ID]; !skip {
				candidates = append(candidates, e)
			}
		}
		top, ok := m.policy.Top(candidates, line.DeadlineAt, now)
		if !ok {
			return Claim{Attempts: attempt, Conflicts: len(lost)}, fmt.Errorf("claim next on line %s: %w", lineID, model.ErrLineEmpty)
		}

		entry, err := m.store.Claim(ctx, top.Entry.ID, counterID, now)
		switch {
		case err == nil:
			m.log.Debug(ctx, "entry claimed",
				logger.String("line_id", lineID),
				logger.String("counter_id", counterID),
				logger.String("entry_id", entry.ID),
				logger.Int("score", top.Score),
				logger.Int("attempts", attempt),
			)
			m.publish(ctx, model.NewCalled(&entry, counterID))
			m.publish(ctx, model.NewUpdated(lineID))
			return Claim{Entry: entry, Attempts: attempt, Conflicts: len(lost)}, nil
		case errors.Is(err, model.ErrClaimConflict):
			m.log.Debug(ctx, "claim lost to concurrent caller",
				logger.String("entry_id", top.Entry.ID),
				logger.Int("attempt", attempt),
			)
			lost[top.Entry.ID] = struct{}{}
		default:
			return Claim{Attempts: attempt, Conflicts: len(lost)}, fmt.Errorf("claim next: %w", err)
		}
	}

	return Claim{Attempts: m.maxAttempts, Conflicts: len(lost)}, fmt.Errorf("claim next on line %s: %d conflicts: %w",
		lineID, m.maxAttempts, model.ErrLineEmpty)
}

// CompleteService moves a CALLED entry to COMPLETED and frees its counter.
func (m *Manager) CompleteService(ctx context.Context, entryID string) (model.QueueEntry, error) {
	return m.release(ctx, entryID, model.StatusCompleted)
}

// MarkNoShow moves a CALLED entry to NO_SHOW and frees its counter.
func (m *Manager) MarkNoShow(ctx context.Context, entryID string) (model.QueueEntry, error) {
	return m.release(ctx, entryID, model.StatusNoShow)
}

func (m *Manager) release(ctx context.Context, entryID string, to model.EntryStatus) (model.QueueEntry, error) {
	action, _ := model.ReleaseAction(to)
	entry, err := m.store.Release(ctx, entryID, to, m.now())
	if err != nil {
		return model.QueueEntry{}, fmt.Errorf("%s: %w", action, err)
	}
	m.publish(ctx, model.NewUpdated(entry.LineID))
	return entry, nil
}

func (m *Manager) publish(ctx context.Context, n model.Notification) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(ctx, n); err != nil {
		m.log.Warn(ctx, "notification not delivered",
			logger.String("kind", string(n.Kind)),
			logger.String("topic", n.Topic),
			logger.Error(err),
		)
	}
}
