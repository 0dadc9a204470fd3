package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/okian/lineup/internal/domain/model"
	"github.com/okian/lineup/pkg/metrics"
)

const storeLabel = "memory"

// activeKey identifies the single active entry a subject may hold on a line.
type activeKey struct {
	subject string
	line    string
}

// MemoryStore is a mutex-guarded, in-memory Store.
//
// Every write runs under one lock, which makes Claim and Release atomic with
// respect to each other and to CreateEntry.
type MemoryStore struct {
	mu        sync.RWMutex
	lines     map[string]model.Line
	counters  map[string]*model.Counter
	entries   map[string]*model.QueueEntry
	waiting   map[string]map[string]struct{} // lineID -> WAITING entry ids
	called    map[string]map[string]struct{} // lineID -> CALLED entry ids
	completed map[string][]string            // lineID -> COMPLETED entry ids
	active    map[activeKey]string

	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty store. The background metrics updater
// stops on ctx cancellation or Close.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		lines:                 make(map[string]model.Line),
		counters:              make(map[string]*model.Counter),
		entries:               make(map[string]*model.QueueEntry),
		waiting:               make(map[string]map[string]struct{}),
		called:                make(map[string]map[string]struct{}),
		completed:             make(map[string][]string),
		active:                make(map[activeKey]string),
		metricsUpdateInterval: 5 * time.Second,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.stopChan = make(chan struct{})
	s.startMetricsUpdater(ctx)

	return s
}

// Close stops the background goroutine.
func (s *MemoryStore) Close() error {
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
	s.wg.Wait()
	return nil
}

func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.updateMetrics()
			}
		}
	}()
}

func (s *MemoryStore) updateMetrics() {
	s.mu.RLock()
	n := len(s.entries)
	s.mu.RUnlock()
	metrics.UpdateStoreEntries(n)
}

func cloneEntry(e *model.QueueEntry) model.QueueEntry {
	out := *e
	if e.AssignedCounter != nil {
		v := *e.AssignedCounter
		out.AssignedCounter = &v
	}
	if e.ServiceStartedAt != nil {
		v := *e.ServiceStartedAt
		out.ServiceStartedAt = &v
	}
	if e.ServiceCompletedAt != nil {
		v := *e.ServiceCompletedAt
		out.ServiceCompletedAt = &v
	}
	return out
}

func cloneCounter(c *model.Counter) model.Counter {
	out := *c
	if c.CurrentEntry != nil {
		v := *c.CurrentEntry
		out.CurrentEntry = &v
	}
	return out
}

func cloneLine(l model.Line) model.Line {
	if l.DeadlineAt != nil {
		v := *l.DeadlineAt
		l.DeadlineAt = &v
	}
	return l
}

func addToSet(m map[string]map[string]struct{}, key, id string) {
	set, ok := m[key]
	if !ok {
		set = make(map[string]struct{})
		m[key] = set
	}
	set[id] = struct{}{}
}

// CreateLine implements Store.CreateLine.
func (s *MemoryStore) CreateLine(_ context.Context, line model.Line) (model.Line, error) {
	defer metrics.RecordStoreOperation(storeLabel, "create_line", time.Now())

	if strings.TrimSpace(line.ID) == "" {
		return model.Line{}, fmt.Errorf("create line: empty id: %w", ErrInvalidLine)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lines[line.ID]; ok {
		return model.Line{}, fmt.Errorf("line %q: %w", line.ID, model.ErrDuplicate)
	}
	s.lines[line.ID] = cloneLine(line)
	return cloneLine(line), nil
}

// GetLine implements Store.GetLine.
func (s *MemoryStore) GetLine(_ context.Context, id string) (model.Line, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.lines[id]
	if !ok {
		return model.Line{}, model.NotFoundError("line", id)
	}
	return cloneLine(l), nil
}

// ListLines returns lines ordered by creation time, then id.
func (s *MemoryStore) ListLines(_ context.Context) ([]model.Line, error) {
	s.mu.RLock()
	out := make([]model.Line, 0, len(s.lines))
	for _, l := range s.lines {
		out = append(out, cloneLine(l))
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b model.Line) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// CreateCounter implements Store.CreateCounter. New counters always start IDLE.
func (s *MemoryStore) CreateCounter(_ context.Context, counter model.Counter) (model.Counter, error) {
	defer metrics.RecordStoreOperation(storeLabel, "create_counter", time.Now())

	if strings.TrimSpace(counter.ID) == "" {
		return model.Counter{}, fmt.Errorf("create counter: empty id: %w", ErrInvalidEntry)
	}
	counter.Status = model.CounterIdle
	counter.CurrentEntry = nil

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.counters[counter.ID]; ok {
		return model.Counter{}, fmt.Errorf("counter %q: %w", counter.ID, model.ErrDuplicate)
	}
	c := counter
	s.counters[counter.ID] = &c
	return counter, nil
}

// GetCounter implements Store.GetCounter.
func (s *MemoryStore) GetCounter(_ context.Context, id string) (model.Counter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.counters[id]
	if !ok {
		return model.Counter{}, model.NotFoundError("counter", id)
	}
	return cloneCounter(c), nil
}

// ListCounters returns counters ordered by id.
func (s *MemoryStore) ListCounters(_ context.Context) ([]model.Counter, error) {
	s.mu.RLock()
	out := make([]model.Counter, 0, len(s.counters))
	for _, c := range s.counters {
		out = append(out, cloneCounter(c))
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b model.Counter) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// CreateEntry implements Store.CreateEntry.
func (s *MemoryStore) CreateEntry(_ context.Context, entry model.QueueEntry) (model.QueueEntry, error) {
	defer metrics.RecordStoreOperation(storeLabel, "create_entry", time.Now())

	if err := ValidateEntry(&entry); err != nil {
		return model.QueueEntry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lines[entry.LineID]; !ok {
		return model.QueueEntry{}, model.NotFoundError("line", entry.LineID)
	}
	if _, ok := s.entries[entry.ID]; ok {
		return model.QueueEntry{}, fmt.Errorf("entry %q: %w", entry.ID, model.ErrDuplicate)
	}
	key := activeKey{subject: entry.SubjectID, line: entry.LineID}
	if existing, ok := s.active[key]; ok {
		return model.QueueEntry{}, &model.AlreadyActiveError{ExistingID: existing}
	}

	e := cloneEntry(&entry)
	s.entries[e.ID] = &e
	s.active[key] = e.ID
	addToSet(s.waiting, e.LineID, e.ID)
	return cloneEntry(&e), nil
}

// ValidateEntry checks that e is a well-formed new WAITING entry.
func ValidateEntry(e *model.QueueEntry) error {
	switch {
	case strings.TrimSpace(e.ID) == "":
		return fmt.Errorf("create entry: empty id: %w", ErrInvalidEntry)
	case strings.TrimSpace(e.SubjectID) == "":
		return fmt.Errorf("create entry: empty subject: %w", ErrInvalidEntry)
	case !e.ServiceClass.Valid():
		return fmt.Errorf("create entry: service class %d: %w", e.ServiceClass, ErrInvalidEntry)
	case e.Status != model.StatusWaiting:
		return fmt.Errorf("create entry: status %s: %w", e.Status, ErrInvalidEntry)
	case e.AssignedCounter != nil || e.ServiceStartedAt != nil || e.ServiceCompletedAt != nil:
		return fmt.Errorf("create entry: service fields set: %w", ErrInvalidEntry)
	}
	return nil
}

// GetEntry implements Store.GetEntry.
func (s *MemoryStore) GetEntry(_ context.Context, id string) (model.QueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return model.QueueEntry{}, model.NotFoundError("entry", id)
	}
	return cloneEntry(e), nil
}

func (s *MemoryStore) collect(sets ...map[string]struct{}) []model.QueueEntry {
	n := 0
	for _, set := range sets {
		n += len(set)
	}
	out := make([]model.QueueEntry, 0, n)
	for _, set := range sets {
		for id := range set {
			out = append(out, cloneEntry(s.entries[id]))
		}
	}
	return out
}

// ListWaiting implements Store.ListWaiting.
func (s *MemoryStore) ListWaiting(_ context.Context, lineID string) ([]model.QueueEntry, error) {
	defer metrics.RecordStoreOperation(storeLabel, "list_waiting", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.lines[lineID]; !ok {
		return nil, model.NotFoundError("line", lineID)
	}
	return s.collect(s.waiting[lineID]), nil
}

// ListActive implements Store.ListActive.
func (s *MemoryStore) ListActive(_ context.Context, lineID string) ([]model.QueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.lines[lineID]; !ok {
		return nil, model.NotFoundError("line", lineID)
	}
	return s.collect(s.waiting[lineID], s.called[lineID]), nil
}

// ListCompleted implements Store.ListCompleted.
func (s *MemoryStore) ListCompleted(_ context.Context, lineID string, limit int) ([]model.QueueEntry, error) {
	defer metrics.RecordStoreOperation(storeLabel, "list_completed", time.Now())

	if limit <= 0 {
		return nil, fmt.Errorf("list completed: %d: %w", limit, ErrInvalidLimit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.completed[lineID]
	n := min(limit, len(ids))
	out := make([]model.QueueEntry, 0, n)
	for i := len(ids) - 1; i >= len(ids)-n; i-- {
		out = append(out, cloneEntry(s.entries[ids[i]]))
	}
	return out, nil
}

// insertCompleted keeps a line's history ordered by completion time, ties by
// id descending, so the newest entries are at the tail.
func (s *MemoryStore) insertCompleted(e *model.QueueEntry) {
	ids := s.completed[e.LineID]
	i, _ := slices.BinarySearchFunc(ids, e, func(id string, target *model.QueueEntry) int {
		other := s.entries[id]
		if c := other.ServiceCompletedAt.Compare(*target.ServiceCompletedAt); c != 0 {
			return c
		}
		return cmp.Compare(target.ID, other.ID)
	})
	s.completed[e.LineID] = slices.Insert(ids, i, e.ID)
}

// ActiveEntries implements Store.ActiveEntries.
func (s *MemoryStore) ActiveEntries(_ context.Context, subjectID string) ([]model.QueueEntry, error) {
	s.mu.RLock()
	var out []model.QueueEntry
	for key, id := range s.active {
		if key.subject == subjectID {
			out = append(out, cloneEntry(s.entries[id]))
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b model.QueueEntry) int {
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Claim implements Store.Claim.
func (s *MemoryStore) Claim(_ context.Context, entryID, counterID string, at time.Time) (model.QueueEntry, error) {
	defer metrics.RecordStoreOperation(storeLabel, "claim", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[counterID]
	if !ok {
		return model.QueueEntry{}, model.NotFoundError("counter", counterID)
	}
	e, ok := s.entries[entryID]
	if !ok {
		return model.QueueEntry{}, model.NotFoundError("entry", entryID)
	}
	if c.Status != model.CounterIdle {
		return model.QueueEntry{}, fmt.Errorf("counter %s: %w", counterID, model.ErrCounterBusy)
	}
	if !model.ValidTransition(model.ActionCall, e.Status) {
		return model.QueueEntry{}, fmt.Errorf("entry %s is %s: %w", entryID, e.Status, model.ErrClaimConflict)
	}

	cid, eid := counterID, entryID
	startedAt := at
	e.Status, _ = model.ActionCall.Target()
	e.AssignedCounter = &cid
	e.ServiceStartedAt = &startedAt
	c.Status = model.CounterBusy
	c.CurrentEntry = &eid

	delete(s.waiting[e.LineID], e.ID)
	addToSet(s.called, e.LineID, e.ID)
	return cloneEntry(e), nil
}

// Release implements Store.Release.
func (s *MemoryStore) Release(_ context.Context, entryID string, to model.EntryStatus, at time.Time) (model.QueueEntry, error) {
	defer metrics.RecordStoreOperation(storeLabel, "release", time.Now())

	action, ok := model.ReleaseAction(to)
	if !ok {
		return model.QueueEntry{}, fmt.Errorf("release to %s: %w", to, model.ErrInvalidTransition)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[entryID]
	if !ok {
		return model.QueueEntry{}, model.NotFoundError("entry", entryID)
	}
	if !model.ValidTransition(action, e.Status) {
		return model.QueueEntry{}, fmt.Errorf("entry %s is %s: %w", entryID, e.Status, model.ErrInvalidTransition)
	}

	if e.AssignedCounter != nil {
		if c, ok := s.counters[*e.AssignedCounter]; ok && c.CurrentEntry != nil && *c.CurrentEntry == e.ID {
			c.Status = model.CounterIdle
			c.CurrentEntry = nil
		}
	}

	completedAt := at
	e.Status, _ = action.Target()
	e.AssignedCounter = nil
	e.ServiceCompletedAt = &completedAt

	delete(s.called[e.LineID], e.ID)
	delete(s.active, activeKey{subject: e.SubjectID, line: e.LineID})
	if e.Status == model.StatusCompleted {
		s.insertCompleted(e)
	}
	return cloneEntry(e), nil
}
