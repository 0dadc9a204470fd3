// Package service wires the scheduling core to its adapters and implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/lineup/internal/adapters/autopilot"
	"github.com/okian/lineup/internal/adapters/notify"
	"github.com/okian/lineup/internal/adapters/repository"
	"github.com/okian/lineup/internal/domain/assignment"
	"github.com/okian/lineup/internal/domain/estimate"
	"github.com/okian/lineup/internal/domain/inflight"
	"github.com/okian/lineup/internal/domain/model"
	"github.com/okian/lineup/internal/domain/ordering"
	"github.com/okian/lineup/internal/domain/scoring"
	"github.com/okian/lineup/internal/domain/types"
	"github.com/okian/lineup/pkg/logger"
	"github.com/okian/lineup/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultSimulateMax       = 200
	defaultSimulateCount     = 5
	defaultAutopilotInterval = 3 * time.Second
)

// Service implements the API dependencies for the check-in queue.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	ownsStore bool
	hub       *notify.Hub
	publisher notify.Publisher
	policy    *ordering.Policy
	rate      *estimate.RateEstimator
	wait      *estimate.WaitEstimator
	manager   *assignment.Manager
	guard     inflight.Guard
	autopilot *autopilot.Pool

	// Configuration
	extraPublishers     []notify.Publisher
	historyWindow       int
	congestionThreshold int
	congestionPercent   int
	claimMaxAttempts    int
	autopilotEnabled    bool
	autopilotInterval   time.Duration
	autopilotService    time.Duration
	autopilotCounters   []string
	simulateMax         int
	hubBuffer           int
	seed                *uint64
	now                 func() time.Time

	// State
	started   bool
	startedAt time.Time
	randMu    sync.Mutex
	rnd       *rand.Rand

	// Logging
	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		historyWindow:       estimate.DefaultHistoryWindow,
		congestionThreshold: estimate.DefaultCongestionThreshold,
		congestionPercent:   estimate.DefaultCongestionPercent,
		claimMaxAttempts:    assignment.DefaultMaxAttempts,
		autopilotInterval:   defaultAutopilotInterval,
		simulateMax:         defaultSimulateMax,
		now:                 time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting lineup service...")

	if s.store == nil {
		s.store = repository.NewMemoryStore(ctx)
		s.ownsStore = true
		s.logger.Info(ctx, "using in-memory store")
	}

	hubOpts := []notify.HubOption{notify.WithHubLogger(s.logger)}
	if s.hubBuffer > 0 {
		hubOpts = append(hubOpts, notify.WithBufferSize(s.hubBuffer))
	}
	s.hub = notify.NewHub(hubOpts...)
	if len(s.extraPublishers) > 0 {
		s.publisher = append(notify.Multi{s.hub}, s.extraPublishers...)
	} else {
		s.publisher = s.hub
	}

	s.policy = ordering.New(scoring.New())
	s.rate = estimate.NewRateEstimator(s.store, estimate.WithWindow(s.historyWindow))
	s.wait = estimate.NewWaitEstimator(s.store, s.policy, s.rate,
		estimate.WithCongestion(s.congestionThreshold, s.congestionPercent))
	s.manager = assignment.New(s.store,
		assignment.WithPolicy(s.policy),
		assignment.WithPublisher(s.publisher),
		assignment.WithLogger(s.logger),
		assignment.WithClock(s.now),
		assignment.WithMaxAttempts(s.claimMaxAttempts),
	)
	s.guard = inflight.NewGuard()

	seed := uint64(time.Now().UnixNano())
	if s.seed != nil {
		seed = *s.seed
	}
	s.rnd = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	if s.autopilotEnabled {
		if err := s.startAutopilot(ctx); err != nil {
			return err
		}
	}

	s.started = true
	s.startedAt = s.now()
	s.logger.Info(ctx, "lineup service started",
		logger.Int("historyWindow", s.historyWindow),
		logger.Int("claimMaxAttempts", s.claimMaxAttempts),
		logger.Bool("autopilot", s.autopilotEnabled),
	)
	return nil
}

func (s *Service) startAutopilot(ctx context.Context) error {
	ids := s.autopilotCounters
	if len(ids) == 0 {
		counters, err := s.store.ListCounters(ctx)
		if err != nil {
			return fmt.Errorf("autopilot: list counters: %w", err)
		}
		for _, c := range counters {
			ids = append(ids, c.ID)
		}
	}
	for _, id := range ids {
		_, err := s.store.CreateCounter(ctx, model.Counter{ID: id, Name: id})
		if err != nil && !errors.Is(err, model.ErrDuplicate) {
			return fmt.Errorf("autopilot: register counter %s: %w", id, err)
		}
	}

	s.autopilot = autopilot.NewPool(claimer{s}, s.store, s.guard, ids,
		autopilot.WithInterval(s.autopilotInterval),
		autopilot.WithServiceDuration(s.autopilotService),
		autopilot.WithClock(s.now),
		autopilot.WithLogger(s.logger),
	)
	s.autopilot.Start(context.WithoutCancel(ctx))
	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping lineup service...")

	if s.autopilot != nil {
		if err := s.autopilot.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "autopilot shutdown", logger.Error(err))
		}
	}
	_ = s.hub.Close()
	if s.ownsStore {
		_ = s.store.Close()
	}

	s.started = false
	s.logger.Info(ctx, "lineup service stopped")
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

func (s *Service) newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Join adds the subject to a line and returns its first estimate.
func (s *Service) Join(ctx context.Context, req types.JoinRequest) (types.Ticket, error) {
	if err := s.ready(); err != nil {
		return types.Ticket{}, err
	}
	t, err := s.join(ctx, req)
	if err != nil {
		return types.Ticket{}, err
	}
	s.publish(ctx, model.NewUpdated(req.LineID))
	return t, nil
}

func (s *Service) join(ctx context.Context, req types.JoinRequest) (types.Ticket, error) {
	if err := req.Validate(); err != nil {
		return types.Ticket{}, fmt.Errorf("join: %w", err)
	}

	now := s.now()
	entry, err := s.store.CreateEntry(ctx, model.QueueEntry{
		ID:              s.newID(),
		SubjectID:       req.SubjectID,
		LineID:          req.LineID,
		ServiceClass:    req.ServiceClass,
		NeedsAssistance: req.NeedsAssistance,
		JoinedAt:        now,
		Status:          model.StatusWaiting,
	})
	if err != nil {
		return types.Ticket{}, fmt.Errorf("join: %w", err)
	}
	metrics.RecordJoin(entry.ServiceClass.String())

	est, err := s.wait.Estimate(ctx, &entry, now)
	if err != nil {
		return types.Ticket{}, fmt.Errorf("join: estimate: %w", err)
	}
	metrics.RecordETA(est.EtaMinutes)

	s.logger.Debug(ctx, "participant joined",
		logger.String("entry_id", entry.ID),
		logger.String("line_id", entry.LineID),
		logger.Int("position", est.Position),
	)
	return types.NewTicket(entry, est), nil
}

// Status returns the subject's active entry with its position and ETA. With
// an empty lineID the earliest joined active entry is used. types.ErrNoActive is
// returned when the subject is not in any line.
func (s *Service) Status(ctx context.Context, subjectID, lineID string) (types.Ticket, error) {
	if err := s.ready(); err != nil {
		return types.Ticket{}, err
	}
	active, err := s.store.ActiveEntries(ctx, subjectID)
	if err != nil {
		return types.Ticket{}, fmt.Errorf("status: %w", err)
	}
	for i := range active {
		e := &active[i]
		if lineID != "" && e.LineID != lineID {
			continue
		}
		est, err := s.wait.Estimate(ctx, e, s.now())
		if err != nil {
			return types.Ticket{}, fmt.Errorf("status: %w", err)
		}
		return types.NewTicket(*e, est), nil
	}
	return types.Ticket{}, types.ErrNoActive
}

// ClaimNext assigns the top waiting entry of lineID to counterID.
func (s *Service) ClaimNext(ctx context.Context, lineID, counterID string) (model.QueueEntry, error) {
	if err := s.ready(); err != nil {
		return model.QueueEntry{}, err
	}
	c, err := s.claim(ctx, lineID, counterID)
	return c.Entry, err
}

func (s *Service) claim(ctx context.Context, lineID, counterID string) (assignment.Claim, error) {
	c, err := s.manager.ClaimNext(ctx, lineID, counterID)
	if c.Attempts > 0 {
		metrics.RecordClaimAttempts(c.Attempts)
	}
	for range c.Conflicts {
		metrics.RecordClaimConflict()
	}
	switch {
	case err == nil:
		metrics.RecordClaim(metrics.ClaimClaimed)
		metrics.RecordTransition(string(model.StatusCalled))
	case errors.Is(err, model.ErrLineEmpty):
		metrics.RecordClaim(metrics.ClaimLineEmpty)
	case errors.Is(err, model.ErrCounterBusy):
		metrics.RecordClaim(metrics.ClaimCounterBusy)
	default:
		metrics.RecordClaim(metrics.ClaimError)
	}
	return c, err
}

// CompleteService finishes the service of a CALLED entry.
func (s *Service) CompleteService(ctx context.Context, entryID string) (model.QueueEntry, error) {
	if err := s.ready(); err != nil {
		return model.QueueEntry{}, err
	}
	e, err := s.manager.CompleteService(ctx, entryID)
	if err == nil {
		metrics.RecordTransition(string(model.StatusCompleted))
	}
	return e, err
}

// MarkNoShow closes a CALLED entry whose participant did not show up.
func (s *Service) MarkNoShow(ctx context.Context, entryID string) (model.QueueEntry, error) {
	if err := s.ready(); err != nil {
		return model.QueueEntry{}, err
	}
	e, err := s.manager.MarkNoShow(ctx, entryID)
	if err == nil {
		metrics.RecordTransition(string(model.StatusNoShow))
	}
	return e, err
}

// Metrics returns the waiting summary of a line.
func (s *Service) Metrics(ctx context.Context, lineID string) (types.LineMetrics, error) {
	if err := s.ready(); err != nil {
		return types.LineMetrics{}, err
	}
	stats, err := s.wait.Line(ctx, lineID)
	if err != nil {
		return types.LineMetrics{}, fmt.Errorf("metrics: %w", err)
	}
	metrics.UpdateWaitingEntries(lineID, stats.WaitingCount)
	metrics.UpdateAverageServiceMinutes(lineID, stats.AverageServiceMinutes)
	return types.LineMetrics{LineID: lineID, LineStats: stats}, nil
}

// Queue returns the entries being served and the ranked waiting entries of
// a line.
func (s *Service) Queue(ctx context.Context, lineID string) (types.QueueView, error) {
	if err := s.ready(); err != nil {
		return types.QueueView{}, err
	}
	line, err := s.store.GetLine(ctx, lineID)
	if err != nil {
		return types.QueueView{}, fmt.Errorf("queue: %w", err)
	}
	active, err := s.store.ListActive(ctx, lineID)
	if err != nil {
		return types.QueueView{}, fmt.Errorf("queue: %w", err)
	}
	now := s.now()
	items, stats, err := s.wait.Queue(ctx, lineID, now)
	if err != nil {
		return types.QueueView{}, fmt.Errorf("queue: %w", err)
	}
	if items == nil {
		items = []estimate.Item{}
	}
	metrics.UpdateWaitingEntries(lineID, stats.WaitingCount)
	return types.QueueView{
		Line:        line,
		Serving:     servingRows(active),
		Items:       items,
		Metrics:     types.LineMetrics{LineID: lineID, LineStats: stats},
		GeneratedAt: now,
	}, nil
}

// servingRows keeps the CALLED entries. They sit at position 0 with no wait.
func servingRows(active []model.QueueEntry) []types.ServingItem {
	rows := []types.ServingItem{}
	for _, e := range active {
		if e.Status != model.StatusCalled {
			continue
		}
		row := types.ServingItem{Entry: e}
		if e.AssignedCounter != nil {
			row.CounterID = *e.AssignedCounter
		}
		rows = append(rows, row)
	}
	return rows
}

// CreateLine registers a line. An empty id is generated.
func (s *Service) CreateLine(ctx context.Context, line model.Line) (model.Line, error) {
	if err := s.ready(); err != nil {
		return model.Line{}, err
	}
	if line.ID == "" {
		line.ID = s.newID()
	}
	if line.CreatedAt.IsZero() {
		line.CreatedAt = s.now()
	}
	out, err := s.store.CreateLine(ctx, line)
	if err != nil {
		return model.Line{}, fmt.Errorf("create line: %w", err)
	}
	s.logger.Info(ctx, "line created", logger.String("line_id", out.ID), logger.String("code", out.Code))
	return out, nil
}

// ListLines returns every registered line.
func (s *Service) ListLines(ctx context.Context) ([]model.Line, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.ListLines(ctx)
}

// RegisterCounter adds an IDLE counter. An empty id is generated.
func (s *Service) RegisterCounter(ctx context.Context, counter model.Counter) (model.Counter, error) {
	if err := s.ready(); err != nil {
		return model.Counter{}, err
	}
	if counter.ID == "" {
		counter.ID = s.newID()
	}
	out, err := s.store.CreateCounter(ctx, counter)
	if err != nil {
		return model.Counter{}, fmt.Errorf("register counter: %w", err)
	}
	s.logger.Info(ctx, "counter registered", logger.String("counter_id", out.ID))
	return out, nil
}

// ListCounters returns every counter with its current status.
func (s *Service) ListCounters(ctx context.Context) ([]model.Counter, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.ListCounters(ctx)
}

// Subscribe opens a notification stream on topic.
func (s *Service) Subscribe(topic string) (*notify.Subscription, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.hub.Subscribe(topic)
}

func (s *Service) publish(ctx context.Context, n model.Notification) {
	if err := s.publisher.Publish(ctx, n); err != nil {
		s.logger.Warn(ctx, "publish notification failed",
			logger.String("topic", n.Topic),
			logger.String("kind", string(n.Kind)),
			logger.Error(err),
		)
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":          s.started,
		"historyWindow":    s.historyWindow,
		"claimMaxAttempts": s.claimMaxAttempts,
		"autopilot":        s.autopilotEnabled,
	}

	goroutines := runtime.NumGoroutine()
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	metrics.UpdateSystemGoroutineCount(goroutines)
	metrics.UpdateSystemMemoryUsage(mem.Alloc)
	stats["goroutines"] = goroutines

	if !s.started {
		return stats
	}

	ctx := context.Background()
	stats["uptimeSeconds"] = int(s.now().Sub(s.startedAt).Seconds())
	stats["subscribers"] = s.hub.Subscribers()
	stats["inflight"] = s.guard.Size()
	if s.autopilot != nil {
		stats["autopilotWorkers"] = s.autopilot.Size()
	}

	if lines, err := s.store.ListLines(ctx); err == nil {
		stats["lines"] = len(lines)
	}
	if counters, err := s.store.ListCounters(ctx); err == nil {
		busy := 0
		for _, c := range counters {
			if c.Status == model.CounterBusy {
				busy++
			}
		}
		stats["counters"] = len(counters)
		stats["busyCounters"] = busy
	}
	return stats
}

// claimer lets autopilot claims go through the service so they are counted
// like operator claims.
type claimer struct{ s *Service }

func (c claimer) ClaimNext(ctx context.Context, lineID, counterID string) (assignment.Claim, error) {
	return c.s.claim(ctx, lineID, counterID)
}

func (c claimer) CompleteService(ctx context.Context, entryID string) (model.QueueEntry, error) {
	e, err := c.s.manager.CompleteService(ctx, entryID)
	if err == nil {
		metrics.RecordTransition(string(model.StatusCompleted))
	}
	return e, err
}
