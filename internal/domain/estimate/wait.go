package estimate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/lineup/internal/domain/model"
	"github.com/okian/lineup/internal/domain/ordering"
)

// Default congestion parameters: above 10 waiting entries ETAs grow by 20%.
const (
	DefaultCongestionThreshold = 10
	DefaultCongestionPercent   = 120
)

// ErrInactiveEntry reports an estimate request for a COMPLETED or NO_SHOW entry.
var ErrInactiveEntry = errors.New("entry is not active")

// Source is the store view the wait estimator reads.
type Source interface {
	History
	ListWaiting(ctx context.Context, lineID string) ([]model.QueueEntry, error)
	GetLine(ctx context.Context, lineID string) (model.Line, error)
}

// Estimate is a participant's place in line and expected wait.
type Estimate struct {
	Position   int `json:"position"`
	EtaMinutes int `json:"eta_minutes"`
}

// LineStats summarises one line at a single instant.
type LineStats struct {
	WaitingCount          int `json:"waiting_count"`
	PriorityCount         int `json:"priority_count"`
	TotalEtaMinutes       int `json:"total_eta_minutes"`
	AverageServiceMinutes int `json:"average_service_minutes"`
}

// Item is one row of the ranked queue view.
type Item struct {
	Entry      model.QueueEntry `json:"entry"`
	Score      int              `json:"score"`
	Position   int              `json:"position"`
	EtaMinutes int              `json:"eta_minutes"`
}

// WaitEstimator combines the ordering policy with the service rate.
type WaitEstimator struct {
	source    Source
	policy    *ordering.Policy
	rate      *RateEstimator
	threshold int
	percent   int
}

// WaitOption applies a configuration option to the WaitEstimator.
type WaitOption func(*WaitEstimator)

// WithCongestion sets the waiting count above which ETAs are scaled and the
// scale in percent.
func WithCongestion(threshold, percent int) WaitOption {
	return func(w *WaitEstimator) {
		if threshold >= 0 && percent >= 100 {
			w.threshold = threshold
			w.percent = percent
		}
	}
}

// NewWaitEstimator creates a WaitEstimator.
func NewWaitEstimator(source Source, policy *ordering.Policy, rate *RateEstimator, opts ...WaitOption) *WaitEstimator {
	if policy == nil {
		policy = ordering.New(nil)
	}
	if rate == nil {
		rate = NewRateEstimator(source)
	}
	w := &WaitEstimator{
		source:    source,
		policy:    policy,
		rate:      rate,
		threshold: DefaultCongestionThreshold,
		percent:   DefaultCongestionPercent,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ETA returns ceil((position+1) * avg * factor). The factor is applied as an
// integer percentage so results are exact.
func (w *WaitEstimator) ETA(position, avgMinutes, waitingCount int) int {
	pct := 100
	if waitingCount > w.threshold {
		pct = w.percent
	}
	return ((position+1)*avgMinutes*pct + 99) / 100
}

// Estimate returns the position and ETA of entry at now. A CALLED entry is
// already being served and gets {0, 0}.
func (w *WaitEstimator) Estimate(ctx context.Context, entry *model.QueueEntry, now time.Time) (Estimate, error) {
	switch entry.Status {
	case model.StatusCalled:
		return Estimate{}, nil
	case model.StatusWaiting:
	default:
		return Estimate{}, fmt.Errorf("estimate %s: %w", entry.ID, ErrInactiveEntry)
	}

	snap, err := w.snapshot(ctx, entry.LineID)
	if err != nil {
		return Estimate{}, err
	}

	pos := w.policy.Position(entry, snap.waiting, snap.line.DeadlineAt, now)
	return Estimate{
		Position:   pos,
		EtaMinutes: w.ETA(pos, snap.avg, len(snap.waiting)),
	}, nil
}

// Line returns the line summary at now. TotalEtaMinutes is the time to drain
// the whole line and is 0 when nobody waits.
func (w *WaitEstimator) Line(ctx context.Context, lineID string) (LineStats, error) {
	snap, err := w.snapshot(ctx, lineID)
	if err != nil {
		return LineStats{}, err
	}
	return snap.stats(w), nil
}

// Queue returns the ranked waiting entries of a line with their positions and
// ETAs, all computed against the same now.
func (w *WaitEstimator) Queue(ctx context.Context, lineID string, now time.Time) ([]Item, LineStats, error) {
	snap, err := w.snapshot(ctx, lineID)
	if err != nil {
		return nil, LineStats{}, err
	}

	ranked := w.policy.Sort(snap.waiting, snap.line.DeadlineAt, now)
	items := make([]Item, len(ranked))
	for i, r := range ranked {
		items[i] = Item{
			Entry:      r.Entry,
			Score:      r.Score,
			Position:   i,
			EtaMinutes: w.ETA(i, snap.avg, len(ranked)),
		}
	}
	return items, snap.stats(w), nil
}

type snapshot struct {
	line    model.Line
	waiting []model.QueueEntry
	avg     int
}

func (s *snapshot) stats(w *WaitEstimator) LineStats {
	st := LineStats{
		WaitingCount:          len(s.waiting),
		AverageServiceMinutes: s.avg,
	}
	for i := range s.waiting {
		if s.waiting[i].Priority() {
			st.PriorityCount++
		}
	}
	if st.WaitingCount > 0 {
		st.TotalEtaMinutes = w.ETA(st.WaitingCount-1, s.avg, st.WaitingCount)
	}
	return st
}

func (w *WaitEstimator) snapshot(ctx context.Context, lineID string) (*snapshot, error) {
	line, err := w.source.GetLine(ctx, lineID)
	if err != nil {
		return nil, fmt.Errorf("get line: %w", err)
	}
	waiting, err := w.source.ListWaiting(ctx, lineID)
	if err != nil {
		return nil, fmt.Errorf("list waiting: %w", err)
	}
	avg, err := w.rate.AverageServiceMinutes(ctx, lineID)
	if err != nil {
		return nil, err
	}
	return &snapshot{line: line, waiting: waiting, avg: avg}, nil
}

// AverageServiceMinutes exposes the underlying rate estimate.
func (w *WaitEstimator) AverageServiceMinutes(ctx context.Context, lineID string) (int, error) {
	return w.rate.AverageServiceMinutes(ctx, lineID)
}
