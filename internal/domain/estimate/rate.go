// Package estimate derives service-time and wait-time estimates for a line
// from its completed history and its current waiting set.
package estimate

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/lineup/internal/domain/model"
)

// Default service-rate parameters.
const (
	DefaultHistoryWindow  = 10
	DefaultServiceMinutes = 3
	defaultFallback       = 3 * time.Minute
)

// History lists the most recent COMPLETED entries of a line, newest
// serviceCompletedAt first.
type History interface {
	ListCompleted(ctx context.Context, lineID string, limit int) ([]model.QueueEntry, error)
}

// RateEstimator computes the average service time of a line in whole minutes.
type RateEstimator struct {
	history  History
	window   int
	fallback time.Duration
	def      int
}

// RateOption applies a configuration option to the RateEstimator.
type RateOption func(*RateEstimator)

// WithWindow sets how many completed entries are averaged.
func WithWindow(n int) RateOption {
	return func(r *RateEstimator) {
		if n > 0 {
			r.window = n
		}
	}
}

// WithFallback sets the duration used for records missing a start or end.
func WithFallback(d time.Duration) RateOption {
	return func(r *RateEstimator) {
		if d > 0 {
			r.fallback = d
		}
	}
}

// WithDefaultMinutes sets the result used when a line has no history.
func WithDefaultMinutes(m int) RateOption {
	return func(r *RateEstimator) {
		if m >= 1 {
			r.def = m
		}
	}
}

// NewRateEstimator creates a RateEstimator reading from history.
func NewRateEstimator(history History, opts ...RateOption) *RateEstimator {
	r := &RateEstimator{
		history:  history,
		window:   DefaultHistoryWindow,
		fallback: defaultFallback,
		def:      DefaultServiceMinutes,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AverageServiceMinutes returns ceil(mean service duration) in minutes, never
// less than 1. NO_SHOW entries never reach the history and so never count.
func (r *RateEstimator) AverageServiceMinutes(ctx context.Context, lineID string) (int, error) {
	done, err := r.history.ListCompleted(ctx, lineID, r.window)
	if err != nil {
		return 0, fmt.Errorf("list completed: %w", err)
	}
	return r.average(done), nil
}

func (r *RateEstimator) average(done []model.QueueEntry) int {
	var totalMs int64
	n := 0
	for i := range done {
		if done[i].Status != model.StatusCompleted {
			continue
		}
		d, ok := done[i].ServiceDuration()
		if !ok {
			d = r.fallback
		}
		totalMs += d.Milliseconds()
		n++
		if n == r.window {
			break
		}
	}
	if n == 0 {
		return r.def
	}

	const msPerMinute = int64(time.Minute / time.Millisecond)
	// ceil(total / (n * 60000)) in integers
	div := int64(n) * msPerMinute
	minutes := int((totalMs + div - 1) / div)
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}
