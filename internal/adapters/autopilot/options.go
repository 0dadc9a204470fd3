package autopilot

import (
	"time"

	"github.com/okian/lineup/pkg/logger"
)

// Option applies a configuration option to a CounterWorker.
type Option func(*CounterWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *CounterWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *CounterWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithInterval sets how often the worker tries to claim.
func WithInterval(d time.Duration) Option {
	return func(w *CounterWorker) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithServiceDuration makes the worker complete each claimed entry after d.
// Zero leaves completion to someone else.
func WithServiceDuration(d time.Duration) Option {
	return func(w *CounterWorker) {
		if d >= 0 {
			w.serviceDuration = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *CounterWorker) {
		if now != nil {
			w.now = now
		}
	}
}
