package assignment

import (
	"time"

	"github.com/okian/lineup/internal/domain/ordering"
	"github.com/okian/lineup/pkg/logger"
)

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithPolicy sets the ordering policy used to pick the next entry.
func WithPolicy(p *ordering.Policy) Option {
	return func(m *Manager) {
		if p != nil {
			m.policy = p
		}
	}
}

// WithPublisher sets where called/updated notifications go.
func WithPublisher(p Publisher) Option {
	return func(m *Manager) {
		m.publisher = p
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithMaxAttempts bounds claim retries after lost races.
func WithMaxAttempts(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}
