package service

import (
	"time"

	"github.com/okian/lineup/internal/adapters/notify"
	"github.com/okian/lineup/internal/adapters/repository"
	"github.com/okian/lineup/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the backing store. The service builds an in-memory store when
// none is given and closes only the store it built.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithPublishers adds publishers that receive every notification next to the
// in-process hub.
func WithPublishers(publishers ...notify.Publisher) Option {
	return func(s *Service) {
		for _, p := range publishers {
			if p != nil {
				s.extraPublishers = append(s.extraPublishers, p)
			}
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithHistoryWindow sets how many completed services feed the rate estimate.
func WithHistoryWindow(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.historyWindow = n
		}
	}
}

// WithCongestion sets the waiting count above which ETAs are scaled and the
// scale in percent.
func WithCongestion(threshold, percent int) Option {
	return func(s *Service) {
		if threshold >= 0 && percent >= 100 {
			s.congestionThreshold = threshold
			s.congestionPercent = percent
		}
	}
}

// WithClaimMaxAttempts bounds the claim retry loop.
func WithClaimMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.claimMaxAttempts = n
		}
	}
}

// WithAutopilot enables automated calling. An empty counter list drives every
// counter registered when the service starts; listed counters are registered
// if missing. serviceDuration of zero leaves completion to operators.
func WithAutopilot(interval, serviceDuration time.Duration, counters ...string) Option {
	return func(s *Service) {
		s.autopilotEnabled = true
		if interval > 0 {
			s.autopilotInterval = interval
		}
		if serviceDuration >= 0 {
			s.autopilotService = serviceDuration
		}
		s.autopilotCounters = append([]string(nil), counters...)
	}
}

// WithSimulateMax caps the number of synthetic passengers per request.
func WithSimulateMax(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.simulateMax = n
		}
	}
}

// WithRandSeed makes simulation deterministic.
func WithRandSeed(seed uint64) Option {
	return func(s *Service) {
		s.seed = &seed
	}
}

// WithHubBufferSize sets the per-subscriber buffer of the notification hub.
func WithHubBufferSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.hubBuffer = n
		}
	}
}
