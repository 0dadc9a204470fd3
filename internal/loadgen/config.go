// Package loadgen drives a running lineup server over HTTP: it joins a crowd
// of synthetic passengers, serves them from a set of counters and checks that
// everyone was called exactly once.
package loadgen

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors.
var (
	ErrInvalidConfig = errors.New("invalid load config")
	ErrUnhealthy     = errors.New("service unhealthy")
	ErrUnexpected    = errors.New("unexpected response")
	ErrVerify        = errors.New("verification failed")
)

// Config holds configuration for a load run.
type Config struct {
	BaseURL    string        // Base URL of the service
	LineID     string        // Line to load; created if missing
	Passengers int           // Number of passengers to join
	Counters   int           // Number of counters serving the line
	Workers    int           // Concurrent join workers
	Timeout    time.Duration // HTTP request timeout
	Seed       uint64        // Seed for the passenger mix
	Verbose    bool          // Log every call
}

// Validate checks the run parameters.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	case c.LineID == "":
		return fmt.Errorf("%w: line id is required", ErrInvalidConfig)
	case c.Passengers < 1:
		return fmt.Errorf("%w: passengers must be positive", ErrInvalidConfig)
	case c.Counters < 1:
		return fmt.Errorf("%w: counters must be positive", ErrInvalidConfig)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	}
	return nil
}

// Stats holds run statistics.
type Stats struct {
	Joined        int
	JoinFailed    int
	Called        int
	Completed     int
	CounterBusy   int
	PremiumCalls  int
	ElevatedCalls int
	StandardCalls int
	Duration      time.Duration
}
