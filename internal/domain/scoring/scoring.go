// Package scoring computes the time-dependent priority score of a queue entry.
//
// The score is never stored. Callers recompute it from the entry's join time,
// the line deadline and a snapshot of the clock every time they need it.
package scoring

import (
	"math"
	"time"

	"github.com/okian/lineup/internal/domain/model"
)

// Default scoring weights.
const (
	defaultStandardBase   = 100
	defaultElevatedBase   = 300
	defaultPremiumBase    = 500
	defaultAssistBonus    = 400
	defaultAgingPerMinute = 2.0
	defaultUrgencyWindow  = 90 * time.Minute
	defaultUrgencyPerMin  = 10.0
)

// Input abstracts the entry and line fields needed for scoring.
type Input struct {
	ServiceClass    model.ServiceClass
	NeedsAssistance bool
	JoinedAt        time.Time
	DeadlineAt      *time.Time
}

// InputFor builds an Input from an entry and the deadline of its line.
func InputFor(e *model.QueueEntry, deadlineAt *time.Time) Input {
	return Input{
		ServiceClass:    e.ServiceClass,
		NeedsAssistance: e.NeedsAssistance,
		JoinedAt:        e.JoinedAt,
		DeadlineAt:      deadlineAt,
	}
}

// Calculator is a pure score function with configurable weights.
// The zero value is not usable; build one with New.
type Calculator struct {
	base           [3]int
	assistBonus    int
	agingPerMinute float64
	urgencyWindow  time.Duration
	urgencyPerMin  float64
}

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithBase overrides the base score of one class.
func WithBase(class model.ServiceClass, base int) Option {
	return func(c *Calculator) {
		if class.Valid() {
			c.base[class] = base
		}
	}
}

// WithAssistanceBonus overrides the accessibility bonus.
func WithAssistanceBonus(bonus int) Option {
	return func(c *Calculator) {
		c.assistBonus = bonus
	}
}

// WithAging sets how many points an entry gains per minute waited.
func WithAging(perMinute float64) Option {
	return func(c *Calculator) {
		if perMinute >= 0 {
			c.agingPerMinute = perMinute
		}
	}
}

// WithUrgency sets the window before the deadline in which urgency applies and
// the points gained per minute inside it.
func WithUrgency(window time.Duration, perMinute float64) Option {
	return func(c *Calculator) {
		if window > 0 && perMinute >= 0 {
			c.urgencyWindow = window
			c.urgencyPerMin = perMinute
		}
	}
}

// New creates a Calculator. Without options it uses the production weights.
func New(opts ...Option) *Calculator {
	c := &Calculator{
		base:           [3]int{defaultStandardBase, defaultElevatedBase, defaultPremiumBase},
		assistBonus:    defaultAssistBonus,
		agingPerMinute: defaultAgingPerMinute,
		urgencyWindow:  defaultUrgencyWindow,
		urgencyPerMin:  defaultUrgencyPerMin,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Score returns the priority of in at now. An invalid class is a caller bug
// and scores as STANDARD.
func (c *Calculator) Score(in Input, now time.Time) int {
	score := c.base[model.ClassStandard]
	if in.ServiceClass.Valid() {
		score = c.base[in.ServiceClass]
	}

	if in.NeedsAssistance {
		score += c.assistBonus
	}

	score += c.aging(in.JoinedAt, now)
	score += c.urgency(in.DeadlineAt, now)
	return score
}

// aging grows with time waited; it is 0 when the clock reads before joinedAt.
func (c *Calculator) aging(joinedAt, now time.Time) int {
	waited := now.Sub(joinedAt).Minutes()
	if waited <= 0 {
		return 0
	}
	return int(math.Floor(waited * c.agingPerMinute))
}

// urgency is 0 outside the open interval (0, window) before the deadline and
// grows linearly to window*perMinute as the deadline approaches.
func (c *Calculator) urgency(deadlineAt *time.Time, now time.Time) int {
	if deadlineAt == nil {
		return 0
	}
	left := deadlineAt.Sub(now).Minutes()
	window := c.urgencyWindow.Minutes()
	if left <= 0 || left >= window {
		return 0
	}
	return int(math.Floor((window - left) * c.urgencyPerMin))
}

var defaultCalculator = New()

// Score scores in with the production weights.
func Score(in Input, now time.Time) int {
	return defaultCalculator.Score(in, now)
}
