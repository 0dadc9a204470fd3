// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// ServiceClass is the static class of service of a participant. Its ordinal
// determines the base score.
type ServiceClass int

// Service classes in ascending order of base priority.
const (
	ClassStandard ServiceClass = iota
	ClassElevated
	ClassPremium
)

var classNames = [...]string{"STANDARD", "ELEVATED", "PREMIUM"}

// String returns the wire name of the class.
func (c ServiceClass) String() string {
	if c < ClassStandard || c > ClassPremium {
		return fmt.Sprintf("ServiceClass(%d)", int(c))
	}
	return classNames[c]
}

// Valid reports whether c is one of the declared classes.
func (c ServiceClass) Valid() bool {
	return c >= ClassStandard && c <= ClassPremium
}

// ParseServiceClass accepts the wire names plus the airline aliases used by
// the check-in desks (ECONOMY, BUSINESS, FIRST). Matching is case-insensitive.
func ParseServiceClass(s string) (ServiceClass, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "STANDARD", "ECONOMY":
		return ClassStandard, nil
	case "ELEVATED", "BUSINESS":
		return ClassElevated, nil
	case "PREMIUM", "FIRST":
		return ClassPremium, nil
	}
	return 0, fmt.Errorf("unknown service class %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (c ServiceClass) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid service class %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *ServiceClass) UnmarshalText(b []byte) error {
	v, err := ParseServiceClass(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// EntryStatus is the lifecycle state of a queue entry.
// Transitions only move forward: WAITING -> CALLED -> {COMPLETED, NO_SHOW}.
type EntryStatus string

// Entry statuses.
const (
	StatusWaiting   EntryStatus = "WAITING"
	StatusCalled    EntryStatus = "CALLED"
	StatusCompleted EntryStatus = "COMPLETED"
	StatusNoShow    EntryStatus = "NO_SHOW"
)

// Active reports whether the status still holds a place in the line.
func (s EntryStatus) Active() bool {
	return s == StatusWaiting || s == StatusCalled
}

// Terminal reports whether no further transition is possible.
func (s EntryStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusNoShow
}

// QueueEntry is one participant's claim on a line.
type QueueEntry struct {
	ID                 string       `json:"id"`
	SubjectID          string       `json:"subject_id"`
	LineID             string       `json:"line_id"`
	ServiceClass       ServiceClass `json:"service_class"`
	NeedsAssistance    bool         `json:"needs_assistance"`
	JoinedAt           time.Time    `json:"joined_at"`
	Status             EntryStatus  `json:"status"`
	AssignedCounter    *string      `json:"assigned_counter,omitempty"`
	ServiceStartedAt   *time.Time   `json:"service_started_at,omitempty"`
	ServiceCompletedAt *time.Time   `json:"service_completed_at,omitempty"`
}

// Priority reports whether the entry counts towards the priority share of a
// line: any non-standard class or an assistance need.
func (e *QueueEntry) Priority() bool {
	return e.ServiceClass != ClassStandard || e.NeedsAssistance
}

// ServiceDuration returns the measured service time, and false when either
// timestamp is missing.
func (e *QueueEntry) ServiceDuration() (time.Duration, bool) {
	if e.ServiceStartedAt == nil || e.ServiceCompletedAt == nil {
		return 0, false
	}
	return e.ServiceCompletedAt.Sub(*e.ServiceStartedAt), true
}
