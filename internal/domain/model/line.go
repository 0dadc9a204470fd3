package model

import "time"

// Line is the scheduling context of a queue, typically one departing flight.
// Only DeadlineAt takes part in scoring.
type Line struct {
	ID          string     `json:"id"`
	Code        string     `json:"code"`
	Destination string     `json:"destination,omitempty"`
	DeadlineAt  *time.Time `json:"deadline_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// CounterStatus is the occupancy of a service station.
type CounterStatus string

// Counter statuses.
const (
	CounterIdle CounterStatus = "IDLE"
	CounterBusy CounterStatus = "BUSY"
)

// Counter is a service station. CurrentEntry is a lookup-only back reference;
// ownership of the binding stays with QueueEntry.AssignedCounter.
type Counter struct {
	ID           string        `json:"id"`
	Name         string        `json:"name,omitempty"`
	Status       CounterStatus `json:"status"`
	CurrentEntry *string       `json:"current_entry,omitempty"`
}
