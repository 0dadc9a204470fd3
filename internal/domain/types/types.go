// Package types contains the read shapes shared by the service and the API.
package types

import (
	"errors"
	"strings"
	"time"

	"github.com/okian/lineup/internal/domain/estimate"
	"github.com/okian/lineup/internal/domain/model"
)

// Errors shared by the service and the API.
var (
	ErrNoActive = errors.New("no active entry")

	ErrMissingSubject = errors.New("missing subject_id")
	ErrMissingLine    = errors.New("missing line_id")
	ErrInvalidClass   = errors.New("invalid service_class")
)

// JoinRequest asks for a place in a line.
type JoinRequest struct {
	SubjectID       string             `json:"subject_id"`
	LineID          string             `json:"line_id"`
	ServiceClass    model.ServiceClass `json:"service_class"`
	NeedsAssistance bool               `json:"needs_assistance"`
}

// Validate checks the request fields.
func (r JoinRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.SubjectID) == "":
		return ErrMissingSubject
	case strings.TrimSpace(r.LineID) == "":
		return ErrMissingLine
	case !r.ServiceClass.Valid():
		return ErrInvalidClass
	}
	return nil
}

// Ticket is an entry together with its current place in the line.
type Ticket struct {
	Entry      model.QueueEntry `json:"entry"`
	Position   int              `json:"position"`
	EtaMinutes int              `json:"eta_minutes"`
}

// NewTicket combines an entry with its estimate.
func NewTicket(e model.QueueEntry, est estimate.Estimate) Ticket {
	return Ticket{Entry: e, Position: est.Position, EtaMinutes: est.EtaMinutes}
}

// LineMetrics is the summary returned for a line.
type LineMetrics struct {
	LineID string `json:"line_id"`
	estimate.LineStats
}

// ServingItem is an entry currently called to a counter.
type ServingItem struct {
	Entry      model.QueueEntry `json:"entry"`
	CounterID  string           `json:"counter_id"`
	Position   int              `json:"position"`
	EtaMinutes int              `json:"eta_minutes"`
}

// QueueView is the ranked admin view of a line. Serving lists the CALLED
// entries, which are out of the ranking.
type QueueView struct {
	Line        model.Line      `json:"line"`
	Serving     []ServingItem   `json:"serving"`
	Items       []estimate.Item `json:"items"`
	Metrics     LineMetrics     `json:"metrics"`
	GeneratedAt time.Time       `json:"generated_at"`
}
