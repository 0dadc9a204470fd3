package model

import "fmt"

// NotificationKind is the closed set of notifications the core emits.
type NotificationKind string

// Notification kinds.
const (
	// KindCalled targets one participant and carries the assigned counter.
	KindCalled NotificationKind = "called"
	// KindUpdated is a line-wide "queue changed" signal.
	KindUpdated NotificationKind = "updated"
)

// Notification is a tagged variant. Exactly one of Called or Updated is set,
// matching Kind.
type Notification struct {
	Kind    NotificationKind `json:"kind"`
	Topic   string           `json:"topic"`
	Called  *CalledPayload   `json:"called,omitempty"`
	Updated *UpdatedPayload  `json:"updated,omitempty"`
}

// CalledPayload tells a participant where to go.
type CalledPayload struct {
	EntryID   string `json:"entry_id"`
	LineID    string `json:"line_id"`
	CounterID string `json:"counter_id"`
}

// UpdatedPayload names the line whose ordering changed.
type UpdatedPayload struct {
	LineID string `json:"line_id"`
}

// ParticipantTopic is the topic a subject listens on for call notifications.
func ParticipantTopic(subjectID string) string {
	return "passenger:" + subjectID
}

// LineTopic is the topic carrying line-wide updates.
func LineTopic(lineID string) string {
	return fmt.Sprintf("line:%s:update", lineID)
}

// NewCalled builds the participant-scoped call notification.
func NewCalled(e *QueueEntry, counterID string) Notification {
	return Notification{
		Kind:  KindCalled,
		Topic: ParticipantTopic(e.SubjectID),
		Called: &CalledPayload{
			EntryID:   e.ID,
			LineID:    e.LineID,
			CounterID: counterID,
		},
	}
}

// NewUpdated builds the line-wide update notification.
func NewUpdated(lineID string) Notification {
	return Notification{
		Kind:    KindUpdated,
		Topic:   LineTopic(lineID),
		Updated: &UpdatedPayload{LineID: lineID},
	}
}
