package notify

import "errors"

// Sentinel errors for publishing.
var (
	ErrNoTopic   = errors.New("notification has no topic")
	ErrMalformed = errors.New("notification payload does not match its kind")
	ErrClosed    = errors.New("hub closed")
)
