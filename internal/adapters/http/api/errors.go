package api

import (
	"errors"
	"fmt"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest  = errors.New("bad request")
	ErrMissingPath = errors.New("missing path parameter")
	ErrNoTopic     = errors.New("missing topic")
	ErrStreaming   = errors.New("streaming unsupported")
)

// wrapKind tags err with a sentinel kind for errors.Is checks.
func wrapKind(op string, kind, err error) error {
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// newKind returns a bare sentinel error scoped to op.
func newKind(op string, kind error) error {
	return fmt.Errorf("%s: %w", op, kind)
}
