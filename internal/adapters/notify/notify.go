// Package notify delivers queue notifications to interested listeners.
//
// The core only sees Publisher. Hub serves in-process subscribers such as the
// SSE stream, RedisPublisher forwards to a remote bus, and Multi fans out to
// several publishers at once.
package notify

import (
	"context"
	"errors"

	"github.com/okian/lineup/internal/domain/model"
)

// Publisher sends a notification to its topic.
type Publisher interface {
	Publish(ctx context.Context, n model.Notification) error
}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, n model.Notification) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func validate(n model.Notification) error {
	if n.Topic == "" {
		return ErrNoTopic
	}
	switch n.Kind {
	case model.KindCalled:
		if n.Called == nil {
			return ErrMalformed
		}
	case model.KindUpdated:
		if n.Updated == nil {
			return ErrMalformed
		}
	default:
		return ErrMalformed
	}
	return nil
}
