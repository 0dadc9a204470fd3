package notify

import "github.com/okian/lineup/pkg/logger"

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithBufferSize sets the per-subscriber channel buffer.
func WithBufferSize(size int) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.bufferSize = size
		}
	}
}

// WithHubLogger sets the hub logger.
func WithHubLogger(l logger.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// RedisOption configures a RedisPublisher.
type RedisOption func(*RedisPublisher)

// WithChannelPrefix sets the prefix prepended to every topic.
func WithChannelPrefix(prefix string) RedisOption {
	return func(p *RedisPublisher) {
		p.prefix = prefix
	}
}

// WithRedisLogger sets the publisher logger.
func WithRedisLogger(l logger.Logger) RedisOption {
	return func(p *RedisPublisher) {
		if l != nil {
			p.logger = l
		}
	}
}
