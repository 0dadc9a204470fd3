package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/okian/lineup/internal/domain/model"
	"github.com/okian/lineup/pkg/logger"
	"github.com/okian/lineup/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

// DefaultChannelPrefix is prepended to topics when no prefix is configured.
const DefaultChannelPrefix = "lineup:"

// RedisPublisher publishes notifications as JSON on one redis channel per
// topic.
type RedisPublisher struct {
	client redis.UniversalClient
	prefix string
	logger logger.Logger
}

// NewRedisPublisher wraps an existing client.
func NewRedisPublisher(client redis.UniversalClient, opts ...RedisOption) *RedisPublisher {
	p := &RedisPublisher{
		client: client,
		prefix: DefaultChannelPrefix,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("redis-publisher")
	return p
}

// NewRedisClient parses url, tunes the pool and checks the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.PoolSize = 50
	opts.MinIdleConns = 5
	opts.MaxRetries = 3

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Channel returns the redis channel a topic is published on.
func (p *RedisPublisher) Channel(topic string) string {
	return p.prefix + topic
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, n model.Notification) error {
	if err := validate(n); err != nil {
		metrics.RecordNotificationFailed(string(n.Kind))
		return err
	}

	payload, err := json.Marshal(n)
	if err != nil {
		metrics.RecordNotificationFailed(string(n.Kind))
		return fmt.Errorf("marshal notification: %w", err)
	}

	receivers, err := p.client.Publish(ctx, p.Channel(n.Topic), payload).Result()
	if err != nil {
		metrics.RecordNotificationFailed(string(n.Kind))
		metrics.RecordErrorByComponent("notify", "redis_publish")
		return fmt.Errorf("redis publish %s: %w", n.Topic, err)
	}

	p.logger.Debug(ctx, "notification published",
		logger.String("topic", n.Topic),
		logger.String("kind", string(n.Kind)),
		logger.Int64("receivers", receivers),
	)
	metrics.RecordNotificationPublished(string(n.Kind))
	return nil
}

// Ping checks the connection.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
