package notify

import (
	"context"
	"sync"

	"github.com/okian/lineup/internal/domain/model"
	"github.com/okian/lineup/pkg/logger"
	"github.com/okian/lineup/pkg/metrics"
)

const defaultBufferSize = 16

// Subscription receives the notifications of one topic.
type Subscription struct {
	id    uint64
	topic string
	ch    chan model.Notification
	hub   *Hub
	once  sync.Once
}

// C is closed when the subscription is cancelled or the hub closes.
func (s *Subscription) C() <-chan model.Notification { return s.ch }

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string { return s.topic }

// Cancel unsubscribes. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.hub.remove(s)
}

// Hub is an in-process topic fan-out. Delivery never blocks the publisher;
// a subscriber whose buffer is full misses the notification.
type Hub struct {
	mu         sync.RWMutex
	topics     map[string]map[uint64]*Subscription
	nextID     uint64
	count      int
	closed     bool
	bufferSize int
	logger     logger.Logger
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		topics:     make(map[string]map[uint64]*Subscription),
		bufferSize: defaultBufferSize,
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.Named("hub")
	return h
}

// Subscribe registers a listener on topic.
func (h *Hub) Subscribe(topic string) (*Subscription, error) {
	if topic == "" {
		return nil, ErrNoTopic
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}

	h.nextID++
	s := &Subscription{
		id:    h.nextID,
		topic: topic,
		ch:    make(chan model.Notification, h.bufferSize),
		hub:   h,
	}
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[uint64]*Subscription)
		h.topics[topic] = subs
	}
	subs[s.id] = s
	h.count++
	metrics.UpdateStreamSubscribers(h.count)
	return s, nil
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s.once.Do(func() {
		if subs, ok := h.topics[s.topic]; ok {
			delete(subs, s.id)
			if len(subs) == 0 {
				delete(h.topics, s.topic)
			}
		}
		h.count--
		close(s.ch)
		metrics.UpdateStreamSubscribers(h.count)
	})
}

// Publish implements Publisher.
func (h *Hub) Publish(ctx context.Context, n model.Notification) error {
	if err := validate(n); err != nil {
		metrics.RecordNotificationFailed(string(n.Kind))
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		metrics.RecordNotificationFailed(string(n.Kind))
		return ErrClosed
	}

	for _, s := range h.topics[n.Topic] {
		select {
		case s.ch <- n:
		default:
			h.logger.Debug(ctx, "subscriber lagging, notification dropped",
				logger.String("topic", n.Topic),
				logger.String("kind", string(n.Kind)),
			)
		}
	}
	metrics.RecordNotificationPublished(string(n.Kind))
	return nil
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Close cancels every subscription. Later publishes fail with ErrClosed.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	var all []*Subscription
	for _, subs := range h.topics {
		for _, s := range subs {
			all = append(all, s)
		}
	}
	h.mu.Unlock()

	for _, s := range all {
		s.Cancel()
	}
	return nil
}
