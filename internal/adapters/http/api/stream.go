package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/lineup/internal/adapters/notify"
	"github.com/okian/lineup/pkg/logger"
)

const heartbeatInterval = 15 * time.Second

// StreamDependencies opens notification subscriptions.
type StreamDependencies interface {
	Subscribe(topic string) (*notify.Subscription, error)
}

// StreamHandler serves notifications as server-sent events.
type StreamHandler struct {
	deps      StreamDependencies
	heartbeat time.Duration
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(deps StreamDependencies) *StreamHandler {
	return &StreamHandler{deps: deps, heartbeat: heartbeatInterval}
}

// HandleStream handles GET /stream?topic= requests. Each notification is sent
// as an event named after its kind; the stream ends when the client leaves or
// the subscription is closed.
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	const op = "api.stream"
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		writeError(w, http.StatusBadRequest, "bad_request", newKind(op, ErrNoTopic))
		return
	}

	rc := http.NewResponseController(w)
	sub, err := h.deps.Subscribe(topic)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
		return
	}
	defer sub.Cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		logger.Get().Warn(r.Context(), "stream flush failed", logger.Error(wrapKind(op, ErrStreaming, err)))
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case n, ok := <-sub.C():
			if !ok {
				return
			}
			data, err := json.Marshal(n)
			if err != nil {
				logger.Get().Error(ctx, "encode notification", logger.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", n.Kind, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
