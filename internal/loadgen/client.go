package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/lineup/internal/domain/model"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Call-next outcomes reported by the server.
const (
	outcomeClaimed     = "claimed"
	outcomeCounterBusy = "counter_busy"
	outcomeLineEmpty   = "line_empty"
)

// client is a thin JSON client for the lineup API.
type client struct {
	base string
	http *http.Client
}

func newClient(base string, timeout time.Duration) *client {
	return &client{
		base: base,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// do sends body as JSON and decodes a response with the wanted status into
// out. Any other status is returned as ErrUnexpected with the status code.
func (c *client) do(ctx context.Context, method, path string, body, out any, want ...int) (int, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	for _, code := range want {
		if resp.StatusCode != code {
			continue
		}
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
			}
		}
		return resp.StatusCode, nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return resp.StatusCode, fmt.Errorf("%w: %s %s: %d %s", ErrUnexpected, method, path, resp.StatusCode, bytes.TrimSpace(msg))
}

func (c *client) health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil, http.StatusOK)
	return err
}

// ensureLine creates the line; an existing line is fine.
func (c *client) ensureLine(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodPost, "/lines", map[string]string{"id": id}, nil,
		http.StatusCreated, http.StatusConflict)
	return err
}

// ensureCounter registers the counter; an existing counter is fine.
func (c *client) ensureCounter(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodPost, "/counters", map[string]string{"id": id}, nil,
		http.StatusCreated, http.StatusConflict)
	return err
}

func (c *client) join(ctx context.Context, lineID string, p Passenger) error {
	_, err := c.do(ctx, http.MethodPost, "/lines/"+lineID+"/join", p, nil, http.StatusCreated)
	return err
}

type callNextResponse struct {
	Outcome string            `json:"outcome"`
	Entry   *model.QueueEntry `json:"entry"`
}

func (c *client) callNext(ctx context.Context, lineID, counterID string) (callNextResponse, error) {
	var out callNextResponse
	_, err := c.do(ctx, http.MethodPost, "/lines/"+lineID+"/call-next",
		map[string]string{"counter_id": counterID}, &out, http.StatusOK)
	return out, err
}

func (c *client) complete(ctx context.Context, entryID string) error {
	_, err := c.do(ctx, http.MethodPost, "/entries/"+entryID+"/complete", nil, nil, http.StatusOK)
	return err
}

type lineMetrics struct {
	WaitingCount int `json:"waiting_count"`
}

func (c *client) metrics(ctx context.Context, lineID string) (lineMetrics, error) {
	var out lineMetrics
	_, err := c.do(ctx, http.MethodGet, "/lines/"+lineID+"/metrics", nil, &out, http.StatusOK)
	return out, err
}
