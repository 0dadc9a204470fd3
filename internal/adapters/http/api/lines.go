package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/okian/lineup/internal/domain/model"
	"github.com/okian/lineup/internal/domain/types"
)

// Call-next outcomes.
const (
	outcomeClaimed     = "claimed"
	outcomeCounterBusy = "counter_busy"
	outcomeLineEmpty   = "line_empty"
)

// LinesDependencies defines the line scoped operations.
type LinesDependencies interface {
	Join(ctx context.Context, req types.JoinRequest) (types.Ticket, error)
	ClaimNext(ctx context.Context, lineID, counterID string) (model.QueueEntry, error)
	Metrics(ctx context.Context, lineID string) (types.LineMetrics, error)
	Queue(ctx context.Context, lineID string) (types.QueueView, error)
	Simulate(ctx context.Context, lineID string, n int) ([]types.Ticket, error)
	CreateLine(ctx context.Context, line model.Line) (model.Line, error)
	ListLines(ctx context.Context) ([]model.Line, error)
}

// LinesHandler handles /lines requests.
type LinesHandler struct {
	deps LinesDependencies
}

// NewLinesHandler creates a new lines handler.
func NewLinesHandler(deps LinesDependencies) *LinesHandler {
	return &LinesHandler{deps: deps}
}

type createLineRequest struct {
	ID          string     `json:"id"`
	Code        string     `json:"code"`
	Destination string     `json:"destination"`
	DeadlineAt  *time.Time `json:"deadline_at"`
}

type joinRequest struct {
	SubjectID       string             `json:"subject_id"`
	ServiceClass    model.ServiceClass `json:"service_class"`
	NeedsAssistance bool               `json:"needs_assistance"`
}

type callNextRequest struct {
	CounterID string `json:"counter_id"`
}

type simulateRequest struct {
	Count int `json:"count"`
}

type simulateResponse struct {
	Created int            `json:"created"`
	Tickets []types.Ticket `json:"tickets"`
}

func lineID(r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("lineID"))
	return id, id != ""
}

// HandleCreate handles POST /lines requests.
func (h *LinesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_line"
	var req createLineRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}
	line, err := h.deps.CreateLine(r.Context(), model.Line{
		ID:          strings.TrimSpace(req.ID),
		Code:        req.Code,
		Destination: req.Destination,
		DeadlineAt:  req.DeadlineAt,
	})
	if err != nil {
		writeDomainError(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, line)
}

// HandleList handles GET /lines requests.
func (h *LinesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	lines, err := h.deps.ListLines(r.Context())
	if err != nil {
		writeDomainError(r.Context(), w, "api.list_lines", err)
		return
	}
	if lines == nil {
		lines = []model.Line{}
	}
	writeJSON(w, http.StatusOK, lines)
}

// HandleJoin handles POST /lines/{lineID}/join requests.
func (h *LinesHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	const op = "api.join"
	id, ok := lineID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", newKind(op, ErrMissingPath))
		return
	}
	var req joinRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}
	ticket, err := h.deps.Join(r.Context(), types.JoinRequest{
		SubjectID:       req.SubjectID,
		LineID:          id,
		ServiceClass:    req.ServiceClass,
		NeedsAssistance: req.NeedsAssistance,
	})
	if err != nil {
		writeDomainError(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

// HandleCallNext handles POST /lines/{lineID}/call-next requests. An idle
// counter or an empty line is an expected outcome, not an error.
func (h *LinesHandler) HandleCallNext(w http.ResponseWriter, r *http.Request) {
	const op = "api.call_next"
	id, ok := lineID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", newKind(op, ErrMissingPath))
		return
	}
	var req callNextRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.CounterID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, errors.New("missing counter_id")))
		return
	}

	entry, err := h.deps.ClaimNext(r.Context(), id, req.CounterID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, outcomeResponse{Outcome: outcomeClaimed, Entry: &entry})
	case errors.Is(err, model.ErrCounterBusy):
		writeJSON(w, http.StatusOK, outcomeResponse{Outcome: outcomeCounterBusy})
	case errors.Is(err, model.ErrLineEmpty):
		writeJSON(w, http.StatusOK, outcomeResponse{Outcome: outcomeLineEmpty})
	default:
		writeDomainError(r.Context(), w, op, err)
	}
}

// HandleMetrics handles GET /lines/{lineID}/metrics requests.
func (h *LinesHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	const op = "api.metrics"
	id, ok := lineID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", newKind(op, ErrMissingPath))
		return
	}
	m, err := h.deps.Metrics(r.Context(), id)
	if err != nil {
		writeDomainError(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HandleQueue handles GET /lines/{lineID}/queue requests.
func (h *LinesHandler) HandleQueue(w http.ResponseWriter, r *http.Request) {
	const op = "api.queue"
	id, ok := lineID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", newKind(op, ErrMissingPath))
		return
	}
	view, err := h.deps.Queue(r.Context(), id)
	if err != nil {
		writeDomainError(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleSimulate handles POST /lines/{lineID}/simulate requests.
func (h *LinesHandler) HandleSimulate(w http.ResponseWriter, r *http.Request) {
	const op = "api.simulate"
	id, ok := lineID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", newKind(op, ErrMissingPath))
		return
	}
	var req simulateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}
	if req.Count < 0 {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, errors.New("negative count")))
		return
	}
	tickets, err := h.deps.Simulate(r.Context(), id, req.Count)
	if err != nil {
		writeDomainError(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, simulateResponse{Created: len(tickets), Tickets: tickets})
}
