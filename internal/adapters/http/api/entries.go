package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/lineup/internal/domain/model"
	"github.com/okian/lineup/internal/domain/types"
)

// EntriesDependencies defines the entry scoped operations.
type EntriesDependencies interface {
	Status(ctx context.Context, subjectID, lineID string) (types.Ticket, error)
	CompleteService(ctx context.Context, entryID string) (model.QueueEntry, error)
	MarkNoShow(ctx context.Context, entryID string) (model.QueueEntry, error)
}

// EntriesHandler handles participant status and entry transitions.
type EntriesHandler struct {
	deps EntriesDependencies
}

// NewEntriesHandler creates a new entries handler.
func NewEntriesHandler(deps EntriesDependencies) *EntriesHandler {
	return &EntriesHandler{deps: deps}
}

type statusResponse struct {
	Ticket *types.Ticket `json:"ticket"`
}

// HandleStatus handles GET /status/{subjectID}?line_id= requests. A subject
// without an active entry gets a null ticket.
func (h *EntriesHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	const op = "api.status"
	subject := strings.TrimSpace(r.PathValue("subjectID"))
	if subject == "" {
		writeError(w, http.StatusBadRequest, "bad_request", newKind(op, ErrMissingPath))
		return
	}
	ticket, err := h.deps.Status(r.Context(), subject, r.URL.Query().Get("line_id"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, statusResponse{Ticket: &ticket})
	case errors.Is(err, types.ErrNoActive):
		writeJSON(w, http.StatusOK, statusResponse{})
	default:
		writeDomainError(r.Context(), w, op, err)
	}
}

// HandleComplete handles POST /entries/{entryID}/complete requests.
func (h *EntriesHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	h.release(w, r, "api.complete", h.deps.CompleteService)
}

// HandleNoShow handles POST /entries/{entryID}/no-show requests.
func (h *EntriesHandler) HandleNoShow(w http.ResponseWriter, r *http.Request) {
	h.release(w, r, "api.no_show", h.deps.MarkNoShow)
}

func (h *EntriesHandler) release(w http.ResponseWriter, r *http.Request, op string,
	fn func(context.Context, string) (model.QueueEntry, error),
) {
	id := strings.TrimSpace(r.PathValue("entryID"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", newKind(op, ErrMissingPath))
		return
	}
	entry, err := fn(r.Context(), id)
	if err != nil {
		writeDomainError(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
