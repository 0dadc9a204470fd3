package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/lineup/internal/domain/model"
)

// CountersDependencies defines the counter registry operations.
type CountersDependencies interface {
	RegisterCounter(ctx context.Context, counter model.Counter) (model.Counter, error)
	ListCounters(ctx context.Context) ([]model.Counter, error)
}

// CountersHandler handles /counters requests.
type CountersHandler struct {
	deps CountersDependencies
}

// NewCountersHandler creates a new counters handler.
func NewCountersHandler(deps CountersDependencies) *CountersHandler {
	return &CountersHandler{deps: deps}
}

type registerCounterRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// HandleRegister handles POST /counters requests.
func (h *CountersHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	const op = "api.register_counter"
	var req registerCounterRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}
	c, err := h.deps.RegisterCounter(r.Context(), model.Counter{ID: strings.TrimSpace(req.ID), Name: req.Name})
	if err != nil {
		writeDomainError(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HandleList handles GET /counters requests.
func (h *CountersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	counters, err := h.deps.ListCounters(r.Context())
	if err != nil {
		writeDomainError(r.Context(), w, "api.list_counters", err)
		return
	}
	if counters == nil {
		counters = []model.Counter{}
	}
	writeJSON(w, http.StatusOK, counters)
}
