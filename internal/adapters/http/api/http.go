// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/lineup/internal/adapters/notify"
	"github.com/okian/lineup/internal/adapters/repository"
	"github.com/okian/lineup/internal/domain/model"
	"github.com/okian/lineup/internal/domain/types"
	"github.com/okian/lineup/pkg/logger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Join(ctx context.Context, req types.JoinRequest) (types.Ticket, error)
	Status(ctx context.Context, subjectID, lineID string) (types.Ticket, error)
	ClaimNext(ctx context.Context, lineID, counterID string) (model.QueueEntry, error)
	CompleteService(ctx context.Context, entryID string) (model.QueueEntry, error)
	MarkNoShow(ctx context.Context, entryID string) (model.QueueEntry, error)
	Metrics(ctx context.Context, lineID string) (types.LineMetrics, error)
	Queue(ctx context.Context, lineID string) (types.QueueView, error)
	Simulate(ctx context.Context, lineID string, n int) ([]types.Ticket, error)

	CreateLine(ctx context.Context, line model.Line) (model.Line, error)
	ListLines(ctx context.Context) ([]model.Line, error)
	RegisterCounter(ctx context.Context, counter model.Counter) (model.Counter, error)
	ListCounters(ctx context.Context) ([]model.Counter, error)

	Subscribe(topic string) (*notify.Subscription, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	linesHandler    *LinesHandler
	entriesHandler  *EntriesHandler
	countersHandler *CountersHandler
	streamHandler   *StreamHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		linesHandler:    NewLinesHandler(deps),
		entriesHandler:  NewEntriesHandler(deps),
		countersHandler: NewCountersHandler(deps),
		streamHandler:   NewStreamHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /lines", MetricsMiddleware(s.linesHandler.HandleCreate, "lines_create"))
	mux.HandleFunc("GET /lines", MetricsMiddleware(s.linesHandler.HandleList, "lines_list"))
	mux.HandleFunc("POST /lines/{lineID}/join", MetricsMiddleware(s.linesHandler.HandleJoin, "join"))
	mux.HandleFunc("POST /lines/{lineID}/call-next", MetricsMiddleware(s.linesHandler.HandleCallNext, "call_next"))
	mux.HandleFunc("GET /lines/{lineID}/metrics", MetricsMiddleware(s.linesHandler.HandleMetrics, "metrics"))
	mux.HandleFunc("GET /lines/{lineID}/queue", MetricsMiddleware(s.linesHandler.HandleQueue, "queue"))
	mux.HandleFunc("POST /lines/{lineID}/simulate", MetricsMiddleware(s.linesHandler.HandleSimulate, "simulate"))

	mux.HandleFunc("GET /status/{subjectID}", MetricsMiddleware(s.entriesHandler.HandleStatus, "status"))
	mux.HandleFunc("POST /entries/{entryID}/complete", MetricsMiddleware(s.entriesHandler.HandleComplete, "complete"))
	mux.HandleFunc("POST /entries/{entryID}/no-show", MetricsMiddleware(s.entriesHandler.HandleNoShow, "no_show"))

	mux.HandleFunc("POST /counters", MetricsMiddleware(s.countersHandler.HandleRegister, "counters_register"))
	mux.HandleFunc("GET /counters", MetricsMiddleware(s.countersHandler.HandleList, "counters_list"))

	mux.HandleFunc("GET /stream", s.streamHandler.HandleStream)
}

// Instrument wraps h with OpenTelemetry server spans. Routed requests are
// renamed to their pattern by MetricsMiddleware.
func Instrument(h http.Handler) http.Handler {
	return otelhttp.NewHandler(h, "lineup",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "HTTP " + r.Method
		}),
	)
}

type errorResponse struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	ExistingID string `json:"existing_id,omitempty"`
}

type outcomeResponse struct {
	Outcome string            `json:"outcome"`
	Entry   *model.QueueEntry `json:"entry,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeDomainError maps domain errors to HTTP responses.
func writeDomainError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	var active *model.AlreadyActiveError
	switch {
	case errors.As(err, &active):
		writeJSON(w, http.StatusConflict, errorResponse{
			Code:       "already_active",
			Message:    err.Error(),
			ExistingID: active.ExistingID,
		})
	case errors.Is(err, model.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err)
	case errors.Is(err, model.ErrDuplicate):
		writeError(w, http.StatusConflict, "duplicate", err)
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, types.ErrMissingSubject),
		errors.Is(err, types.ErrMissingLine),
		errors.Is(err, types.ErrInvalidClass),
		errors.Is(err, repository.ErrInvalidEntry),
		errors.Is(err, repository.ErrInvalidLine):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	default:
		logger.Get().Error(ctx, "request failed", logger.String("op", op), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
