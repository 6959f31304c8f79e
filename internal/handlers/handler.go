package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/donut/internal/rounds"
	"github.com/eldtechnologies/donut/internal/store"
)

// Pinger is a dependency the health check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db     store.DataStore
	redis  Pinger
	rounds *rounds.Service
	logger zerolog.Logger
	now    func() time.Time
}

// NewHandler creates a new Handler. redis may be nil when no Redis is configured.
func NewHandler(db store.DataStore, redis Pinger, svc *rounds.Service, logger zerolog.Logger) *Handler {
	return &Handler{db: db, redis: redis, rounds: svc, logger: logger, now: time.Now}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// logRound tags the request log line with the round the call acted on.
func logRound(r *http.Request, id *uuid.UUID) {
	if id == nil {
		return
	}
	zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
		return c.Str("round_id", id.String())
	})
}

// statusCode maps an invocation status to an HTTP status.
func statusCode(s rounds.Status) int {
	switch s {
	case rounds.StatusCreated, rounds.StatusSkipped, rounds.StatusCompleted, rounds.StatusRecorded:
		return http.StatusOK
	case rounds.StatusInsufficientParticipants:
		return http.StatusBadRequest
	case rounds.StatusNotFound:
		return http.StatusNotFound
	case rounds.StatusFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
