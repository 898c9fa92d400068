package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/okenna/parentcare/internal/advice"
	"github.com/okenna/parentcare/internal/hitl"
	"github.com/okenna/parentcare/internal/push"
	"github.com/okenna/parentcare/internal/session"
	"github.com/okenna/parentcare/pkg/logging"
)

// TranscriptReader reads archived transcripts for sessions no longer held
// in memory.
type TranscriptReader interface {
	List(ctx context.Context, sessionID string, limit int64) ([]session.Message, error)
}

// Handler serves the REST surface: session lifecycle, transcripts, and the
// reviewer case queue.
type Handler struct {
	registry    *session.Registry
	queue       *hitl.Queue
	orch        *advice.Orchestrator
	dispatcher  *push.Dispatcher
	transcripts TranscriptReader
	logger      *logging.Logger
}

// NewHandler creates the REST handler. Transcripts is optional; without it,
// history for ended sessions is unavailable.
func NewHandler(registry *session.Registry, queue *hitl.Queue, orch *advice.Orchestrator, dispatcher *push.Dispatcher, transcripts TranscriptReader, logger *logging.Logger) *Handler {
	if registry == nil {
		panic("httpapi: registry cannot be nil")
	}
	if queue == nil {
		panic("httpapi: queue cannot be nil")
	}
	if orch == nil {
		panic("httpapi: orchestrator cannot be nil")
	}
	if dispatcher == nil {
		panic("httpapi: dispatcher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		registry:    registry,
		queue:       queue,
		orch:        orch,
		dispatcher:  dispatcher,
		transcripts: transcripts,
		logger:      logger,
	}
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateSession opens a new advice session.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.registry.Create(r.Context())
	respondJSON(w, http.StatusCreated, map[string]string{"session_id": s.ID})
}

// EndSession closes an idle session. Sessions with a generation in flight
// or an open case cannot be ended.
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	switch err := h.registry.End(id); {
	case errors.Is(err, session.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, session.ErrSessionBusy):
		respondError(w, http.StatusConflict, "session has work in flight")
	case err != nil:
		h.logger.Error("failed to end session", "error", err, "session_id", id)
		respondError(w, http.StatusInternalServerError, "failed to end session")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// History returns the session transcript in append order.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	messages, err := h.registry.History(id)
	if errors.Is(err, session.ErrSessionNotFound) && h.transcripts != nil {
		messages, err = h.transcripts.List(r.Context(), id, 0)
		if err == nil && len(messages) == 0 {
			respondError(w, http.StatusNotFound, "session not found")
			return
		}
	}
	if errors.Is(err, session.ErrSessionNotFound) {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load history", "error", err, "session_id", id)
		respondError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// Ask is the HTTP fallback for clients without a WebSocket. The question is
// processed in the background; events arrive on the session's channel.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		respondError(w, http.StatusBadRequest, "question is required")
		return
	}
	if _, err := h.registry.Get(id); err != nil {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	go func() {
		if err := h.orch.Ask(context.WithoutCancel(r.Context()), id, req.Question); err != nil {
			h.logger.Warn("question rejected", "error", err, "session_id", id)
		}
	}()
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// ListCases returns the reviewer queue, optionally filtered by status.
func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	status := hitl.Status(r.URL.Query().Get("status"))
	switch status {
	case "", hitl.StatusPending, hitl.StatusInProgress, hitl.StatusResolved:
	default:
		respondError(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	cases, err := h.queue.ListCases(r.Context(), status)
	if err != nil {
		h.logger.Error("failed to list cases", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list cases")
		return
	}
	if cases == nil {
		cases = []hitl.Case{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"cases": cases})
}

// GetCase returns one case with the session transcript for review context.
func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := h.queue.GetCase(r.Context(), id)
	if errors.Is(err, hitl.ErrCaseNotFound) {
		respondError(w, http.StatusNotFound, "case not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load case", "error", err, "case_id", id)
		respondError(w, http.StatusInternalServerError, "failed to load case")
		return
	}

	transcript, err := h.registry.History(c.SessionID)
	if err != nil && h.transcripts != nil {
		transcript, _ = h.transcripts.List(r.Context(), c.SessionID, 0)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"case":       c,
		"transcript": transcript,
	})
}

// ClaimCase marks a pending case in_progress.
func (h *Handler) ClaimCase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := h.queue.Claim(r.Context(), id)
	switch {
	case errors.Is(err, hitl.ErrCaseNotFound):
		respondError(w, http.StatusNotFound, "case not found")
	case errors.Is(err, hitl.ErrCaseResolved), errors.Is(err, hitl.ErrCaseClaimed):
		respondError(w, http.StatusConflict, err.Error())
	case err != nil:
		h.logger.Error("failed to claim case", "error", err, "case_id", id)
		respondError(w, http.StatusInternalServerError, "failed to claim case")
	default:
		respondJSON(w, http.StatusOK, map[string]any{"case": c})
	}
}

// ReplyCase resolves a case with the reviewer's reply.
func (h *Handler) ReplyCase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "text is required")
		return
	}

	c, err := h.queue.Reply(r.Context(), id, req.Text)
	switch {
	case errors.Is(err, hitl.ErrCaseNotFound):
		respondError(w, http.StatusNotFound, "case not found")
	case errors.Is(err, hitl.ErrCaseResolved):
		respondError(w, http.StatusConflict, "case already resolved")
	case err != nil:
		h.logger.Error("failed to resolve case", "error", err, "case_id", id)
		respondError(w, http.StatusInternalServerError, "failed to resolve case")
	default:
		respondJSON(w, http.StatusOK, map[string]any{"case": c})
	}
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
