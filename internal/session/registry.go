package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okenna/parentcare/pkg/logging"
)

var (
	// ErrSessionNotFound is returned for unknown or expired session ids.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrGenerationInFlight rejects a second concurrent generation for the
	// same session; the in-flight one is left untouched.
	ErrGenerationInFlight = errors.New("session: generation already in flight")
	// ErrSessionBusy rejects ending a session while a generation is running
	// or a case is open for it.
	ErrSessionBusy = errors.New("session: busy")
)

// Session is a snapshot of one conversational context. The registry owns
// the mutable state; snapshots handed out are copies.
type Session struct {
	ID           string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	ActiveCaseID string    `json:"active_case_id,omitempty"`
	History      []Message `json:"history,omitempty"`
}

type sessionState struct {
	id           string
	createdAt    time.Time
	lastActivity time.Time
	activeCaseID string
	inFlight     bool
	history      []Message
}

// TranscriptArchive receives a best-effort durable copy of every appended
// message. Archive failures are logged, never surfaced to callers.
type TranscriptArchive interface {
	Append(ctx context.Context, sessionID string, msg Message) error
}

// Registry is the in-memory owner of all session state. Every mutation
// happens inside a single critical section with no I/O held under the lock.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*sessionState

	archive TranscriptArchive
	logger  *logging.Logger
	idleTTL time.Duration
	now     func() time.Time
}

// RegistryOption configures the registry.
type RegistryOption func(*Registry)

// WithIdleTTL overrides how long an idle session survives before the
// sweeper destroys it.
func WithIdleTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		if ttl > 0 {
			r.idleTTL = ttl
		}
	}
}

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry creates a session registry. archive may be nil.
func NewRegistry(archive TranscriptArchive, logger *logging.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	r := &Registry{
		sessions: make(map[string]*sessionState),
		archive:  archive,
		logger:   logger,
		idleTTL:  30 * time.Minute,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create registers a new session and returns its snapshot.
func (r *Registry) Create(ctx context.Context) Session {
	now := r.now().UTC()
	state := &sessionState{
		id:           uuid.NewString(),
		createdAt:    now,
		lastActivity: now,
	}

	r.mu.Lock()
	r.sessions[state.id] = state
	r.mu.Unlock()

	r.logger.Info("session created", "session_id", state.id)
	return Session{ID: state.id, CreatedAt: now, LastActivity: now}
}

// Get returns a snapshot of the session including its history.
func (r *Registry) Get(sessionID string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.sessions[sessionID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return snapshot(state), nil
}

// History returns a copy of the ordered message history.
func (r *Registry) History(sessionID string) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	history := make([]Message, len(state.history))
	copy(history, state.history)
	return history, nil
}

// Append adds a message to the session history, assigning an id and
// timestamp when missing. The archive write happens after the critical
// section and is best-effort.
func (r *Registry) Append(ctx context.Context, sessionID string, msg Message) (Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = r.now().UTC()
	}
	msg.SessionID = sessionID

	r.mu.Lock()
	state, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return Message{}, ErrSessionNotFound
	}
	state.history = append(state.history, msg)
	state.lastActivity = r.now().UTC()
	r.mu.Unlock()

	if r.archive != nil {
		if err := r.archive.Append(ctx, sessionID, msg); err != nil {
			r.logger.Warn("transcript archive append failed", "error", err, "session_id", sessionID)
		}
	}
	return msg, nil
}

// BeginGeneration marks the session as having a generation in flight. At
// most one generation per session may run at any time.
func (r *Registry) BeginGeneration(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if state.inFlight {
		return ErrGenerationInFlight
	}
	state.inFlight = true
	state.lastActivity = r.now().UTC()
	return nil
}

// EndGeneration clears the in-flight flag. Safe to call on unknown ids.
func (r *Registry) EndGeneration(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state, ok := r.sessions[sessionID]; ok {
		state.inFlight = false
		state.lastActivity = r.now().UTC()
	}
}

// SetActiveCase records the open case for a session.
func (r *Registry) SetActiveCase(sessionID, caseID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	state.activeCaseID = caseID
	return nil
}

// ActiveCase returns the open case id for a session, empty when none.
func (r *Registry) ActiveCase(sessionID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.sessions[sessionID]
	if !ok {
		return "", ErrSessionNotFound
	}
	return state.activeCaseID, nil
}

// ClearActiveCase removes the open-case marker if it still matches caseID.
func (r *Registry) ClearActiveCase(sessionID, caseID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state, ok := r.sessions[sessionID]; ok && state.activeCaseID == caseID {
		state.activeCaseID = ""
	}
}

// Touch refreshes the idle timer, e.g. on a live socket ping.
func (r *Registry) Touch(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state, ok := r.sessions[sessionID]; ok {
		state.lastActivity = r.now().UTC()
	}
}

// End explicitly destroys a session. A session with a generation in flight
// or an open case is never destroyed.
func (r *Registry) End(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if state.inFlight || state.activeCaseID != "" {
		return ErrSessionBusy
	}
	delete(r.sessions, sessionID)
	return nil
}

// Sweep removes sessions idle past the TTL, skipping any with in-flight
// work or an open case. Returns how many were destroyed.
func (r *Registry) Sweep() int {
	cutoff := r.now().UTC().Add(-r.idleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int
	for id, state := range r.sessions {
		if state.inFlight || state.activeCaseID != "" {
			continue
		}
		if state.lastActivity.Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Info("idle sessions swept", "count", removed)
	}
	return removed
}

// StartSweeper runs Sweep on the given interval until ctx is cancelled.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep()
			}
		}
	}()
}

func snapshot(state *sessionState) Session {
	history := make([]Message, len(state.history))
	copy(history, state.history)
	return Session{
		ID:           state.id,
		CreatedAt:    state.createdAt,
		LastActivity: state.lastActivity,
		ActiveCaseID: state.activeCaseID,
		History:      history,
	}
}
