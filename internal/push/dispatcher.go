package push

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/okenna/parentcare/pkg/logging"
)

// ErrNoChannel indicates no open channel exists for the listener. Callers
// that already persisted the data treat this as a silent no-op; the
// streaming path treats it as a client disconnect.
var ErrNoChannel = errors.New("push: no open channel")

// Event is a named payload pushed to one listener.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Listener is one open outbound channel. The transport layer drains
// Events() until Done() is closed, then unsubscribes.
type Listener struct {
	id     string
	events chan Event
	done   chan struct{}
	once   sync.Once
}

// Events is the outbound event stream for this listener.
func (l *Listener) Events() <-chan Event { return l.events }

// Done is closed when the listener is unsubscribed.
func (l *Listener) Done() <-chan struct{} { return l.done }

// ID returns the listener key (session id, or a generated reviewer id).
func (l *Listener) ID() string { return l.id }

func (l *Listener) close() {
	l.once.Do(func() { close(l.done) })
}

// Dispatcher owns one open channel per active listener: client channels
// keyed by session id, plus any number of reviewer channels. Channels are
// removed on transport-reported close (Unsubscribe), never inferred by
// timeout.
type Dispatcher struct {
	mu        sync.RWMutex
	sessions  map[string]*Listener
	reviewers map[string]*Listener

	buffer int
	logger *logging.Logger
}

// NewDispatcher creates a dispatcher with the given per-channel buffer.
func NewDispatcher(buffer int, logger *logging.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		sessions:  make(map[string]*Listener),
		reviewers: make(map[string]*Listener),
		buffer:    buffer,
		logger:    logger,
	}
}

// Subscribe opens the client channel for a session. A previous channel for
// the same session (e.g. a stale reconnect) is closed and replaced.
func (d *Dispatcher) Subscribe(sessionID string) *Listener {
	l := &Listener{
		id:     sessionID,
		events: make(chan Event, d.buffer),
		done:   make(chan struct{}),
	}

	d.mu.Lock()
	prev := d.sessions[sessionID]
	d.sessions[sessionID] = l
	d.mu.Unlock()

	if prev != nil {
		prev.close()
		d.logger.Debug("replaced stale session channel", "session_id", sessionID)
	}
	return l
}

// SubscribeReviewer opens a reviewer channel.
func (d *Dispatcher) SubscribeReviewer() *Listener {
	l := &Listener{
		id:     uuid.NewString(),
		events: make(chan Event, d.buffer),
		done:   make(chan struct{}),
	}

	d.mu.Lock()
	d.reviewers[l.id] = l
	d.mu.Unlock()
	return l
}

// Unsubscribe removes a listener after the transport reports close. Safe to
// call more than once.
func (d *Dispatcher) Unsubscribe(l *Listener) {
	if l == nil {
		return
	}

	d.mu.Lock()
	if d.sessions[l.id] == l {
		delete(d.sessions, l.id)
	}
	if d.reviewers[l.id] == l {
		delete(d.reviewers, l.id)
	}
	d.mu.Unlock()

	l.close()
}

// Deliver sends an event to the session's open channel. It blocks while the
// channel buffer is full (transport flush backpressure) and fails with
// ErrNoChannel once the listener is gone.
func (d *Dispatcher) Deliver(sessionID string, ev Event) error {
	d.mu.RLock()
	l, ok := d.sessions[sessionID]
	d.mu.RUnlock()
	if !ok {
		return ErrNoChannel
	}

	select {
	case l.events <- ev:
		return nil
	case <-l.done:
		return ErrNoChannel
	}
}

// BroadcastReviewers sends an event to every open reviewer channel. A full
// reviewer buffer drops the event for that listener with a warning rather
// than stalling the pipeline; the reviewer surface can always re-list.
func (d *Dispatcher) BroadcastReviewers(ev Event) {
	d.mu.RLock()
	listeners := make([]*Listener, 0, len(d.reviewers))
	for _, l := range d.reviewers {
		listeners = append(listeners, l)
	}
	d.mu.RUnlock()

	for _, l := range listeners {
		select {
		case l.events <- ev:
		case <-l.done:
		default:
			d.logger.Warn("reviewer channel full, event dropped", "listener_id", l.id, "event", ev.Type)
		}
	}
}

// OpenSessions reports how many client channels are currently open.
func (d *Dispatcher) OpenSessions() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sessions)
}

// OpenReviewers reports how many reviewer channels are currently open.
func (d *Dispatcher) OpenReviewers() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.reviewers)
}
