package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"golang.org/x/net/websocket"

	"github.com/okenna/parentcare/internal/advice"
	"github.com/okenna/parentcare/internal/push"
)

// inboundMessage is what the chat client sends over the socket.
type inboundMessage struct {
	Type     string `json:"type"` // "ask", "ping"
	Question string `json:"question,omitempty"`
}

// HandleChatWS upgrades the parent-facing chat socket. The session's event
// channel is pumped to the socket until either side closes.
func (h *Handler) HandleChatWS(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveChat(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveChat(conn *websocket.Conn, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		_ = websocket.JSON.Send(conn, push.Event{Type: "error", Data: map[string]string{"reason": "missing session parameter"}})
		return
	}
	if _, err := h.registry.Get(sessionID); err != nil {
		_ = websocket.JSON.Send(conn, push.Event{Type: "error", Data: map[string]string{"reason": "unknown session"}})
		return
	}

	// Replay the transcript so a reconnecting client catches up on anything
	// delivered while it was away.
	if history, err := h.registry.History(sessionID); err == nil && len(history) > 0 {
		_ = websocket.JSON.Send(conn, push.Event{Type: "history", Data: history})
	}

	l := h.dispatcher.Subscribe(sessionID)
	defer h.dispatcher.Unsubscribe(l)

	go h.writePump(conn, l)

	h.logger.Info("chat connection opened", "session_id", sessionID)
	for {
		var msg inboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("chat connection closed", "session_id", sessionID, "error", err)
			return
		}

		switch {
		case msg.Type == "ping":
			_ = h.dispatcher.Deliver(sessionID, push.Event{Type: "pong"})
		case msg.Type == "ask" && strings.TrimSpace(msg.Question) != "":
			go func(question string) {
				err := h.orch.Ask(r.Context(), sessionID, question)
				if errors.Is(err, advice.ErrBusy) {
					_ = h.dispatcher.Deliver(sessionID, push.Event{Type: "error", Data: map[string]string{"reason": "busy"}})
				} else if err != nil {
					h.logger.Warn("question rejected", "error", err, "session_id", sessionID)
				}
			}(msg.Question)
		}
	}
}

// HandleReviewWS upgrades a reviewer socket. Reviewers receive new_case,
// case_claimed and case_resolved broadcasts, prefixed by the current
// pending backlog.
func (h *Handler) HandleReviewWS(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveReview(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveReview(conn *websocket.Conn, r *http.Request) {
	if backlog, err := h.queue.ListCases(r.Context(), ""); err == nil {
		_ = websocket.JSON.Send(conn, push.Event{Type: "case_backlog", Data: backlog})
	}

	l := h.dispatcher.SubscribeReviewer()
	defer h.dispatcher.Unsubscribe(l)

	go h.writePump(conn, l)

	h.logger.Info("reviewer connection opened", "listener_id", l.ID())
	// The read loop only exists to notice the close; writePump owns all
	// writes to the socket.
	for {
		var msg inboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("reviewer connection closed", "listener_id", l.ID(), "error", err)
			return
		}
	}
}

// writePump forwards dispatcher events to the socket until the listener is
// unsubscribed or the socket write fails.
func (h *Handler) writePump(conn *websocket.Conn, l *push.Listener) {
	for {
		select {
		case ev := <-l.Events():
			if err := websocket.JSON.Send(conn, ev); err != nil {
				h.dispatcher.Unsubscribe(l)
				return
			}
		case <-l.Done():
			return
		}
	}
}
