package session

import (
	"time"

	"github.com/okenna/parentcare/internal/knowledge"
	"github.com/okenna/parentcare/internal/llm"
)

// Message roles. Parent messages come from the client, assistant messages
// from generation, reviewer messages from human case replies, and system
// messages from the service itself (escalation acknowledgments).
const (
	RoleParent    = "parent"
	RoleAssistant = "assistant"
	RoleReviewer  = "reviewer"
	RoleSystem    = "system"
)

// Message is one immutable entry in a session's ordered history. Citations
// are only ever non-empty on assistant messages produced by a safe
// generation.
type Message struct {
	ID        string               `json:"id"`
	SessionID string               `json:"session_id"`
	Role      string               `json:"role"`
	Text      string               `json:"text"`
	Citations []knowledge.Citation `json:"citations,omitempty"`
	Partial   bool                 `json:"partial,omitempty"`
	Usage     *llm.TokenUsage      `json:"usage,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}
