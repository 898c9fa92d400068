package hitl

import (
	"context"
	"errors"
	"time"

	"github.com/okenna/parentcare/internal/safety"
)

var (
	// ErrCaseNotFound indicates no case exists with the given id.
	ErrCaseNotFound = errors.New("hitl: case not found")
	// ErrCaseResolved indicates the case was already resolved and cannot
	// transition again.
	ErrCaseResolved = errors.New("hitl: case already resolved")
	// ErrCaseClaimed indicates a claim on a case that is no longer pending.
	ErrCaseClaimed = errors.New("hitl: case already claimed")
)

// Status tracks a case through its forward-only lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
)

// Priority orders the reviewer work queue.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
)

// Case is one escalation awaiting (or having received) human review.
type Case struct {
	ID             string          `json:"id"`
	SessionID      string          `json:"session_id"`
	Category       safety.Category `json:"category"`
	TriggerMessage string          `json:"trigger_message"`
	Status         Status          `json:"status"`
	Priority       Priority        `json:"priority"`
	ReviewerReply  string          `json:"reviewer_reply,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
}

// Open reports whether the case still needs reviewer attention.
func (c Case) Open() bool {
	return c.Status == StatusPending || c.Status == StatusInProgress
}

// CaseStore persists escalation cases. Create is idempotent per session:
// when an open case already exists for the session it is returned with
// created=false and nothing is written.
type CaseStore interface {
	Create(ctx context.Context, c Case) (Case, bool, error)
	Get(ctx context.Context, id string) (Case, error)
	List(ctx context.Context, status Status) ([]Case, error)
	Claim(ctx context.Context, id string) (Case, error)
	Resolve(ctx context.Context, id, reply string) (Case, error)
}

// CasePriority maps a safety category to the queue priority for its case.
func CasePriority(cat safety.Category) Priority {
	if cat == safety.CategoryCrisis {
		return PriorityHigh
	}
	return PriorityMedium
}
