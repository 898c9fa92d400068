package hitl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/okenna/parentcare/internal/observability/metrics"
	"github.com/okenna/parentcare/internal/push"
	"github.com/okenna/parentcare/internal/safety"
	"github.com/okenna/parentcare/internal/session"
	"github.com/okenna/parentcare/pkg/logging"
)

var queueTracer = otel.Tracer("parentcare/hitl")

// Queue is the escalation work queue for human reviewers. It owns case
// lifecycle transitions and pushes case events to reviewer channels and
// reviewer replies back into the originating session.
type Queue struct {
	store      CaseStore
	registry   *session.Registry
	dispatcher *push.Dispatcher
	metrics    *metrics.AdviceMetrics
	logger     *logging.Logger
}

// QueueOption configures optional queue collaborators.
type QueueOption func(*Queue)

// WithMetrics attaches advice metrics to the queue.
func WithMetrics(m *metrics.AdviceMetrics) QueueOption {
	return func(q *Queue) { q.metrics = m }
}

// NewQueue creates a queue. Store, registry and dispatcher are required.
func NewQueue(store CaseStore, registry *session.Registry, dispatcher *push.Dispatcher, logger *logging.Logger, opts ...QueueOption) *Queue {
	if store == nil {
		panic("hitl: store cannot be nil")
	}
	if registry == nil {
		panic("hitl: registry cannot be nil")
	}
	if dispatcher == nil {
		panic("hitl: dispatcher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	q := &Queue{
		store:      store,
		registry:   registry,
		dispatcher: dispatcher,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// CreateCase opens a case for a flagged message. When the session already
// has an open case the existing one is returned and no event is broadcast.
// A newly created case is marked active on the session and announced to
// reviewers before the caller acknowledges the parent.
func (q *Queue) CreateCase(ctx context.Context, sessionID string, category safety.Category, trigger string) (Case, bool, error) {
	ctx, span := queueTracer.Start(ctx, "hitl.create_case")
	defer span.End()
	span.SetAttributes(
		attribute.String("case.session_id", sessionID),
		attribute.String("case.category", string(category)),
	)

	c, created, err := q.store.Create(ctx, Case{
		ID:             uuid.NewString(),
		SessionID:      sessionID,
		Category:       category,
		TriggerMessage: trigger,
		Priority:       CasePriority(category),
	})
	if err != nil {
		return Case{}, false, fmt.Errorf("hitl: create case: %w", err)
	}
	if !created {
		q.logger.Debug("reusing open case", "case_id", c.ID, "session_id", sessionID)
		return c, false, nil
	}

	if err := q.registry.SetActiveCase(sessionID, c.ID); err != nil {
		q.logger.Error("failed to mark case active on session", "error", err, "case_id", c.ID, "session_id", sessionID)
	}
	q.dispatcher.BroadcastReviewers(push.Event{Type: "new_case", Data: c})

	q.logger.Info("case created",
		"case_id", c.ID,
		"session_id", sessionID,
		"category", category,
		"priority", c.Priority,
	)
	return c, true, nil
}

// ListCases returns cases filtered by status (empty means all), high
// priority first then oldest first.
func (q *Queue) ListCases(ctx context.Context, status Status) ([]Case, error) {
	return q.store.List(ctx, status)
}

// GetCase returns one case by id.
func (q *Queue) GetCase(ctx context.Context, id string) (Case, error) {
	return q.store.Get(ctx, id)
}

// Claim marks a pending case as in_progress for the reviewer working it.
func (q *Queue) Claim(ctx context.Context, id string) (Case, error) {
	ctx, span := queueTracer.Start(ctx, "hitl.claim_case")
	defer span.End()

	c, err := q.store.Claim(ctx, id)
	if err != nil {
		return Case{}, err
	}
	q.dispatcher.BroadcastReviewers(push.Event{Type: "case_claimed", Data: c})
	q.logger.Info("case claimed", "case_id", c.ID, "session_id", c.SessionID)
	return c, nil
}

// Reply resolves a case with the reviewer's text. The reply is appended to
// the session transcript, delivered to the parent if a channel is open, and
// the session is released for normal generation again. A resolved case
// rejects further replies.
func (q *Queue) Reply(ctx context.Context, id, text string) (Case, error) {
	ctx, span := queueTracer.Start(ctx, "hitl.reply_case")
	defer span.End()
	span.SetAttributes(attribute.String("case.id", id))

	c, err := q.store.Resolve(ctx, id, text)
	if err != nil {
		return Case{}, err
	}

	msg, err := q.registry.Append(ctx, c.SessionID, session.Message{
		Role: session.RoleReviewer,
		Text: text,
	})
	if err != nil {
		// The session outlives the case while the case is open, so this
		// only happens after an operator force-ended the session.
		q.logger.Error("failed to append reviewer reply", "error", err, "case_id", c.ID, "session_id", c.SessionID)
	} else {
		if err := q.dispatcher.Deliver(c.SessionID, push.Event{Type: "reviewer_reply", Data: msg}); err != nil {
			if !errors.Is(err, push.ErrNoChannel) {
				q.logger.Error("failed to deliver reviewer reply", "error", err, "case_id", c.ID)
			}
			// Disconnected parents read the reply from history on reconnect.
		}
	}

	q.registry.ClearActiveCase(c.SessionID, c.ID)
	q.dispatcher.BroadcastReviewers(push.Event{Type: "case_resolved", Data: c})
	q.metrics.ObserveCaseResolved()

	q.logger.Info("case resolved",
		"case_id", c.ID,
		"session_id", c.SessionID,
		"pending_for", resolvedAfter(c),
	)
	return c, nil
}

func resolvedAfter(c Case) time.Duration {
	if c.ResolvedAt == nil {
		return 0
	}
	return c.ResolvedAt.Sub(c.CreatedAt).Round(time.Second)
}
