package advice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/okenna/parentcare/internal/hitl"
	"github.com/okenna/parentcare/internal/knowledge"
	"github.com/okenna/parentcare/internal/llm"
	"github.com/okenna/parentcare/internal/observability/metrics"
	"github.com/okenna/parentcare/internal/push"
	"github.com/okenna/parentcare/internal/safety"
	"github.com/okenna/parentcare/internal/session"
	"github.com/okenna/parentcare/internal/usage"
	"github.com/okenna/parentcare/pkg/logging"
)

var adviceTracer = otel.Tracer("parentcare/advice")

// ErrBusy indicates a generation is already in flight for the session. The
// in-flight one is untouched.
var ErrBusy = errors.New("advice: generation already in flight")

const systemPrompt = `You are ParentCare, a supportive assistant for parents of young children.
Give practical, evidence-informed parenting guidance in a warm, non-judgmental tone.
Keep answers concise and concrete. You are not a doctor, lawyer, or therapist and you
never diagnose, prescribe, or give legal advice.`

// Config holds orchestrator tuning knobs.
type Config struct {
	Model           string
	MaxAnswerTokens int32
	MaxCitations    int
	// TokenTimeout aborts a stream when the provider stalls between tokens.
	TokenTimeout time.Duration
	// StreamTimeout bounds the whole provider stream.
	StreamTimeout time.Duration
}

// Deps are the orchestrator's collaborators. Accountant and Metrics are
// optional.
type Deps struct {
	Classifier *safety.Classifier
	Retriever  *knowledge.Retriever
	LLM        llm.StreamingClient
	Registry   *session.Registry
	Queue      *hitl.Queue
	Dispatcher *push.Dispatcher
	Accountant *usage.Accountant
	Metrics    *metrics.AdviceMetrics
	Logger     *logging.Logger
}

// Orchestrator drives one question through classification and either the
// streaming answer path or the escalation path. Exactly one generation runs
// per session at a time.
type Orchestrator struct {
	classifier *safety.Classifier
	retriever  *knowledge.Retriever
	llm        llm.StreamingClient
	registry   *session.Registry
	queue      *hitl.Queue
	dispatcher *push.Dispatcher
	accountant *usage.Accountant
	metrics    *metrics.AdviceMetrics
	logger     *logging.Logger

	cfg Config
}

// NewOrchestrator creates an orchestrator. All deps except Accountant,
// Metrics and Logger are required.
func NewOrchestrator(deps Deps, cfg Config) *Orchestrator {
	if deps.Classifier == nil {
		panic("advice: classifier cannot be nil")
	}
	if deps.Retriever == nil {
		panic("advice: retriever cannot be nil")
	}
	if deps.LLM == nil {
		panic("advice: llm client cannot be nil")
	}
	if deps.Registry == nil {
		panic("advice: registry cannot be nil")
	}
	if deps.Queue == nil {
		panic("advice: queue cannot be nil")
	}
	if deps.Dispatcher == nil {
		panic("advice: dispatcher cannot be nil")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if cfg.MaxAnswerTokens <= 0 {
		cfg.MaxAnswerTokens = 1024
	}
	if cfg.MaxCitations <= 0 {
		cfg.MaxCitations = 3
	}
	if cfg.TokenTimeout <= 0 {
		cfg.TokenTimeout = 15 * time.Second
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = 2 * time.Minute
	}
	return &Orchestrator{
		classifier: deps.Classifier,
		retriever:  deps.Retriever,
		llm:        deps.LLM,
		registry:   deps.Registry,
		queue:      deps.Queue,
		dispatcher: deps.Dispatcher,
		accountant: deps.Accountant,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		cfg:        cfg,
	}
}

type errorPayload struct {
	Reason string `json:"reason"`
}

type escalatedPayload struct {
	CaseID  string          `json:"case_id"`
	Message session.Message `json:"message"`
}

// Ask processes one parent question. It returns ErrBusy when the session
// already has a generation in flight and session.ErrSessionNotFound for an
// unknown session; pipeline failures after acceptance surface to the client
// as terminal error events, not as a returned error.
func (o *Orchestrator) Ask(ctx context.Context, sessionID, question string) error {
	start := time.Now()

	if err := o.registry.BeginGeneration(sessionID); err != nil {
		if errors.Is(err, session.ErrGenerationInFlight) {
			return ErrBusy
		}
		return err
	}
	defer o.registry.EndGeneration(sessionID)

	ctx, span := adviceTracer.Start(ctx, "advice.ask")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	if _, err := o.registry.Append(ctx, sessionID, session.Message{
		Role: session.RoleParent,
		Text: question,
	}); err != nil {
		return fmt.Errorf("advice: record question: %w", err)
	}

	result := o.classifier.Classify(question)
	span.SetAttributes(attribute.String("safety.category", string(result.Category)))
	if result.Category != safety.CategorySafe {
		o.escalate(ctx, sessionID, question, result, start)
		return nil
	}

	o.answer(ctx, sessionID, question, start)
	return nil
}

// escalate runs the unsafe path: open a case, acknowledge the parent with
// the category's refusal payload, and notify reviewers before the client
// hears about the escalation.
func (o *Orchestrator) escalate(ctx context.Context, sessionID, question string, result safety.Result, start time.Time) {
	c, created, err := o.queue.CreateCase(ctx, sessionID, result.Category, question)
	if err != nil {
		o.logger.Error("failed to open case", "error", err, "session_id", sessionID, "category", result.Category)
		o.deliverError(sessionID, "escalation_failed")
		o.observe("error", start)
		return
	}
	if created {
		o.metrics.ObserveEscalation(string(result.Category), string(c.Priority))
	}

	msg, err := o.registry.Append(ctx, sessionID, session.Message{
		Role: session.RoleSystem,
		Text: refusalText(result.Refusal),
	})
	if err != nil {
		o.logger.Error("failed to record escalation ack", "error", err, "session_id", sessionID)
	}

	// CreateCase already broadcast new_case to reviewers, so a reviewer
	// never hears about the case after the parent does.
	if err := o.dispatcher.Deliver(sessionID, push.Event{
		Type: "escalated",
		Data: escalatedPayload{CaseID: c.ID, Message: msg},
	}); err != nil && !errors.Is(err, push.ErrNoChannel) {
		o.logger.Error("failed to deliver escalation ack", "error", err, "session_id", sessionID)
	}

	o.logger.Info("question escalated",
		"session_id", sessionID,
		"case_id", c.ID,
		"category", result.Category,
		"case_created", created,
	)
	o.observe("escalated", start)
}

// answer runs the safe path: retrieve citations, stream the provider's
// tokens to the client, then persist the full assistant message.
func (o *Orchestrator) answer(ctx context.Context, sessionID, question string, start time.Time) {
	citations := o.retriever.Retrieve(ctx, question, o.cfg.MaxCitations)

	req, err := o.buildRequest(sessionID, question, citations)
	if err != nil {
		o.logger.Error("failed to build provider request", "error", err, "session_id", sessionID)
		o.deliverError(sessionID, "provider_error")
		o.observe("error", start)
		return
	}

	streamCtx, cancel := context.WithTimeout(ctx, o.cfg.StreamTimeout)
	defer cancel()

	chunks, err := o.llm.CompleteStream(streamCtx, req)
	if err != nil {
		o.logger.Error("provider stream open failed", "error", err, "session_id", sessionID)
		o.deliverError(sessionID, "provider_error")
		o.observe("error", start)
		return
	}

	var text strings.Builder
	var tokenUsage llm.TokenUsage

	timer := time.NewTimer(o.cfg.TokenTimeout)
	defer timer.Stop()

stream:
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				// Closed without a terminal chunk: treat as provider abort.
				o.failStream(ctx, sessionID, text.String(), "provider_error", start)
				return
			}
			if chunk.Err != nil {
				o.logger.Error("provider stream failed", "error", chunk.Err, "session_id", sessionID)
				cancel()
				drain(chunks)
				o.failStream(ctx, sessionID, text.String(), "provider_error", start)
				return
			}
			if chunk.Done {
				tokenUsage = chunk.Usage
				break stream
			}
			if chunk.Text == "" {
				continue
			}

			text.WriteString(chunk.Text)
			if err := o.dispatcher.Deliver(sessionID, push.Event{Type: "token", Data: chunk.Text}); err != nil {
				// Client went away mid-stream: stop paying for tokens and
				// keep what was generated so far.
				o.logger.Info("client disconnected mid-stream", "session_id", sessionID)
				cancel()
				drain(chunks)
				o.persistPartial(ctx, sessionID, text.String())
				o.observe("disconnected", start)
				return
			}

			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(o.cfg.TokenTimeout)

		case <-timer.C:
			o.logger.Error("provider stalled between tokens", "session_id", sessionID, "timeout", o.cfg.TokenTimeout)
			cancel()
			drain(chunks)
			o.failStream(ctx, sessionID, text.String(), "token_timeout", start)
			return
		}
	}

	// Full text is in hand, so a disconnect here only skips the trailing
	// events; the complete message still lands in history.
	if err := o.dispatcher.Deliver(sessionID, push.Event{Type: "citation_batch", Data: citations}); err != nil {
		o.logger.Info("client disconnected before completion", "session_id", sessionID)
	} else if err := o.dispatcher.Deliver(sessionID, push.Event{Type: "done", Data: tokenUsage}); err != nil {
		o.logger.Info("client disconnected before completion", "session_id", sessionID)
	}

	if _, err := o.registry.Append(ctx, sessionID, session.Message{
		Role:      session.RoleAssistant,
		Text:      text.String(),
		Citations: citations,
		Usage:     &tokenUsage,
	}); err != nil {
		o.logger.Error("failed to persist answer", "error", err, "session_id", sessionID)
	}
	o.accountant.Record(sessionID, tokenUsage)

	o.logger.Info("question answered",
		"session_id", sessionID,
		"citations", len(citations),
		"output_tokens", tokenUsage.OutputTokens,
	)
	o.observe("answered", start)
}

// failStream ends the safe path after a mid-stream failure: the partial
// text is kept, the client gets one terminal error event, and done is never
// sent.
func (o *Orchestrator) failStream(ctx context.Context, sessionID, partial, reason string, start time.Time) {
	o.persistPartial(ctx, sessionID, partial)
	o.deliverError(sessionID, reason)
	o.observe("error", start)
}

func (o *Orchestrator) persistPartial(ctx context.Context, sessionID, partial string) {
	if partial == "" {
		return
	}
	if _, err := o.registry.Append(ctx, sessionID, session.Message{
		Role:    session.RoleAssistant,
		Text:    partial,
		Partial: true,
	}); err != nil {
		o.logger.Error("failed to persist partial answer", "error", err, "session_id", sessionID)
	}
}

func (o *Orchestrator) deliverError(sessionID, reason string) {
	err := o.dispatcher.Deliver(sessionID, push.Event{Type: "error", Data: errorPayload{Reason: reason}})
	if err != nil && !errors.Is(err, push.ErrNoChannel) {
		o.logger.Error("failed to deliver error event", "error", err, "session_id", sessionID, "reason", reason)
	}
}

func (o *Orchestrator) observe(outcome string, start time.Time) {
	o.metrics.ObserveQuestion(outcome, time.Since(start).Seconds())
}

// buildRequest assembles the provider request from the session transcript
// and retrieved topic excerpts. The parent's question is already the last
// transcript entry.
func (o *Orchestrator) buildRequest(sessionID, question string, citations []knowledge.Citation) (llm.Request, error) {
	history, err := o.registry.History(sessionID)
	if err != nil {
		return llm.Request{}, err
	}

	system := []string{systemPrompt}
	if len(citations) > 0 {
		var sb strings.Builder
		sb.WriteString("Ground your answer in these excerpts and mention the sources by name:\n")
		for _, c := range citations {
			fmt.Fprintf(&sb, "- %s: %s\n", c.SourceLabel, c.Excerpt)
		}
		system = append(system, sb.String())
	}

	messages := make([]llm.ChatMessage, 0, len(history))
	for _, msg := range history {
		if msg.Partial {
			continue
		}
		switch msg.Role {
		case session.RoleParent:
			messages = append(messages, llm.ChatMessage{Role: llm.ChatRoleUser, Content: msg.Text})
		case session.RoleAssistant, session.RoleReviewer:
			messages = append(messages, llm.ChatMessage{Role: llm.ChatRoleAssistant, Content: msg.Text})
		}
	}

	return llm.Request{
		Model:       o.cfg.Model,
		System:      system,
		Messages:    messages,
		MaxTokens:   o.cfg.MaxAnswerTokens,
		Temperature: 0.4,
	}, nil
}

// refusalText renders a refusal payload as the system acknowledgement shown
// to the parent.
func refusalText(r *safety.Refusal) string {
	if r == nil {
		return "We can't help with this directly, but a member of our care team has been notified and will follow up here."
	}
	var sb strings.Builder
	sb.WriteString(r.Empathy)
	sb.WriteString("\n\n")
	sb.WriteString(r.Explanation)
	if len(r.Resources) > 0 {
		sb.WriteString("\n")
		for _, res := range r.Resources {
			fmt.Fprintf(&sb, "\n- %s: %s", res.Label, res.URL)
		}
	}
	return sb.String()
}

// drain unblocks the producer goroutine after an early exit.
func drain(chunks <-chan llm.StreamChunk) {
	go func() {
		for range chunks {
		}
	}()
}
