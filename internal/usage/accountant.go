package usage

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/okenna/parentcare/internal/llm"
	"github.com/okenna/parentcare/pkg/logging"
)

// Accountant tracks provider token consumption per session and in
// aggregate. Counts come from the provider's reported usage on completed
// streams; aborted streams report nothing and cost nothing here.
type Accountant struct {
	mu         sync.Mutex
	perSession map[string]llm.TokenUsage
	total      llm.TokenUsage

	tokensTotal *prometheus.CounterVec
	logger      *logging.Logger
}

// NewAccountant creates an accountant registered against reg.
func NewAccountant(reg prometheus.Registerer, logger *logging.Logger) *Accountant {
	if logger == nil {
		logger = logging.Default()
	}
	a := &Accountant{
		perSession: make(map[string]llm.TokenUsage),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parentcare",
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Provider tokens consumed, by direction",
		}, []string{"direction"}),
		logger: logger,
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(a.tokensTotal)
	return a
}

// Record adds one completed request's usage to the session's running total.
func (a *Accountant) Record(sessionID string, u llm.TokenUsage) {
	if a == nil {
		return
	}

	a.mu.Lock()
	s := a.perSession[sessionID]
	s.InputTokens += u.InputTokens
	s.OutputTokens += u.OutputTokens
	s.TotalTokens += u.TotalTokens
	a.perSession[sessionID] = s
	a.total.InputTokens += u.InputTokens
	a.total.OutputTokens += u.OutputTokens
	a.total.TotalTokens += u.TotalTokens
	a.mu.Unlock()

	a.tokensTotal.WithLabelValues("input").Add(float64(u.InputTokens))
	a.tokensTotal.WithLabelValues("output").Add(float64(u.OutputTokens))

	a.logger.Debug("token usage recorded",
		"session_id", sessionID,
		"input_tokens", u.InputTokens,
		"output_tokens", u.OutputTokens,
	)
}

// SessionUsage returns the accumulated usage for one session.
func (a *Accountant) SessionUsage(sessionID string) llm.TokenUsage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.perSession[sessionID]
}

// Total returns usage accumulated across all sessions since startup.
func (a *Accountant) Total() llm.TokenUsage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}

// Forget drops per-session accounting once a session ends. Aggregate
// totals are unaffected.
func (a *Accountant) Forget(sessionID string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	delete(a.perSession, sessionID)
	a.mu.Unlock()
}
