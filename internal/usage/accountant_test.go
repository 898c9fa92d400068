package usage

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/okenna/parentcare/internal/llm"
)

func newTestAccountant() *Accountant {
	return NewAccountant(prometheus.NewRegistry(), nil)
}

func TestRecordAccumulatesPerSession(t *testing.T) {
	a := newTestAccountant()

	a.Record("sess_1", llm.TokenUsage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30})
	a.Record("sess_1", llm.TokenUsage{InputTokens: 5, OutputTokens: 5, TotalTokens: 10})
	a.Record("sess_2", llm.TokenUsage{InputTokens: 1, OutputTokens: 2, TotalTokens: 3})

	s1 := a.SessionUsage("sess_1")
	assert.Equal(t, int32(15), s1.InputTokens)
	assert.Equal(t, int32(25), s1.OutputTokens)
	assert.Equal(t, int32(40), s1.TotalTokens)

	total := a.Total()
	assert.Equal(t, int32(16), total.InputTokens)
	assert.Equal(t, int32(43), total.TotalTokens)
}

func TestForgetDropsSessionButKeepsTotal(t *testing.T) {
	a := newTestAccountant()

	a.Record("sess_1", llm.TokenUsage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30})
	a.Forget("sess_1")

	assert.Zero(t, a.SessionUsage("sess_1").TotalTokens)
	assert.Equal(t, int32(30), a.Total().TotalTokens)
}

func TestNilAccountantIsSafe(t *testing.T) {
	var a *Accountant
	a.Record("sess_1", llm.TokenUsage{TotalTokens: 1})
	a.Forget("sess_1")
}
