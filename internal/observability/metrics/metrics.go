package metrics

import "github.com/prometheus/client_golang/prometheus"

// AdviceMetrics exposes counters/histograms for the question pipeline.
type AdviceMetrics struct {
	questionsTotal   *prometheus.CounterVec
	escalationsTotal *prometheus.CounterVec
	answerLatency    *prometheus.HistogramVec
	casesResolved    prometheus.Counter
}

func NewAdviceMetrics(reg prometheus.Registerer) *AdviceMetrics {
	m := &AdviceMetrics{
		questionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parentcare",
			Subsystem: "advice",
			Name:      "questions_total",
			Help:      "Questions processed, by terminal outcome",
		}, []string{"outcome"}),
		escalationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parentcare",
			Subsystem: "advice",
			Name:      "escalations_total",
			Help:      "Escalation cases opened, by category and priority",
		}, []string{"category", "priority"}),
		answerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "parentcare",
			Subsystem: "advice",
			Name:      "answer_latency_seconds",
			Help:      "Time from question receipt to terminal event",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		casesResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parentcare",
			Subsystem: "advice",
			Name:      "cases_resolved_total",
			Help:      "Escalation cases resolved by a reviewer",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.questionsTotal, m.escalationsTotal, m.answerLatency, m.casesResolved)
	return m
}

func (m *AdviceMetrics) ObserveQuestion(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.questionsTotal.WithLabelValues(outcome).Inc()
	m.answerLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *AdviceMetrics) ObserveEscalation(category, priority string) {
	if m == nil {
		return
	}
	m.escalationsTotal.WithLabelValues(category, priority).Inc()
}

func (m *AdviceMetrics) ObserveCaseResolved() {
	if m == nil {
		return
	}
	m.casesResolved.Inc()
}
