package metrics

import "github.com/prometheus/client_golang/prometheus"

// RegistrationMetrics exposes counters/histograms for the registration flow.
type RegistrationMetrics struct {
	submissionsTotal *prometheus.CounterVec
	stepLatency      *prometheus.HistogramVec
}

func NewRegistrationMetrics(reg prometheus.Registerer) *RegistrationMetrics {
	m := &RegistrationMetrics{
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "partsplit",
			Subsystem: "registration",
			Name:      "submissions_total",
			Help:      "Total registration submissions by form kind and result",
		}, []string{"kind", "result"}),
		stepLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "partsplit",
			Subsystem: "registration",
			Name:      "step_latency_seconds",
			Help:      "Latency of upload and persist steps",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.submissionsTotal, m.stepLatency)
	return m
}

func (m *RegistrationMetrics) ObserveSubmission(kind, result string) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(kind, result).Inc()
}

func (m *RegistrationMetrics) ObserveStepLatency(step string, seconds float64) {
	if m == nil {
		return
	}
	m.stepLatency.WithLabelValues(step).Observe(seconds)
}
