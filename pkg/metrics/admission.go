package metrics

import "github.com/prometheus/client_golang/prometheus"

// AdmissionMetrics counts quota admission decisions per plan.
type AdmissionMetrics struct {
	allowed *prometheus.CounterVec
	denied  *prometheus.CounterVec
	tokens  *prometheus.CounterVec
}

// NewAdmissionMetrics registers the admission counters on the provided registerer.
func NewAdmissionMetrics(reg prometheus.Registerer) *AdmissionMetrics {
	if reg == nil {
		return &AdmissionMetrics{}
	}
	allowed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "admission_allowed_total",
		Help: "Requests admitted by the token quota check.",
	}, []string{"plan"})
	denied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "admission_denied_total",
		Help: "Requests denied by the token quota check.",
	}, []string{"plan"})
	tokens := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "usage_tokens_total",
		Help: "Actual tokens recorded to the usage ledger.",
	}, []string{"plan", "direction"})
	reg.MustRegister(allowed, denied, tokens)
	return &AdmissionMetrics{
		allowed: allowed,
		denied:  denied,
		tokens:  tokens,
	}
}

// IncAllowed increments the admitted counter for the named plan.
func (a *AdmissionMetrics) IncAllowed(plan string) {
	if a == nil || a.allowed == nil {
		return
	}
	a.allowed.WithLabelValues(normalizeLabel(plan)).Inc()
}

// IncDenied increments the denied counter for the named plan.
func (a *AdmissionMetrics) IncDenied(plan string) {
	if a == nil || a.denied == nil {
		return
	}
	a.denied.WithLabelValues(normalizeLabel(plan)).Inc()
}

// AddTokens accumulates recorded usage for the named plan and direction.
func (a *AdmissionMetrics) AddTokens(plan, direction string, tokens int64) {
	if a == nil || a.tokens == nil || tokens <= 0 {
		return
	}
	a.tokens.WithLabelValues(normalizeLabel(plan), normalizeLabel(direction)).Add(float64(tokens))
}
