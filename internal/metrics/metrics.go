package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vending"

type Metrics struct {
	Purchases         *prometheus.CounterVec
	Deposits          prometheus.Counter
	SessionsCreated   prometheus.Counter
	SessionRejections *prometheus.CounterVec
}

// New registers the service collectors on reg. Passing a fresh
// prometheus.NewRegistry() keeps tests independent.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchases_total",
			Help:      "Purchase attempts by result.",
		}, []string{"result"}),
		Deposits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deposits_total",
			Help:      "Accepted coin deposits.",
		}),
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Sessions opened at login.",
		}),
		SessionRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_rejections_total",
			Help:      "Logins or requests refused by the session registry.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.Purchases, m.Deposits, m.SessionsCreated, m.SessionRejections)
	return m
}

// Nil-safe recorders so callers can run without metrics.

func (m *Metrics) PurchaseResult(result string) {
	if m != nil {
		m.Purchases.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) DepositAccepted() {
	if m != nil {
		m.Deposits.Inc()
	}
}

func (m *Metrics) SessionCreated() {
	if m != nil {
		m.SessionsCreated.Inc()
	}
}

func (m *Metrics) SessionRejected(reason string) {
	if m != nil {
		m.SessionRejections.WithLabelValues(reason).Inc()
	}
}
