package ops

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts what happened to each ops event, labelled by outcome.
type Metrics struct {
	Events      *prometheus.CounterVec
	BreakerOpen prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		Events: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "petregistry_audit_ops_events_total",
			Help: "Ops audit events by outcome (tracked, sampled_out, breaker_dropped, persist_failed)",
		}, []string{"outcome"}),
		BreakerOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "petregistry_audit_ops_breaker_open",
			Help: "1 while the ops audit breaker is open",
		}),
	}
}

func (m *Metrics) IncTracked()               { m.Events.WithLabelValues("tracked").Inc() }
func (m *Metrics) IncSampled()               { m.Events.WithLabelValues("sampled_out").Inc() }
func (m *Metrics) IncCircuitBreakerDropped() { m.Events.WithLabelValues("breaker_dropped").Inc() }
func (m *Metrics) IncPersistFailures()       { m.Events.WithLabelValues("persist_failed").Inc() }

func (m *Metrics) SetCircuitBreakerState(open bool) {
	v := 0.0
	if open {
		v = 1
	}
	m.BreakerOpen.Set(v)
}
