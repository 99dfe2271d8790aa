package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Created     prometheus.Counter
	Transitions *prometheus.CounterVec
	Expired     prometheus.Counter
	Active      prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		Created: promauto.NewCounter(prometheus.CounterOpts{
			Name: "petregistry_reservations_created_total",
			Help: "Reservations opened",
		}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "petregistry_reservation_transitions_total",
			Help: "Reservation status transitions, by target status",
		}, []string{"to"}),
		Expired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "petregistry_reservations_expired_total",
			Help: "Pending reservations cancelled by the expiry sweeper",
		}),
		Active: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "petregistry_reservations_active",
			Help: "Reservations opened minus reservations that reached a terminal state since start",
		}),
	}
}

func (m *Metrics) IncCreated() {
	m.Created.Inc()
	m.Active.Inc()
}

func (m *Metrics) IncTransition(to string, terminal bool) {
	m.Transitions.WithLabelValues(to).Inc()
	if terminal {
		m.Active.Dec()
	}
}

func (m *Metrics) IncExpired() {
	m.Expired.Inc()
}
