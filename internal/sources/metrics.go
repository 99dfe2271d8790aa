package sources

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	FetchDuration *prometheus.HistogramVec
	FetchErrors   *prometheus.CounterVec
	BreakerOpen   *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		FetchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "petregistry_source_fetch_duration_seconds",
			Help:    "Latency of descriptive lookups against origin subsystems",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"origin"}),
		FetchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "petregistry_source_fetch_errors_total",
			Help: "Failed descriptive lookups by origin and category",
		}, []string{"origin", "category"}),
		BreakerOpen: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "petregistry_source_circuit_open",
			Help: "1 while the circuit breaker for an origin is open",
		}, []string{"origin"}),
	}
}

func (m *Metrics) ObserveFetch(origin string, start time.Time) {
	m.FetchDuration.WithLabelValues(origin).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncError(origin string, category ErrorCategory) {
	m.FetchErrors.WithLabelValues(origin, string(category)).Inc()
}

func (m *Metrics) SetBreakerOpen(origin string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	m.BreakerOpen.WithLabelValues(origin).Set(v)
}
