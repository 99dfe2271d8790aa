package identity

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Collisions       *prometheus.CounterVec
	Fallbacks        *prometheus.CounterVec
	GenerateDuration *prometheus.HistogramVec
	kind             string
}

// NewMetrics registers code generation metrics; kind labels the code family
// ("pet" or "reservation"). Collectors are shared across kinds.
func NewMetrics(kind string) *Metrics {
	return &Metrics{
		Collisions:       collisions,
		Fallbacks:        fallbacks,
		GenerateDuration: generateDuration,
		kind:             kind,
	}
}

var (
	collisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "petregistry_code_collisions_total",
		Help: "Candidate codes rejected because they already existed",
	}, []string{"kind"})
	fallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "petregistry_code_fallbacks_total",
		Help: "Codes minted with the timestamp fallback form",
	}, []string{"kind"})
	generateDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "petregistry_code_generate_duration_seconds",
		Help:    "Time to mint a batch of unique codes",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	}, []string{"kind"})
)

func (m *Metrics) IncCollisions(n int) {
	m.Collisions.WithLabelValues(m.kind).Add(float64(n))
}

func (m *Metrics) IncFallback(n int) {
	m.Fallbacks.WithLabelValues(m.kind).Add(float64(n))
}

func (m *Metrics) ObserveGenerate(start time.Time) {
	m.GenerateDuration.WithLabelValues(m.kind).Observe(time.Since(start).Seconds())
}
