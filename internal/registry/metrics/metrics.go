package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics provides observability for the registry module.
type Metrics struct {
	PetsRegistered   prometheus.Counter
	PetsRefreshed    prometheus.Counter
	OwnershipChanges prometheus.Counter
	RegisterDuration prometheus.Histogram
	UpdateDuration   prometheus.Histogram
	SearchDuration   prometheus.Histogram
	RefreshFailures  prometheus.Counter
}

// New creates a Metrics instance with all registry metrics registered.
func New() *Metrics {
	return &Metrics{
		PetsRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "petregistry_pets_registered_total",
			Help: "Total number of registry entries created",
		}),
		PetsRefreshed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "petregistry_pets_refreshed_total",
			Help: "Total number of re-registrations merged into an existing entry",
		}),
		OwnershipChanges: promauto.NewCounter(prometheus.CounterOpts{
			Name: "petregistry_ownership_changes_total",
			Help: "Total number of history records appended",
		}),
		RegisterDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "petregistry_register_duration_seconds",
			Help:    "Duration of RegisterOrRefresh operations",
			Buckets: durationBuckets,
		}),
		UpdateDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "petregistry_update_state_duration_seconds",
			Help:    "Duration of UpdateState operations",
			Buckets: durationBuckets,
		}),
		SearchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "petregistry_search_duration_seconds",
			Help:    "Duration of registry searches",
			Buckets: durationBuckets,
		}),
		RefreshFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "petregistry_descriptive_refresh_failures_total",
			Help: "Descriptive refreshes that failed at the source adapter",
		}),
	}
}

func (m *Metrics) IncRegistered()      { m.PetsRegistered.Inc() }
func (m *Metrics) IncRefreshed()       { m.PetsRefreshed.Inc() }
func (m *Metrics) IncOwnershipChange() { m.OwnershipChanges.Inc() }
func (m *Metrics) IncRefreshFailure()  { m.RefreshFailures.Inc() }

// ObserveRegister records the duration of a RegisterOrRefresh call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveRegister(start time.Time) {
	m.RegisterDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveUpdate(start time.Time) {
	m.UpdateDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveSearch(start time.Time) {
	m.SearchDuration.Observe(time.Since(start).Seconds())
}
