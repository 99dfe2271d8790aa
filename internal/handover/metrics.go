package handover

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	OTPsIssued       prometheus.Counter
	Verifications    *prometheus.CounterVec
	Lockouts         prometheus.Counter
	NotifyFailures   prometheus.Counter
	CompleteDuration prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		OTPsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "petregistry_handover_otps_issued_total",
			Help: "Handover passcodes issued, including regenerations",
		}),
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "petregistry_handover_verifications_total",
			Help: "Handover verification attempts, by outcome",
		}, []string{"outcome"}),
		Lockouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "petregistry_handover_lockouts_total",
			Help: "Reservations locked after repeated wrong passcodes",
		}),
		NotifyFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "petregistry_handover_notify_failures_total",
			Help: "Passcode notifications that could not be delivered",
		}),
		CompleteDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "petregistry_handover_complete_duration_seconds",
			Help:    "Duration of successful handover completion including the transfer",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

func (m *Metrics) IncIssued()               { m.OTPsIssued.Inc() }
func (m *Metrics) IncVerification(o string) { m.Verifications.WithLabelValues(o).Inc() }
func (m *Metrics) IncLockout()              { m.Lockouts.Inc() }
func (m *Metrics) IncNotifyFailure()        { m.NotifyFailures.Inc() }

func (m *Metrics) ObserveComplete(start time.Time) {
	m.CompleteDuration.Observe(time.Since(start).Seconds())
}
