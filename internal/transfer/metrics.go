package transfer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Transfers        *prometheus.CounterVec
	TransferDuration prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		Transfers: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "petregistry_transfers_total",
			Help: "Ownership transfers applied, by transfer type",
		}, []string{"type"}),
		TransferDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "petregistry_transfer_duration_seconds",
			Help:    "Duration of ownership transfers including the audit write",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncTransfer(transferType string) {
	m.Transfers.WithLabelValues(transferType).Inc()
}

func (m *Metrics) ObserveTransfer(start time.Time) {
	m.TransferDuration.Observe(time.Since(start).Seconds())
}
