// Package metrics defines the Prometheus collectors for the key layer.
// Ring gauges read Ring.Stats on scrape; request and sign counters are
// incremented by the hosts. Kept in a standalone package so the API,
// CLI, and ring packages can share them without import cycles.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keyfob-io/keyfob/pkg/keyring"
)

var (
	// APIRequestsTotal counts API operations by operation name and
	// HTTP status.
	APIRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keyfob_api_requests_total",
		Help: "API requests by operation and status code.",
	}, []string{"op", "status"})

	// SignOperationsTotal counts signatures produced through the API.
	SignOperationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "keyfob_sign_operations_total",
		Help: "Signing operations performed.",
	})
)

// RingStatsFunc supplies a ring stats snapshot to the collectors.
type RingStatsFunc func() keyring.Stats

// NewRingCollectors builds the collectors that track a ring. Gauge and
// counter values are read from the stats snapshot at scrape time.
func NewRingCollectors(stats RingStatsFunc) []prometheus.Collector {
	return []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "keyfob_ring_live_handles",
			Help: "Key handles currently live in the ring.",
		}, func() float64 { return float64(stats().Live) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "keyfob_ring_acquired_total",
			Help: "Key handles acquired since start.",
		}, func() float64 { return float64(stats().Acquired) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "keyfob_ring_released_total",
			Help: "Key handles explicitly released since start.",
		}, func() float64 { return float64(stats().Released) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "keyfob_ring_finalized_total",
			Help: "Key handles reclaimed by finalizers since start.",
		}, func() float64 { return float64(stats().Finalized) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "keyfob_ring_borrows_total",
			Help: "Borrow operations served by the ring since start.",
		}, func() float64 { return float64(stats().Borrows) }),
	}
}

// Register registers every keyfob collector on reg, or on the default
// registerer when reg is nil. stats may be nil to skip the ring
// collectors. Re-registration is tolerated so embedded hosts and tests
// can call it more than once.
func Register(reg prometheus.Registerer, stats RingStatsFunc) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	collectors := []prometheus.Collector{APIRequestsTotal, SignOperationsTotal}
	if stats != nil {
		collectors = append(collectors, NewRingCollectors(stats)...)
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

// Handler returns the /metrics endpoint handler over the default
// gatherer, where Register(nil, ...) puts the collectors.
func Handler() http.Handler {
	return promhttp.Handler()
}
