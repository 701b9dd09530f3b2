package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	itemsRouted      *prometheus.CounterVec
	itemsHeld        prometheus.Counter
	transitionsTotal *prometheus.CounterVec
	queueDepth       *prometheus.GaugeVec
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, prometheus.Counter, *prometheus.CounterVec, *prometheus.GaugeVec) {
	routed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_items_routed_total",
			Help: "Number of dispatch items created per station",
		},
		[]string{"station"},
	)
	held := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_items_held_total",
			Help: "Number of order items parked on the holding list",
		},
	)
	trans := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_transitions_total",
			Help: "Lifecycle transitions applied, labeled by target status",
		},
		[]string{"status"},
	)
	depth := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatch_queue_depth",
			Help: "Current number of queued items per station",
		},
		[]string{"station"},
	)
	return routed, held, trans, depth
}

func init() {
	itemsRouted, itemsHeld, transitionsTotal, queueDepth = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(itemsRouted, itemsHeld, transitionsTotal, queueDepth)
}

// ResetMetrics reinitializes metric collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	itemsRouted, itemsHeld, transitionsTotal, queueDepth = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
