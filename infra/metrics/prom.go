package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/expeditorhq/expeditor/core/metrics"
)

// PromSink records queue events in Prometheus metrics.
type PromSink struct {
	rebalances *prometheus.CounterVec
	moved      *prometheus.HistogramVec
	duration   *prometheus.HistogramVec
	routed     *prometheus.CounterVec
	gini       *prometheus.GaugeVec
}

// NewPromSink registers queue metrics on the default Prometheus registerer.
// The Prometheus server should be started separately.
func NewPromSink() (coremetrics.Sink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (coremetrics.Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	rebalances := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_rebalance_ticks_total",
		Help: "Total number of rebalance ticks",
	}, []string{"queue", "degraded"})
	moved := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "queue_rebalance_moved_items",
		Help:    "Items moved per rebalance tick",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
	}, []string{"queue"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "queue_rebalance_duration_seconds",
		Help:    "Execution time of rebalance ticks",
		Buckets: prometheus.DefBuckets,
	}, []string{"queue"})
	routed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "routing_outcomes_total",
		Help: "Routing outcomes by result",
	}, []string{"held"})
	gini := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "queue_score_gini",
		Help: "Gini coefficient of the live score distribution per queue",
	}, []string{"queue"})

	for _, c := range []prometheus.Collector{rebalances, moved, duration, routed, gini} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}
	return &PromSink{rebalances: rebalances, moved: moved, duration: duration, routed: routed, gini: gini}, nil
}

// RecordRebalance increments the tick counters and observes movement.
func (s *PromSink) RecordRebalance(rec coremetrics.RebalanceRecord) error {
	s.rebalances.WithLabelValues(rec.QueueID, strconv.FormatBool(rec.Degraded)).Inc()
	s.moved.WithLabelValues(rec.QueueID).Observe(float64(rec.Moved))
	s.duration.WithLabelValues(rec.QueueID).Observe(rec.Duration.Seconds())
	return nil
}

// RecordRouting counts routing outcomes.
func (s *PromSink) RecordRouting(rec coremetrics.RoutingRecord) error {
	s.routed.WithLabelValues(strconv.FormatBool(rec.Held)).Inc()
	return nil
}

// RecordFairness exposes the latest per-queue Gini value.
func (s *PromSink) RecordFairness(rec coremetrics.FairnessRecord) error {
	s.gini.WithLabelValues(rec.QueueID).Set(rec.Gini)
	return nil
}
