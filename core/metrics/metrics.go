package metrics

import (
	"time"
)

// RebalanceRecord captures one rebalance tick for observability.
type RebalanceRecord struct {
	QueueID    string
	Moved      int
	Recomputed int
	Deferred   int
	Degraded   bool
	Duration   time.Duration
	Depth      int
	Time       time.Time
}

// Sink records rebalance activity for observability purposes.
type Sink interface {
	RecordRebalance(rec RebalanceRecord) error
}

// RoutingRecord captures one routing decision.
type RoutingRecord struct {
	OrderItemID string
	Stations    int
	Held        bool
	Time        time.Time
}

// RoutingRecorder is implemented by sinks that track routing outcomes.
type RoutingRecorder interface {
	RecordRouting(rec RoutingRecord) error
}

// TransitionRecord captures one lifecycle transition.
type TransitionRecord struct {
	QueueID string
	ItemID  string
	From    string
	To      string
	Time    time.Time
}

// TransitionRecorder is implemented by sinks that track lifecycle moves.
type TransitionRecorder interface {
	RecordTransition(rec TransitionRecord) error
}

// FairnessRecord is a per-queue per-period fairness summary.
type FairnessRecord struct {
	QueueID             string
	PeriodStart         time.Time
	PeriodEnd           time.Time
	Gini                float64
	MaxWaitVariance     float64
	RebalanceCount      int
	AvgAbsPositionDelta float64
	ManualAdjustments   int
	CacheHitRate        float64
}

// FairnessRecorder is implemented by sinks that persist fairness summaries.
type FairnessRecorder interface {
	RecordFairness(rec FairnessRecord) error
}

// NopSink discards all records.
type NopSink struct{}

func (NopSink) RecordRebalance(RebalanceRecord) error   { return nil }
func (NopSink) RecordRouting(RoutingRecord) error       { return nil }
func (NopSink) RecordTransition(TransitionRecord) error { return nil }
func (NopSink) RecordFairness(FairnessRecord) error     { return nil }

// MultiSink fans records out to several sinks; the first error wins but
// all sinks are attempted.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks into one.
func NewMultiSink(sinks ...Sink) *MultiSink { return &MultiSink{sinks: sinks} }

func (m *MultiSink) RecordRebalance(rec RebalanceRecord) error {
	var first error
	for _, s := range m.sinks {
		if err := s.RecordRebalance(rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *MultiSink) RecordRouting(rec RoutingRecord) error {
	var first error
	for _, s := range m.sinks {
		if rr, ok := s.(RoutingRecorder); ok {
			if err := rr.RecordRouting(rec); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

func (m *MultiSink) RecordTransition(rec TransitionRecord) error {
	var first error
	for _, s := range m.sinks {
		if tr, ok := s.(TransitionRecorder); ok {
			if err := tr.RecordTransition(rec); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

func (m *MultiSink) RecordFairness(rec FairnessRecord) error {
	var first error
	for _, s := range m.sinks {
		if fr, ok := s.(FairnessRecorder); ok {
			if err := fr.RecordFairness(rec); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
