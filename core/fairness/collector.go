package fairness

import (
	"context"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/expeditorhq/expeditor/core/adjustlog"
	"github.com/expeditorhq/expeditor/core/logger"
	"github.com/expeditorhq/expeditor/core/metrics"
	"github.com/expeditorhq/expeditor/core/priority"
)

// Summary is the per-queue fairness and performance report for one period.
type Summary struct {
	QueueID             string    `json:"queue_id"`
	PeriodStart         time.Time `json:"period_start"`
	PeriodEnd           time.Time `json:"period_end"`
	Gini                float64   `json:"gini"`
	MaxWaitVariance     float64   `json:"max_wait_variance"`
	RebalanceCount      int       `json:"rebalance_count"`
	AvgAbsPositionDelta float64   `json:"avg_abs_position_delta"`
	ManualAdjustments   int       `json:"manual_adjustments"`
	CacheHitRate        float64   `json:"cache_hit_rate"`
}

// ScoreSource exposes the live queue state the collector samples. It runs
// off the hot path: implementations return copied snapshots.
type ScoreSource interface {
	QueueScores(queueID string) []float64
	QueueWaitSeconds(queueID string, now time.Time) []float64
}

// Collector derives fairness statistics from the adjustment log and the
// live score distribution.
type Collector struct {
	store adjustlog.Store
	src   ScoreSource
	cache priority.Cache
	sink  metrics.Sink
	clock priority.Clock
	log   logger.Logger
}

// NewCollector creates a collector. Cache and sink are optional.
func NewCollector(store adjustlog.Store, src ScoreSource, cache priority.Cache, sink metrics.Sink, clock priority.Clock, log logger.Logger) *Collector {
	if clock == nil {
		clock = priority.SystemClock{}
	}
	return &Collector{store: store, src: src, cache: cache, sink: sink, clock: clock, log: log}
}

// Collect summarizes one queue over the given period.
func (c *Collector) Collect(ctx context.Context, queueID string, start, end time.Time) (Summary, error) {
	s := Summary{QueueID: queueID, PeriodStart: start, PeriodEnd: end}

	entries, err := c.store.Query(ctx, adjustlog.Query{QueueID: queueID, Start: start, End: end})
	if err != nil {
		return s, err
	}
	ticks := make(map[time.Time]bool)
	var absDelta float64
	var moved int
	for _, e := range entries {
		switch e.Reason {
		case adjustlog.ReasonManual:
			s.ManualAdjustments++
		case adjustlog.ReasonRebalance:
			ticks[e.Timestamp] = true
		}
		if d := e.NewPosition - e.OldPosition; d != 0 {
			if d < 0 {
				d = -d
			}
			absDelta += float64(d)
			moved++
		}
	}
	s.RebalanceCount = len(ticks)
	if moved > 0 {
		s.AvgAbsPositionDelta = absDelta / float64(moved)
	}

	if c.src != nil {
		now := c.clock.Now()
		s.Gini = Gini(c.src.QueueScores(queueID))
		if waits := c.src.QueueWaitSeconds(queueID, now); len(waits) > 1 {
			s.MaxWaitVariance = stat.Variance(waits, nil)
		}
	}
	if c.cache != nil {
		s.CacheHitRate = c.cache.Stats().HitRate()
	}

	if c.sink != nil {
		rec := metrics.FairnessRecord{
			QueueID:             s.QueueID,
			PeriodStart:         s.PeriodStart,
			PeriodEnd:           s.PeriodEnd,
			Gini:                s.Gini,
			MaxWaitVariance:     s.MaxWaitVariance,
			RebalanceCount:      s.RebalanceCount,
			AvgAbsPositionDelta: s.AvgAbsPositionDelta,
			ManualAdjustments:   s.ManualAdjustments,
			CacheHitRate:        s.CacheHitRate,
		}
		if fr, ok := c.sink.(metrics.FairnessRecorder); ok {
			if err := fr.RecordFairness(rec); err != nil && c.log != nil {
				c.log.Errorf("fairness metrics error: %v", err)
			}
		}
	}
	return s, nil
}

// Run collects every queue on the interval until the context is canceled.
func (c *Collector) Run(ctx context.Context, queueIDs []string, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	last := c.clock.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			now := c.clock.Now()
			for _, id := range queueIDs {
				if _, err := c.Collect(ctx, id, last, now); err != nil && c.log != nil {
					c.log.Errorf("fairness collect %s: %v", id, err)
				}
			}
			last = now
		}
	}
}

// Gini computes the Gini coefficient of the distribution: 0 for perfectly
// equal values, approaching 1 for maximal inequality. Negative inputs are
// treated as zero.
func Gini(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	for i, v := range sorted {
		if v < 0 {
			sorted[i] = 0
		}
	}
	sort.Float64s(sorted)
	n := float64(len(sorted))
	var cum, total float64
	for i, v := range sorted {
		cum += float64(i+1) * v
		total += v
	}
	if total == 0 {
		return 0
	}
	return (2*cum - (n+1)*total) / (n * total)
}
