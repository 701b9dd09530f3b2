package queue

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/expeditorhq/expeditor/core/adjustlog"
	"github.com/expeditorhq/expeditor/core/events"
	"github.com/expeditorhq/expeditor/core/logger"
	"github.com/expeditorhq/expeditor/core/metrics"
	"github.com/expeditorhq/expeditor/core/priority"
	"github.com/expeditorhq/expeditor/core/rules"
	"github.com/expeditorhq/expeditor/internal/eventbus"
)

// Result summarizes one rebalance tick.
type Result struct {
	Moved      int
	Recomputed int
	Deferred   int
	Degraded   bool
	Duration   time.Duration
}

// Rebalancer periodically reorders one queue. Each rebalancer owns its
// queue's ordering mutations; queues for different stations run their
// rebalancers concurrently.
type Rebalancer struct {
	queue   *Queue
	profile priority.Profile
	agg     *priority.Aggregator
	store   adjustlog.Store
	bus     eventbus.EventBus
	sink    metrics.Sink
	log     logger.Logger
	clock   priority.Clock
	cfg     Config

	trigger       chan struct{}
	lastRebalance time.Time
}

// NewRebalancer wires a rebalancer to its queue. The adjustment log store
// may be nil in tests; events and metrics are optional as well.
func NewRebalancer(q *Queue, profile priority.Profile, agg *priority.Aggregator, cfg Config,
	store adjustlog.Store, bus eventbus.EventBus, sink metrics.Sink, clock priority.Clock, log logger.Logger) *Rebalancer {
	cfg.SetDefaults()
	if clock == nil {
		clock = priority.SystemClock{}
	}
	return &Rebalancer{
		queue:   q,
		profile: profile,
		agg:     agg,
		store:   store,
		bus:     bus,
		sink:    sink,
		log:     log,
		clock:   clock,
		cfg:     cfg,
		trigger: make(chan struct{}, 1),
	}
}

// LastRebalance returns when the queue was last reordered.
func (r *Rebalancer) LastRebalance() time.Time { return r.lastRebalance }

// Trigger requests an out-of-band rebalance. Requests collapse while a
// tick is pending.
func (r *Rebalancer) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// NoteArrival triggers a rebalance when a new item lands far enough from
// the queue tail: an insert jumping more than the configured fraction of
// the queue depth would leave stale ordering until the next interval.
func (r *Rebalancer) NoteArrival(position, depth int) {
	if depth <= 1 || r.cfg.Threshold <= 0 {
		return
	}
	jump := float64(depth-1-position) / float64(depth)
	if jump > r.cfg.Threshold {
		r.Trigger()
	}
}

// Run drives interval and triggered ticks until the context is canceled.
func (r *Rebalancer) Run(ctx context.Context) {
	var tick <-chan time.Time
	if r.cfg.AutoRebalance {
		t := time.NewTicker(r.cfg.Interval)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			r.Rebalance(ctx)
		case <-r.trigger:
			r.Rebalance(ctx)
		}
	}
}

// Rebalance executes one tick: rescore what changed, produce the
// deterministic order, clamp movement and log every adjustment. On budget
// overrun the progress made is committed and the remainder deferred to the
// next tick.
func (r *Rebalancer) Rebalance(ctx context.Context) Result {
	start := r.clock.Now()
	deadline := start.Add(r.cfg.TickBudget)
	snapshot := r.queue.Snapshot()
	if len(snapshot) == 0 {
		r.lastRebalance = start
		return Result{}
	}

	oldPos := make(map[string]int, len(snapshot))
	oldScore := make(map[string]float64, len(snapshot))
	expired := make(map[string]bool)
	ranked := make([]priority.Ranked, 0, len(snapshot))
	var res Result

	for i, e := range snapshot {
		oldPos[e.Item.ID] = i
		oldScore[e.Item.ID] = e.Score.TotalScore
		score := e.Score
		if res.Degraded || r.clock.Now().After(deadline) {
			// Out of budget: keep the stale score, rescore next tick.
			res.Degraded = true
			res.Deferred++
		} else if cand, changed := r.rescore(e, start); changed {
			score = cand
			r.queue.SetScore(e.Item.ID, cand)
			res.Recomputed++
			if e.Score.Boosted && !start.Before(e.Score.BoostExpiresAt) {
				expired[e.Item.ID] = true
			}
		}
		ranked = append(ranked, priority.Ranked{
			ItemID:     e.Item.ID,
			Total:      score.TotalScore,
			ReceivedAt: e.Item.ReceivedAt,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return priority.Less(ranked[i], ranked[j]) })

	order := clampMovement(ranked, oldPos, r.cfg.MaxPositionChange)
	r.queue.applyOrder(order)

	entries := r.logAdjustments(ctx, order, oldPos, oldScore, expired, start)
	for _, e := range entries {
		if e.OldPosition != e.NewPosition {
			res.Moved++
		}
	}

	r.lastRebalance = start
	res.Duration = r.clock.Now().Sub(start)
	if res.Degraded && r.log != nil {
		r.log.Warnf("queue %s: rebalance exceeded %s budget, deferred %d items", r.queue.ID(), r.cfg.TickBudget, res.Deferred)
	}
	if r.bus != nil {
		r.bus.Publish(events.RebalanceEvent{
			QueueID:    r.queue.ID(),
			Moved:      res.Moved,
			Recomputed: res.Recomputed,
			Deferred:   res.Deferred,
			Degraded:   res.Degraded,
			Duration:   res.Duration,
			At:         start,
		})
	}
	if r.sink != nil {
		if err := r.sink.RecordRebalance(metrics.RebalanceRecord{
			QueueID:    r.queue.ID(),
			Moved:      res.Moved,
			Recomputed: res.Recomputed,
			Deferred:   res.Deferred,
			Degraded:   res.Degraded,
			Duration:   res.Duration,
			Depth:      len(snapshot),
			Time:       start,
		}); err != nil && r.log != nil {
			r.log.Errorf("queue %s: metrics error: %v", r.queue.ID(), err)
		}
	}
	return res
}

// rescore recomputes the entry's score when its inputs moved beyond the
// profile's recalculation threshold or its boost expired.
func (r *Rebalancer) rescore(e Entry, now time.Time) (priority.ItemScore, bool) {
	boostExpired := e.Score.Boosted && !now.Before(e.Score.BoostExpiresAt)
	ctx := rules.ContextFor(e.Order, now)
	ctx.RecallCount = e.Item.RecallCount
	cand := r.agg.Score(r.profile, e.Item.ID, ctx, boostExpired)
	if boostExpired {
		return cand, true
	}
	span := r.profile.MaxTotalScore - r.profile.MinTotalScore
	delta := cand.TotalScore - e.Score.TotalScore
	if delta < 0 {
		delta = -delta
	}
	if span > 0 && r.profile.RecalcThreshold > 0 && delta/span < r.profile.RecalcThreshold {
		return e.Score, false
	}
	return cand, delta != 0
}

// clampMovement converts the desired order into the applied order,
// limiting each item's displacement to maxMove positions per tick. Slots
// are filled front to back: an item whose downward budget runs out at the
// slot is placed there, otherwise the best-ranked item that may already
// move this far forward takes it. The remaining displacement carries into
// following ticks because the desired order is recomputed from scratch
// each time.
func clampMovement(desired []priority.Ranked, oldPos map[string]int, maxMove int) []string {
	n := len(desired)
	ids := make([]string, 0, n)
	if maxMove <= 0 {
		for _, rk := range desired {
			ids = append(ids, rk.ItemID)
		}
		return ids
	}
	used := make([]bool, n)
	for slot := 0; slot < n; slot++ {
		pick := -1
		for rank, rk := range desired {
			if used[rank] {
				continue
			}
			cur := oldPos[rk.ItemID]
			if cur-maxMove > slot {
				continue
			}
			if cur+maxMove == slot {
				pick = rank
				break
			}
			if pick == -1 {
				pick = rank
			}
		}
		used[pick] = true
		ids = append(ids, desired[pick].ItemID)
	}
	return ids
}

// logAdjustments appends an entry for every item whose score or position
// changed. Rescores forced by an expired boost are tagged as such; the
// rest of the tick's changes are tagged rebalance.
func (r *Rebalancer) logAdjustments(ctx context.Context, order []string, oldPos map[string]int, oldScore map[string]float64, expired map[string]bool, at time.Time) []adjustlog.Entry {
	var entries []adjustlog.Entry
	cur := r.queue.Snapshot()
	curScore := make(map[string]float64, len(cur))
	for _, e := range cur {
		curScore[e.Item.ID] = e.Score.TotalScore
	}
	for newPos, id := range order {
		op := oldPos[id]
		os := oldScore[id]
		ns := curScore[id]
		if op == newPos && os == ns {
			continue
		}
		reason := adjustlog.ReasonRebalance
		if expired[id] {
			reason = adjustlog.ReasonBoostExpired
		}
		entries = append(entries, adjustlog.Entry{
			ID:          uuid.NewString(),
			QueueID:     r.queue.ID(),
			ItemID:      id,
			OldScore:    os,
			NewScore:    ns,
			OldPosition: op + 1,
			NewPosition: newPos + 1,
			Reason:      reason,
			Actor:       "rebalancer",
			Timestamp:   at,
		})
	}
	if len(entries) > 0 && r.store != nil {
		if err := r.store.Append(ctx, entries...); err != nil && r.log != nil {
			r.log.Errorf("queue %s: adjustment log append: %v", r.queue.ID(), err)
		}
	}
	return entries
}
