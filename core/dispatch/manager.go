package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/expeditorhq/expeditor/core/adjustlog"
	"github.com/expeditorhq/expeditor/core/events"
	"github.com/expeditorhq/expeditor/core/lifecycle"
	"github.com/expeditorhq/expeditor/core/logger"
	"github.com/expeditorhq/expeditor/core/metrics"
	"github.com/expeditorhq/expeditor/core/model"
	"github.com/expeditorhq/expeditor/core/priority"
	"github.com/expeditorhq/expeditor/core/queue"
	"github.com/expeditorhq/expeditor/core/routing"
	"github.com/expeditorhq/expeditor/core/rules"
	"github.com/expeditorhq/expeditor/internal/eventbus"
)

// Manager orchestrates the order flow: routing, scoring, queueing and
// lifecycle. One manager owns all station queues; each queue's ordering
// stays single-writer through its own lock and rebalancer.
type Manager struct {
	router      *routing.Router
	agg         *priority.Aggregator
	profiles    map[string]priority.Profile
	queues      map[string]*queue.Queue
	rebalancers map[string]*queue.Rebalancer
	configs     map[string]queue.Config
	holding     *routing.HoldingList
	machine     *lifecycle.Machine
	store       adjustlog.Store
	sink        metrics.Sink
	bus         eventbus.EventBus
	log         logger.Logger
	clock       priority.Clock

	mu         sync.RWMutex
	itemQueue  map[string]string   // dispatch item id -> queue id
	orderItems map[string][]string // order item id -> dispatch item ids
	closed     map[string]closedEntry
	retryEvery time.Duration
}

// NewManager wires the engine together. Queue configs must reference
// known profiles; every station gets a queue even without explicit
// config.
func NewManager(router *routing.Router, agg *priority.Aggregator, profiles []priority.Profile,
	configs []queue.Config, store adjustlog.Store, sink metrics.Sink, bus eventbus.EventBus,
	clock priority.Clock, log logger.Logger) (*Manager, error) {
	if router == nil || agg == nil {
		return nil, fmt.Errorf("dispatch: nil router or aggregator")
	}
	if clock == nil {
		clock = priority.SystemClock{}
	}
	profByID := make(map[string]priority.Profile, len(profiles))
	for _, p := range profiles {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		profByID[p.ID] = p
	}
	m := &Manager{
		router:      router,
		agg:         agg,
		profiles:    profByID,
		queues:      make(map[string]*queue.Queue),
		rebalancers: make(map[string]*queue.Rebalancer),
		configs:     make(map[string]queue.Config),
		holding:     routing.NewHoldingList(),
		store:       store,
		sink:        sink,
		bus:         bus,
		log:         log,
		clock:       clock,
		itemQueue:   make(map[string]string),
		orderItems:  make(map[string][]string),
		closed:      make(map[string]closedEntry),
		retryEvery:  15 * time.Second,
	}
	cfgByQueue := make(map[string]queue.Config, len(configs))
	for _, c := range configs {
		c.SetDefaults()
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, ok := profByID[c.ProfileID]; !ok {
			return nil, fmt.Errorf("queue config %s: unknown profile %s", c.QueueID, c.ProfileID)
		}
		cfgByQueue[c.QueueID] = c
	}
	for _, st := range router.Stations() {
		q := queue.New(st)
		m.queues[st.ID] = q
		cfg, ok := cfgByQueue[st.ID]
		if !ok {
			continue
		}
		m.configs[st.ID] = cfg
		m.rebalancers[st.ID] = queue.NewRebalancer(q, profByID[cfg.ProfileID], agg, cfg, store, bus, sink, clock, log)
	}
	m.machine = lifecycle.NewMachine(m, m, clock, log)
	return m, nil
}

// Machine exposes the lifecycle operations.
func (m *Manager) Machine() *lifecycle.Machine { return m.machine }

// Queue returns the queue for the station.
func (m *Manager) Queue(stationID string) (*queue.Queue, bool) {
	q, ok := m.queues[stationID]
	return q, ok
}

// QueueIDs lists all managed queue ids.
func (m *Manager) QueueIDs() []string {
	ids := make([]string, 0, len(m.queues))
	for id := range m.queues {
		ids = append(ids, id)
	}
	return ids
}

// Holding returns the unassigned holding list.
func (m *Manager) Holding() *routing.HoldingList { return m.holding }

// ActiveItems implements routing.Capacity.
func (m *Manager) ActiveItems(stationID string) int {
	q, ok := m.queues[stationID]
	if !ok {
		return 0
	}
	return q.ActiveItems()
}

// Intake routes one arriving order item, scores the resulting dispatch
// items and enqueues them. Unroutable items land on the holding list and
// are retried later; this is a degraded outcome, not an error.
func (m *Manager) Intake(order model.OrderItem) {
	now := m.clock.Now()
	items, err := m.router.Route(order, m, now)
	if err != nil {
		if f, ok := err.(*routing.Failure); ok {
			m.holding.Add(order, now)
			itemsHeld.Inc()
			if m.log != nil {
				m.log.Warnf("%v", f)
			}
			if m.bus != nil {
				m.bus.Publish(events.RoutingHeldEvent{OrderItemID: order.ID, Reason: f.Reason})
			}
			m.recordRouting(order.ID, 0, true, now)
			return
		}
		if m.log != nil {
			m.log.Errorf("routing item %s: %v", order.ID, err)
		}
		return
	}
	m.recordRouting(order.ID, len(items), false, now)

	for _, item := range items {
		m.enqueue(item, order, 0, adjustlog.ReasonNewItem)
	}
}

// enqueue scores and inserts a dispatch item with an optional extra boost.
func (m *Manager) enqueue(item model.DispatchItem, order model.OrderItem, extraBoost float64, reason adjustlog.Reason) {
	q, ok := m.queues[item.StationID]
	if !ok {
		if m.log != nil {
			m.log.Errorf("no queue for station %s", item.StationID)
		}
		return
	}
	now := m.clock.Now()
	cfg, hasCfg := m.configs[item.StationID]
	profile, hasProfile := m.profileFor(item.StationID)

	var score priority.ItemScore
	if hasProfile {
		ctx := rules.ContextFor(order, now)
		ctx.RecallCount = item.RecallCount
		score = m.agg.Score(profile, item.ID, ctx, true)
	} else {
		score = priority.ItemScore{ItemID: item.ID, CalculatedAt: now}
	}
	if hasCfg && cfg.BoostNewItems && reason == adjustlog.ReasonNewItem {
		score.BoostScore += cfg.NewItemBoost
		score.Boosted = true
		score.BoostReason = "new_item"
		if exp := now.Add(cfg.NewItemBoostDuration); exp.After(score.BoostExpiresAt) {
			score.BoostExpiresAt = exp
		}
	}
	if extraBoost != 0 {
		score.BoostScore += extraBoost
		score.Boosted = true
		if score.BoostReason == "" {
			score.BoostReason = string(reason)
		}
		if hasCfg {
			if exp := now.Add(cfg.NewItemBoostDuration); exp.After(score.BoostExpiresAt) {
				score.BoostExpiresAt = exp
			}
		}
	}
	if hasProfile {
		score.TotalScore = profile.Clamp(score.BaseScore + score.BoostScore)
	} else {
		score.TotalScore = score.BaseScore + score.BoostScore
	}

	pos := q.Enqueue(item, order, score)
	itemsRouted.WithLabelValues(q.ID()).Inc()
	queueDepth.WithLabelValues(q.ID()).Set(float64(q.Len()))

	m.mu.Lock()
	m.itemQueue[item.ID] = q.ID()
	known := false
	for _, id := range m.orderItems[item.OrderItemID] {
		if id == item.ID {
			known = true
			break
		}
	}
	if !known {
		m.orderItems[item.OrderItemID] = append(m.orderItems[item.OrderItemID], item.ID)
	}
	m.mu.Unlock()

	if m.store != nil {
		_ = m.store.Append(context.Background(), adjustlog.Entry{
			ID:          uuid.NewString(),
			QueueID:     q.ID(),
			ItemID:      item.ID,
			NewScore:    score.TotalScore,
			OldPosition: 0,
			NewPosition: pos + 1,
			Reason:      reason,
			Actor:       "router",
			Timestamp:   now,
		})
	}
	if m.bus != nil {
		m.bus.Publish(events.ItemQueuedEvent{
			QueueID:  q.ID(),
			ItemID:   item.ID,
			Position: pos,
			Score:    score.TotalScore,
			Boosted:  score.Boosted,
		})
	}
	if rb, ok := m.rebalancers[q.ID()]; ok {
		rb.NoteArrival(pos, q.Len())
	}
}

func (m *Manager) profileFor(stationID string) (priority.Profile, bool) {
	cfg, ok := m.configs[stationID]
	if !ok {
		return priority.Profile{}, false
	}
	p, ok := m.profiles[cfg.ProfileID]
	return p, ok
}

func (m *Manager) recordRouting(orderItemID string, stations int, held bool, at time.Time) {
	if m.sink == nil {
		return
	}
	if rr, ok := m.sink.(metrics.RoutingRecorder); ok {
		if err := rr.RecordRouting(metrics.RoutingRecord{
			OrderItemID: orderItemID,
			Stations:    stations,
			Held:        held,
			Time:        at,
		}); err != nil && m.log != nil {
			m.log.Errorf("routing metrics error: %v", err)
		}
	}
}

// RetryHeld re-routes every parked order item. Items that still cannot be
// placed return to the holding list.
func (m *Manager) RetryHeld() {
	for _, order := range m.holding.Drain() {
		m.Intake(order)
	}
}

// Run consumes order events and drives the rebalancers and the holding
// retry timer until the context is canceled.
func (m *Manager) Run(ctx context.Context, orders <-chan model.OrderItem) {
	for _, rb := range m.rebalancers {
		go rb.Run(ctx)
	}
	var capacity <-chan eventbus.Event
	if m.bus != nil {
		capacity = m.bus.Subscribe()
		defer m.bus.Unsubscribe(capacity)
	}
	retry := time.NewTicker(m.retryEvery)
	defer retry.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case order := <-orders:
			m.Intake(order)
		case ev := <-capacity:
			if _, ok := ev.(events.CapacityFreedEvent); ok {
				m.RetryHeld()
			}
		case <-retry.C:
			if m.holding.Len() > 0 {
				m.RetryHeld()
			}
		}
	}
}
