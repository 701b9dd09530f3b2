package events

import (
	"time"

	"github.com/expeditorhq/expeditor/core/model"
)

// ItemQueuedEvent is published when a dispatch item enters a queue.
type ItemQueuedEvent struct {
	QueueID  string
	ItemID   string
	Position int
	Score    float64
	Boosted  bool
}

// StateChangedEvent is published for each applied lifecycle transition.
type StateChangedEvent struct {
	ItemID  string
	QueueID string
	From    model.ItemStatus
	To      model.ItemStatus
	StaffID string
	At      time.Time
}

// RebalanceEvent summarizes one rebalance tick. Degraded marks ticks that
// ran out of budget and deferred part of the queue.
type RebalanceEvent struct {
	QueueID    string
	Moved      int
	Recomputed int
	Deferred   int
	Degraded   bool
	Duration   time.Duration
	At         time.Time
}

// RoutingHeldEvent is published when no station can take an order item.
type RoutingHeldEvent struct {
	OrderItemID string
	Reason      string
}

// CapacityFreedEvent is published when an item leaves a station's active
// set, prompting a holding-list retry.
type CapacityFreedEvent struct {
	StationID string
}
