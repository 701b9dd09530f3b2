package dispatch

import (
	"github.com/expeditorhq/expeditor/core/events"
	"github.com/expeditorhq/expeditor/core/lifecycle"
	"github.com/expeditorhq/expeditor/core/metrics"
	"github.com/expeditorhq/expeditor/core/model"
	"github.com/expeditorhq/expeditor/core/queue"
)

// closedEntry retains a soft-closed item so it stays recallable. Purging
// retained entries is an external retention concern.
type closedEntry struct {
	item    model.DispatchItem
	order   model.OrderItem
	queueID string
}

// Get implements lifecycle.Store by looking the item up in its queue or
// the soft-closed set.
func (m *Manager) Get(itemID string) (model.DispatchItem, bool) {
	if q, ok := m.queueOf(itemID); ok {
		return q.Get(itemID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ce, ok := m.closed[itemID]; ok {
		return ce.item, true
	}
	return model.DispatchItem{}, false
}

// Update implements lifecycle.Store. The expected-status check runs under
// the owning queue's lock (or the manager's for closed items), so a
// concurrent transition rejects this one instead of being lost.
func (m *Manager) Update(itemID string, expect model.ItemStatus, apply func(*model.DispatchItem)) error {
	if q, ok := m.queueOf(itemID); ok {
		before, _ := q.Get(itemID)
		if err := q.Update(itemID, expect, apply); err != nil {
			return err
		}
		after, _ := q.Get(itemID)
		m.noteTransition(itemID, q.ID(), before.Status, after.Status, after.StaffID)
		return nil
	}
	m.mu.Lock()
	ce, ok := m.closed[itemID]
	if !ok {
		m.mu.Unlock()
		return &lifecycle.ErrNotFound{ItemID: itemID}
	}
	if ce.item.Status != expect {
		cur := ce.item.Status
		m.mu.Unlock()
		return &lifecycle.TransitionError{ItemID: itemID, From: cur, Operation: "update", Stale: true}
	}
	before := ce.item.Status
	apply(&ce.item)
	m.closed[itemID] = ce
	after := ce.item
	m.mu.Unlock()
	m.noteTransition(itemID, ce.queueID, before, after.Status, after.StaffID)
	return nil
}

func (m *Manager) noteTransition(itemID, queueID string, from, to model.ItemStatus, staffID string) {
	if from == to {
		return
	}
	transitionsTotal.WithLabelValues(to.String()).Inc()
	if m.bus != nil {
		m.bus.Publish(events.StateChangedEvent{
			ItemID:  itemID,
			QueueID: queueID,
			From:    from,
			To:      to,
			StaffID: staffID,
			At:      m.clock.Now(),
		})
	}
	if m.sink != nil {
		if tr, ok := m.sink.(metrics.TransitionRecorder); ok {
			if err := tr.RecordTransition(metrics.TransitionRecord{
				QueueID: queueID,
				ItemID:  itemID,
				From:    from.String(),
				To:      to.String(),
				Time:    m.clock.Now(),
			}); err != nil && m.log != nil {
				m.log.Errorf("transition metrics error: %v", err)
			}
		}
	}
}

// ByOrderItem implements lifecycle.Store for cancellation cascades.
func (m *Manager) ByOrderItem(orderItemID string) []model.DispatchItem {
	m.mu.RLock()
	ids := append([]string(nil), m.orderItems[orderItemID]...)
	m.mu.RUnlock()
	out := make([]model.DispatchItem, 0, len(ids))
	for _, id := range ids {
		if item, ok := m.Get(id); ok {
			out = append(out, item)
		}
	}
	return out
}

// Requeue implements lifecycle.Requeuer: a recalled item re-enters its
// queue with the recall boost and forces an immediate rebalance.
func (m *Manager) Requeue(item model.DispatchItem, boost float64) {
	var order model.OrderItem
	var queueID string

	if q, ok := m.queueOf(item.ID); ok {
		// Recalled from the line: re-enqueue the entry as the transition
		// left it, not the caller's pre-update copy, so the recall reason
		// and timestamp survive the requeue.
		for _, e := range q.Snapshot() {
			if e.Item.ID == item.ID {
				item = e.Item
				order = e.Order
				break
			}
		}
		queueID = q.ID()
		q.Remove(item.ID)
		m.forgetQueued(item)
	} else {
		// Recalled after completion: restore from the closed set.
		m.mu.Lock()
		ce, ok := m.closed[item.ID]
		if !ok {
			m.mu.Unlock()
			return
		}
		delete(m.closed, item.ID)
		m.mu.Unlock()
		order = ce.order
		queueID = ce.queueID
		item = ce.item
	}

	if cfg, ok := m.configs[queueID]; ok && cfg.RecallBoost != 0 {
		boost = cfg.RecallBoost
	}
	m.enqueue(item, order, boost, "recall")
	if rb, ok := m.rebalancers[queueID]; ok {
		rb.Trigger()
	}
}

// Release implements lifecycle.Requeuer: completed and cancelled items
// leave the ordering but stay retrievable, and their station slot opens
// for held items.
func (m *Manager) Release(item model.DispatchItem) {
	q, ok := m.queueOf(item.ID)
	if !ok {
		return
	}
	// Retain the entry as the closing transition left it; the caller's
	// copy predates the update and lacks the completion fields.
	var order model.OrderItem
	for _, e := range q.Snapshot() {
		if e.Item.ID == item.ID {
			item = e.Item
			order = e.Order
			break
		}
	}
	q.Remove(item.ID)
	m.forgetQueued(item)
	m.mu.Lock()
	m.closed[item.ID] = closedEntry{item: item, order: order, queueID: q.ID()}
	m.mu.Unlock()
	if m.bus != nil {
		m.bus.Publish(events.CapacityFreedEvent{StationID: q.ID()})
	}
}

func (m *Manager) queueOf(itemID string) (*queue.Queue, bool) {
	m.mu.RLock()
	qid, ok := m.itemQueue[itemID]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	q, ok := m.queues[qid]
	return q, ok
}

// forgetQueued drops the queue index entry but keeps the order index so
// cancel cascades still see soft-closed items.
func (m *Manager) forgetQueued(item model.DispatchItem) {
	m.mu.Lock()
	delete(m.itemQueue, item.ID)
	m.mu.Unlock()
}
