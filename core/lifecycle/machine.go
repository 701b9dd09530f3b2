package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/expeditorhq/expeditor/core/logger"
	"github.com/expeditorhq/expeditor/core/model"
)

// TransitionError reports a rejected state change. Stale marks optimistic
// concurrency conflicts: the status moved between read and write and the
// caller should retry.
type TransitionError struct {
	ItemID    string
	From      model.ItemStatus
	Operation string
	Stale     bool
}

func (e *TransitionError) Error() string {
	if e.Stale {
		return fmt.Sprintf("lifecycle: %s on item %s rejected, status changed concurrently (now %s)", e.Operation, e.ItemID, e.From)
	}
	return fmt.Sprintf("lifecycle: cannot %s item %s from %s", e.Operation, e.ItemID, e.From)
}

// ErrNotFound is returned for unknown item ids.
type ErrNotFound struct{ ItemID string }

func (e *ErrNotFound) Error() string { return fmt.Sprintf("lifecycle: unknown item %s", e.ItemID) }

// Store gives the machine access to live dispatch items. Update applies
// the mutation only while the item still has the expected status and
// returns a stale TransitionError otherwise.
type Store interface {
	Get(id string) (model.DispatchItem, bool)
	Update(id string, expect model.ItemStatus, apply func(*model.DispatchItem)) error
	ByOrderItem(orderItemID string) []model.DispatchItem
}

// Requeuer re-enters recalled items into their station queue with a
// priority boost and removes closed items.
type Requeuer interface {
	Requeue(item model.DispatchItem, boost float64)
	Release(item model.DispatchItem)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Machine governs per-station item lifecycles. Transitions are optimistic:
// the expected status is re-checked under the store's lock and concurrent
// changes reject the call instead of blocking.
type Machine struct {
	store Store
	queue Requeuer
	clock Clock
	log   logger.Logger

	// RecallBoost is the additive score boost applied when a recalled
	// item re-enters its queue.
	RecallBoost float64
}

// NewMachine creates a lifecycle machine. A nil clock uses the wall clock.
func NewMachine(store Store, queue Requeuer, clock Clock, log logger.Logger) *Machine {
	if clock == nil {
		clock = systemClock{}
	}
	return &Machine{store: store, queue: queue, clock: clock, log: log, RecallBoost: 10}
}

// Acknowledge moves PENDING to ACKNOWLEDGED. Acknowledging an already
// acknowledged item is a no-op returning the original timestamp.
func (m *Machine) Acknowledge(itemID string) (time.Time, error) {
	item, ok := m.store.Get(itemID)
	if !ok {
		return time.Time{}, &ErrNotFound{ItemID: itemID}
	}
	if !item.AcknowledgedAt.IsZero() {
		return item.AcknowledgedAt, nil
	}
	if item.Status != model.StatusPending {
		return time.Time{}, &TransitionError{ItemID: itemID, From: item.Status, Operation: "acknowledge"}
	}
	now := m.clock.Now()
	err := m.store.Update(itemID, model.StatusPending, func(d *model.DispatchItem) {
		d.Status = model.StatusAcknowledged
		d.AcknowledgedAt = now
	})
	if err != nil {
		return time.Time{}, err
	}
	return now, nil
}

// Start moves PENDING or ACKNOWLEDGED to IN_PROGRESS and attributes the
// work to the staff member.
func (m *Machine) Start(itemID, staffID string) error {
	item, ok := m.store.Get(itemID)
	if !ok {
		return &ErrNotFound{ItemID: itemID}
	}
	if item.Status != model.StatusPending && item.Status != model.StatusAcknowledged {
		return &TransitionError{ItemID: itemID, From: item.Status, Operation: "start"}
	}
	now := m.clock.Now()
	return m.store.Update(itemID, item.Status, func(d *model.DispatchItem) {
		d.Status = model.StatusInProgress
		d.StartedAt = now
		d.StaffID = staffID
	})
}

// Ready marks an in-progress item as plated and waiting for pickup.
func (m *Machine) Ready(itemID string) error {
	item, ok := m.store.Get(itemID)
	if !ok {
		return &ErrNotFound{ItemID: itemID}
	}
	if item.Status != model.StatusInProgress {
		return &TransitionError{ItemID: itemID, From: item.Status, Operation: "ready"}
	}
	return m.store.Update(itemID, model.StatusInProgress, func(d *model.DispatchItem) {
		d.Status = model.StatusReady
	})
}

// Complete moves IN_PROGRESS or READY to COMPLETED and frees the item's
// queue slot.
func (m *Machine) Complete(itemID, staffID string) error {
	item, ok := m.store.Get(itemID)
	if !ok {
		return &ErrNotFound{ItemID: itemID}
	}
	if item.Status != model.StatusInProgress && item.Status != model.StatusReady {
		return &TransitionError{ItemID: itemID, From: item.Status, Operation: "complete"}
	}
	now := m.clock.Now()
	err := m.store.Update(itemID, item.Status, func(d *model.DispatchItem) {
		d.Status = model.StatusCompleted
		d.CompletedAt = now
		if staffID != "" {
			d.StaffID = staffID
		}
	})
	if err != nil {
		return err
	}
	if m.queue != nil {
		item.Status = model.StatusCompleted
		m.queue.Release(item)
	}
	return nil
}

// Recall returns an item to the line from IN_PROGRESS, READY or COMPLETED.
// The recall count only ever grows, and the item re-enters its queue with
// the recall boost.
func (m *Machine) Recall(itemID, reason string) error {
	item, ok := m.store.Get(itemID)
	if !ok {
		return &ErrNotFound{ItemID: itemID}
	}
	switch item.Status {
	case model.StatusInProgress, model.StatusReady, model.StatusCompleted:
	default:
		return &TransitionError{ItemID: itemID, From: item.Status, Operation: "recall"}
	}
	now := m.clock.Now()
	err := m.store.Update(itemID, item.Status, func(d *model.DispatchItem) {
		d.Status = model.StatusRecalled
		d.RecallCount++
		d.RecallReason = reason
		d.LastRecalledAt = now
	})
	if err != nil {
		return err
	}
	if m.log != nil {
		m.log.Infof("item %s recalled: %s", itemID, reason)
	}
	if m.queue != nil {
		item.Status = model.StatusRecalled
		item.RecallCount++
		m.queue.Requeue(item, m.RecallBoost)
	}
	return nil
}

// Cancel closes the item from any non-terminal state.
func (m *Machine) Cancel(itemID string) error {
	item, ok := m.store.Get(itemID)
	if !ok {
		return &ErrNotFound{ItemID: itemID}
	}
	if item.Status.IsTerminal() {
		return &TransitionError{ItemID: itemID, From: item.Status, Operation: "cancel"}
	}
	err := m.store.Update(itemID, item.Status, func(d *model.DispatchItem) {
		d.Status = model.StatusCancelled
	})
	if err != nil {
		return err
	}
	if m.queue != nil {
		item.Status = model.StatusCancelled
		m.queue.Release(item)
	}
	return nil
}

// CancelOrder cascades cancellation to every dispatch item of the order.
// Items already terminal are left untouched, so the cascade cannot race
// itself into a partial state.
func (m *Machine) CancelOrder(orderItemID string) error {
	items := m.store.ByOrderItem(orderItemID)
	if len(items) == 0 {
		return &ErrNotFound{ItemID: orderItemID}
	}
	for _, item := range items {
		if item.Status.IsTerminal() {
			continue
		}
		if err := m.Cancel(item.ID); err != nil {
			var te *TransitionError
			if errors.As(err, &te) {
				if te.From.IsTerminal() {
					// Closed concurrently; nothing left to cancel.
					continue
				}
				if te.Stale {
					// Status moved between read and write; retry once.
					if err := m.Cancel(item.ID); err != nil {
						return err
					}
					continue
				}
			}
			return err
		}
	}
	return nil
}
