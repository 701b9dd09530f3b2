package routing

import (
	"sync"
	"time"

	"github.com/expeditorhq/expeditor/core/model"
)

type heldItem struct {
	item   model.OrderItem
	heldAt time.Time
}

// HoldingList parks order items that could not be routed. Items are
// retried when station capacity frees up or on a timer.
type HoldingList struct {
	mu    sync.Mutex
	items []heldItem
}

// NewHoldingList creates an empty holding list.
func NewHoldingList() *HoldingList { return &HoldingList{} }

// Add parks an order item.
func (h *HoldingList) Add(item model.OrderItem, now time.Time) {
	h.mu.Lock()
	h.items = append(h.items, heldItem{item: item, heldAt: now})
	h.mu.Unlock()
}

// Len returns the number of parked items.
func (h *HoldingList) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.items)
}

// Drain removes and returns all parked items in arrival order. Items that
// still cannot be routed should be re-added by the caller.
func (h *HoldingList) Drain() []model.OrderItem {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]model.OrderItem, len(h.items))
	for i, hi := range h.items {
		out[i] = hi.item
	}
	h.items = h.items[:0]
	return out
}

// Snapshot returns the parked items without removing them, for operator
// surfaces.
func (h *HoldingList) Snapshot() []model.OrderItem {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]model.OrderItem, len(h.items))
	for i, hi := range h.items {
		out[i] = hi.item
	}
	return out
}
