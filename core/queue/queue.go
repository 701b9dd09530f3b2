package queue

import (
	"sort"
	"sync"

	"github.com/expeditorhq/expeditor/core/lifecycle"
	"github.com/expeditorhq/expeditor/core/model"
	"github.com/expeditorhq/expeditor/core/priority"
)

// Entry pairs a dispatch item with its live score and originating order.
type Entry struct {
	Item  model.DispatchItem
	Order model.OrderItem
	Score priority.ItemScore
}

// Queue holds the ordered dispatch items of one station. All ordering
// mutations go through the queue's lock, making each queue single-writer;
// different stations rebalance concurrently without contention. Readers
// get copied snapshots.
type Queue struct {
	id      string
	station model.Station

	mu      sync.RWMutex
	entries []*Entry
	byID    map[string]*Entry
}

// New creates an empty queue for the station.
func New(station model.Station) *Queue {
	return &Queue{id: station.ID, station: station, byID: make(map[string]*Entry)}
}

// ID returns the queue identifier (the station id).
func (q *Queue) ID() string { return q.id }

// Station returns the owning station definition.
func (q *Queue) Station() model.Station { return q.station }

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries)
}

// ActiveItems counts entries that still occupy station capacity.
func (q *Queue) ActiveItems() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	n := 0
	for _, e := range q.entries {
		if e.Item.Status.Active() {
			n++
		}
	}
	return n
}

// Enqueue inserts the item at its deterministic position (total desc,
// received_at asc, id asc) and returns the zero-based position.
func (q *Queue) Enqueue(item model.DispatchItem, order model.OrderItem, score priority.ItemScore) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := &Entry{Item: item, Order: order, Score: score}
	pos := sort.Search(len(q.entries), func(i int) bool {
		return priority.Less(ranked(e), ranked(q.entries[i]))
	})
	q.entries = append(q.entries, nil)
	copy(q.entries[pos+1:], q.entries[pos:])
	q.entries[pos] = e
	q.byID[item.ID] = e
	return pos
}

func ranked(e *Entry) priority.Ranked {
	return priority.Ranked{ItemID: e.Item.ID, Total: e.Score.TotalScore, ReceivedAt: e.Item.ReceivedAt}
}

// Remove deletes the entry, freeing its position.
func (q *Queue) Remove(itemID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeLocked(itemID)
}

func (q *Queue) removeLocked(itemID string) {
	e, ok := q.byID[itemID]
	if !ok {
		return
	}
	delete(q.byID, itemID)
	for i, cur := range q.entries {
		if cur == e {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return
		}
	}
}

// Get returns a copy of the entry's dispatch item.
func (q *Queue) Get(itemID string) (model.DispatchItem, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	e, ok := q.byID[itemID]
	if !ok {
		return model.DispatchItem{}, false
	}
	return e.Item, true
}

// Update applies the mutation only while the item still has the expected
// status, implementing the optimistic concurrency contract of the
// lifecycle store.
func (q *Queue) Update(itemID string, expect model.ItemStatus, apply func(*model.DispatchItem)) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.byID[itemID]
	if !ok {
		return &lifecycle.ErrNotFound{ItemID: itemID}
	}
	if e.Item.Status != expect {
		return &lifecycle.TransitionError{ItemID: itemID, From: e.Item.Status, Operation: "update", Stale: true}
	}
	apply(&e.Item)
	return nil
}

// Position returns the zero-based position of the item.
func (q *Queue) Position(itemID string) (int, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	e, ok := q.byID[itemID]
	if !ok {
		return 0, false
	}
	for i, cur := range q.entries {
		if cur == e {
			return i, true
		}
	}
	return 0, false
}

// Snapshot returns copies of all entries in queue order. Any number of
// display connections may snapshot concurrently.
func (q *Queue) Snapshot() []Entry {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]Entry, len(q.entries))
	for i, e := range q.entries {
		out[i] = *e
	}
	return out
}

// SetScore replaces the live score of the item without reordering; the
// rebalancer applies ordering separately.
func (q *Queue) SetScore(itemID string, score priority.ItemScore) {
	q.mu.Lock()
	if e, ok := q.byID[itemID]; ok {
		e.Score = score
	}
	q.mu.Unlock()
}

// applyOrder rearranges entries to the given id order. Ids not present are
// ignored; entries missing from the order keep their relative tail order.
func (q *Queue) applyOrder(ids []string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	pos := make(map[string]int, len(ids))
	for i, id := range ids {
		pos[id] = i
	}
	sort.SliceStable(q.entries, func(i, j int) bool {
		pi, iok := pos[q.entries[i].Item.ID]
		pj, jok := pos[q.entries[j].Item.ID]
		if iok && jok {
			return pi < pj
		}
		return iok && !jok
	})
}
