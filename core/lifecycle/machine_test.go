package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/expeditorhq/expeditor/core/model"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// memStore is an in-memory Store with optimistic concurrency, mirroring
// the queue-backed store the manager provides.
type memStore struct {
	items map[string]*model.DispatchItem
}

func newMemStore(items ...model.DispatchItem) *memStore {
	s := &memStore{items: make(map[string]*model.DispatchItem)}
	for i := range items {
		item := items[i]
		s.items[item.ID] = &item
	}
	return s
}

func (s *memStore) Get(id string) (model.DispatchItem, bool) {
	item, ok := s.items[id]
	if !ok {
		return model.DispatchItem{}, false
	}
	return *item, true
}

func (s *memStore) Update(id string, expect model.ItemStatus, apply func(*model.DispatchItem)) error {
	item, ok := s.items[id]
	if !ok {
		return &ErrNotFound{ItemID: id}
	}
	if item.Status != expect {
		return &TransitionError{ItemID: id, From: item.Status, Operation: "update", Stale: true}
	}
	apply(item)
	return nil
}

func (s *memStore) ByOrderItem(orderItemID string) []model.DispatchItem {
	var out []model.DispatchItem
	for _, item := range s.items {
		if item.OrderItemID == orderItemID {
			out = append(out, *item)
		}
	}
	return out
}

type recordQueue struct {
	requeued []model.DispatchItem
	boosts   []float64
	released []model.DispatchItem
}

func (q *recordQueue) Requeue(item model.DispatchItem, boost float64) {
	q.requeued = append(q.requeued, item)
	q.boosts = append(q.boosts, boost)
}

func (q *recordQueue) Release(item model.DispatchItem) {
	q.released = append(q.released, item)
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func pendingItem(id string) model.DispatchItem {
	return model.DispatchItem{ID: id, OrderItemID: "oi-1", StationID: "grill-1", Status: model.StatusPending, ReceivedAt: testNow}
}

func newTestMachine(store Store) (*Machine, *recordQueue, *fakeClock) {
	q := &recordQueue{}
	clock := &fakeClock{now: testNow}
	return NewMachine(store, q, clock, nil), q, clock
}

func TestAcknowledgeIdempotent(t *testing.T) {
	store := newMemStore(pendingItem("d1"))
	m, _, clock := newTestMachine(store)

	first, err := m.Acknowledge("d1")
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	clock.Advance(time.Minute)
	second, err := m.Acknowledge("d1")
	if err != nil {
		t.Fatalf("second acknowledge: %v", err)
	}
	if !second.Equal(first) {
		t.Fatalf("second ack must return the original timestamp: %v vs %v", second, first)
	}
	item, _ := store.Get("d1")
	if item.Status != model.StatusAcknowledged {
		t.Fatalf("status %v", item.Status)
	}
}

func TestStartFromPendingOrAcknowledged(t *testing.T) {
	store := newMemStore(pendingItem("d1"), pendingItem("d2"))
	m, _, _ := newTestMachine(store)

	if err := m.Start("d1", "alex"); err != nil {
		t.Fatalf("start from pending: %v", err)
	}
	if _, err := m.Acknowledge("d2"); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if err := m.Start("d2", "sam"); err != nil {
		t.Fatalf("start from acknowledged: %v", err)
	}
	item, _ := store.Get("d1")
	if item.Status != model.StatusInProgress || item.StaffID != "alex" || item.StartedAt.IsZero() {
		t.Fatalf("start state wrong: %+v", item)
	}
}

func TestInvalidTransitions(t *testing.T) {
	store := newMemStore(pendingItem("d1"))
	m, _, _ := newTestMachine(store)

	// ready requires in-progress
	if err := m.Ready("d1"); err == nil {
		t.Fatalf("ready from pending should fail")
	}
	// complete requires in-progress or ready
	err := m.Complete("d1", "")
	var te *TransitionError
	if !errors.As(err, &te) || te.From != model.StatusPending {
		t.Fatalf("expected transition error, got %v", err)
	}
	// recall requires work to have started
	if err := m.Recall("d1", "burnt"); err == nil {
		t.Fatalf("recall from pending should fail")
	}
}

func TestCompleteReleasesQueueSlot(t *testing.T) {
	store := newMemStore(pendingItem("d1"))
	m, q, _ := newTestMachine(store)
	if err := m.Start("d1", "alex"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Ready("d1"); err != nil {
		t.Fatalf("ready: %v", err)
	}
	if err := m.Complete("d1", "alex"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(q.released) != 1 || q.released[0].ID != "d1" {
		t.Fatalf("queue slot not released: %+v", q.released)
	}
	item, _ := store.Get("d1")
	if item.Status != model.StatusCompleted || item.CompletedAt.IsZero() {
		t.Fatalf("complete state wrong: %+v", item)
	}
}

func TestRecallFromCompletedRequeuesWithBoost(t *testing.T) {
	store := newMemStore(pendingItem("d1"))
	m, q, _ := newTestMachine(store)
	if err := m.Start("d1", "alex"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Complete("d1", "alex"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := m.Recall("d1", "cold plate"); err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(q.requeued) != 1 || q.boosts[0] != m.RecallBoost {
		t.Fatalf("recall did not requeue with boost: %+v %+v", q.requeued, q.boosts)
	}
	item, _ := store.Get("d1")
	if item.Status != model.StatusRecalled || item.RecallCount != 1 || item.RecallReason != "cold plate" {
		t.Fatalf("recall state wrong: %+v", item)
	}
}

func TestRecallCountMonotonic(t *testing.T) {
	store := newMemStore(pendingItem("d1"))
	m, _, _ := newTestMachine(store)
	_ = m.Start("d1", "alex")
	for i := 1; i <= 3; i++ {
		if err := m.Recall("d1", "again"); err != nil {
			t.Fatalf("recall %d: %v", i, err)
		}
		item, _ := store.Get("d1")
		if item.RecallCount != i {
			t.Fatalf("recall count %d after %d recalls", item.RecallCount, i)
		}
		// back to work for the next round
		if err := m.Start("d1", "alex"); err == nil {
			t.Fatalf("start from recalled without requeue semantics should fail")
		}
		store.items["d1"].Status = model.StatusInProgress
	}
}

func TestCancelTerminalRejected(t *testing.T) {
	store := newMemStore(pendingItem("d1"))
	m, _, _ := newTestMachine(store)
	_ = m.Start("d1", "alex")
	_ = m.Complete("d1", "alex")
	err := m.Cancel("d1")
	var te *TransitionError
	if !errors.As(err, &te) || te.From != model.StatusCompleted {
		t.Fatalf("expected transition error from completed, got %v", err)
	}
}

func TestCancelOrderCascade(t *testing.T) {
	a := pendingItem("d1")
	b := pendingItem("d2")
	c := pendingItem("d3")
	store := newMemStore(a, b, c)
	m, q, _ := newTestMachine(store)

	// One item already completed: the cascade leaves it untouched.
	_ = m.Start("d3", "alex")
	_ = m.Complete("d3", "alex")
	released := len(q.released)

	if err := m.CancelOrder("oi-1"); err != nil {
		t.Fatalf("cancel order: %v", err)
	}
	for _, id := range []string{"d1", "d2"} {
		item, _ := store.Get(id)
		if item.Status != model.StatusCancelled {
			t.Fatalf("item %s not cancelled: %v", id, item.Status)
		}
	}
	item, _ := store.Get("d3")
	if item.Status != model.StatusCompleted {
		t.Fatalf("completed item must survive the cascade: %v", item.Status)
	}
	if len(q.released) != released+2 {
		t.Fatalf("cancelled items must free their slots")
	}
}

func TestCancelOrderUnknown(t *testing.T) {
	m, _, _ := newTestMachine(newMemStore())
	err := m.CancelOrder("ghost")
	var nf *ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUnknownItem(t *testing.T) {
	m, _, _ := newTestMachine(newMemStore())
	if _, err := m.Acknowledge("ghost"); err == nil {
		t.Fatalf("expected error for unknown item")
	}
	var nf *ErrNotFound
	if err := m.Start("ghost", ""); !errors.As(err, &nf) {
		t.Fatalf("expected not found, got %v", err)
	}
}
