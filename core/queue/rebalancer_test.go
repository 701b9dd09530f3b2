package queue

import (
	"context"
	"testing"
	"time"

	"github.com/expeditorhq/expeditor/core/adjustlog"
	"github.com/expeditorhq/expeditor/core/events"
	"github.com/expeditorhq/expeditor/core/model"
	"github.com/expeditorhq/expeditor/core/priority"
	"github.com/expeditorhq/expeditor/core/rules"
	"github.com/expeditorhq/expeditor/internal/eventbus"
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

// stepClock advances on every read, simulating elapsed work inside a tick.
type stepClock struct {
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

func waitProfile() priority.Profile {
	return priority.Profile{
		ID: "p", MaxTotalScore: 100,
		Rules: []priority.ProfileRule{
			{Rule: rules.ScoringRule{ID: "wait", Type: rules.RuleWaitTime, MinScore: 0, MaxScore: 100, DefaultWeight: 1}, Active: true},
		},
	}
}

func waitingOrder(receivedAt time.Time) model.OrderItem {
	return model.OrderItem{ReceivedAt: receivedAt}
}

func newTestRebalancer(t *testing.T, q *Queue, cfg Config, store adjustlog.Store, bus eventbus.EventBus, clock priority.Clock) *Rebalancer {
	t.Helper()
	agg := priority.NewAggregator(nil, &fixedClock{now: testNow}, nil)
	return NewRebalancer(q, waitProfile(), agg, cfg, store, bus, nil, clock, nil)
}

func TestRebalanceReordersAndLogs(t *testing.T) {
	q := New(grillStation())
	store := adjustlog.NewMemoryStore()
	clock := &fixedClock{now: testNow}
	rb := newTestRebalancer(t, q, Config{QueueID: "grill-1", ProfileID: "p"}, store, nil, clock)

	// Stale scores put the freshest item at the head; the wait-time rule
	// will invert the order.
	recvA := testNow.Add(-30 * time.Minute)  // rescores to 100
	recvB := testNow.Add(-15 * time.Minute)  // rescores to 50
	recvC := testNow.Add(-450 * time.Second) // rescores to 25
	q.Enqueue(dispatchItem("c", recvC), waitingOrder(recvC), score(90))
	q.Enqueue(dispatchItem("b", recvB), waitingOrder(recvB), score(50))
	q.Enqueue(dispatchItem("a", recvA), waitingOrder(recvA), score(10))

	res := rb.Rebalance(context.Background())
	if res.Degraded || res.Deferred != 0 {
		t.Fatalf("unexpected degradation: %+v", res)
	}
	// b's recomputed total equals its stale total, so only a and c change.
	if res.Recomputed != 2 {
		t.Fatalf("recomputed %d, want 2", res.Recomputed)
	}
	if res.Moved != 2 {
		t.Fatalf("moved %d, want 2", res.Moved)
	}

	snap := q.Snapshot()
	for i, id := range []string{"a", "b", "c"} {
		if snap[i].Item.ID != id {
			t.Fatalf("position %d: got %s want %s", i, snap[i].Item.ID, id)
		}
	}

	entries, err := store.Query(context.Background(), adjustlog.Query{QueueID: "grill-1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("logged %d adjustments, want 2", len(entries))
	}
	byItem := make(map[string]adjustlog.Entry, len(entries))
	for _, e := range entries {
		if e.Reason != adjustlog.ReasonRebalance || e.Actor != "rebalancer" {
			t.Fatalf("unexpected attribution: %+v", e)
		}
		byItem[e.ItemID] = e
	}
	a := byItem["a"]
	if a.OldPosition != 3 || a.NewPosition != 1 {
		t.Fatalf("item a moved %d -> %d, want 3 -> 1", a.OldPosition, a.NewPosition)
	}
	if a.OldScore != 10 || a.NewScore != 100 {
		t.Fatalf("item a scored %v -> %v", a.OldScore, a.NewScore)
	}
	c := byItem["c"]
	if c.OldPosition != 1 || c.NewPosition != 3 {
		t.Fatalf("item c moved %d -> %d, want 1 -> 3", c.OldPosition, c.NewPosition)
	}
}

func TestRebalanceRepeatIsStable(t *testing.T) {
	q := New(grillStation())
	store := adjustlog.NewMemoryStore()
	clock := &fixedClock{now: testNow}
	rb := newTestRebalancer(t, q, Config{QueueID: "grill-1", ProfileID: "p"}, store, nil, clock)

	recvA := testNow.Add(-30 * time.Minute)
	recvB := testNow.Add(-15 * time.Minute)
	q.Enqueue(dispatchItem("b", recvB), waitingOrder(recvB), score(0))
	q.Enqueue(dispatchItem("a", recvA), waitingOrder(recvA), score(0))

	rb.Rebalance(context.Background())
	first := q.Snapshot()
	entries, _ := store.Query(context.Background(), adjustlog.Query{})
	logged := len(entries)

	res := rb.Rebalance(context.Background())
	if res.Moved != 0 || res.Recomputed != 0 {
		t.Fatalf("second identical tick changed the queue: %+v", res)
	}
	second := q.Snapshot()
	for i := range first {
		if first[i].Item.ID != second[i].Item.ID {
			t.Fatalf("order changed between identical ticks")
		}
	}
	entries, _ = store.Query(context.Background(), adjustlog.Query{})
	if len(entries) != logged {
		t.Fatalf("second identical tick appended %d entries", len(entries)-logged)
	}
}

func TestRebalanceTagsBoostExpiry(t *testing.T) {
	q := New(grillStation())
	store := adjustlog.NewMemoryStore()
	clock := &fixedClock{now: testNow}
	rb := newTestRebalancer(t, q, Config{QueueID: "grill-1", ProfileID: "p"}, store, nil, clock)

	// The boost lapsed a minute ago, forcing a rescore down to the plain
	// wait-time total.
	recv := testNow.Add(-15 * time.Minute)
	sc := score(80)
	sc.Boosted = true
	sc.BoostExpiresAt = testNow.Add(-time.Minute)
	q.Enqueue(dispatchItem("a", recv), waitingOrder(recv), sc)

	res := rb.Rebalance(context.Background())
	if res.Recomputed != 1 {
		t.Fatalf("recomputed %d, want 1", res.Recomputed)
	}
	entries, err := store.Query(context.Background(), adjustlog.Query{Reason: adjustlog.ReasonBoostExpired})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(entries) != 1 || entries[0].ItemID != "a" {
		t.Fatalf("boost-expiry entries: %+v", entries)
	}
	if entries[0].OldScore != 80 || entries[0].NewScore != 50 {
		t.Fatalf("scores %v -> %v", entries[0].OldScore, entries[0].NewScore)
	}
}

func TestRebalanceMaxPositionChange(t *testing.T) {
	q := New(grillStation())
	clock := &fixedClock{now: testNow}
	rb := newTestRebalancer(t, q, Config{QueueID: "grill-1", ProfileID: "p", MaxPositionChange: 1}, nil, nil, clock)

	recv := []time.Duration{-450 * time.Second, -10 * time.Minute, -15 * time.Minute, -30 * time.Minute}
	ids := []string{"w", "x", "y", "z"}
	for i, id := range ids {
		at := testNow.Add(recv[i])
		q.Enqueue(dispatchItem(id, at), waitingOrder(at), score(float64(100-i)))
	}

	rb.Rebalance(context.Background())

	// z deserves the head but may only climb one position per tick.
	if pos, _ := q.Position("z"); pos != 2 {
		t.Fatalf("z at %d after first tick, want 2", pos)
	}
	rb.Rebalance(context.Background())
	if pos, _ := q.Position("z"); pos != 1 {
		t.Fatalf("z at %d after second tick, want 1", pos)
	}
	rb.Rebalance(context.Background())
	if pos, _ := q.Position("z"); pos != 0 {
		t.Fatalf("z at %d after third tick, want 0", pos)
	}
}

func TestRebalanceBudgetDefersTail(t *testing.T) {
	q := New(grillStation())
	clock := &stepClock{now: testNow, step: 10 * time.Millisecond}
	cfg := Config{QueueID: "grill-1", ProfileID: "p", TickBudget: 25 * time.Millisecond}
	bus := eventbus.New()
	sub := bus.Subscribe()
	rb := newTestRebalancer(t, q, cfg, nil, bus, clock)

	recvA := testNow.Add(-30 * time.Minute)
	recvB := testNow.Add(-15 * time.Minute)
	recvC := testNow.Add(-450 * time.Second)
	q.Enqueue(dispatchItem("c", recvC), waitingOrder(recvC), score(90))
	q.Enqueue(dispatchItem("a", recvA), waitingOrder(recvA), score(10))
	q.Enqueue(dispatchItem("b", recvB), waitingOrder(recvB), score(5))

	res := rb.Rebalance(context.Background())
	if !res.Degraded {
		t.Fatalf("expected degraded tick: %+v", res)
	}
	if res.Recomputed != 2 || res.Deferred != 1 {
		t.Fatalf("recomputed %d deferred %d, want 2 and 1", res.Recomputed, res.Deferred)
	}

	// The deferred item keeps its stale score and sorts accordingly.
	snap := q.Snapshot()
	for i, id := range []string{"a", "c", "b"} {
		if snap[i].Item.ID != id {
			t.Fatalf("position %d: got %s want %s", i, snap[i].Item.ID, id)
		}
	}
	if snap[2].Score.TotalScore != 5 {
		t.Fatalf("deferred score recomputed: %v", snap[2].Score.TotalScore)
	}

	select {
	case ev := <-sub:
		re, ok := ev.(events.RebalanceEvent)
		if !ok {
			t.Fatalf("unexpected event %T", ev)
		}
		if !re.Degraded || re.Deferred != 1 {
			t.Fatalf("event mismatch: %+v", re)
		}
	default:
		t.Fatalf("no rebalance event published")
	}
}

func TestNoteArrivalTriggersRebalance(t *testing.T) {
	q := New(grillStation())
	bus := eventbus.New()
	sub := bus.Subscribe()
	cfg := Config{QueueID: "grill-1", ProfileID: "p", Threshold: 0.2}
	rb := newTestRebalancer(t, q, cfg, nil, bus, &fixedClock{now: testNow})

	recv := testNow.Add(-10 * time.Minute)
	q.Enqueue(dispatchItem("a", recv), waitingOrder(recv), score(50))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rb.Run(ctx)

	// Shallow jump stays below the threshold.
	rb.NoteArrival(9, 10)
	// A head insert into a deep queue crosses it.
	rb.NoteArrival(0, 10)

	select {
	case ev := <-sub:
		if _, ok := ev.(events.RebalanceEvent); !ok {
			t.Fatalf("unexpected event %T", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("arrival did not trigger a rebalance")
	}
}

func TestClampMovement(t *testing.T) {
	desired := []priority.Ranked{{ItemID: "c"}, {ItemID: "a"}, {ItemID: "b"}}
	oldPos := map[string]int{"a": 0, "b": 1, "c": 2}

	if got := clampMovement(desired, oldPos, 0); got[0] != "c" || got[1] != "a" || got[2] != "b" {
		t.Fatalf("unbounded clamp reordered to %v", got)
	}
	got := clampMovement(desired, oldPos, 1)
	if got[0] != "a" || got[1] != "c" || got[2] != "b" {
		t.Fatalf("clamped order %v, want [a c b]", got)
	}
}
