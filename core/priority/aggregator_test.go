package priority

import (
	"sort"
	"testing"
	"time"

	"github.com/expeditorhq/expeditor/core/rules"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func f64(v float64) *float64 { return &v }

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func waitRule(weight float64) rules.ScoringRule {
	return rules.ScoringRule{ID: "wait", Type: rules.RuleWaitTime, MinScore: 0, MaxScore: 100, DefaultWeight: weight}
}

func valueRule(weight float64) rules.ScoringRule {
	return rules.ScoringRule{ID: "value", Type: rules.RuleOrderValue, MinScore: 0, MaxScore: 100, DefaultWeight: weight}
}

func TestScoreWeightedSum(t *testing.T) {
	profile := Profile{
		ID: "p", MaxTotalScore: 1000,
		Rules: []ProfileRule{
			{Rule: waitRule(2), Active: true},
			{Rule: valueRule(1), Active: true},
		},
	}
	a := NewAggregator(nil, &fakeClock{now: testNow}, nil)
	ctx := rules.Context{
		Now:        testNow,
		ReceivedAt: testNow.Add(-15 * time.Minute), // wait scores 50
		OrderValue: f64(100),                       // value scores 50
	}
	score := a.Score(profile, "d1", ctx, false)
	if score.BaseScore != 150 { // 50*2 + 50*1
		t.Fatalf("expected 150 got %v", score.BaseScore)
	}
	if len(score.Components) != 2 {
		t.Fatalf("expected 2 components got %d", len(score.Components))
	}
	for _, c := range score.Components {
		if c.Fallback {
			t.Fatalf("unexpected fallback on %s", c.RuleID)
		}
	}
}

func TestScoreWeightedAverage(t *testing.T) {
	profile := Profile{
		ID: "p", Aggregation: WeightedAverage, MaxTotalScore: 100,
		Rules: []ProfileRule{
			{Rule: waitRule(3), Active: true},
			{Rule: valueRule(1), Active: true},
		},
	}
	a := NewAggregator(nil, &fakeClock{now: testNow}, nil)
	ctx := rules.Context{
		Now:        testNow,
		ReceivedAt: testNow.Add(-30 * time.Minute), // wait scores 100
		OrderValue: f64(0),                         // value scores 0
	}
	score := a.Score(profile, "d1", ctx, false)
	if score.BaseScore != 75 { // (100*3 + 0*1) / 4
		t.Fatalf("expected 75 got %v", score.BaseScore)
	}
}

func TestScoreNormalizeTotal(t *testing.T) {
	profile := Profile{
		ID: "p", MinTotalScore: 0, MaxTotalScore: 100, NormalizeTotal: true,
		Rules: []ProfileRule{
			{Rule: waitRule(2), Active: true},
			{Rule: valueRule(2), Active: true},
		},
	}
	a := NewAggregator(nil, &fakeClock{now: testNow}, nil)
	ctx := rules.Context{
		Now:        testNow,
		ReceivedAt: testNow.Add(-30 * time.Minute), // wait 100
		OrderValue: f64(200),                       // value 100
	}
	score := a.Score(profile, "d1", ctx, false)
	// Both rules saturated: the rescaled total hits the upper bound.
	if score.TotalScore != 100 {
		t.Fatalf("expected 100 got %v", score.TotalScore)
	}
}

func TestScoreInactiveRulesSkipped(t *testing.T) {
	profile := Profile{
		ID: "p", MaxTotalScore: 1000,
		Rules: []ProfileRule{
			{Rule: waitRule(1), Active: true},
			{Rule: valueRule(5), Active: false},
		},
	}
	a := NewAggregator(nil, &fakeClock{now: testNow}, nil)
	ctx := rules.Context{Now: testNow, ReceivedAt: testNow.Add(-15 * time.Minute), OrderValue: f64(100)}
	score := a.Score(profile, "d1", ctx, false)
	if len(score.Components) != 1 || score.Components[0].RuleID != "wait" {
		t.Fatalf("inactive rule contributed: %+v", score.Components)
	}
}

func TestScoreWeightOverrideAndConfigMerge(t *testing.T) {
	rule := rules.ScoringRule{
		ID: "delivery", Type: rules.RuleDeliveryTime, MinScore: 0, MaxScore: 100,
		DefaultWeight: 1,
		Config:        map[string]float64{"horizon_minutes": 60},
	}
	profile := Profile{
		ID: "p", MaxTotalScore: 1000,
		Rules: []ProfileRule{{
			Rule:           rule,
			WeightOverride: f64(4),
			ConfigOverride: map[string]float64{"horizon_minutes": 120},
			Active:         true,
		}},
	}
	a := NewAggregator(nil, &fakeClock{now: testNow}, nil)
	deadline := testNow.Add(60 * time.Minute)
	ctx := rules.Context{Now: testNow, ReceivedAt: testNow, DeliveryDeadline: &deadline}
	score := a.Score(profile, "d1", ctx, false)
	// 60 of the overridden 120-minute horizon remain: raw 50, weight 4.
	if score.BaseScore != 200 {
		t.Fatalf("expected 200 got %v", score.BaseScore)
	}
	// The rule-level config must stay untouched.
	if rule.Config["horizon_minutes"] != 60 {
		t.Fatalf("rule config mutated")
	}
}

func TestScoreBoost(t *testing.T) {
	profile := Profile{
		ID: "p", MaxTotalScore: 1000, CacheTTL: time.Minute,
		Rules: []ProfileRule{{
			Rule:   waitRule(1),
			Active: true,
			Boost: &BoostSpec{
				When:     rules.Condition{Field: rules.FieldRush, Op: rules.OpEq, Value: 1},
				Amount:   25,
				Duration: 2 * time.Minute,
				Reason:   "rush",
			},
		}},
	}
	clock := &fakeClock{now: testNow}
	cache := NewMemoryCache(clock)
	a := NewAggregator(cache, clock, nil)

	ctx := rules.Context{Now: testNow, ReceivedAt: testNow.Add(-15 * time.Minute), Rush: true}
	score := a.Score(profile, "d1", ctx, false)
	if !score.Boosted || score.BoostScore != 25 || score.BoostReason != "rush" {
		t.Fatalf("boost not applied: %+v", score)
	}
	if score.TotalScore != 75 {
		t.Fatalf("expected 75 got %v", score.TotalScore)
	}
	if !score.BoostExpiresAt.Equal(testNow.Add(2 * time.Minute)) {
		t.Fatalf("boost expiry %v", score.BoostExpiresAt)
	}

	// Within TTL and boost window the cache serves.
	clock.Advance(30 * time.Second)
	again := a.Score(profile, "d1", ctx, false)
	if !again.CacheHit {
		t.Fatalf("expected cache hit")
	}

	// After the boost expires the cached total is stale and recomputed.
	clock.Advance(3 * time.Minute)
	cache.Set("d1", score, time.Hour)
	recomputed := a.Score(profile, "d1", rules.Context{Now: clock.Now(), ReceivedAt: testNow.Add(-15 * time.Minute)}, false)
	if recomputed.CacheHit {
		t.Fatalf("expired boost should force a recompute")
	}
	if recomputed.Boosted {
		t.Fatalf("recomputed score still boosted")
	}
}

func TestScoreForceBypassesCache(t *testing.T) {
	profile := Profile{
		ID: "p", MaxTotalScore: 1000, CacheTTL: time.Minute,
		Rules: []ProfileRule{{Rule: waitRule(1), Active: true}},
	}
	clock := &fakeClock{now: testNow}
	cache := NewMemoryCache(clock)
	a := NewAggregator(cache, clock, nil)
	ctx := rules.Context{Now: testNow, ReceivedAt: testNow.Add(-15 * time.Minute)}

	first := a.Score(profile, "d1", ctx, false)
	forced := a.Score(profile, "d1", ctx, true)
	if forced.CacheHit {
		t.Fatalf("force should bypass the cache")
	}
	if forced.BaseScore != first.BaseScore {
		t.Fatalf("deterministic input should score identically")
	}
}

func TestLessDeterministicOrder(t *testing.T) {
	early := testNow.Add(-10 * time.Minute)
	late := testNow.Add(-5 * time.Minute)
	ranked := []Ranked{
		{ItemID: "c", Total: 50, ReceivedAt: late},
		{ItemID: "b", Total: 50, ReceivedAt: early},
		{ItemID: "a", Total: 50, ReceivedAt: early},
		{ItemID: "d", Total: 90, ReceivedAt: late},
	}
	for i := 0; i < 5; i++ {
		shuffled := make([]Ranked, len(ranked))
		copy(shuffled, ranked)
		sort.Slice(shuffled, func(i, j int) bool { return Less(shuffled[i], shuffled[j]) })
		want := []string{"d", "a", "b", "c"}
		for j, id := range want {
			if shuffled[j].ItemID != id {
				t.Fatalf("run %d: position %d is %s, want %s", i, j, shuffled[j].ItemID, id)
			}
		}
	}
}
