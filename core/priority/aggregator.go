package priority

import (
	"time"

	"github.com/expeditorhq/expeditor/core/logger"
	"github.com/expeditorhq/expeditor/core/rules"
)

// Component is the contribution of a single rule to a total score.
type Component struct {
	RuleID   string  `json:"rule_id"`
	Raw      float64 `json:"raw"`
	Weight   float64 `json:"weight"`
	Weighted float64 `json:"weighted"`
	Fallback bool    `json:"fallback,omitempty"`
}

// ItemScore is the live score of one dispatch item. It is recomputed and
// superseded in place; history lives in the adjustment log.
type ItemScore struct {
	ItemID         string        `json:"item_id"`
	BaseScore      float64       `json:"base_score"`
	BoostScore     float64       `json:"boost_score"`
	TotalScore     float64       `json:"total_score"`
	Components     []Component   `json:"components"`
	Boosted        bool          `json:"boosted"`
	BoostReason    string        `json:"boost_reason,omitempty"`
	BoostExpiresAt time.Time     `json:"boost_expires_at,omitempty"`
	CalculatedAt   time.Time     `json:"calculated_at"`
	CalcDuration   time.Duration `json:"calc_duration"`
	CacheHit       bool          `json:"-"`
}

// BoostActive reports whether the boost still applies at the given instant.
func (s ItemScore) BoostActive(now time.Time) bool {
	return s.Boosted && now.Before(s.BoostExpiresAt)
}

// Aggregator combines weighted rule scores per profile into item totals.
// Scoring is side-effect-free apart from the cache and may run in parallel
// across items.
type Aggregator struct {
	cache Cache
	clock Clock
	log   logger.Logger
}

// NewAggregator creates an aggregator. A nil cache disables caching.
func NewAggregator(cache Cache, clock Clock, log logger.Logger) *Aggregator {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Aggregator{cache: cache, clock: clock, log: log}
}

// Score computes the item's total priority for the profile. Cached totals
// are reused within the profile's TTL unless force is set.
func (a *Aggregator) Score(profile Profile, itemID string, ctx rules.Context, force bool) ItemScore {
	if a.cache != nil && !force {
		if cached, ok := a.cache.Get(itemID); ok {
			// An expired boost invalidates the cached total.
			if !cached.Boosted || a.clock.Now().Before(cached.BoostExpiresAt) {
				cached.CacheHit = true
				return cached
			}
		}
	}
	score := a.compute(profile, itemID, ctx)
	if a.cache != nil && profile.CacheTTL > 0 {
		a.cache.Set(itemID, score, profile.CacheTTL)
	}
	return score
}

func (a *Aggregator) compute(profile Profile, itemID string, ctx rules.Context) ItemScore {
	start := a.clock.Now()
	active := profile.ActiveRules()
	components := make([]Component, 0, len(active))

	var weightedSum, weightTotal float64
	for _, pr := range active {
		raw, warn := rules.Evaluate(pr.Effective(), ctx)
		if warn != nil && a.log != nil {
			a.log.Warnf("%s", warn)
		}
		w := pr.Weight()
		components = append(components, Component{
			RuleID:   pr.Rule.ID,
			Raw:      raw,
			Weight:   w,
			Weighted: raw * w,
			Fallback: warn != nil,
		})
		weightedSum += raw * w
		weightTotal += w
	}

	base := weightedSum
	if profile.Aggregation == WeightedAverage && weightTotal > 0 {
		base = weightedSum / weightTotal
	}
	if profile.NormalizeTotal {
		base = rescaleTotal(profile, active, base)
	}

	score := ItemScore{
		ItemID:       itemID,
		BaseScore:    base,
		Components:   components,
		CalculatedAt: start,
	}

	for _, pr := range active {
		if pr.Boost == nil {
			continue
		}
		if pr.Boost.When.Eval(ctx) {
			score.BoostScore += pr.Boost.Amount
			score.Boosted = true
			score.BoostReason = pr.Boost.Reason
			exp := start.Add(pr.Boost.Duration)
			if exp.After(score.BoostExpiresAt) {
				score.BoostExpiresAt = exp
			}
		}
	}

	score.TotalScore = profile.Clamp(score.BaseScore + score.BoostScore)
	score.CalcDuration = a.clock.Now().Sub(start)
	return score
}

// rescaleTotal maps the aggregate linearly into the profile's total-score
// bounds using the reachable aggregate range of the active rules.
func rescaleTotal(profile Profile, active []ProfileRule, base float64) float64 {
	var lo, hi, weightTotal float64
	for _, pr := range active {
		w := pr.Weight()
		lo += pr.Rule.MinScore * w
		hi += pr.Rule.MaxScore * w
		weightTotal += w
	}
	if profile.Aggregation == WeightedAverage && weightTotal > 0 {
		lo /= weightTotal
		hi /= weightTotal
	}
	if hi == lo {
		return profile.MinTotalScore
	}
	frac := (base - lo) / (hi - lo)
	return profile.MinTotalScore + frac*(profile.MaxTotalScore-profile.MinTotalScore)
}

// Ranked pairs a score with the tie-break attributes of its item.
type Ranked struct {
	ItemID     string
	Total      float64
	ReceivedAt time.Time
}

// Less imposes the deterministic queue order: higher total first, then
// earlier received_at, then lower item id. Required for reproducible
// ordering across rebalances.
func Less(a, b Ranked) bool {
	if a.Total != b.Total {
		return a.Total > b.Total
	}
	if !a.ReceivedAt.Equal(b.ReceivedAt) {
		return a.ReceivedAt.Before(b.ReceivedAt)
	}
	return a.ItemID < b.ItemID
}
