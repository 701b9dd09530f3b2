package priority

import (
	"fmt"
	"time"

	"github.com/expeditorhq/expeditor/core/rules"
)

// Aggregation selects how weighted rule scores combine into a total.
type Aggregation int

const (
	WeightedSum Aggregation = iota
	WeightedAverage
)

func (a Aggregation) String() string {
	switch a {
	case WeightedSum:
		return "weighted_sum"
	case WeightedAverage:
		return "weighted_average"
	default:
		return "unknown"
	}
}

// ParseAggregation converts a configuration string to an Aggregation.
func ParseAggregation(s string) (Aggregation, error) {
	switch s {
	case "", "weighted_sum":
		return WeightedSum, nil
	case "weighted_average":
		return WeightedAverage, nil
	default:
		return 0, fmt.Errorf("unknown aggregation %q", s)
	}
}

// BoostSpec is a time-boxed additive adjustment granted while its
// condition holds.
type BoostSpec struct {
	When     rules.Condition
	Amount   float64
	Duration time.Duration
	Reason   string
}

// ProfileRule links a scoring rule into a profile. Overrides win per field:
// a non-nil WeightOverride replaces the rule's DefaultWeight, and
// ConfigOverride entries replace the matching rule Config keys while
// untouched keys keep the rule-level value.
type ProfileRule struct {
	Rule           rules.ScoringRule
	WeightOverride *float64
	ConfigOverride map[string]float64
	Boost          *BoostSpec
	Active         bool
}

// Weight returns the effective weight for this link.
func (pr ProfileRule) Weight() float64 {
	if pr.WeightOverride != nil {
		return *pr.WeightOverride
	}
	return pr.Rule.DefaultWeight
}

// Effective returns the rule with profile-level overrides merged in.
func (pr ProfileRule) Effective() rules.ScoringRule {
	r := pr.Rule
	if len(pr.ConfigOverride) > 0 {
		merged := make(map[string]float64, len(r.Config)+len(pr.ConfigOverride))
		for k, v := range r.Config {
			merged[k] = v
		}
		for k, v := range pr.ConfigOverride {
			merged[k] = v
		}
		r.Config = merged
	}
	return r
}

// Profile is a named, weighted combination of scoring rules defining how
// priority is computed for a queue.
type Profile struct {
	ID             string
	Name           string
	Aggregation    Aggregation
	MinTotalScore  float64
	MaxTotalScore  float64
	NormalizeTotal bool
	CacheTTL       time.Duration
	// RecalcThreshold is the minimum fractional input change that forces
	// a rescore during rebalancing.
	RecalcThreshold float64
	Rules           []ProfileRule
}

// ActiveRules returns the enabled links in profile order.
func (p Profile) ActiveRules() []ProfileRule {
	out := make([]ProfileRule, 0, len(p.Rules))
	for _, pr := range p.Rules {
		if pr.Active {
			out = append(out, pr)
		}
	}
	return out
}

// Validate rejects malformed profiles at configuration time.
func (p Profile) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("profile id is required")
	}
	if p.MinTotalScore > p.MaxTotalScore {
		return fmt.Errorf("profile %s: min_total_score exceeds max_total_score", p.ID)
	}
	for _, pr := range p.Rules {
		if err := pr.Rule.Validate(); err != nil {
			return fmt.Errorf("profile %s: %w", p.ID, err)
		}
		if pr.WeightOverride != nil && *pr.WeightOverride < 0 {
			return fmt.Errorf("profile %s: weight override for rule %s must not be negative", p.ID, pr.Rule.ID)
		}
		if pr.Boost != nil {
			if err := pr.Boost.When.Validate(); err != nil {
				return fmt.Errorf("profile %s: boost for rule %s: %w", p.ID, pr.Rule.ID, err)
			}
			if pr.Boost.Duration <= 0 {
				return fmt.Errorf("profile %s: boost for rule %s needs a positive duration", p.ID, pr.Rule.ID)
			}
		}
	}
	return nil
}

// Clamp bounds a total score to the profile's configured range.
func (p Profile) Clamp(v float64) float64 {
	if v < p.MinTotalScore {
		return p.MinTotalScore
	}
	if v > p.MaxTotalScore {
		return p.MaxTotalScore
	}
	return v
}
