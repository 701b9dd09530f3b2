package config

import (
	"fmt"
	"time"

	"github.com/expeditorhq/expeditor/core/priority"
	"github.com/expeditorhq/expeditor/core/rules"
)

// ScoringRuleConfig declares one scoring rule.
type ScoringRuleConfig struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Type          string             `json:"type"`
	Config        map[string]float64 `json:"config"`
	MinScore      float64            `json:"min_score"`
	MaxScore      float64            `json:"max_score"`
	DefaultWeight float64            `json:"default_weight"`
	Normalization string             `json:"normalization"`
	Stats         *PopulationConfig  `json:"stats"`
}

// PopulationConfig carries distribution statistics for z-score rules.
type PopulationConfig struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

// Build converts the wire form into a rules.ScoringRule.
func (c ScoringRuleConfig) Build() (rules.ScoringRule, error) {
	t, err := rules.ParseRuleType(c.Type)
	if err != nil {
		return rules.ScoringRule{}, fmt.Errorf("rule %s: %w", c.ID, err)
	}
	norm, err := rules.ParseNormalization(c.Normalization)
	if err != nil {
		return rules.ScoringRule{}, fmt.Errorf("rule %s: %w", c.ID, err)
	}
	r := rules.ScoringRule{
		ID:            c.ID,
		Name:          c.Name,
		Type:          t,
		Config:        c.Config,
		MinScore:      c.MinScore,
		MaxScore:      c.MaxScore,
		DefaultWeight: c.DefaultWeight,
		Normalization: norm,
	}
	if c.Stats != nil {
		r.Stats = &rules.Population{Mean: c.Stats.Mean, StdDev: c.Stats.StdDev}
	}
	if err := r.Validate(); err != nil {
		return rules.ScoringRule{}, err
	}
	return r, nil
}

// ProfileRuleConfig links a scoring rule into a profile by id.
type ProfileRuleConfig struct {
	RuleID string             `json:"rule_id"`
	Weight *float64           `json:"weight"`
	Config map[string]float64 `json:"config"`
	Active *bool              `json:"active"`
	Boost  *BoostConfig       `json:"boost"`
}

// BoostConfig declares a conditional time-boxed boost.
type BoostConfig struct {
	When     rules.Condition `json:"when"`
	Amount   float64         `json:"amount"`
	Duration time.Duration   `json:"duration"`
	Reason   string          `json:"reason"`
}

// ProfileConfig declares one priority profile.
type ProfileConfig struct {
	ID              string              `json:"id"`
	Name            string              `json:"name"`
	Aggregation     string              `json:"aggregation"`
	MinTotalScore   float64             `json:"min_total_score"`
	MaxTotalScore   float64             `json:"max_total_score"`
	NormalizeTotal  bool                `json:"normalize_total"`
	CacheTTL        time.Duration       `json:"cache_ttl"`
	RecalcThreshold float64             `json:"recalc_threshold"`
	Rules           []ProfileRuleConfig `json:"rules"`
}

// Build resolves rule references and converts the wire form into a
// priority.Profile. Links are active unless explicitly disabled.
func (c ProfileConfig) Build(index map[string]rules.ScoringRule) (priority.Profile, error) {
	agg, err := priority.ParseAggregation(c.Aggregation)
	if err != nil {
		return priority.Profile{}, fmt.Errorf("profile %s: %w", c.ID, err)
	}
	p := priority.Profile{
		ID:              c.ID,
		Name:            c.Name,
		Aggregation:     agg,
		MinTotalScore:   c.MinTotalScore,
		MaxTotalScore:   c.MaxTotalScore,
		NormalizeTotal:  c.NormalizeTotal,
		CacheTTL:        c.CacheTTL,
		RecalcThreshold: c.RecalcThreshold,
	}
	for _, link := range c.Rules {
		rule, ok := index[link.RuleID]
		if !ok {
			return priority.Profile{}, fmt.Errorf("profile %s: unknown rule %q", c.ID, link.RuleID)
		}
		pr := priority.ProfileRule{
			Rule:           rule,
			WeightOverride: link.Weight,
			ConfigOverride: link.Config,
			Active:         link.Active == nil || *link.Active,
		}
		if link.Boost != nil {
			pr.Boost = &priority.BoostSpec{
				When:     link.Boost.When,
				Amount:   link.Boost.Amount,
				Duration: link.Boost.Duration,
				Reason:   link.Boost.Reason,
			}
		}
		p.Rules = append(p.Rules, pr)
	}
	if err := p.Validate(); err != nil {
		return priority.Profile{}, err
	}
	return p, nil
}
