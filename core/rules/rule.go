package rules

import (
	"fmt"
	"math"
)

// RuleType identifies the scoring dimension a rule evaluates.
type RuleType int

const (
	RuleWaitTime RuleType = iota
	RuleOrderValue
	RuleVIPStatus
	RuleDeliveryTime
	RulePrepComplexity
	RuleLoyalty
	RulePeakHours
	RuleGroupSize
	RuleSpecialNeeds
	RuleCustom
)

func (t RuleType) String() string {
	switch t {
	case RuleWaitTime:
		return "wait_time"
	case RuleOrderValue:
		return "order_value"
	case RuleVIPStatus:
		return "vip_status"
	case RuleDeliveryTime:
		return "delivery_time"
	case RulePrepComplexity:
		return "prep_complexity"
	case RuleLoyalty:
		return "loyalty"
	case RulePeakHours:
		return "peak_hours"
	case RuleGroupSize:
		return "group_size"
	case RuleSpecialNeeds:
		return "special_needs"
	case RuleCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// ParseRuleType converts a configuration string to a RuleType.
func ParseRuleType(s string) (RuleType, error) {
	for t := RuleWaitTime; t <= RuleCustom; t++ {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown rule type %q", s)
}

// NormalizationMethod selects how a raw value is mapped into score bounds.
type NormalizationMethod int

const (
	NormMinMax NormalizationMethod = iota
	NormZScore
	NormNone
)

func (m NormalizationMethod) String() string {
	switch m {
	case NormMinMax:
		return "min_max"
	case NormZScore:
		return "z_score"
	case NormNone:
		return "none"
	default:
		return "unknown"
	}
}

// ParseNormalization converts a configuration string to a method.
func ParseNormalization(s string) (NormalizationMethod, error) {
	switch s {
	case "", "min_max":
		return NormMinMax, nil
	case "z_score":
		return NormZScore, nil
	case "none":
		return NormNone, nil
	default:
		return 0, fmt.Errorf("unknown normalization %q", s)
	}
}

// Population carries distribution statistics required by z-score
// normalization. A rule without statistics falls back to min-max.
type Population struct {
	Mean   float64
	StdDev float64
}

// ScoringRule is an immutable scoring dimension definition. Active profiles
// reference rules by value; changed rules are new versions, never mutated
// in place.
type ScoringRule struct {
	ID            string
	Name          string
	Type          RuleType
	Config        map[string]float64
	MinScore      float64
	MaxScore      float64
	DefaultWeight float64
	Normalization NormalizationMethod
	Stats         *Population
}

// Validate rejects malformed rules at configuration time so the scoring
// hot path never sees them.
func (r ScoringRule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	if r.MinScore > r.MaxScore {
		return fmt.Errorf("rule %s: min_score %.2f exceeds max_score %.2f", r.ID, r.MinScore, r.MaxScore)
	}
	if r.DefaultWeight < 0 {
		return fmt.Errorf("rule %s: weight must not be negative", r.ID)
	}
	return nil
}

// Midpoint is the fallback score used when a required context field is
// missing.
func (r ScoringRule) Midpoint() float64 {
	return (r.MinScore + r.MaxScore) / 2
}

func (r ScoringRule) cfg(key string, def float64) float64 {
	if v, ok := r.Config[key]; ok {
		return v
	}
	return def
}

// Warning reports a non-fatal evaluation fallback. Aggregation proceeds
// with the rule's midpoint value.
type Warning struct {
	RuleID string
	Field  string
}

func (w Warning) String() string {
	return fmt.Sprintf("rule %s: missing context field %s, using midpoint", w.RuleID, w.Field)
}

// Evaluate computes the normalized score of one rule against the item
// context. It is pure and deterministic and always returns a value within
// [MinScore, MaxScore]. A missing required field yields the midpoint and a
// warning instead of an error.
func Evaluate(rule ScoringRule, ctx Context) (float64, *Warning) {
	raw, field, ok := rawValue(rule, ctx)
	if !ok {
		return rule.Midpoint(), &Warning{RuleID: rule.ID, Field: field}
	}
	dmin, dmax := domainBounds(rule)
	return normalize(rule, raw, dmin, dmax), nil
}

// rawValue extracts the rule's underlying measurement from the context.
// The second return names the missing field when ok is false.
func rawValue(rule ScoringRule, ctx Context) (float64, string, bool) {
	switch rule.Type {
	case RuleWaitTime:
		if ctx.ReceivedAt.IsZero() {
			return 0, "received_at", false
		}
		return ctx.WaitSeconds(), "", true
	case RuleOrderValue:
		if ctx.OrderValue == nil {
			return 0, "order_value", false
		}
		return *ctx.OrderValue, "", true
	case RuleVIPStatus:
		if ctx.VIP == nil {
			return 0, "vip_flag", false
		}
		if *ctx.VIP {
			return 1, "", true
		}
		return 0, "", true
	case RuleDeliveryTime:
		if ctx.DeliveryDeadline == nil {
			return 0, "delivery_deadline", false
		}
		// Urgency grows as the deadline approaches; past-due counts as
		// fully urgent.
		remaining := ctx.DeliveryDeadline.Sub(ctx.Now).Minutes()
		horizon := rule.cfg("horizon_minutes", 60)
		if remaining <= 0 {
			return horizon, "", true
		}
		if remaining >= horizon {
			return 0, "", true
		}
		return horizon - remaining, "", true
	case RulePrepComplexity:
		if ctx.PrepComplexity == nil {
			return 0, "prep_complexity", false
		}
		return *ctx.PrepComplexity, "", true
	case RuleLoyalty:
		if ctx.LoyaltyTier == nil {
			return 0, "loyalty_tier", false
		}
		return float64(*ctx.LoyaltyTier), "", true
	case RulePeakHours:
		if ctx.Now.IsZero() {
			return 0, "time_of_day", false
		}
		start := rule.cfg("peak_start_hour", 11)
		end := rule.cfg("peak_end_hour", 14)
		h := float64(ctx.Now.Hour()) + float64(ctx.Now.Minute())/60
		if h >= start && h < end {
			return 1, "", true
		}
		return 0, "", true
	case RuleGroupSize:
		if ctx.PartySize == nil {
			return 0, "party_size", false
		}
		return float64(*ctx.PartySize), "", true
	case RuleSpecialNeeds:
		return float64(len(ctx.SpecialNeeds)), "", true
	case RuleCustom:
		v, ok := ctx.Custom[rule.cfgName()]
		if !ok {
			return 0, rule.cfgName(), false
		}
		return v, "", true
	}
	return 0, "rule_type", false
}

func (r ScoringRule) cfgName() string {
	// Custom rules read a single named context value; the field name is
	// carried outside Config because Config holds only numbers.
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

// domainBounds returns the configured raw-value domain used by min-max
// rescaling. Defaults are per rule type.
func domainBounds(rule ScoringRule) (float64, float64) {
	switch rule.Type {
	case RuleWaitTime:
		return rule.cfg("domain_min", 0), rule.cfg("domain_max", 1800)
	case RuleOrderValue:
		return rule.cfg("domain_min", 0), rule.cfg("domain_max", 200)
	case RuleVIPStatus, RulePeakHours:
		return 0, 1
	case RuleDeliveryTime:
		return 0, rule.cfg("horizon_minutes", 60)
	case RulePrepComplexity:
		return rule.cfg("domain_min", 0), rule.cfg("domain_max", 10)
	case RuleLoyalty:
		return rule.cfg("domain_min", 0), rule.cfg("domain_max", 5)
	case RuleGroupSize:
		return rule.cfg("domain_min", 1), rule.cfg("domain_max", 12)
	case RuleSpecialNeeds:
		return 0, rule.cfg("domain_max", 5)
	default:
		return rule.cfg("domain_min", 0), rule.cfg("domain_max", 1)
	}
}

// normalize maps the raw measurement into [MinScore, MaxScore] using the
// rule's configured method. Z-score requires population statistics and
// falls back to min-max without them.
func normalize(rule ScoringRule, raw, dmin, dmax float64) float64 {
	switch rule.Normalization {
	case NormZScore:
		if rule.Stats != nil && rule.Stats.StdDev > 0 {
			z := (raw - rule.Stats.Mean) / rule.Stats.StdDev
			// Map z in [-3, 3] linearly onto the score range.
			frac := (z + 3) / 6
			return clamp(rule.MinScore+frac*(rule.MaxScore-rule.MinScore), rule.MinScore, rule.MaxScore)
		}
		fallthrough
	case NormMinMax:
		if dmax == dmin {
			return rule.Midpoint()
		}
		frac := (raw - dmin) / (dmax - dmin)
		return clamp(rule.MinScore+frac*(rule.MaxScore-rule.MinScore), rule.MinScore, rule.MaxScore)
	case NormNone:
		return clamp(raw, rule.MinScore, rule.MaxScore)
	default:
		return rule.Midpoint()
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
