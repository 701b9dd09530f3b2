package rules

import (
	"fmt"
	"strings"
)

// Field names a context value a condition may inspect. The set is closed;
// conditions never evaluate arbitrary expressions.
type Field string

const (
	FieldWaitSeconds  Field = "wait_seconds"
	FieldOrderValue   Field = "order_value"
	FieldVIP          Field = "vip"
	FieldPartySize    Field = "party_size"
	FieldLoyaltyTier  Field = "loyalty_tier"
	FieldComplexity   Field = "prep_complexity"
	FieldHourOfDay    Field = "hour_of_day"
	FieldRush         Field = "rush"
	FieldRecallCount  Field = "recall_count"
	FieldSpecialNeeds Field = "special_needs"
)

// Op is a comparison operator in a condition leaf.
type Op string

const (
	OpEq  Op = "eq"
	OpNe  Op = "ne"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	// OpContains matches a string member of a list field.
	OpContains Op = "contains"
)

// Condition is a tagged expression tree over the closed context field set.
// Exactly one of All, Any, Not or the Field/Op leaf should be populated.
// It is interpreted, never executed as code.
type Condition struct {
	All []Condition `json:"all,omitempty"`
	Any []Condition `json:"any,omitempty"`
	Not *Condition  `json:"not,omitempty"`

	Field Field   `json:"field,omitempty"`
	Op    Op      `json:"op,omitempty"`
	Value float64 `json:"value,omitempty"`
	Str   string  `json:"str,omitempty"`
}

// Validate rejects malformed trees at configuration time.
func (c Condition) Validate() error {
	branches := 0
	if len(c.All) > 0 {
		branches++
		for _, sub := range c.All {
			if err := sub.Validate(); err != nil {
				return err
			}
		}
	}
	if len(c.Any) > 0 {
		branches++
		for _, sub := range c.Any {
			if err := sub.Validate(); err != nil {
				return err
			}
		}
	}
	if c.Not != nil {
		branches++
		if err := c.Not.Validate(); err != nil {
			return err
		}
	}
	if c.Field != "" {
		branches++
		if !validField(c.Field) {
			return fmt.Errorf("condition: unknown field %q", c.Field)
		}
		if !validOp(c.Op) {
			return fmt.Errorf("condition: unknown op %q", c.Op)
		}
		if c.Op == OpContains && c.Field != FieldSpecialNeeds {
			return fmt.Errorf("condition: contains requires a list field, got %q", c.Field)
		}
	}
	if branches != 1 {
		return fmt.Errorf("condition: exactly one of all/any/not/field must be set")
	}
	return nil
}

func validField(f Field) bool {
	switch f {
	case FieldWaitSeconds, FieldOrderValue, FieldVIP, FieldPartySize,
		FieldLoyaltyTier, FieldComplexity, FieldHourOfDay, FieldRush,
		FieldRecallCount, FieldSpecialNeeds:
		return true
	}
	return false
}

func validOp(op Op) bool {
	switch op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpContains:
		return true
	}
	return false
}

// Eval interprets the tree against the context. A leaf referencing a value
// the context does not carry evaluates to false.
func (c Condition) Eval(ctx Context) bool {
	switch {
	case len(c.All) > 0:
		for _, sub := range c.All {
			if !sub.Eval(ctx) {
				return false
			}
		}
		return true
	case len(c.Any) > 0:
		for _, sub := range c.Any {
			if sub.Eval(ctx) {
				return true
			}
		}
		return false
	case c.Not != nil:
		return !c.Not.Eval(ctx)
	case c.Field != "":
		return c.evalLeaf(ctx)
	}
	return false
}

func (c Condition) evalLeaf(ctx Context) bool {
	if c.Op == OpContains {
		for _, n := range ctx.SpecialNeeds {
			if strings.EqualFold(n, c.Str) {
				return true
			}
		}
		return false
	}
	v, ok := fieldValue(c.Field, ctx)
	if !ok {
		return false
	}
	switch c.Op {
	case OpEq:
		return v == c.Value
	case OpNe:
		return v != c.Value
	case OpGt:
		return v > c.Value
	case OpGte:
		return v >= c.Value
	case OpLt:
		return v < c.Value
	case OpLte:
		return v <= c.Value
	}
	return false
}

func fieldValue(f Field, ctx Context) (float64, bool) {
	switch f {
	case FieldWaitSeconds:
		if ctx.ReceivedAt.IsZero() {
			return 0, false
		}
		return ctx.WaitSeconds(), true
	case FieldOrderValue:
		if ctx.OrderValue == nil {
			return 0, false
		}
		return *ctx.OrderValue, true
	case FieldVIP:
		if ctx.VIP == nil {
			return 0, false
		}
		if *ctx.VIP {
			return 1, true
		}
		return 0, true
	case FieldPartySize:
		if ctx.PartySize == nil {
			return 0, false
		}
		return float64(*ctx.PartySize), true
	case FieldLoyaltyTier:
		if ctx.LoyaltyTier == nil {
			return 0, false
		}
		return float64(*ctx.LoyaltyTier), true
	case FieldComplexity:
		if ctx.PrepComplexity == nil {
			return 0, false
		}
		return *ctx.PrepComplexity, true
	case FieldHourOfDay:
		if ctx.Now.IsZero() {
			return 0, false
		}
		return float64(ctx.Now.Hour()), true
	case FieldRush:
		if ctx.Rush {
			return 1, true
		}
		return 0, true
	case FieldRecallCount:
		return float64(ctx.RecallCount), true
	case FieldSpecialNeeds:
		return float64(len(ctx.SpecialNeeds)), true
	}
	return 0, false
}
