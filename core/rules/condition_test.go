package rules

import (
	"testing"
	"time"
)

func TestConditionLeafComparisons(t *testing.T) {
	ctx := Context{
		Now:        testNow,
		ReceivedAt: testNow.Add(-10 * time.Minute),
		OrderValue: f64(75),
		PartySize:  intp(6),
		Rush:       true,
	}
	cases := []struct {
		cond Condition
		want bool
	}{
		{Condition{Field: FieldOrderValue, Op: OpGt, Value: 50}, true},
		{Condition{Field: FieldOrderValue, Op: OpLt, Value: 50}, false},
		{Condition{Field: FieldOrderValue, Op: OpGte, Value: 75}, true},
		{Condition{Field: FieldOrderValue, Op: OpLte, Value: 74}, false},
		{Condition{Field: FieldPartySize, Op: OpEq, Value: 6}, true},
		{Condition{Field: FieldPartySize, Op: OpNe, Value: 6}, false},
		{Condition{Field: FieldRush, Op: OpEq, Value: 1}, true},
		{Condition{Field: FieldWaitSeconds, Op: OpGte, Value: 600}, true},
		{Condition{Field: FieldHourOfDay, Op: OpEq, Value: 12}, true},
	}
	for i, c := range cases {
		if got := c.cond.Eval(ctx); got != c.want {
			t.Fatalf("case %d: got %v want %v", i, got, c.want)
		}
	}
}

func TestConditionMissingFieldIsFalse(t *testing.T) {
	cond := Condition{Field: FieldVIP, Op: OpEq, Value: 1}
	if cond.Eval(Context{Now: testNow}) {
		t.Fatalf("missing vip should evaluate to false")
	}
	// And the negation of a missing field is true.
	not := Condition{Not: &cond}
	if !not.Eval(Context{Now: testNow}) {
		t.Fatalf("not(missing) should be true")
	}
}

func TestConditionTree(t *testing.T) {
	cond := Condition{All: []Condition{
		{Field: FieldOrderValue, Op: OpGt, Value: 50},
		{Any: []Condition{
			{Field: FieldVIP, Op: OpEq, Value: 1},
			{Field: FieldPartySize, Op: OpGte, Value: 8},
		}},
	}}
	ctx := Context{Now: testNow, OrderValue: f64(80), PartySize: intp(10)}
	if !cond.Eval(ctx) {
		t.Fatalf("expected tree to match")
	}
	ctx.PartySize = intp(2)
	if cond.Eval(ctx) {
		t.Fatalf("expected tree to reject small non-vip party")
	}
}

func TestConditionContains(t *testing.T) {
	cond := Condition{Field: FieldSpecialNeeds, Op: OpContains, Str: "allergy"}
	if !cond.Eval(Context{SpecialNeeds: []string{"Allergy", "wheelchair"}}) {
		t.Fatalf("contains should match case-insensitively")
	}
	if cond.Eval(Context{SpecialNeeds: []string{"wheelchair"}}) {
		t.Fatalf("contains matched wrong value")
	}
}

func TestConditionValidate(t *testing.T) {
	valid := Condition{All: []Condition{{Field: FieldRush, Op: OpEq, Value: 1}}}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cases := []Condition{
		{}, // nothing set
		{Field: FieldRush, Op: OpEq, All: []Condition{{Field: FieldRush, Op: OpEq}}}, // two branches
		{Field: "weather", Op: OpEq},                 // unknown field
		{Field: FieldRush, Op: "like"},               // unknown op
		{Field: FieldOrderValue, Op: OpContains},     // contains on scalar
		{Any: []Condition{{}}},                       // invalid subtree
	}
	for i, c := range cases {
		if err := c.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}
