package model

import (
	"testing"
	"time"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestTargetTimeAppliesMultiplier(t *testing.T) {
	d := DispatchItem{ReceivedAt: testNow, PrepMinutes: 8}
	st := Station{PrepTimeMultiplier: 1.5}
	if got, want := d.TargetTime(st), testNow.Add(12*time.Minute); !got.Equal(want) {
		t.Fatalf("target %v, want %v", got, want)
	}
	// A zero multiplier means the station never configured one.
	if got, want := d.TargetTime(Station{}), testNow.Add(8*time.Minute); !got.Equal(want) {
		t.Fatalf("target %v, want %v", got, want)
	}
}

func TestSLAState(t *testing.T) {
	st := Station{PrepTimeMultiplier: 1, WarningTimeMinutes: 5, CriticalTimeMinutes: 2}
	d := DispatchItem{ReceivedAt: testNow, PrepMinutes: 10} // target at +10m

	cases := []struct {
		at   time.Time
		want DisplayState
	}{
		{testNow, DisplayOK},
		{testNow.Add(4 * time.Minute), DisplayOK},
		{testNow.Add(5 * time.Minute), DisplayWarning},
		{testNow.Add(7 * time.Minute), DisplayWarning},
		{testNow.Add(8 * time.Minute), DisplayCritical},
		{testNow.Add(10 * time.Minute), DisplayCritical},
		{testNow.Add(30 * time.Minute), DisplayCritical},
	}
	for _, tc := range cases {
		if got := d.SLAState(st, tc.at); got != tc.want {
			t.Fatalf("at %v: got %v want %v", tc.at.Sub(testNow), got, tc.want)
		}
	}
}

func TestStatusActive(t *testing.T) {
	active := []ItemStatus{StatusPending, StatusAcknowledged, StatusInProgress, StatusRecalled}
	for _, s := range active {
		if !s.Active() {
			t.Fatalf("%v should be active", s)
		}
	}
	for _, s := range []ItemStatus{StatusReady, StatusCompleted, StatusCancelled} {
		if s.Active() {
			t.Fatalf("%v should not be active", s)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []ItemStatus{StatusCompleted, StatusCancelled} {
		if !s.IsTerminal() {
			t.Fatalf("%v should be terminal", s)
		}
	}
	if StatusReady.IsTerminal() {
		t.Fatalf("ready is not terminal")
	}
}

func TestParseStationType(t *testing.T) {
	for _, name := range []string{"grill", "fry", "saute", "salad", "dessert", "drink", "expo"} {
		st, err := ParseStationType(name)
		if err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		if st.String() != name {
			t.Fatalf("round trip %s -> %s", name, st)
		}
	}
	if _, err := ParseStationType("bar"); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}

func TestStationValidate(t *testing.T) {
	good := Station{ID: "grill-1", MaxActiveItems: 8, WarningTimeMinutes: 5, CriticalTimeMinutes: 2}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid station rejected: %v", err)
	}
	bad := []Station{
		{MaxActiveItems: 8},
		{ID: "grill-1"},
		{ID: "grill-1", MaxActiveItems: 8, PrepTimeMultiplier: -1},
		{ID: "grill-1", MaxActiveItems: 8, WarningTimeMinutes: 1, CriticalTimeMinutes: 2},
	}
	for i, st := range bad {
		if err := st.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestStaffAssignment(t *testing.T) {
	st := Station{ID: "grill-1"}
	st.AssignStaff("cook-7", testNow)
	if st.Staff == nil || st.Staff.StaffID != "cook-7" || !st.Staff.AssignedAt.Equal(testNow) {
		t.Fatalf("assignment not recorded: %+v", st.Staff)
	}
	st.ClearStaff()
	if st.Staff != nil {
		t.Fatalf("assignment not cleared")
	}
}
