package model

import (
	"time"
)

// ItemStatus defines the lifecycle state of a dispatch item.
type ItemStatus int

const (
	StatusPending ItemStatus = iota
	StatusAcknowledged
	StatusInProgress
	StatusReady
	StatusRecalled
	StatusCompleted
	StatusCancelled
)

// String returns a human-readable representation of the status.
func (s ItemStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAcknowledged:
		return "acknowledged"
	case StatusInProgress:
		return "in_progress"
	case StatusReady:
		return "ready"
	case StatusRecalled:
		return "recalled"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further work transitions are possible.
// Completed items remain recallable, so only Cancelled is fully terminal
// for work purposes; both are terminal for cancellation.
func (s ItemStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Active reports whether the item still occupies queue capacity.
func (s ItemStatus) Active() bool {
	switch s {
	case StatusPending, StatusAcknowledged, StatusInProgress, StatusRecalled:
		return true
	}
	return false
}

// OrderItem is an incoming order line as received from the ordering system.
type OrderItem struct {
	ID                  string
	MenuItemID          string
	Name                string
	Category            string
	Tags                []string
	Quantity            int
	Modifiers           []string
	SpecialInstructions string
	ReceivedAt          time.Time
	PrepMinutes         float64

	// Scoring inputs carried with the order. Pointer fields are optional;
	// absence makes the corresponding rule fall back to its midpoint.
	OrderValue       *float64
	VIP              *bool
	DeliveryDeadline *time.Time
	PrepComplexity   *float64
	LoyaltyTier      *int
	PartySize        *int
	SpecialNeeds     []string
	Rush             bool
}

// DispatchItem is one order item's unit of work at a specific station.
// A multi-station order item yields several dispatch items with distinct
// sequence numbers.
type DispatchItem struct {
	ID          string
	OrderItemID string
	MenuItemID  string
	StationID   string
	Sequence    int
	Primary     bool

	DisplayName         string
	Quantity            int
	Modifiers           []string
	SpecialInstructions string

	Status         ItemStatus
	ReceivedAt     time.Time
	AcknowledgedAt time.Time
	StartedAt      time.Time
	CompletedAt    time.Time
	LastRecalledAt time.Time
	RecallCount    int
	RecallReason   string
	StaffID        string

	// PrepMinutes is the base preparation time before the station
	// multiplier is applied. Routing rules may override it.
	PrepMinutes float64
}

// TargetTime returns the SLA target for the item at the given station.
func (d DispatchItem) TargetTime(st Station) time.Time {
	mult := st.PrepTimeMultiplier
	if mult <= 0 {
		mult = 1
	}
	return d.ReceivedAt.Add(time.Duration(d.PrepMinutes * mult * float64(time.Minute)))
}

// DisplayState is the SLA-derived urgency shown on a station display.
type DisplayState int

const (
	DisplayOK DisplayState = iota
	DisplayWarning
	DisplayCritical
)

func (s DisplayState) String() string {
	switch s {
	case DisplayOK:
		return "ok"
	case DisplayWarning:
		return "warning"
	case DisplayCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// SLAState derives the display state at the given instant. The state is
// computed, never stored: warning within WarningTimeMinutes of the target,
// critical within CriticalTimeMinutes of it or past it.
func (d DispatchItem) SLAState(st Station, now time.Time) DisplayState {
	target := d.TargetTime(st)
	remaining := target.Sub(now)
	if remaining <= time.Duration(st.CriticalTimeMinutes*float64(time.Minute)) {
		return DisplayCritical
	}
	if remaining <= time.Duration(st.WarningTimeMinutes*float64(time.Minute)) {
		return DisplayWarning
	}
	return DisplayOK
}
