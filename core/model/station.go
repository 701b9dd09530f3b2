package model

import (
	"fmt"
	"time"
)

// StationType identifies the kind of prep station.
type StationType int

const (
	StationGrill StationType = iota
	StationFry
	StationSaute
	StationSalad
	StationDessert
	StationDrink
	StationExpo
)

func (t StationType) String() string {
	switch t {
	case StationGrill:
		return "grill"
	case StationFry:
		return "fry"
	case StationSaute:
		return "saute"
	case StationSalad:
		return "salad"
	case StationDessert:
		return "dessert"
	case StationDrink:
		return "drink"
	case StationExpo:
		return "expo"
	default:
		return "unknown"
	}
}

// ParseStationType converts a configuration string to a StationType.
func ParseStationType(s string) (StationType, error) {
	switch s {
	case "grill":
		return StationGrill, nil
	case "fry":
		return StationFry, nil
	case "saute":
		return StationSaute, nil
	case "salad":
		return StationSalad, nil
	case "dessert":
		return StationDessert, nil
	case "drink":
		return StationDrink, nil
	case "expo":
		return StationExpo, nil
	default:
		return 0, fmt.Errorf("unknown station type %q", s)
	}
}

// StaffAssignment records the staff member currently working a station.
type StaffAssignment struct {
	StaffID    string    `json:"staff_id"`
	AssignedAt time.Time `json:"assigned_at"`
}

// Station represents one kitchen prep station and its SLA parameters.
type Station struct {
	ID                  string
	Name                string
	Type                StationType
	MaxActiveItems      int
	Priority            int
	PrepTimeMultiplier  float64
	WarningTimeMinutes  float64
	CriticalTimeMinutes float64

	// Staff is the current assignment, nil when the station is unmanned.
	Staff *StaffAssignment
}

// AssignStaff sets the current staff member with the assignment time.
func (s *Station) AssignStaff(staffID string, at time.Time) {
	s.Staff = &StaffAssignment{StaffID: staffID, AssignedAt: at}
}

// ClearStaff removes the current assignment.
func (s *Station) ClearStaff() { s.Staff = nil }

// Validate checks that the station configuration is sound.
func (s Station) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("station id is required")
	}
	if s.MaxActiveItems <= 0 {
		return fmt.Errorf("station %s: max_active_items must be positive", s.ID)
	}
	if s.PrepTimeMultiplier < 0 {
		return fmt.Errorf("station %s: prep_time_multiplier must not be negative", s.ID)
	}
	if s.WarningTimeMinutes < s.CriticalTimeMinutes {
		return fmt.Errorf("station %s: warning window must not be inside the critical window", s.ID)
	}
	return nil
}
