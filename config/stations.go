package config

import (
	"fmt"

	"github.com/expeditorhq/expeditor/core/model"
	"github.com/expeditorhq/expeditor/core/routing"
	"github.com/expeditorhq/expeditor/core/rules"
)

// StationConfig declares one prep station.
type StationConfig struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	Type                string  `json:"type"`
	MaxActiveItems      int     `json:"max_active_items"`
	Priority            int     `json:"priority"`
	PrepTimeMultiplier  float64 `json:"prep_time_multiplier"`
	WarningTimeMinutes  float64 `json:"warning_time_minutes"`
	CriticalTimeMinutes float64 `json:"critical_time_minutes"`
}

// Build converts the wire form into a model.Station.
func (c StationConfig) Build() (model.Station, error) {
	t, err := model.ParseStationType(c.Type)
	if err != nil {
		return model.Station{}, fmt.Errorf("station %s: %w", c.ID, err)
	}
	st := model.Station{
		ID:                  c.ID,
		Name:                c.Name,
		Type:                t,
		MaxActiveItems:      c.MaxActiveItems,
		Priority:            c.Priority,
		PrepTimeMultiplier:  c.PrepTimeMultiplier,
		WarningTimeMinutes:  c.WarningTimeMinutes,
		CriticalTimeMinutes: c.CriticalTimeMinutes,
	}
	if st.PrepTimeMultiplier == 0 {
		st.PrepTimeMultiplier = 1
	}
	if err := st.Validate(); err != nil {
		return model.Station{}, err
	}
	return st, nil
}

// AssignmentRuleConfig declares one routing rule.
type AssignmentRuleConfig struct {
	ID           string           `json:"id"`
	MenuItemID   string           `json:"menu_item_id"`
	Category     string           `json:"category"`
	Tag          string           `json:"tag"`
	StationID    string           `json:"station_id"`
	Priority     int              `json:"priority"`
	Primary      bool             `json:"primary"`
	Conditions   *rules.Condition `json:"conditions"`
	PrepOverride *float64         `json:"prep_override"`
}

// Build converts the wire form into a routing.AssignmentRule.
func (c AssignmentRuleConfig) Build() (routing.AssignmentRule, error) {
	r := routing.AssignmentRule{
		ID:           c.ID,
		MenuItemID:   c.MenuItemID,
		Category:     c.Category,
		Tag:          c.Tag,
		StationID:    c.StationID,
		Priority:     c.Priority,
		Primary:      c.Primary,
		Conditions:   c.Conditions,
		PrepOverride: c.PrepOverride,
	}
	if err := r.Validate(); err != nil {
		return routing.AssignmentRule{}, err
	}
	return r, nil
}
