package routing

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/expeditorhq/expeditor/core/logger"
	"github.com/expeditorhq/expeditor/core/model"
	"github.com/expeditorhq/expeditor/core/rules"
)

// AssignmentRule maps menu items, categories or tags to a station.
// Explicit item mappings take precedence over category rules, which take
// precedence over tag rules; within a level higher Priority wins, then
// primary rules, then the rule whose station carries the higher station
// priority.
type AssignmentRule struct {
	ID         string
	MenuItemID string
	Category   string
	Tag        string
	StationID  string
	Priority   int
	Primary    bool
	Conditions *rules.Condition
	// PrepOverride replaces the order item's base prep minutes for the
	// dispatch item created by this rule.
	PrepOverride *float64
}

// Validate rejects malformed rules at configuration time.
func (r AssignmentRule) Validate() error {
	if r.StationID == "" {
		return fmt.Errorf("assignment rule %s: station id is required", r.ID)
	}
	set := 0
	if r.MenuItemID != "" {
		set++
	}
	if r.Category != "" {
		set++
	}
	if r.Tag != "" {
		set++
	}
	if set != 1 {
		return fmt.Errorf("assignment rule %s: exactly one of menu_item_id/category/tag must be set", r.ID)
	}
	if r.Conditions != nil {
		if err := r.Conditions.Validate(); err != nil {
			return fmt.Errorf("assignment rule %s: %w", r.ID, err)
		}
	}
	return nil
}

// matchLevel orders rule specificity: item mapping beats category beats tag.
func (r AssignmentRule) matchLevel() int {
	switch {
	case r.MenuItemID != "":
		return 0
	case r.Category != "":
		return 1
	default:
		return 2
	}
}

func (r AssignmentRule) matches(item model.OrderItem, ctx rules.Context) bool {
	switch {
	case r.MenuItemID != "":
		if r.MenuItemID != item.MenuItemID {
			return false
		}
	case r.Category != "":
		if r.Category != item.Category {
			return false
		}
	case r.Tag != "":
		found := false
		for _, t := range item.Tags {
			if t == r.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	default:
		return false
	}
	if r.Conditions != nil && !r.Conditions.Eval(ctx) {
		return false
	}
	return true
}

// Failure is a non-fatal routing outcome: no station could take the item
// right now. The item is parked on the holding list and retried.
type Failure struct {
	OrderItemID string
	Reason      string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("routing: item %s held: %s", f.OrderItemID, f.Reason)
}

// Capacity reports how many active items a station currently holds.
type Capacity interface {
	ActiveItems(stationID string) int
}

// Router assigns order items to stations according to the configured rules.
type Router struct {
	stations map[string]model.Station
	ruleset  []AssignmentRule
	log      logger.Logger
}

// NewRouter builds a router over validated stations and rules.
func NewRouter(stations []model.Station, ruleset []AssignmentRule, log logger.Logger) (*Router, error) {
	byID := make(map[string]model.Station, len(stations))
	for _, st := range stations {
		if err := st.Validate(); err != nil {
			return nil, err
		}
		byID[st.ID] = st
	}
	for _, r := range ruleset {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, ok := byID[r.StationID]; !ok {
			return nil, fmt.Errorf("assignment rule %s: unknown station %s", r.ID, r.StationID)
		}
	}
	return &Router{stations: byID, ruleset: ruleset, log: log}, nil
}

// Station returns the station definition by id.
func (r *Router) Station(id string) (model.Station, bool) {
	st, ok := r.stations[id]
	return st, ok
}

// Stations returns all configured stations.
func (r *Router) Stations() []model.Station {
	out := make([]model.Station, 0, len(r.stations))
	for _, st := range r.stations {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Route creates dispatch items for the order item, one per matched station
// in ascending sequence. Stations at capacity are skipped for the next
// eligible station by rule priority. With no eligible station a *Failure
// is returned so the caller can park the item.
func (r *Router) Route(item model.OrderItem, cap Capacity, now time.Time) ([]model.DispatchItem, error) {
	ctx := rules.ContextFor(item, now)
	matched := make([]AssignmentRule, 0, 4)
	for _, rule := range r.ruleset {
		if rule.matches(item, ctx) {
			matched = append(matched, rule)
		}
	}
	if len(matched) == 0 {
		return nil, &Failure{OrderItemID: item.ID, Reason: "no rule matches"}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.matchLevel() != b.matchLevel() {
			return a.matchLevel() < b.matchLevel()
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Primary != b.Primary {
			return a.Primary
		}
		// Equally specific rules fall back to station priority, so a full
		// high-priority station is skipped for the next-preferred one.
		return r.stations[a.StationID].Priority > r.stations[b.StationID].Priority
	})

	var dispatched []model.DispatchItem
	seen := make(map[string]bool, len(matched))
	skipped := 0
	seq := 1
	for _, rule := range matched {
		if seen[rule.StationID] {
			continue
		}
		seen[rule.StationID] = true
		st := r.stations[rule.StationID]
		if cap != nil && cap.ActiveItems(st.ID) >= st.MaxActiveItems {
			skipped++
			if r.log != nil {
				r.log.Debugf("station %s at capacity, skipping for item %s", st.ID, item.ID)
			}
			continue
		}
		prep := item.PrepMinutes
		if rule.PrepOverride != nil {
			prep = *rule.PrepOverride
		}
		dispatched = append(dispatched, model.DispatchItem{
			ID:                  uuid.NewString(),
			OrderItemID:         item.ID,
			MenuItemID:          item.MenuItemID,
			StationID:           st.ID,
			Sequence:            seq,
			Primary:             rule.Primary,
			DisplayName:         item.Name,
			Quantity:            item.Quantity,
			Modifiers:           item.Modifiers,
			SpecialInstructions: item.SpecialInstructions,
			Status:              model.StatusPending,
			ReceivedAt:          item.ReceivedAt,
			PrepMinutes:         prep,
		})
		seq++
	}
	if len(dispatched) == 0 {
		return nil, &Failure{OrderItemID: item.ID, Reason: fmt.Sprintf("all %d matched stations at capacity", skipped)}
	}
	return dispatched, nil
}
