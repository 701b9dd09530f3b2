package rules

import (
	"time"

	"github.com/expeditorhq/expeditor/core/model"
)

// Context carries the scoring inputs for one dispatch item. Pointer fields
// are optional order attributes; nil means the ordering system did not
// provide the value.
type Context struct {
	Now        time.Time
	ReceivedAt time.Time

	OrderValue       *float64
	VIP              *bool
	DeliveryDeadline *time.Time
	PrepComplexity   *float64
	LoyaltyTier      *int
	PartySize        *int
	SpecialNeeds     []string
	Rush             bool
	RecallCount      int

	// Custom holds named values consumed by custom rules and conditions.
	Custom map[string]float64
}

// WaitSeconds returns how long the item has been waiting.
func (c Context) WaitSeconds() float64 {
	w := c.Now.Sub(c.ReceivedAt).Seconds()
	if w < 0 {
		return 0
	}
	return w
}

// ContextFor builds a scoring context from an order item at the given
// instant.
func ContextFor(item model.OrderItem, now time.Time) Context {
	return Context{
		Now:              now,
		ReceivedAt:       item.ReceivedAt,
		OrderValue:       item.OrderValue,
		VIP:              item.VIP,
		DeliveryDeadline: item.DeliveryDeadline,
		PrepComplexity:   item.PrepComplexity,
		LoyaltyTier:      item.LoyaltyTier,
		PartySize:        item.PartySize,
		SpecialNeeds:     item.SpecialNeeds,
		Rush:             item.Rush,
	}
}
