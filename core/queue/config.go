package queue

import (
	"fmt"
	"time"
)

// Config binds one queue to a priority profile and bounds its rebalancing.
type Config struct {
	QueueID   string `json:"queue_id"`
	ProfileID string `json:"profile_id"`

	// AutoRebalance enables the interval-driven tick.
	AutoRebalance   bool          `json:"auto_rebalance"`
	Interval        time.Duration `json:"interval"`
	// Threshold is the fraction of queue depth an arriving item must jump
	// to trigger an out-of-band rebalance.
	Threshold float64 `json:"threshold"`
	// MaxPositionChange caps how far any item moves in one tick; the
	// remainder carries into the next tick. Zero means unbounded.
	MaxPositionChange int `json:"max_position_change"`
	// TickBudget limits a tick's execution time. On overrun the progress
	// made is committed and the rest deferred.
	TickBudget time.Duration `json:"tick_budget"`

	BoostNewItems        bool          `json:"boost_new_items"`
	NewItemBoost         float64       `json:"new_item_boost"`
	NewItemBoostDuration time.Duration `json:"new_item_boost_duration"`
	RecallBoost          float64       `json:"recall_boost"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.TickBudget <= 0 {
		c.TickBudget = 500 * time.Millisecond
	}
	if c.NewItemBoostDuration <= 0 {
		c.NewItemBoostDuration = 2 * time.Minute
	}
	if c.RecallBoost == 0 {
		c.RecallBoost = 10
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.QueueID == "" {
		return fmt.Errorf("queue config: queue_id is required")
	}
	if c.ProfileID == "" {
		return fmt.Errorf("queue config %s: profile_id is required", c.QueueID)
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("queue config %s: threshold must be in [0,1]", c.QueueID)
	}
	if c.MaxPositionChange < 0 {
		return fmt.Errorf("queue config %s: max_position_change must not be negative", c.QueueID)
	}
	return nil
}
