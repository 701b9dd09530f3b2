package mqtt

import (
	"github.com/expeditorhq/expeditor/core/dispatch"
	"github.com/expeditorhq/expeditor/core/model"
)

// OrderHandler consumes a decoded order line from the ordering system.
type OrderHandler func(item model.OrderItem)

// CancelHandler consumes an order-level cancellation. The argument is the
// order item identifier whose dispatch items must be cancelled.
type CancelHandler func(orderItemID string)

// Handlers bundles the intake callbacks wired into the broker client.
type Handlers struct {
	Order  OrderHandler
	Cancel CancelHandler
}

// FeedPublisher pushes station queue snapshots to kitchen displays.
type FeedPublisher interface {
	// PublishFeed publishes the ordered view of one station's queue.
	PublishFeed(stationID string, views []dispatch.ItemView) error
}
