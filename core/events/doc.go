// Package events defines the queue related events emitted on the event bus.
//
// Available event types:
//   - ItemQueuedEvent: dispatch item entered a station queue
//   - StateChangedEvent: lifecycle transition applied to an item
//   - RebalanceEvent: a queue rebalance tick finished
//   - RoutingHeldEvent: an order item was parked on the holding list
//   - CapacityFreedEvent: a station slot opened up
package events
