// Package events provides the in-process event bus used to notify
// listeners (websocket clients, caches) about order and rate changes.
package events

import "time"

// EventType identifies a kind of event
type EventType string

const (
	OrderSaved         EventType = "ORDER_SAVED"
	OrderStatusChanged EventType = "ORDER_STATUS_CHANGED"
	OrderDeleted       EventType = "ORDER_DELETED"
	RatesSynced        EventType = "RATES_SYNCED"
	CacheInvalidated   EventType = "CACHE_INVALIDATED"
)

// AllEventTypes lists every event type the bus carries.
var AllEventTypes = []EventType{
	OrderSaved,
	OrderStatusChanged,
	OrderDeleted,
	RatesSynced,
	CacheInvalidated,
}

// Event is a single published event
type Event struct {
	Type      EventType              `json:"type"`
	Module    string                 `json:"module"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}
