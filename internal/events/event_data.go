package events

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// OrderSavedData contains data for OrderSaved events
type OrderSavedData struct {
	OrderID     int64   `json:"order_id"`
	OrderNumber *string `json:"order_number,omitempty"`
	Created     bool    `json:"created"`
	Temporary   bool    `json:"temporary"`
}

// EventType returns the event type for OrderSavedData
func (d *OrderSavedData) EventType() EventType {
	return OrderSaved
}

// OrderStatusChangedData contains data for OrderStatusChanged events
type OrderStatusChangedData struct {
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
}

// EventType returns the event type for OrderStatusChangedData
func (d *OrderStatusChangedData) EventType() EventType {
	return OrderStatusChanged
}

// OrderDeletedData contains data for OrderDeleted events
type OrderDeletedData struct {
	OrderID int64 `json:"order_id"`
}

// EventType returns the event type for OrderDeletedData
func (d *OrderDeletedData) EventType() EventType {
	return OrderDeleted
}

// RatesSyncedData contains data for RatesSynced events
type RatesSyncedData struct {
	GoldBaseDate     string `json:"gold_bas_dt"`
	ExchangeBaseDate string `json:"exchange_bas_dt"`
	GoldFallback     bool   `json:"gold_fallback"`
	ExchangeFallback bool   `json:"exchange_fallback"`
}

// EventType returns the event type for RatesSyncedData
func (d *RatesSyncedData) EventType() EventType {
	return RatesSynced
}

// CacheInvalidatedData tells clients which cached query keys are stale
type CacheInvalidatedData struct {
	Keys   []string `json:"keys"`
	Source string   `json:"source"`
}

// EventType returns the event type for CacheInvalidatedData
func (d *CacheInvalidatedData) EventType() EventType {
	return CacheInvalidated
}
