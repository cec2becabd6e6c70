package events

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// Manager stamps and publishes events on a Bus
type Manager struct {
	bus *Bus
	log zerolog.Logger
	now func() time.Time
}

// NewManager creates a manager publishing to bus
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("component", "event_manager").Logger(),
		now: time.Now,
	}
}

// Emit publishes an event with untyped data
func (m *Manager) Emit(eventType EventType, module string, data map[string]interface{}) {
	m.log.Debug().
		Str("event_type", string(eventType)).
		Str("module", module).
		Msg("Emitting event")

	m.bus.Publish(&Event{
		Type:      eventType,
		Module:    module,
		Timestamp: m.now(),
		Data:      data,
	})
}

// EmitTyped publishes an event whose data is a typed struct. The struct is
// flattened to a map through its JSON encoding.
func (m *Manager) EmitTyped(eventType EventType, module string, data EventData) {
	if data != nil && data.EventType() != eventType {
		m.log.Warn().
			Str("event_type", string(eventType)).
			Str("data_type", string(data.EventType())).
			Msg("Event data type mismatch")
	}

	var payload map[string]interface{}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			m.log.Error().Err(err).Str("event_type", string(eventType)).Msg("Failed to encode event data")
			return
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			m.log.Error().Err(err).Str("event_type", string(eventType)).Msg("Failed to flatten event data")
			return
		}
	}

	m.Emit(eventType, module, payload)
}
