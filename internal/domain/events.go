package domain

import "time"

// Event is the envelope broadcast to subscribers (websocket clients,
// internal listeners). Type uses lowercase names matching the UI.
type Event struct {
	Type      string      `json:"event"`
	ServerID  string      `json:"server_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Event types carried on the bus. Connection state changes reuse the
// ConnState names directly ("connecting", "connected", ...).
const (
	EventTypeCommandDispatched = "command_dispatched"
	EventTypeIntegration       = "integration_status"
	EventTypeGameStatus        = "game_status"
	EventTypeAppLog            = "log"
)

// NewStatusEvent wraps a connection status change.
func NewStatusEvent(status ServerStatus) Event {
	return Event{
		Type:      string(status.State),
		ServerID:  status.ServerID,
		Timestamp: time.Now().UTC(),
		Data:      status,
	}
}

// NewEvent wraps an arbitrary payload.
func NewEvent(eventType, serverID string, data interface{}) Event {
	return Event{
		Type:      eventType,
		ServerID:  serverID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}
