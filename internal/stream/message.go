package stream

import (
	"encoding/json"
	"time"
)

const (
	TypeGPSPing          = "gps_ping"
	TypeRouteSummary     = "route_summary"
	TypeTrackingStatus   = "tracking_status"
	TypeError            = "error"
	TypeInitialData      = "initial_data"
	TypeConnectionStatus = "connection_status"
)

type Message struct {
	Type    string          `json:"type"`
	RouteID string          `json:"route_id"`
	Data    json.RawMessage `json:"data,omitempty"`
	SentAt  time.Time       `json:"sent_at"`
}

func NewMessage(kind, routeID string, data any) (Message, error) {
	msg := Message{Type: kind, RouteID: routeID, SentAt: time.Now().UTC()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Message{}, err
		}
		msg.Data = raw
	}
	return msg, nil
}

type ConnectionStatus struct {
	Connected bool   `json:"connected"`
	RouteID   string `json:"route_id"`
}

type TrackingStatus struct {
	Active    bool   `json:"active"`
	SessionID string `json:"session_id,omitempty"`
}

type ErrorData struct {
	Message string `json:"message"`
}

// relay wraps a frame on the redis channel so a hub can skip its own.
type relay struct {
	Origin  string          `json:"origin"`
	Payload json.RawMessage `json:"payload"`
}
