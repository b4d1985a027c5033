package tracking

import (
	"time"

	"backend-routetrack/internal/pipeline"
	"backend-routetrack/internal/route"
	"backend-routetrack/internal/shared/geo"
)

const (
	StatusActive  = "active"
	StatusStopped = "stopped"
)

type Session struct {
	ID        string     `json:"id"`
	RouteID   string     `json:"route_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Status    string     `json:"status"`
}

type Ping struct {
	ID int64 `json:"id"`
	pipeline.ConfirmedPing
}

type PingInput struct {
	Lat            float64   `json:"lat"`
	Lon            float64   `json:"lon"`
	AccuracyMeters *float64  `json:"accuracy_m"`
	SpeedMps       *float64  `json:"speed_mps"`
	HeadingDegrees *float64  `json:"heading_deg"`
	CreatedAt      time.Time `json:"created_at"`
}

type Analytics struct {
	Summary      route.Summary       `json:"summary"`
	Optimization *route.Optimization `json:"optimization,omitempty"`
	Message      string              `json:"message,omitempty"`
}

type Status struct {
	RouteID      string     `json:"route_id"`
	Active       bool       `json:"active"`
	SessionID    string     `json:"session_id,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	LastPing     *Ping      `json:"last_ping,omitempty"`
	LastPosition *geo.Point `json:"last_position,omitempty"`
}

// InitialData is the backfill a realtime subscriber gets on connect.
type InitialData struct {
	Pings     []Ping    `json:"pings"`
	Analytics Analytics `json:"analytics"`
}

func confirmed(pings []Ping) []pipeline.ConfirmedPing {
	out := make([]pipeline.ConfirmedPing, len(pings))
	for i, p := range pings {
		out[i] = p.ConfirmedPing
	}
	return out
}
