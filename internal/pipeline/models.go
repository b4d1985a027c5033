package pipeline

import "time"

// RawReading has a negative AccuracyMeters when none was reported.
type RawReading struct {
	Lat            float64   `json:"lat"`
	Lon            float64   `json:"lon"`
	AccuracyMeters float64   `json:"accuracy_m"`
	SpeedMps       *float64  `json:"speed_mps,omitempty"`
	HeadingDegrees *float64  `json:"heading_deg,omitempty"`
	CapturedAt     time.Time `json:"captured_at"`
}

type SmoothedLocation struct {
	Lat            float64   `json:"lat"`
	Lon            float64   `json:"lon"`
	AccuracyMeters float64   `json:"accuracy_m"`
	CapturedAt     time.Time `json:"captured_at"`
}

type ConfirmedPing struct {
	RouteID        string    `json:"route_id"`
	Lat            float64   `json:"lat"`
	Lon            float64   `json:"lon"`
	AccuracyMeters float64   `json:"accuracy_m"`
	SpeedMps       *float64  `json:"speed_mps,omitempty"`
	HeadingDegrees *float64  `json:"heading_deg,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func (p ConfirmedPing) Location() SmoothedLocation {
	return SmoothedLocation{Lat: p.Lat, Lon: p.Lon, AccuracyMeters: p.AccuracyMeters, CapturedAt: p.CreatedAt}
}

func Float(v float64) *float64 {
	return &v
}
