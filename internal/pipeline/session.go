package pipeline

import "time"

type TrackingSession struct {
	RouteID       string
	StartedAt     time.Time
	LastConfirmed *SmoothedLocation
	LastPingTime  time.Time

	Readings int
	Rejected int
	Pings    int
	Failures int

	smoother *Smoother
}

func newTrackingSession(routeID string, window int, now time.Time) *TrackingSession {
	return &TrackingSession{
		RouteID:   routeID,
		StartedAt: now,
		smoother:  NewSmoother(window),
	}
}

func (s *TrackingSession) smooth(r RawReading) SmoothedLocation {
	return s.smoother.Push(r)
}

func (s *TrackingSession) advance(p ConfirmedPing) {
	loc := p.Location()
	s.LastConfirmed = &loc
	s.LastPingTime = p.CreatedAt
	s.Pings++
}

func (s *TrackingSession) discard() {
	s.smoother.Reset()
}

func (s *TrackingSession) HistoryLen() int {
	return s.smoother.Len()
}
