package route

import (
	"backend-routetrack/internal/pipeline"
	"backend-routetrack/internal/shared/geo"
)

const DefaultMovingSpeedKmh = 2.0

// Summarize reduces an ordered ping sequence with the default moving speed.
func Summarize(pings []pipeline.ConfirmedPing) Summary {
	return summarize(pings, DefaultMovingSpeedKmh)
}

func summarize(pings []pipeline.ConfirmedPing, movingSpeedKmh float64) Summary {
	s := Summary{PingCount: len(pings)}
	if len(pings) == 0 {
		return s
	}

	var totalMeters, movingSeconds float64
	for i, p := range pings {
		if p.SpeedMps != nil {
			s.MaxSpeedKmh = max(s.MaxSpeedKmh, *p.SpeedMps*3.6)
		}
		if i == 0 {
			continue
		}

		prev := pings[i-1]
		meters := geo.DistanceMeters(prev.Lat, prev.Lon, p.Lat, p.Lon)
		totalMeters += meters

		seconds := p.CreatedAt.Sub(prev.CreatedAt).Seconds()
		if seconds <= 0 {
			continue
		}
		derivedKmh := meters / seconds * 3.6
		if p.SpeedMps == nil {
			s.MaxSpeedKmh = max(s.MaxSpeedKmh, derivedKmh)
		}
		if derivedKmh >= movingSpeedKmh {
			movingSeconds += seconds
		}
	}

	s.TotalDistanceKm = totalMeters / 1000
	if len(pings) < 2 {
		return s
	}

	elapsed := pings[len(pings)-1].CreatedAt.Sub(pings[0].CreatedAt)
	if elapsed <= 0 {
		return s
	}
	s.MovingTimeHours = elapsed.Hours()
	s.AverageSpeedKmh = s.TotalDistanceKm / s.MovingTimeHours
	s.MovementEfficiencyPercent = min(100, movingSeconds/elapsed.Seconds()*100)
	return s
}
