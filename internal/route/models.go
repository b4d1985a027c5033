package route

import (
	"time"

	"backend-routetrack/internal/shared/geo"
)

// Visit is one planned stop. Seq orders the stops within a route.
type Visit struct {
	Seq  int     `json:"seq"`
	Name string  `json:"name,omitempty"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

type Route struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Visits    []Visit   `json:"visits"`
	CreatedAt time.Time `json:"created_at"`
}

func visitPoints(visits []Visit) []geo.Point {
	points := make([]geo.Point, len(visits))
	for i, v := range visits {
		points[i] = geo.Point{Lat: v.Lat, Lon: v.Lon}
	}
	return points
}

type Summary struct {
	TotalDistanceKm           float64 `json:"total_distance_km"`
	MovingTimeHours           float64 `json:"moving_time_hours"`
	AverageSpeedKmh           float64 `json:"average_speed_kmh"`
	MaxSpeedKmh               float64 `json:"max_speed_kmh"`
	PingCount                 int     `json:"ping_count"`
	MovementEfficiencyPercent float64 `json:"movement_efficiency_percent"`
}

type Optimization struct {
	ActualDistanceKm      float64 `json:"actual_distance_km"`
	OptimalDistanceKm     float64 `json:"optimal_distance_km"`
	DeviationKm           float64 `json:"deviation_km"`
	EfficiencyPercentage  float64 `json:"efficiency_percentage"`
	EfficiencyRating      string  `json:"efficiency_rating"`
	EstimatedFuelCost     float64 `json:"estimated_fuel_cost"`
	FuelConsumptionLiters float64 `json:"fuel_consumption_liters"`
}
