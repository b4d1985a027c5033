package route

import (
	"errors"

	"backend-routetrack/internal/pipeline"
	"backend-routetrack/internal/shared/geo"
)

const (
	RatingExcellent = "Excellent"
	RatingGood      = "Good"
	RatingFair      = "Fair"
	RatingPoor      = "Poor"
)

var ErrRatingBands = errors.New("route: rating bands must satisfy excellent >= good >= fair >= 0")

type CostModel interface {
	Estimate(distanceKm float64) (liters, cost float64)
}

type LinearCostModel struct {
	LitersPerKm   float64
	PricePerLiter float64
}

func (m LinearCostModel) Estimate(distanceKm float64) (float64, float64) {
	liters := distanceKm * m.LitersPerKm
	return liters, liters * m.PricePerLiter
}

// RatingBands are the lower bounds, exclusive, of each rating above Poor.
type RatingBands struct {
	Excellent float64
	Good      float64
	Fair      float64
}

func DefaultRatingBands() RatingBands {
	return RatingBands{Excellent: 80, Good: 60, Fair: 40}
}

func (b RatingBands) Validate() error {
	if b.Fair < 0 || b.Good < b.Fair || b.Excellent < b.Good {
		return ErrRatingBands
	}
	return nil
}

func (b RatingBands) Rate(percent float64) string {
	switch {
	case percent > b.Excellent:
		return RatingExcellent
	case percent > b.Good:
		return RatingGood
	case percent > b.Fair:
		return RatingFair
	}
	return RatingPoor
}

type AnalyzerConfig struct {
	Cost           CostModel
	Ratings        RatingBands
	MovingSpeedKmh float64
}

func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		Cost:           LinearCostModel{LitersPerKm: 0.08, PricePerLiter: 1.5},
		Ratings:        DefaultRatingBands(),
		MovingSpeedKmh: DefaultMovingSpeedKmh,
	}
}

type Analyzer struct {
	cfg AnalyzerConfig
}

func NewAnalyzer(cfg AnalyzerConfig) (*Analyzer, error) {
	if err := cfg.Ratings.Validate(); err != nil {
		return nil, err
	}
	if cfg.Cost == nil {
		cfg.Cost = DefaultAnalyzerConfig().Cost
	}
	if cfg.MovingSpeedKmh <= 0 {
		cfg.MovingSpeedKmh = DefaultMovingSpeedKmh
	}
	return &Analyzer{cfg: cfg}, nil
}

func (a *Analyzer) Summarize(pings []pipeline.ConfirmedPing) Summary {
	return summarize(pings, a.cfg.MovingSpeedKmh)
}

func (a *Analyzer) Analyze(summary Summary, planned []Visit) Optimization {
	o := Optimization{
		ActualDistanceKm:  summary.TotalDistanceKm,
		OptimalDistanceKm: geo.PathMeters(visitPoints(planned)) / 1000,
	}
	o.DeviationKm = max(0, o.ActualDistanceKm-o.OptimalDistanceKm)
	if o.ActualDistanceKm > 0 {
		o.EfficiencyPercentage = min(100, o.OptimalDistanceKm/o.ActualDistanceKm*100)
	}
	o.EfficiencyRating = a.cfg.Ratings.Rate(o.EfficiencyPercentage)
	o.FuelConsumptionLiters, o.EstimatedFuelCost = a.cfg.Cost.Estimate(o.ActualDistanceKm)
	return o
}
