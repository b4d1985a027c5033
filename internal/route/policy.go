package route

import "backend-routetrack/internal/config"

// AnalyzerConfigFrom keeps defaults for unset values.
func AnalyzerConfigFrom(cfg config.Config) AnalyzerConfig {
	ac := DefaultAnalyzerConfig()
	if cfg.FuelLitersPerKm > 0 || cfg.FuelPricePerLiter > 0 {
		ac.Cost = LinearCostModel{LitersPerKm: cfg.FuelLitersPerKm, PricePerLiter: cfg.FuelPricePerLiter}
	}
	if cfg.RatingExcellent > 0 || cfg.RatingGood > 0 || cfg.RatingFair > 0 {
		ac.Ratings = RatingBands{Excellent: cfg.RatingExcellent, Good: cfg.RatingGood, Fair: cfg.RatingFair}
	}
	if cfg.MovingSpeedKmh > 0 {
		ac.MovingSpeedKmh = cfg.MovingSpeedKmh
	}
	return ac
}
