package pipeline

import (
	"fmt"
	"math"

	"backend-routetrack/internal/shared/geo"
)

const (
	DefaultMaxAccuracyMeters = 100.0
	DefaultMaxSpeedKmh       = 120.0
)

type ValidatorConfig struct {
	MaxAccuracyMeters float64
	MaxSpeedKmh       float64
}

func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MaxAccuracyMeters: DefaultMaxAccuracyMeters,
		MaxSpeedKmh:       DefaultMaxSpeedKmh,
	}
}

type Verdict struct {
	Valid  bool
	Reason string
}

type Validator struct {
	cfg ValidatorConfig
}

func NewValidator(cfg ValidatorConfig) *Validator {
	if cfg.MaxAccuracyMeters <= 0 {
		cfg.MaxAccuracyMeters = DefaultMaxAccuracyMeters
	}
	if cfg.MaxSpeedKmh <= 0 {
		cfg.MaxSpeedKmh = DefaultMaxSpeedKmh
	}
	return &Validator{cfg: cfg}
}

func (v *Validator) Validate(r RawReading) Verdict {
	if !geo.ValidCoordinates(r.Lat, r.Lon) {
		return Verdict{Reason: "invalid coordinates"}
	}
	if r.AccuracyMeters < 0 || math.IsNaN(r.AccuracyMeters) {
		return Verdict{Reason: "missing accuracy"}
	}
	if r.AccuracyMeters > v.cfg.MaxAccuracyMeters {
		return Verdict{Reason: fmt.Sprintf("poor accuracy: %.0fm", r.AccuracyMeters)}
	}
	if r.SpeedMps != nil {
		kmh := *r.SpeedMps * 3.6
		if kmh > v.cfg.MaxSpeedKmh {
			return Verdict{Reason: fmt.Sprintf("unrealistic speed: %.0fkm/h", kmh)}
		}
	}
	return Verdict{Valid: true}
}
