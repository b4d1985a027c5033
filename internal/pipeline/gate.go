package pipeline

import (
	"time"

	"backend-routetrack/internal/shared/geo"
)

const (
	ReasonFirstFix             = "first fix"
	ReasonTooSoon              = "too soon"
	ReasonInsufficientMovement = "insufficient movement"
	ReasonImplausibleJump      = "implausible jump"
	ReasonMoved                = "moved"
)

type GateConfig struct {
	MinTimeInterval         time.Duration
	MinDistanceMeters       float64
	IndoorAccuracyThreshold float64
	IndoorAccuracyFactor    float64
	JumpDistanceMeters      float64
	MaxSpeedKmh             float64
}

func DefaultGateConfig() GateConfig {
	return GateConfig{
		MinTimeInterval:         30 * time.Second,
		MinDistanceMeters:       50,
		IndoorAccuracyThreshold: 65,
		IndoorAccuracyFactor:    1.5,
		JumpDistanceMeters:      500,
		MaxSpeedKmh:             DefaultMaxSpeedKmh,
	}
}

type Decision struct {
	Record          bool
	Reason          string
	DistanceMeters  float64
	ThresholdMeters float64
}

type Gate struct {
	cfg GateConfig
}

func NewGate(cfg GateConfig) *Gate {
	def := DefaultGateConfig()
	if cfg.MinDistanceMeters <= 0 {
		cfg.MinDistanceMeters = def.MinDistanceMeters
	}
	if cfg.IndoorAccuracyThreshold <= 0 {
		cfg.IndoorAccuracyThreshold = def.IndoorAccuracyThreshold
	}
	if cfg.IndoorAccuracyFactor <= 0 {
		cfg.IndoorAccuracyFactor = def.IndoorAccuracyFactor
	}
	if cfg.JumpDistanceMeters <= 0 {
		cfg.JumpDistanceMeters = def.JumpDistanceMeters
	}
	if cfg.MaxSpeedKmh <= 0 {
		cfg.MaxSpeedKmh = def.MaxSpeedKmh
	}
	return &Gate{cfg: cfg}
}

func (g *Gate) Threshold(accuracyMeters float64) float64 {
	threshold := g.cfg.MinDistanceMeters
	if accuracyMeters > g.cfg.IndoorAccuracyThreshold {
		if scaled := accuracyMeters * g.cfg.IndoorAccuracyFactor; scaled > threshold {
			threshold = scaled
		}
	}
	return threshold
}

func (g *Gate) ShouldRecord(last *SmoothedLocation, lastPingTime time.Time, candidate SmoothedLocation, now time.Time) Decision {
	if last == nil {
		return Decision{Record: true, Reason: ReasonFirstFix}
	}

	elapsed := now.Sub(lastPingTime)
	distance := geo.DistanceMeters(last.Lat, last.Lon, candidate.Lat, candidate.Lon)
	threshold := g.Threshold(candidate.AccuracyMeters)
	d := Decision{DistanceMeters: distance, ThresholdMeters: threshold}

	// a long gap excuses a long move: 1200m after ten minutes is recorded
	if distance > g.cfg.JumpDistanceMeters {
		maxReasonable := g.cfg.MaxSpeedKmh / 3.6 * elapsed.Seconds()
		if distance > maxReasonable {
			d.Reason = ReasonImplausibleJump
			return d
		}
	}

	if elapsed <= 0 || elapsed < g.cfg.MinTimeInterval {
		d.Reason = ReasonTooSoon
		return d
	}

	if distance < threshold {
		d.Reason = ReasonInsufficientMovement
		return d
	}

	d.Record = true
	d.Reason = ReasonMoved
	return d
}
