package route

import (
	"math"
	"testing"
	"time"

	"backend-routetrack/internal/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var metersPerDegLat = 6371000.0 * math.Pi / 180

const baseLat, baseLon = 25.2048, 55.2708

var t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func pingAt(northMeters float64, after time.Duration) pipeline.ConfirmedPing {
	return pipeline.ConfirmedPing{
		RouteID:   "route-1",
		Lat:       baseLat + northMeters/metersPerDegLat,
		Lon:       baseLon,
		CreatedAt: t0.Add(after),
	}
}

func TestSummarizeEmpty(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil))
	assert.Equal(t, Summary{}, Summarize([]pipeline.ConfirmedPing{}))
}

func TestSummarizeSinglePing(t *testing.T) {
	p := pingAt(0, 0)
	p.SpeedMps = pipeline.Float(5)
	s := Summarize([]pipeline.ConfirmedPing{p})
	assert.Equal(t, 1, s.PingCount)
	assert.Zero(t, s.TotalDistanceKm)
	assert.Zero(t, s.MovingTimeHours)
	assert.Zero(t, s.AverageSpeedKmh)
	assert.InDelta(t, 18, s.MaxSpeedKmh, 1e-9)
}

func TestSummarizeDerivedSpeeds(t *testing.T) {
	s := Summarize([]pipeline.ConfirmedPing{
		pingAt(0, 0),
		pingAt(1000, time.Minute),
		pingAt(2000, 2*time.Minute),
	})
	assert.Equal(t, 3, s.PingCount)
	assert.InDelta(t, 2, s.TotalDistanceKm, 1e-6)
	assert.InDelta(t, 2.0/60, s.MovingTimeHours, 1e-12)
	assert.InDelta(t, 60, s.AverageSpeedKmh, 1e-4)
	assert.InDelta(t, 60, s.MaxSpeedKmh, 1e-4)
	assert.InDelta(t, 100, s.MovementEfficiencyPercent, 1e-9)
}

func TestSummarizeReportedSpeedWins(t *testing.T) {
	slow := pingAt(1000, time.Minute)
	slow.SpeedMps = pipeline.Float(2)
	s := Summarize([]pipeline.ConfirmedPing{pingAt(0, 0), slow})

	// derived 60 km/h is ignored where the ping reports its own speed
	assert.InDelta(t, 7.2, s.MaxSpeedKmh, 1e-9)
}

func TestSummarizeMovementEfficiency(t *testing.T) {
	s := Summarize([]pipeline.ConfirmedPing{
		pingAt(0, 0),
		pingAt(1000, time.Minute),
		pingAt(1000, 2*time.Minute),
	})
	assert.InDelta(t, 50, s.MovementEfficiencyPercent, 1e-9)

	a, err := NewAnalyzer(AnalyzerConfig{Ratings: DefaultRatingBands(), MovingSpeedKmh: 100})
	require.NoError(t, err)
	s = a.Summarize([]pipeline.ConfirmedPing{pingAt(0, 0), pingAt(1000, time.Minute)})
	assert.Zero(t, s.MovementEfficiencyPercent)
}

func TestSummarizeSameTimestamp(t *testing.T) {
	s := Summarize([]pipeline.ConfirmedPing{pingAt(0, 0), pingAt(100, 0)})
	assert.InDelta(t, 0.1, s.TotalDistanceKm, 1e-6)
	assert.Zero(t, s.MovingTimeHours)
	assert.Zero(t, s.AverageSpeedKmh)
	assert.Zero(t, s.MaxSpeedKmh)
}
