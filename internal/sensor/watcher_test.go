package sensor

import (
	"context"
	"errors"
	"testing"
	"time"

	"backend-routetrack/internal/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, readings <-chan pipeline.RawReading, errc <-chan error) ([]pipeline.RawReading, error) {
	t.Helper()
	var got []pipeline.RawReading
	timeout := time.After(2 * time.Second)
	for readings != nil {
		select {
		case r, ok := <-readings:
			if !ok {
				readings = nil
				continue
			}
			got = append(got, r)
		case <-timeout:
			t.Fatal("watcher did not finish")
		}
	}
	return got, <-errc
}

func TestWatcherDropsStaleReadings(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	src := &scriptedSource{readings: []pipeline.RawReading{
		{Lat: 1, AccuracyMeters: 5, CapturedAt: now.Add(-45 * time.Second)},
		{Lat: 2, AccuracyMeters: 5, CapturedAt: now.Add(-5 * time.Second)},
		{Lat: 3, AccuracyMeters: 5},
	}}
	w := NewWatcher(src, DefaultWatcherConfig(), WithWatcherClock(func() time.Time { return now }))

	readings, errc := w.Watch(context.Background())
	got, err := drain(t, readings, errc)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2.0, got[0].Lat)
	assert.Equal(t, 3.0, got[1].Lat)
}

func TestWatcherTimesOut(t *testing.T) {
	src := &scriptedSource{hold: true}
	w := NewWatcher(src, WatcherConfig{Timeout: 20 * time.Millisecond})

	readings, errc := w.Watch(context.Background())
	got, err := drain(t, readings, errc)
	assert.Empty(t, got)
	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, Timeout, se.Kind)
	assert.Contains(t, se.Message(), "did not report a position")
}

func TestWatcherReportsSourceFailure(t *testing.T) {
	src := &scriptedSource{err: &Error{Kind: PermissionDenied, Err: errors.New("EACCES")}}
	w := NewWatcher(src, DefaultWatcherConfig())

	readings, errc := w.Watch(context.Background())
	_, err := drain(t, readings, errc)
	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, PermissionDenied, se.Kind)

	plain := NewWatcher(&scriptedSource{err: errors.New("bus error")}, DefaultWatcherConfig())
	readings, errc = plain.Watch(context.Background())
	_, err = drain(t, readings, errc)
	require.True(t, errors.As(err, &se))
	assert.Equal(t, PositionUnavailable, se.Kind)
}

func TestWatcherStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := NewWatcher(&scriptedSource{hold: true}, DefaultWatcherConfig())
	readings, errc := w.Watch(ctx)
	cancel()

	got, err := drain(t, readings, errc)
	assert.Empty(t, got)
	assert.NoError(t, err)
}

func TestErrorKinds(t *testing.T) {
	for _, kind := range []ErrorKind{PermissionDenied, PositionUnavailable, Timeout} {
		e := &Error{Kind: kind}
		assert.NotEmpty(t, e.Message())
		assert.Equal(t, "sensor "+kind.String(), e.Error())
	}
	assert.Nil(t, AsError(nil))
	assert.Equal(t, "unknown", ErrorKind(0).String())
}
