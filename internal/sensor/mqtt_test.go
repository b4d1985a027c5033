package sensor

import (
	"context"
	"errors"
	"testing"
	"time"

	"backend-routetrack/internal/pipeline"

	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMQTTSourceDecodesReadings(t *testing.T) {
	sub := newFakeSubscriber()
	src := NewMQTTSource(sub, "routetrack/readings", nil)
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	src.now = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan pipeline.RawReading, 4)
	done := make(chan error, 1)
	go func() { done <- src.Stream(ctx, out) }()

	select {
	case <-sub.subscribed:
	case <-time.After(time.Second):
		t.Fatal("subscribe not called")
	}

	sub.deliver("routetrack/readings", `{"lat":25.2,"lon":55.27,"accuracy_m":12,"speed_mps":3.5,"captured_at":"2024-05-01T07:59:50Z"}`)
	sub.deliver("routetrack/readings", `{"lat":25.3,"lon":55.28}`)
	sub.deliver("routetrack/readings", `not json`)

	first := <-out
	assert.Equal(t, 12.0, first.AccuracyMeters)
	require.NotNil(t, first.SpeedMps)
	assert.Equal(t, 3.5, *first.SpeedMps)
	assert.Nil(t, first.HeadingDegrees)
	assert.Equal(t, now.Add(-10*time.Second), first.CapturedAt)

	second := <-out
	assert.Equal(t, -1.0, second.AccuracyMeters, "missing accuracy is marked negative")
	assert.Equal(t, now, second.CapturedAt)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []string{"routetrack/readings"}, sub.unsubscribed)
	assert.Empty(t, out)
}

func TestMQTTSourceSubscribeErrors(t *testing.T) {
	sub := newFakeSubscriber()
	sub.subErr = packets.ErrorRefusedNotAuthorised
	err := NewMQTTSource(sub, "t", nil).Stream(context.Background(), make(chan pipeline.RawReading))
	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, PermissionDenied, se.Kind)

	sub = newFakeSubscriber()
	sub.subErr = errors.New("network down")
	err = NewMQTTSource(sub, "t", nil).Stream(context.Background(), make(chan pipeline.RawReading))
	require.True(t, errors.As(err, &se))
	assert.Equal(t, PositionUnavailable, se.Kind)
}
