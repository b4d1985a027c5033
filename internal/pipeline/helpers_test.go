package pipeline

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"
)

// metres per degree of latitude on the haversine sphere
var metersPerDegLat = 6371000.0 * math.Pi / 180

func north(lat, meters float64) float64 {
	return lat + meters/metersPerDegLat
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var errCollaborator = errors.New("collaborator unavailable")

type fakeDispatcher struct {
	mu        sync.Mutex
	started   []string
	stopped   []string
	pings     []ConfirmedPing
	failures  int
	failNext  int
	startErr  error
	stopErr   error
	delay     time.Duration
	inFlight  int
	maxFlight int
}

func (d *fakeDispatcher) StartSession(_ context.Context, routeID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return d.startErr
	}
	d.started = append(d.started, routeID)
	return nil
}

func (d *fakeDispatcher) SubmitPing(_ context.Context, p ConfirmedPing) (ConfirmedPing, error) {
	d.mu.Lock()
	d.inFlight++
	if d.inFlight > d.maxFlight {
		d.maxFlight = d.inFlight
	}
	d.mu.Unlock()

	if d.delay > 0 {
		time.Sleep(d.delay)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.inFlight--
	if d.failNext > 0 {
		d.failNext--
		d.failures++
		return ConfirmedPing{}, errCollaborator
	}
	d.pings = append(d.pings, p)
	return p, nil
}

func (d *fakeDispatcher) StopSession(_ context.Context, routeID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = append(d.stopped, routeID)
	return d.stopErr
}

func (d *fakeDispatcher) Pings() []ConfirmedPing {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ConfirmedPing, len(d.pings))
	copy(out, d.pings)
	return out
}
