package realtime

import (
	"slices"
	"sync"
	"time"

	"backend-routetrack/internal/pipeline"
)

const (
	DefaultDedupeWindow  = time.Second
	DefaultDedupeHorizon = 15 * time.Minute
)

// PingDeduper rejects pings within window of one already delivered. Pings
// older than horizon behind a route's newest are treated as delivered.
type PingDeduper struct {
	window  time.Duration
	horizon time.Duration
	mu      sync.Mutex
	seen    map[string][]time.Time
}

func NewPingDeduper(window time.Duration) *PingDeduper {
	if window <= 0 {
		window = DefaultDedupeWindow
	}
	return &PingDeduper{window: window, horizon: DefaultDedupeHorizon, seen: map[string][]time.Time{}}
}

func (d *PingDeduper) Accept(p pipeline.ConfirmedPing) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	times := d.seen[p.RouteID]
	if n := len(times); n > 0 && times[n-1].Sub(p.CreatedAt) > d.horizon {
		return false
	}
	i, _ := slices.BinarySearchFunc(times, p.CreatedAt, func(a, b time.Time) int { return a.Compare(b) })
	if i < len(times) && times[i].Sub(p.CreatedAt) < d.window {
		return false
	}
	if i > 0 && p.CreatedAt.Sub(times[i-1]) < d.window {
		return false
	}
	times = slices.Insert(times, i, p.CreatedAt)
	cutoff := times[len(times)-1].Add(-d.horizon)
	first, _ := slices.BinarySearchFunc(times, cutoff, func(a, b time.Time) int { return a.Compare(b) })
	if first > 0 {
		times = slices.Clone(times[first:])
	}
	d.seen[p.RouteID] = times
	return true
}

func (d *PingDeduper) Filter(pings []pipeline.ConfirmedPing) []pipeline.ConfirmedPing {
	kept := make([]pipeline.ConfirmedPing, 0, len(pings))
	for _, p := range pings {
		if d.Accept(p) {
			kept = append(kept, p)
		}
	}
	return kept
}

func (d *PingDeduper) Known(routeID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen[routeID])
}

func (d *PingDeduper) Reset(routeID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, routeID)
}
