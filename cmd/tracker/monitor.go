package main

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"backend-routetrack/internal/apiclient"
	"backend-routetrack/internal/config"
	"backend-routetrack/internal/pipeline"
	"backend-routetrack/internal/realtime"
	"backend-routetrack/internal/route"
	"backend-routetrack/internal/stream"

	"github.com/sirupsen/logrus"
)

type monitor struct {
	routeID  string
	client   *apiclient.Client
	analyzer *route.Analyzer
	channel  *realtime.Channel
	log      logrus.FieldLogger

	mu           sync.Mutex
	planned      []route.Visit
	pings        []pipeline.ConfirmedPing
	optimization route.Optimization
	summary      route.Summary
	degraded     bool
}

func newMonitor(cfg config.Config, client *apiclient.Client, analyzer *route.Analyzer, lg logrus.FieldLogger) *monitor {
	m := &monitor{
		routeID:  cfg.RouteID,
		client:   client,
		analyzer: analyzer,
		log:      lg.WithFields(logrus.Fields{"route_id": cfg.RouteID, "component": "monitor"}),
	}
	m.channel = realtime.New(cfg.RealtimeURL, cfg.RouteID, realtime.Handlers{
		OnPing:       m.onPing,
		OnInitial:    m.onInitial,
		OnSummary:    m.onSummary,
		OnStatus:     m.onStatus,
		OnError:      m.onError,
		OnConnection: m.onConnection,
	}, realtime.WithReconnectDelay(cfg.ReconnectDelay), realtime.WithLogger(lg))
	return m
}

func (m *monitor) start(ctx context.Context) error {
	r, err := m.client.FetchRoute(ctx, m.routeID)
	if err != nil {
		m.log.WithError(err).Warn("planned route unavailable, optimization will use an empty plan")
	} else {
		m.mu.Lock()
		m.planned = r.Visits
		m.mu.Unlock()
	}
	return m.channel.Connect(ctx)
}

func (m *monitor) close() {
	_ = m.channel.Close()
}

func (m *monitor) onInitial(d realtime.InitialData) {
	m.mu.Lock()
	m.pings = append(m.pings, d.Pings...)
	m.recomputeLocked()
	m.mu.Unlock()
	m.log.WithField("pings", len(d.Pings)).Info("realtime backfill received")
}

func (m *monitor) onPing(p pipeline.ConfirmedPing) {
	m.mu.Lock()
	m.pings = append(m.pings, p)
	m.recomputeLocked()
	sum, opt := m.summary, m.optimization
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{
		"lat":           p.Lat,
		"lon":           p.Lon,
		"distance_km":   sum.TotalDistanceKm,
		"efficiency":    opt.EfficiencyPercentage,
		"rating":        opt.EfficiencyRating,
		"ping_count":    sum.PingCount,
		"avg_speed_kmh": sum.AverageSpeedKmh,
	}).Info("ping received")
}

func (m *monitor) onSummary(a apiclient.Analytics) {
	m.log.WithFields(logrus.Fields{
		"distance_km": a.Summary.TotalDistanceKm,
		"ping_count":  a.Summary.PingCount,
	}).Debug("server summary")
}

func (m *monitor) onStatus(s stream.TrackingStatus) {
	m.log.WithFields(logrus.Fields{"active": s.Active, "session_id": s.SessionID}).Info("tracking status changed")
}

func (m *monitor) onConnection(s stream.ConnectionStatus) {
	m.log.WithField("connected", s.Connected).Info("realtime connection")
}

func (m *monitor) onError(err error) {
	if !errors.Is(err, realtime.ErrDegraded) {
		m.log.WithError(err).Warn("realtime error")
		return
	}
	m.mu.Lock()
	m.degraded = true
	m.mu.Unlock()
	m.log.WithError(err).Warn("live updates degraded; summary and pings remain available over HTTP")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a, ferr := m.client.FetchAnalytics(ctx, m.routeID)
	switch {
	case errors.Is(ferr, apiclient.ErrNoData):
		m.log.Info(apiclient.ErrNoData.Error())
	case ferr != nil:
		m.log.WithError(ferr).Warn("manual analytics refresh failed")
	default:
		m.log.WithField("distance_km", a.Summary.TotalDistanceKm).Info("analytics refreshed over HTTP")
	}
}

func (m *monitor) recomputeLocked() {
	slices.SortStableFunc(m.pings, func(a, b pipeline.ConfirmedPing) int { return a.CreatedAt.Compare(b.CreatedAt) })
	m.summary = m.analyzer.Summarize(m.pings)
	m.optimization = m.analyzer.Analyze(m.summary, m.planned)
}

func (m *monitor) snapshot() (route.Summary, route.Optimization, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summary, m.optimization, m.degraded
}
