package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReadingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "routetrack_readings_total",
		Help: "Raw GPS readings seen by the pipeline, by outcome",
	}, []string{"outcome"})
	GateRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "routetrack_gate_rejections_total",
		Help: "Smoothed locations rejected by the movement gate, by reason",
	}, []string{"reason"})
	PingsDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "routetrack_pings_dispatched_total",
		Help: "Confirmed pings accepted by the collaborator",
	})
	DispatchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "routetrack_dispatch_failures_total",
		Help: "Confirmed pings the collaborator failed to accept",
	})
	RealtimeReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "routetrack_realtime_reconnects_total",
		Help: "Realtime reconnect attempts, by result",
	}, []string{"result"})
	DuplicatePings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "routetrack_realtime_duplicate_pings_total",
		Help: "Realtime ping messages suppressed as duplicates",
	})
	PingsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "routetrack_pings_ingested_total",
		Help: "Pings persisted by the API",
	})
	StreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "routetrack_stream_clients",
		Help: "Connected realtime stream clients",
	})
)
