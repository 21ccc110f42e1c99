package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricsSet owns a private registry so tests can build as many
// servers as they like without duplicate-registration panics.
type metricsSet struct {
	registry *prometheus.Registry

	sessionsCreated    prometheus.Counter
	sessionsRevealed   prometheus.Counter
	participantsJoined prometheus.Counter
	scoresSubmitted    prometheus.Counter
	eventsBroadcast    prometheus.Counter
	socketsOpen        prometheus.Gauge
	roomsActive        prometheus.Gauge
	requestDuration    *prometheus.HistogramVec
}

func newMetrics() *metricsSet {
	m := &metricsSet{
		registry: prometheus.NewRegistry(),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "whiskeycanon",
			Name:      "sessions_created_total",
			Help:      "Tasting sessions created.",
		}),
		sessionsRevealed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "whiskeycanon",
			Name:      "sessions_revealed_total",
			Help:      "Sessions that reached reveal.",
		}),
		participantsJoined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "whiskeycanon",
			Name:      "participants_joined_total",
			Help:      "Tasters joined across all sessions.",
		}),
		scoresSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "whiskeycanon",
			Name:      "scores_submitted_total",
			Help:      "Ballots submitted, first submissions and revisions both.",
		}),
		eventsBroadcast: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "whiskeycanon",
			Name:      "events_broadcast_total",
			Help:      "Realtime events fanned out to session rooms.",
		}),
		socketsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "whiskeycanon",
			Name:      "websocket_connections",
			Help:      "Currently open WebSocket connections.",
		}),
		roomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "whiskeycanon",
			Name:      "rooms_active",
			Help:      "Session rooms currently held in memory.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "whiskeycanon",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method, route, and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sessionsCreated,
		m.sessionsRevealed,
		m.participantsJoined,
		m.scoresSubmitted,
		m.eventsBroadcast,
		m.socketsOpen,
		m.roomsActive,
		m.requestDuration,
	)

	return m
}

func (m *metricsSet) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
