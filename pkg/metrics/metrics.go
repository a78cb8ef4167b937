package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widget_stream_requests_total",
			Help: "Answer stream requests by outcome",
		},
		[]string{"outcome"},
	)

	StreamDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "widget_stream_duration_seconds",
			Help:    "Time from request to the end of an answer stream",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	ConfigPersists = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widget_config_persist_total",
			Help: "Debounced configuration saves by result",
		},
		[]string{"result"},
	)

	SessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widget_session_transitions_total",
			Help: "Widget state machine transitions",
		},
		[]string{"from", "to"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "widget_sessions_active",
			Help: "Number of mounted widget sessions",
		},
	)
)
