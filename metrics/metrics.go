package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "messaging"

var (
	ConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of live websocket connections.",
		},
	)

	PresenceTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_transitions_total",
			Help:      "Presence edges by direction.",
		},
		[]string{"transition"},
	)

	MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages persisted by kind.",
		},
		[]string{"kind"},
	)

	ReceiptTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receipt_transitions_total",
			Help:      "Receipts advanced by target status.",
		},
		[]string{"status"},
	)

	FanoutDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_dropped_total",
			Help:      "Frames dropped because a connection was closed or too slow.",
		},
	)

	EventsHandled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_handled_total",
			Help:      "Inbound live events by name and outcome.",
		},
		[]string{"event", "outcome"},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(ConnectionsActive)
	prometheus.MustRegister(PresenceTransitions)
	prometheus.MustRegister(MessagesSent)
	prometheus.MustRegister(ReceiptTransitions)
	prometheus.MustRegister(FanoutDropped)
	prometheus.MustRegister(EventsHandled)
	prometheus.MustRegister(HTTPRequests)
	prometheus.MustRegister(HTTPDuration)
}
