package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collabdocs", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collabdocs", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	CollabConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "collabdocs", Name: "collab_connections", Help: "Open collaboration websocket connections."},
	)
	CollabRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "collabdocs", Name: "collab_rooms", Help: "Document rooms with at least one local connection."},
	)
	CollabEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collabdocs", Name: "collab_events_total", Help: "Client events processed, by event name."},
		[]string{"event"},
	)
	CollabDroppedFrames = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "collabdocs", Name: "collab_dropped_frames_total", Help: "Outbound frames dropped because a client queue was full."},
	)
	DocumentStoreErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collabdocs", Name: "document_store_errors_total", Help: "Failed document store calls, by operation."},
		[]string{"op"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(CollabConnections)
	reg.MustRegister(CollabRooms)
	reg.MustRegister(CollabEvents)
	reg.MustRegister(CollabDroppedFrames)
	reg.MustRegister(DocumentStoreErrors)
}
