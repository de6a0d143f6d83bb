package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamcart_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamcart_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Realtime metrics
	OpenConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamcart_open_connections",
			Help: "Currently open realtime connections",
		},
	)

	ActiveRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamcart_active_rooms",
			Help: "Currently live stream rooms",
		},
	)

	RoomViewers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamcart_room_viewers",
			Help: "Viewers across all live rooms",
		},
	)

	ChatMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamcart_chat_messages_sent_total",
			Help: "Direct chat messages persisted",
		},
		[]string{"delivery"}, // "live" or "queued"
	)

	OfflineFlushes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streamcart_offline_flushes_total",
			Help: "Queued messages pushed on reconnect",
		},
	)

	SignalsRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamcart_signals_relayed_total",
			Help: "Peer signaling messages relayed",
		},
		[]string{"type"}, // offer, answer, ice-candidate
	)

	RoomEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamcart_room_events_total",
			Help: "Room-wide events broadcast",
		},
		[]string{"type"},
	)

	DroppedPushes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streamcart_dropped_pushes_total",
			Help: "Events dropped because a connection's send buffer was full",
		},
	)

	EventErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamcart_event_errors_total",
			Help: "Inbound events that failed handling",
		},
		[]string{"kind"},
	)

	// Infrastructure metrics
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamcart_store_latency_seconds",
			Help:    "Durable store operation latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
		[]string{"op"},
	)

	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "streamcart_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)
)
