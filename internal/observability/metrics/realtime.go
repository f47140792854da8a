package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	DropReasonBufferFull    = "buffer_full"
	DropReasonSessionClosed = "session_closed"
)

// RealtimeMetrics tracks live connection state of the realtime layer.
type RealtimeMetrics struct {
	sessions  prometheus.Gauge
	rooms     prometheus.Gauge
	published *prometheus.CounterVec
	delivered prometheus.Counter
	dropped   *prometheus.CounterVec
}

var (
	realtimeMetricsOnce sync.Once
	realtimeMetrics     *RealtimeMetrics
)

// Realtime returns the process-wide realtime metrics registered on the default registerer.
func Realtime(cfg Config) *RealtimeMetrics {
	realtimeMetricsOnce.Do(func() {
		realtimeMetrics = NewRealtimeMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return realtimeMetrics
}

func NewRealtimeMetrics(registerer prometheus.Registerer, cfg Config) *RealtimeMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "researchhub"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &RealtimeMetrics{
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "researchhub_realtime_sessions",
			Help:        "Live realtime sessions.",
			ConstLabels: constLabels,
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "researchhub_realtime_rooms",
			Help:        "Rooms with at least one live session.",
			ConstLabels: constLabels,
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "researchhub_realtime_events_published_total",
			Help:        "Events published to rooms by event type.",
			ConstLabels: constLabels,
		}, []string{"event_type"}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "researchhub_realtime_deliveries_total",
			Help:        "Events queued onto a session send buffer.",
			ConstLabels: constLabels,
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "researchhub_realtime_deliveries_dropped_total",
			Help:        "Per-session deliveries dropped without blocking the publisher.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
	}

	registerer.MustRegister(m.sessions, m.rooms, m.published, m.delivered, m.dropped)
	return m
}

func (m *RealtimeMetrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}

func (m *RealtimeMetrics) SetRooms(n int) {
	if m == nil {
		return
	}
	m.rooms.Set(float64(n))
}

func (m *RealtimeMetrics) RecordPublished(eventType string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(strings.TrimSpace(eventType)).Inc()
}

func (m *RealtimeMetrics) RecordDelivered(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.delivered.Add(float64(n))
}

func (m *RealtimeMetrics) RecordDropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}
