package realtime

import (
	"space-pulse/internal/events"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the realtime collectors. A nil *Metrics records nothing.
type Metrics struct {
	published     *prometheus.CounterVec
	dropped       prometheus.Counter
	subscriptions prometheus.Gauge
	connections   prometheus.Gauge
}

// NewMetrics builds the collectors. Register them with Collectors().
func NewMetrics() *Metrics {
	return &Metrics{
		published: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realtime_events_published_total",
				Help: "Events handed to the hub, by event type",
			},
			[]string{"type"},
		),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realtime_events_dropped_total",
			Help: "Frames dropped because a connection outbox was full",
		}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_subscriptions",
			Help: "Active channel subscriptions across all connections",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_connections",
			Help: "Attached stream connections",
		}),
	}
}

// Collectors returns everything that needs registering.
func (m *Metrics) Collectors() []prometheus.Collector {
	if m == nil {
		return nil
	}
	return []prometheus.Collector{m.published, m.dropped, m.subscriptions, m.connections}
}

func (m *Metrics) eventPublished(t events.Type) {
	if m != nil {
		m.published.WithLabelValues(string(t)).Inc()
	}
}

func (m *Metrics) frameDropped() {
	if m != nil {
		m.dropped.Inc()
	}
}

func (m *Metrics) subscriptionsChanged(delta int) {
	if m != nil {
		m.subscriptions.Add(float64(delta))
	}
}

func (m *Metrics) connectionsChanged(delta int) {
	if m != nil {
		m.connections.Add(float64(delta))
	}
}
