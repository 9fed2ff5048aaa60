package middlewares

import (
	"strconv"
	"time"

	"space-pulse/cmd/server/handlers/httperr"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricsNamespace = "spacepulse"
	metricsPath      = "/metrics"
)

// normalizeRoutePath returns the route template ("/spaces/:id") so ids never become label
// values. Unmatched requests keep their raw path.
func normalizeRoutePath(c *fiber.Ctx) string {
	if route := c.Route(); route != nil {
		return route.Path
	}
	return c.Path()
}

// normalizeStatus buckets 2xx, 4xx and 5xx; anything else keeps its code.
func normalizeStatus(status int) string {
	switch status / 100 {
	case 2:
		return "2xx"
	case 4:
		return "4xx"
	case 5:
		return "5xx"
	}
	return strconv.Itoa(status)
}

type httpMetrics struct {
	duration *prometheus.HistogramVec
	total    *prometheus.CounterVec
	inFlight prometheus.Gauge
}

func newHTTPMetrics() *httpMetrics {
	labels := []string{"method", "path", "status"}
	return &httpMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, labels),
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, labels),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Requests currently being served",
		}),
	}
}

func (m *httpMetrics) handler(c *fiber.Ctx) error {
	if c.Path() == metricsPath {
		return c.Next()
	}

	m.inFlight.Inc()
	defer m.inFlight.Dec()

	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	if err != nil {
		status = errorStatus(err)
	}
	labels := []string{c.Method(), normalizeRoutePath(c), normalizeStatus(status)}
	m.duration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
	m.total.WithLabelValues(labels...).Inc()
	return err
}

// errorStatus is the status the global error handler will answer err with; it has not
// written the response yet when the middleware sees the error.
func errorStatus(err error) int {
	return httperr.From(err).Status
}

// AttachMetrics gives app its own Prometheus registry, times every request and serves
// /metrics. The registry also carries the Go runtime and process collectors and any extra
// collectors passed in, such as the realtime hub counters.
func AttachMetrics(app *fiber.App, extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	m := newHTTPMetrics()

	reg.MustRegister(
		m.duration, m.total, m.inFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	reg.MustRegister(extra...)

	app.Use(m.handler)
	app.Get(metricsPath, adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	return reg
}
