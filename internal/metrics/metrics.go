// Package metrics exposes bridge counters through a private Prometheus
// registry. All record methods are nil-safe so callers need no guards
// when metrics are disabled.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the bridge metric families.
type Collector struct {
	registry *prometheus.Registry

	messages     *prometheus.CounterVec
	forwards     *prometheus.CounterVec
	throttled    *prometheus.CounterVec
	authFailures *prometheus.CounterVec
	refreshes    *prometheus.CounterVec
	forwardTime  *prometheus.HistogramVec
}

// NewCollector builds a Collector with its own registry, so tests can run
// several instances without duplicate registration panics.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c := &Collector{
		registry: reg,
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "impbridge_messages_total",
			Help: "Messages handled, by direction, route and response status.",
		}, []string{"direction", "route", "status"}),
		forwards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "impbridge_forwards_total",
			Help: "Forwards to external clients, by client and response status.",
		}, []string{"client", "status"}),
		throttled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "impbridge_throttled_total",
			Help: "Messages rejected by the per-route rate limit.",
		}, []string{"route"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "impbridge_auth_failures_total",
			Help: "Requests rejected by signature verification.",
		}, []string{"route"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "impbridge_refresh_total",
			Help: "Routing refresh attempts, by direction and result.",
		}, []string{"direction", "result"}),
		forwardTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "impbridge_forward_duration_seconds",
			Help:    "Time spent delivering to external clients.",
			Buckets: prometheus.DefBuckets,
		}, []string{"client"}),
	}
	reg.MustRegister(c.messages, c.forwards, c.throttled, c.authFailures,
		c.refreshes, c.forwardTime)
	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) RecordMessage(direction, route string, status int) {
	if c == nil {
		return
	}
	c.messages.WithLabelValues(direction, route, strconv.Itoa(status)).Inc()
}

func (c *Collector) RecordForward(client string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.forwards.WithLabelValues(client, strconv.Itoa(status)).Inc()
	c.forwardTime.WithLabelValues(client).Observe(elapsed.Seconds())
}

func (c *Collector) RecordThrottled(route string) {
	if c == nil {
		return
	}
	c.throttled.WithLabelValues(route).Inc()
}

func (c *Collector) RecordAuthFailure(route string) {
	if c == nil {
		return
	}
	c.authFailures.WithLabelValues(route).Inc()
}

func (c *Collector) RecordRefresh(direction string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.refreshes.WithLabelValues(direction, result).Inc()
}
