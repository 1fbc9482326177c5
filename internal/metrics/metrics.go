package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the service counters. Each instance has its own registry
// so tests can build several apps in one process.
type Metrics struct {
	Registry         *prometheus.Registry
	HTTPRequests     *prometheus.CounterVec
	ReadingsReceived *prometheus.CounterVec
	LightbulbPublish *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "garden_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		ReadingsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "garden_readings_received_total",
			Help: "Measure data samples stored, by transport.",
		}, []string{"transport"}),
		LightbulbPublish: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "garden_lightbulb_publish_total",
			Help: "Lightbulb state notifications sent to the broker, by result.",
		}, []string{"result"}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		m.HTTPRequests,
		m.ReadingsReceived,
		m.LightbulbPublish,
	)
	return m
}
