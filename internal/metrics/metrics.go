// Package metrics holds the Prometheus collectors shared by the three HTTP
// services. Each service builds its own Collector with its own registry, so
// /metrics exposes only that process's series.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every Prometheus metric for one service process.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Pipeline metrics
	TurnsIngested     prometheus.Counter
	MemoriesExtracted prometheus.Counter
	CapsulesComposed  prometheus.Counter
}

// NewCollector creates a collector with a fresh registry under namespace.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	turnsIngested := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "turns_ingested_total",
		Help:      "Total number of turns accepted for ingestion",
	})

	memoriesExtracted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "memories_extracted_total",
		Help:      "Total number of memories persisted by the worker",
	})

	capsulesComposed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "capsules_composed_total",
		Help:      "Total number of context capsules rendered",
	})

	registry.MustRegister(httpRequests, httpDuration, turnsIngested, memoriesExtracted, capsulesComposed)

	return &Collector{
		registry:          registry,
		HTTPRequests:      httpRequests,
		HTTPDuration:      httpDuration,
		TurnsIngested:     turnsIngested,
		MemoriesExtracted: memoriesExtracted,
		CapsulesComposed:  capsulesComposed,
	}
}

// ObserveRequest records one served HTTP request.
func (c *Collector) ObserveRequest(method, route string, status int, duration time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler serves this collector's registry on /metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
