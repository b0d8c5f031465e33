// Package metrics exposes Prometheus collectors for the session pool,
// transactions and the HTTP API. Each Collector owns its registry.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophforum/internal/dbx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "forum"

type Collector struct {
	registry *prometheus.Registry

	acquireWait   prometheus.Histogram
	acquireErrors *prometheus.CounterVec
	releases      *prometheus.CounterVec
	transactions  *prometheus.CounterVec

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

var _ dbx.Observer = (*Collector)(nil)

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		acquireWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "acquire_wait_seconds",
			Help:      "Time spent waiting for a pooled connection.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		}),
		acquireErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "acquire_errors_total",
			Help:      "Failed acquire attempts by reason.",
		}, []string{"reason"}),
		releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "releases_total",
			Help:      "Released sessions by outcome.",
		}, []string{"outcome"}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "transactions_total",
			Help:      "Finished transactions by outcome.",
		}, []string{"outcome"}),

		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"method", "route"}),
	}

	c.registry.MustRegister(
		c.acquireWait,
		c.acquireErrors,
		c.releases,
		c.transactions,
		c.httpInFlight,
		c.httpRequests,
		c.httpDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)

	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// TrackPool exports the pool's capacity and current and peak usage as
// gauges read from stats at scrape time.
func (c *Collector) TrackPool(stats func() dbx.Stats) {
	c.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "capacity",
			Help:      "Maximum number of concurrently checked out sessions.",
		}, func() float64 { return float64(stats().Capacity) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "in_use",
			Help:      "Sessions currently checked out.",
		}, func() float64 { return float64(stats().InUse) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "peak_in_use",
			Help:      "Highest number of sessions checked out at once.",
		}, func() float64 { return float64(stats().PeakInUse) }),
	)
}

func (c *Collector) ObserveAcquire(wait time.Duration, err error) {
	c.acquireWait.Observe(wait.Seconds())
	if err != nil {
		c.acquireErrors.WithLabelValues(acquireErrorReason(err)).Inc()
	}
}

func (c *Collector) ObserveRelease(_ int64, discarded bool) {
	outcome := "returned"
	if discarded {
		outcome = "discarded"
	}
	c.releases.WithLabelValues(outcome).Inc()
}

func (c *Collector) ObserveTransaction(committed bool) {
	outcome := "aborted"
	if committed {
		outcome = "committed"
	}
	c.transactions.WithLabelValues(outcome).Inc()
}

// RequestStarted bumps the in-flight gauge; call the returned func when done.
func (c *Collector) RequestStarted() func() {
	c.httpInFlight.Inc()
	return c.httpInFlight.Dec
}

func (c *Collector) ObserveRequest(method, route string, status int, d time.Duration) {
	method = strings.ToUpper(method)
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func acquireErrorReason(err error) string {
	switch {
	case errors.Is(err, dbx.ErrPoolExhausted):
		return "exhausted"
	case errors.Is(err, dbx.ErrPoolClosed):
		return "closed"
	case errors.Is(err, dbx.ErrConnectionFault):
		return "fault"
	default:
		return "canceled"
	}
}
