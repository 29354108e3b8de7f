// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file exposes Prometheus instrumentation for HTTP traffic. Labels are
// kept bounded:
//
//   - surface: "api" (merchant dashboard), "public" (customer portal) or "ops"
//   - method:  HTTP method
//   - path:    the registered Gin route (e.g. /api/v1/refunds/:id), falling
//     back to "unmatched" so unknown URLs cannot blow up cardinality
//   - status:  numeric status code as a string
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	ctxKeySurface  = "metrics.surface"
	defaultSurface = "ops"
	unmatchedPath  = "unmatched"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"surface", "method", "path", "status"},
	)

	// Status is omitted to keep the histogram small.
	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		},
		[]string{"surface", "method", "path"},
	)

	// The surface is unknown until the group middleware ran, so in-flight
	// requests are counted globally.
	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// Portal bodies carry base64 photos, hence the request-size histogram.
	httpReqSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_size_bytes",
			Help: "Size of HTTP request bodies in bytes.",
			Buckets: []float64{
				1 << 10, 10 << 10, 100 << 10, // 1..100KiB
				1 << 20, 5 << 20, 10 << 20, 25 << 20, 40 << 20, // 1..40MiB
			},
		},
		[]string{"surface", "method", "path"},
	)

	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_response_size_bytes",
			Help: "Size of HTTP responses in bytes.",
			Buckets: []float64{
				200, 500, 1 << 10, 5 << 10, // 200B..5KiB
				25 << 10, 100 << 10, 500 << 10, // 25..500KiB
				1 << 20, 5 << 20, // 1..5MiB (CSV exports)
			},
		},
		[]string{"surface", "method", "path"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpReqSize, httpRespSize)
}

// Surface tags the requests of a route group for Metrics. Install it on the
// group before any handler runs.
func Surface(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ctxKeySurface, name)
		c.Next()
	}
}

// Metrics records request counts, latency, in-flight requests and body sizes.
// Install it globally; the surface is read after the handler chain ran, so
// group-level Surface tags are visible.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		surface := defaultSurface
		if v, ok := c.Get(ctxKeySurface); ok {
			if s, ok := v.(string); ok && s != "" {
				surface = s
			}
		}
		path := c.FullPath()
		if path == "" {
			path = unmatchedPath
		}
		method := c.Request.Method

		httpReqs.WithLabelValues(surface, method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(surface, method, path).Observe(time.Since(start).Seconds())
		if n := c.Request.ContentLength; n > 0 {
			httpReqSize.WithLabelValues(surface, method, path).Observe(float64(n))
		}
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(surface, method, path).Observe(float64(size))
		}
	}
}
