package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/powchain/internal/chain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	powRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "powchain_requests_total",
		Help: "HTTP requests by method, route template and response status.",
	}, []string{"method", "route", "status"})

	powRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "powchain_request_duration_seconds",
		Help:    "HTTP request latency in seconds by route template.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	powSearchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "powchain_searches_total",
		Help: "Total proof-of-work searches by outcome.",
	}, []string{"outcome"})

	powSearchAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "powchain_search_attempts",
		Help:    "Digests computed per proof-of-work search.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})

	powAuditsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "powchain_audits_total",
		Help: "Total chain integrity audits by result.",
	}, []string{"result"})

	powChainLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "powchain_chain_length",
		Help: "Number of records in the chain, including genesis.",
	})
)

// unmatchedRoute labels requests that hit no registered route, keeping
// raw URL paths out of the label set.
const unmatchedRoute = "unmatched"

// PrometheusMiddleware counts and times every request by route template.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := c.Request.Method
		powRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		powRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler serves the Prometheus exposition format.
func MetricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// RecordSearch records a finished proof-of-work search. Its signature
// matches chain.Observer.
func RecordSearch(_ chain.Record, res chain.SearchResult) {
	powSearchesTotal.WithLabelValues(res.Outcome.String()).Inc()
	powSearchAttempts.Observe(float64(res.Attempts))
}

// RecordAudit records a chain integrity audit result.
func RecordAudit(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	powAuditsTotal.WithLabelValues(result).Inc()
}

// SetChainLength sets the chain length gauge.
func SetChainLength(n int) {
	powChainLength.Set(float64(n))
}
