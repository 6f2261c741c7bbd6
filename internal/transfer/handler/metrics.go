package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/transfer/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	postingRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "posting_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	postingRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "posting_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	postingTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "posting_transitions_total",
		Help: "Transfer operations by operation and outcome.",
	}, []string{"op", "outcome"})

	postingPartialPostingsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "posting_partial_postings_total",
		Help: "Transfers flipped to posted whose ledger credit did not complete.",
	})

	postingReconciliationFindings = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "posting_reconciliation_findings",
		Help: "Findings of the most recent reconciliation scan by kind.",
	}, []string{"kind"})

	postingFeedDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "posting_feed_dropped_events_total",
		Help: "Change feed events dropped for slow subscribers.",
	})

	postingWebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "posting_webhook_deliveries_total",
		Help: "Total webhook deliveries by success status.",
	}, []string{"status"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		postingRequestsTotal.WithLabelValues(method, path, status).Inc()
		postingRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordTransition records the outcome of a transfer operation.
func RecordTransition(op, outcome string) {
	postingTransitionsTotal.WithLabelValues(op, outcome).Inc()
	if outcome == service.OutcomePartial {
		postingPartialPostingsTotal.Inc()
	}
}

// SetReconciliationFindings replaces the findings gauge with counts per kind.
func SetReconciliationFindings(counts map[string]int) {
	for kind, n := range counts {
		postingReconciliationFindings.WithLabelValues(kind).Set(float64(n))
	}
}

// RecordFeedDrop records an event dropped for a slow subscriber.
func RecordFeedDrop() {
	postingFeedDroppedTotal.Inc()
}

// RecordWebhookDelivery records a webhook delivery attempt.
func RecordWebhookDelivery(success bool) {
	if success {
		postingWebhookDeliveriesTotal.WithLabelValues("success").Inc()
	} else {
		postingWebhookDeliveriesTotal.WithLabelValues("failure").Inc()
	}
}
