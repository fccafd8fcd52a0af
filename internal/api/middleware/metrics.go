// Package middleware provides the gin middleware of the chat proxy server.
// This file holds the Prometheus collectors and the request metrics
// middleware.
package middleware

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/multichat/chatproxy/internal/usage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Context keys handlers set so the metrics middleware can label requests.
const (
	ContextKeyProvider = "chatproxy.provider"
	ContextKeyModel    = "chatproxy.model"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatproxy_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "chatproxy_http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds, including streamed bodies",
			// Streams can run for minutes.
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"method", "route"},
	)

	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatproxy_active_connections",
			Help: "Number of requests currently being served",
		},
	)

	providerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatproxy_provider_requests_total",
			Help: "Upstream provider calls by provider and model",
		},
		[]string{"provider", "model"},
	)

	providerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatproxy_provider_errors_total",
			Help: "Failed requests by provider and normalized error code",
		},
		[]string{"provider", "code"},
	)

	entitlementDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatproxy_entitlement_denials_total",
			Help: "Requests refused by the entitlement gate",
		},
		[]string{"reason"},
	)

	freeQuestionsDebited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatproxy_free_questions_debited_total",
			Help: "Free questions consumed by completed requests",
		},
	)

	tokenUsage = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatproxy_token_usage_total",
			Help: "Estimated tokens exchanged with providers",
		},
		[]string{"provider", "model", "type"}, // type: input or output
	)

	imagesGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatproxy_images_generated_total",
			Help: "Images returned by image providers",
		},
		[]string{"model"},
	)

	estimatedCost = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatproxy_estimated_cost_usd_total",
			Help: "Estimated upstream spend in USD",
		},
		[]string{"provider", "model"},
	)

	metricsRegistered atomic.Bool
	metricsEnabled    atomic.Bool
)

func init() {
	metricsEnabled.Store(true)
}

// SetMetricsEnabled toggles Prometheus metrics collection.
func SetMetricsEnabled(enabled bool) {
	metricsEnabled.Store(enabled)
}

// IsMetricsEnabled reports whether metrics are enabled.
func IsMetricsEnabled() bool {
	return metricsEnabled.Load()
}

// RegisterMetrics registers all collectors with the default registry.
// It is safe to call multiple times.
func RegisterMetrics() {
	if !metricsRegistered.CompareAndSwap(false, true) {
		return
	}
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		activeConnections,
		providerRequests,
		providerErrors,
		entitlementDenials,
		freeQuestionsDebited,
		tokenUsage,
		imagesGenerated,
		estimatedCost,
	)
}

// PrometheusMiddleware records request count and duration per route.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsMetricsEnabled() || c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		RegisterMetrics()

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDurationSeconds.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler serves /metrics, or 404 when metrics are disabled.
func MetricsHandler() gin.HandlerFunc {
	handler := promhttp.Handler()
	return func(c *gin.Context) {
		if !IsMetricsEnabled() {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		RegisterMetrics()
		handler.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordProviderRequest counts one upstream call.
func RecordProviderRequest(provider, model string) {
	if !IsMetricsEnabled() {
		return
	}
	providerRequests.WithLabelValues(provider, model).Inc()
}

// RecordProviderError counts one failed request by normalized error code.
func RecordProviderError(provider, code string) {
	if !IsMetricsEnabled() {
		return
	}
	providerErrors.WithLabelValues(provider, code).Inc()
}

// RecordEntitlementDenial counts one refused request.
func RecordEntitlementDenial(reason string) {
	if !IsMetricsEnabled() {
		return
	}
	entitlementDenials.WithLabelValues(reason).Inc()
}

// RecordFreeQuestionDebit counts one consumed free question.
func RecordFreeQuestionDebit() {
	if !IsMetricsEnabled() {
		return
	}
	freeQuestionsDebited.Inc()
}

// RecordUsage adds a completed request's estimated usage.
func RecordUsage(r usage.Record) {
	if !IsMetricsEnabled() {
		return
	}
	if r.InputTokens > 0 {
		tokenUsage.WithLabelValues(r.Provider, r.Model, "input").Add(float64(r.InputTokens))
	}
	if r.OutputTokens > 0 {
		tokenUsage.WithLabelValues(r.Provider, r.Model, "output").Add(float64(r.OutputTokens))
	}
	if r.Images > 0 {
		imagesGenerated.WithLabelValues(r.Model).Add(float64(r.Images))
	}
	if r.Cost > 0 {
		estimatedCost.WithLabelValues(r.Provider, r.Model).Add(r.Cost)
	}
}
