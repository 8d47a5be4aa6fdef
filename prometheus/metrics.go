package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter metrics
var (
	// Profile bootstrap counter
	ProfileBootstrapCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "core_profile_bootstrap_total",
			Help: "Total number of lazily created profiles",
		},
	)

	// Onboarding operation counter
	OnboardingOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "core_onboarding_operations_total",
			Help: "Total number of onboarding operations",
		},
		[]string{"operation"}, // "resolve", "select_role", "create_school", "join_school"
	)

	// Onboarding error counter
	OnboardingErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "core_onboarding_errors_total",
			Help: "Total number of onboarding errors",
		},
		[]string{"type"}, // "unauthorized", "invalid_request", "code_not_found", "store_error" etc.
	)

	// Message counter
	MessageSentCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "core_messages_sent_total",
			Help: "Total number of direct messages stored",
		},
	)

	// Realtime event counter
	RealtimeEventCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "core_realtime_events_total",
			Help: "Total number of realtime events by outcome",
		},
		[]string{"outcome"}, // "delivered", "dropped"
	)

	// HTTP request counter by endpoint and status
	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "core_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)
)

// Histogram metrics
var (
	// Request duration
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "core_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	// Database operation duration
	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "core_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // "query", "insert", "update", "delete"
	)
)

// Gauge metrics
var (
	// Open realtime subscriptions
	ActiveSubscriptionsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "core_active_subscriptions",
			Help: "Number of currently open realtime subscriptions",
		},
	)

	// System info
	InfoGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "core_info",
			Help: "Information about the service",
		},
		[]string{"version"},
	)
)

func init() {
	prometheus.MustRegister(ProfileBootstrapCounter)
	prometheus.MustRegister(OnboardingOperationCounter)
	prometheus.MustRegister(OnboardingErrorCounter)
	prometheus.MustRegister(MessageSentCounter)
	prometheus.MustRegister(RealtimeEventCounter)
	prometheus.MustRegister(HTTPRequestCounter)

	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(DBOperationDuration)

	prometheus.MustRegister(ActiveSubscriptionsGauge)
	prometheus.MustRegister(InfoGauge)

	InfoGauge.With(prometheus.Labels{"version": "1.0.0"}).Set(1)
}

// GetPrometheusHandler returns an HTTP handler for the Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// TrackDBOperation measures database operation durations
func TrackDBOperation(operation string) func(time.Time) {
	startTime := time.Now()
	return func(endTime time.Time) {
		duration := time.Since(startTime).Seconds()
		DBOperationDuration.With(prometheus.Labels{
			"operation": operation,
		}).Observe(duration)
	}
}

// MetricsMiddleware creates a middleware function that captures metrics for each request
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(c.Response().Status)
			endpoint := c.Path()
			method := c.Request().Method

			RequestDuration.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Observe(duration)

			HTTPRequestCounter.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Inc()

			return err
		}
	}
}

// RecordOnboardingOperation records an onboarding operation by name
func RecordOnboardingOperation(operation string) {
	OnboardingOperationCounter.With(prometheus.Labels{"operation": operation}).Inc()
}

// RecordOnboardingError records an onboarding error by type
func RecordOnboardingError(errorType string) {
	OnboardingErrorCounter.With(prometheus.Labels{"type": errorType}).Inc()
}

// RecordRealtimeEvent records a realtime event outcome
func RecordRealtimeEvent(outcome string) {
	RealtimeEventCounter.With(prometheus.Labels{"outcome": outcome}).Inc()
}

// IncreaseActiveSubscriptions increments the open subscription gauge
func IncreaseActiveSubscriptions() {
	ActiveSubscriptionsGauge.Inc()
}

// DecreaseActiveSubscriptions decrements the open subscription gauge
func DecreaseActiveSubscriptions() {
	ActiveSubscriptionsGauge.Dec()
}
