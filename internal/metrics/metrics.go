// Package metrics provides Prometheus instrumentation for the RiskPulse platform.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskpulse",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "riskpulse",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// SignalsIngestedTotal counts ingested signals by source.
	SignalsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskpulse",
			Name:      "signals_ingested_total",
			Help:      "Total signals accepted for analysis, by source.",
		},
		[]string{"source"},
	)

	// SignalsScoredTotal counts risk scoring runs by resulting tier.
	SignalsScoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskpulse",
			Name:      "signals_scored_total",
			Help:      "Total signals risk-scored, by resulting tier.",
		},
		[]string{"tier"},
	)

	// AnomalyEventsTotal counts detected anomaly events by type and severity.
	AnomalyEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskpulse",
			Name:      "anomaly_events_total",
			Help:      "Total anomaly events detected, by type and severity.",
		},
		[]string{"type", "severity"},
	)

	// IncidentsCreatedTotal counts incidents created by severity.
	IncidentsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskpulse",
			Name:      "incidents_created_total",
			Help:      "Total incidents created, by severity.",
		},
		[]string{"severity"},
	)

	// IncidentTransitionsTotal counts lifecycle transitions by action.
	IncidentTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskpulse",
			Name:      "incident_transitions_total",
			Help:      "Total incident lifecycle transitions, by action.",
		},
		[]string{"action"},
	)

	// CorrelationQueriesTotal counts correlation lookups and graph builds.
	CorrelationQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskpulse",
			Name:      "correlation_queries_total",
			Help:      "Total correlation queries, by kind (neighbors, graph).",
		},
		[]string{"kind"},
	)

	// CycleDuration observes the duration of full detection cycles.
	CycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "riskpulse",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of full score/detect/incident cycles in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
	})

	// OpenIncidents tracks the number of active or investigating incidents.
	OpenIncidents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "riskpulse",
			Name:      "open_incidents",
			Help:      "Number of incidents currently active or investigating.",
		},
	)

	// WindowSignals tracks the number of signals in the last scanned window.
	WindowSignals = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "riskpulse",
			Name:      "window_signals",
			Help:      "Number of signals in the most recently scanned current window.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riskpulse", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riskpulse", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riskpulse", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riskpulse", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		SignalsIngestedTotal,
		SignalsScoredTotal,
		AnomalyEventsTotal,
		IncidentsCreatedTotal,
		IncidentTransitionsTotal,
		CorrelationQueriesTotal,
		CycleDuration,
		OpenIncidents,
		WindowSignals,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
