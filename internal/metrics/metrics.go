// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Punishment log
var (
	LogAppendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "doggobot_log_appends_total",
		Help: "Total number of punishment log appends",
	}, []string{"action", "status"})

	LogAppendDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "doggobot_log_append_duration_seconds",
		Help:    "Time spent in load-modify-save of the punishment log",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})

	LogSkippedRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "doggobot_log_skipped_records_total",
		Help: "Groups or entries skipped while decoding the punishment log",
	})
)

// Bot
var (
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "doggobot_commands_total",
		Help: "Total number of handled bot commands",
	}, []string{"command", "outcome"})

	PlatformErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "doggobot_platform_errors_total",
		Help: "Failed chat platform calls",
	}, []string{"op"})

	ReportsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "doggobot_reports_sent_total",
		Help: "Scheduled warn digests",
	}, []string{"status"})
)

// Runtime
var (
	GoroutineRestartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "doggobot_goroutine_restarts_total",
		Help: "Supervised goroutines restarted after an error or panic",
	}, []string{"name"})

	GoroutinePanicsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "doggobot_goroutine_panics_total",
		Help: "Panics recovered in supervised goroutines",
	}, []string{"name"})
)

// HTTP
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "doggobot_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "doggobot_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "path"})

	AuthLoginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "doggobot_auth_logins_total",
		Help: "Total number of login attempts",
	}, []string{"status"})

	RegistrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "doggobot_registrations_total",
		Help: "Total number of registration attempts",
	}, []string{"status"})
)

// NormalizePath keeps the path label bounded: known routes pass through,
// everything else served from the static dir collapses to one value.
func NormalizePath(path string) string {
	switch {
	case path == "/", path == "/metrics", path == "/login", path == "/register":
		return path
	case strings.HasPrefix(path, "/api/"):
		return path
	default:
		return "/static/*"
	}
}
