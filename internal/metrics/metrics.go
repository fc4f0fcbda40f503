// Package metrics provides Prometheus metrics for monitoring the solve
// gateway.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solvegate_tasks_submitted_total",
			Help: "Total number of solve tasks submitted",
		},
		[]string{"type"},
	)
	TasksRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solvegate_tasks_rejected_total",
			Help: "Total number of solve tasks rejected at admission",
		},
		[]string{"reason"},
	)
	TasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solvegate_tasks_completed_total",
			Help: "Total number of solve tasks completed successfully",
		},
		[]string{"type"},
	)
	TasksFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solvegate_tasks_failed_total",
			Help: "Total number of solve tasks that failed",
		},
		[]string{"type"},
	)
	TasksTimedOut = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solvegate_tasks_timed_out_total",
			Help: "Total number of solve tasks killed by the per-task timeout",
		},
		[]string{"type"},
	)
	SolveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solvegate_solve_duration_seconds",
			Help:    "Solve duration in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 20, 30, 60, 90, 120},
		},
		[]string{"type", "status"},
	)
	ActiveTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "solvegate_active_tasks",
			Help: "Current number of tasks in the active set",
		},
	)
	StoredResults = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "solvegate_stored_results",
			Help: "Current number of cached results",
		},
	)
	AvailableWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "solvegate_available_workers",
			Help: "Number of free worker slots",
		},
	)
	BreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "solvegate_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
	)
	BreakerFailures = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "solvegate_breaker_failures",
			Help: "Current circuit breaker failure count",
		},
	)
	AutoRecoveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "solvegate_auto_recoveries_total",
			Help: "Total number of auto-recovery resets",
		},
	)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solvegate_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solvegate_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

func RecordTaskSubmitted(taskType string) {
	TasksSubmitted.WithLabelValues(taskType).Inc()
}

func RecordTaskRejected(reason string) {
	TasksRejected.WithLabelValues(reason).Inc()
}

func RecordTaskCompleted(taskType string, duration time.Duration) {
	TasksCompleted.WithLabelValues(taskType).Inc()
	SolveDuration.WithLabelValues(taskType, "ready").Observe(duration.Seconds())
}

func RecordTaskFailed(taskType string, duration time.Duration) {
	TasksFailed.WithLabelValues(taskType).Inc()
	SolveDuration.WithLabelValues(taskType, "error").Observe(duration.Seconds())
}

func RecordTaskTimedOut(taskType string) {
	TasksTimedOut.WithLabelValues(taskType).Inc()
}

func RecordAutoRecovery() {
	AutoRecoveries.Inc()
}

func UpdatePoolGauges(active, results, availableWorkers int) {
	ActiveTasks.Set(float64(active))
	StoredResults.Set(float64(results))
	AvailableWorkers.Set(float64(availableWorkers))
}

func UpdateBreakerGauges(state int, failures int) {
	BreakerState.Set(float64(state))
	BreakerFailures.Set(float64(failures))
}

func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
