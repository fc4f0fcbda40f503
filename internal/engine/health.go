package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/solvegate/solvegate/internal/metrics"
)

// HealthSnapshot is a point-in-time aggregate of pipeline health, served
// on /health and consumed by the monitor's issue detection.
type HealthSnapshot struct {
	BreakerState         string  `json:"circuit_breaker_state"`
	BreakerFailures      int     `json:"circuit_breaker_failures"`
	ActiveTasks          int     `json:"active_tasks"`
	QueuedTasks          int     `json:"queued_tasks"`
	TotalTasks           int     `json:"total_tasks"`
	SuccessfulTasks      int     `json:"successful_tasks"`
	FailedTasks          int     `json:"failed_tasks"`
	TimeoutTasks         int     `json:"timeout_tasks"`
	SuccessRate          float64 `json:"success_rate"`
	TimeSinceLastSuccess float64 `json:"time_since_last_success"`
	AvailableWorkers     int     `json:"available_workers"`
}

// Health builds the current snapshot.
func (e *Engine) Health() HealthSnapshot {
	e.mu.Lock()
	br := e.breaker
	st := e.stats
	slots := e.slots
	e.mu.Unlock()

	brSnap := br.Snapshot()
	stSnap := st.Snapshot()

	active, _ := e.store.Counts()
	busy := len(slots)
	queued := active - busy
	if queued < 0 {
		queued = 0
	}

	return HealthSnapshot{
		BreakerState:         brSnap.State.String(),
		BreakerFailures:      brSnap.Failures,
		ActiveTasks:          active,
		QueuedTasks:          queued,
		TotalTasks:           stSnap.Total,
		SuccessfulTasks:      stSnap.Successful,
		FailedTasks:          stSnap.Failed,
		TimeoutTasks:         stSnap.Timeouts,
		SuccessRate:          st.SuccessRate(),
		TimeSinceLastSuccess: st.SinceLastSuccess().Seconds(),
		AvailableWorkers:     cap(slots) - busy,
	}
}

// ConsecutiveFailures returns the monitor's current flagged-tick streak.
func (e *Engine) ConsecutiveFailures() int {
	e.monitorMu.Lock()
	defer e.monitorMu.Unlock()

	return e.consecutiveFailures
}

// RestartThreshold exposes the configured auto-recovery threshold.
func (e *Engine) RestartThreshold() int {
	return e.config.RestartThreshold
}

// Monitor runs the periodic health check until ctx is cancelled. Call in
// a goroutine.
func (e *Engine) Monitor(ctx context.Context) {
	ticker := time.NewTicker(e.config.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.checkHealth()
		}
	}
}

// checkHealth runs one monitor tick: gather the snapshot, detect issues,
// and trigger auto-recovery once the flagged-tick streak hits the
// restart threshold.
func (e *Engine) checkHealth() {
	snapshot := e.Health()
	e.updateGauges(snapshot)

	issues := e.detectIssues(snapshot)
	if len(issues) == 0 {
		e.monitorMu.Lock()
		e.consecutiveFailures = 0
		e.monitorMu.Unlock()
		return
	}

	e.monitorMu.Lock()
	e.consecutiveFailures++
	failures := e.consecutiveFailures
	e.monitorMu.Unlock()

	log.Printf("Health issues detected (%d): %s", failures, strings.Join(issues, ", "))

	if failures >= e.config.RestartThreshold {
		log.Printf("Auto-recovery triggered after %d consecutive failures", failures)
		e.ForceReset()

		for _, hook := range e.recoveryHooks {
			hook(issues)
		}
	}
}

func (e *Engine) detectIssues(s HealthSnapshot) []string {
	var issues []string

	if s.BreakerState == "OPEN" {
		issues = append(issues, "Circuit breaker is OPEN")
	}
	if s.TimeSinceLastSuccess > e.config.UnhealthyNoSuccess.Seconds() {
		issues = append(issues, "No successful tasks in 10+ minutes")
	}
	if s.TotalTasks > e.config.MinObservedTasks && s.SuccessRate < e.config.MinSuccessRate {
		issues = append(issues, fmt.Sprintf("Low success rate: %.1f%%", s.SuccessRate))
	}
	if s.ActiveTasks > e.config.Workers*e.config.StuckActiveFactor {
		issues = append(issues, fmt.Sprintf("Too many active tasks: %d", s.ActiveTasks))
	}
	if s.AvailableWorkers == 0 {
		issues = append(issues, "No available workers")
	}

	return issues
}

func (e *Engine) updateGauges(s HealthSnapshot) {
	_, results := e.store.Counts()

	metrics.UpdatePoolGauges(s.ActiveTasks, results, s.AvailableWorkers)

	e.mu.Lock()
	brSnap := e.breaker.Snapshot()
	e.mu.Unlock()
	metrics.UpdateBreakerGauges(int(brSnap.State), brSnap.Failures)
}
