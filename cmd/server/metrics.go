package main

import (
	"time"

	"github.com/solvegate/solvegate/internal/engine"
	"github.com/solvegate/solvegate/internal/metrics"
)

// startMetricsCollector refreshes the pool gauges between monitor ticks
// so scrapes never see values older than 10 seconds.
func startMetricsCollector(e *engine.Engine) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		updateEngineMetrics(e)
	}
}

func updateEngineMetrics(e *engine.Engine) {
	snapshot := e.Health()
	_, results := e.Counts()

	metrics.UpdatePoolGauges(snapshot.ActiveTasks, results, snapshot.AvailableWorkers)
}
