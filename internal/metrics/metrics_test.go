package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTaskSubmitted(t *testing.T) {
	TasksSubmitted.Reset()

	RecordTaskSubmitted("AntiTurnstileTaskProxyLess")
	RecordTaskSubmitted("AntiTurnstileTaskProxyLess")

	count := getCounterValue(t, TasksSubmitted, "AntiTurnstileTaskProxyLess")
	assert.Equal(t, 2.0, count)
}

func TestRecordTaskRejected(t *testing.T) {
	TasksRejected.Reset()

	reasons := []string{"circuit breaker", "overloaded", "no recent success", "high failure rate"}
	for _, reason := range reasons {
		RecordTaskRejected(reason)

		count := getCounterValue(t, TasksRejected, reason)
		assert.Equal(t, 1.0, count)
	}
}

func TestRecordTaskCompleted(t *testing.T) {
	TasksCompleted.Reset()
	SolveDuration.Reset()

	RecordTaskCompleted("AntiTurnstileTaskProxyLess", 2*time.Second)

	count := getCounterValue(t, TasksCompleted, "AntiTurnstileTaskProxyLess")
	assert.Equal(t, 1.0, count)

	sum := getHistogramSum(t, SolveDuration, "AntiTurnstileTaskProxyLess", "ready")
	assert.Equal(t, 2.0, sum)
}

func TestRecordTaskFailed(t *testing.T) {
	TasksFailed.Reset()
	SolveDuration.Reset()

	RecordTaskFailed("AntiTurnstileTaskProxyLess", 500*time.Millisecond)

	count := getCounterValue(t, TasksFailed, "AntiTurnstileTaskProxyLess")
	assert.Equal(t, 1.0, count)

	sum := getHistogramSum(t, SolveDuration, "AntiTurnstileTaskProxyLess", "error")
	assert.Equal(t, 0.5, sum)
}

func TestRecordTaskTimedOut(t *testing.T) {
	TasksTimedOut.Reset()

	RecordTaskTimedOut("AntiTurnstileTaskProxyLess")

	count := getCounterValue(t, TasksTimedOut, "AntiTurnstileTaskProxyLess")
	assert.Equal(t, 1.0, count)
}

func TestUpdatePoolGauges(t *testing.T) {
	UpdatePoolGauges(4, 7, 2)

	assert.Equal(t, 4.0, getGaugeValue(t, ActiveTasks))
	assert.Equal(t, 7.0, getGaugeValue(t, StoredResults))
	assert.Equal(t, 2.0, getGaugeValue(t, AvailableWorkers))
}

func TestUpdateBreakerGauges(t *testing.T) {
	UpdateBreakerGauges(1, 5)

	assert.Equal(t, 1.0, getGaugeValue(t, BreakerState))
	assert.Equal(t, 5.0, getGaugeValue(t, BreakerFailures))
}

func TestRecordHTTPRequest(t *testing.T) {
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	RecordHTTPRequest("POST", "/createTask", "200", 50*time.Millisecond)

	count := getCounterValue(t, HTTPRequestsTotal, "POST", "/createTask", "200")
	assert.Equal(t, 1.0, count)

	sum := getHistogramSum(t, HTTPRequestDuration, "POST", "/createTask")
	assert.Greater(t, sum, 0.0)
}

func getCounterValue(t *testing.T, counter *prometheus.CounterVec, labels ...string) float64 {
	metric := &dto.Metric{}
	observer, err := counter.GetMetricWithLabelValues(labels...)
	require.NoError(t, err)

	err = observer.Write(metric)
	require.NoError(t, err)

	return metric.Counter.GetValue()
}

func getGaugeValue(t *testing.T, gauge prometheus.Gauge) float64 {
	metric := &dto.Metric{}
	err := gauge.Write(metric)
	require.NoError(t, err)

	return metric.Gauge.GetValue()
}

func getHistogramSum(t *testing.T, histogram *prometheus.HistogramVec, labels ...string) float64 {
	metric := &dto.Metric{}
	observer, err := histogram.GetMetricWithLabelValues(labels...)
	require.NoError(t, err)

	h := observer.(prometheus.Histogram)
	err = h.Write(metric)
	require.NoError(t, err)

	return metric.Histogram.GetSampleSum()
}
