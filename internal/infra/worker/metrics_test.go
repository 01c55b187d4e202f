package worker

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestWorkerMetrics_Record(t *testing.T) {
	m := NewWorkerMetrics(prometheus.NewRegistry())

	m.RecordJobRun("success")
	m.RecordJobRun("success")
	m.RecordJobRun("failure")
	m.RecordJobDuration(2.5)
	m.RecordItemsProcessed(3)
	m.RecordItemsProcessed(0)
	m.RecordLastSuccess()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CronJobRunsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CronJobRunsTotal.WithLabelValues("failure")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.CronJobDurationSeconds))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CronJobItemsProcessedTotal))
	assert.Greater(t, testutil.ToFloat64(m.CronJobLastSuccessTimestamp), 0.0)
}

func TestWorkerMetrics_IncludesConfigMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWorkerMetrics(reg)
	m.RecordFallback("timezone")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("timezone")))
}
