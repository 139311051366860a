package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveQueryRecordsLatencyAndOutcome(t *testing.T) {
	r := New()
	r.ObserveQuery("search", 10*time.Millisecond, true, "")
	r.ObserveQuery("search", 5*time.Millisecond, false, "1007")

	assert.Equal(t, 1, testutil.CollectAndCount(r.QueryLatency, "fastfind_query_latency_seconds"))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.QueryTruncated.WithLabelValues("search")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.QueryErrors.WithLabelValues("1007")))
}

func TestSetVolumeAvailableTogglesGauge(t *testing.T) {
	r := New()
	r.SetVolumeAvailable("C:", true)
	assert.Equal(t, float64(1), testutil.ToFloat64(r.VolumeAvailable.WithLabelValues("C:")))

	r.SetVolumeAvailable("C:", false)
	assert.Equal(t, float64(0), testutil.ToFloat64(r.VolumeAvailable.WithLabelValues("C:")))
}

func TestGathererExposesRegisteredMetrics(t *testing.T) {
	r := New()
	r.RecordsScanned.WithLabelValues("C:").Add(100)

	families, err := r.Gatherer().Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}
