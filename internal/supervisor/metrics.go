package supervisor

import "github.com/ntfsearch/fastfind/internal/metrics"

// metricsSink is the narrow seam the rebuild worker and pipeline health
// loop need into internal/metrics, kept as an interface over the live
// Registry.
type metricsSink interface {
	incRebuilds(volume string)
	observeScan(volume string, entries, malformed int64)
	setVolumeHealth(volume string, available bool, memoryBytes uint64, entries int64)
}

// registrySink adapts *metrics.Registry to metricsSink.
type registrySink struct {
	reg *metrics.Registry
}

func newMetricsSink(reg *metrics.Registry) metricsSink {
	return &registrySink{reg: reg}
}

func (s *registrySink) incRebuilds(volume string) {
	s.reg.RebuildsTriggered.WithLabelValues(volume).Inc()
}

func (s *registrySink) observeScan(volume string, entries, malformed int64) {
	s.reg.RecordsScanned.WithLabelValues(volume).Add(float64(entries))
	s.reg.MalformedRecords.WithLabelValues(volume).Add(float64(malformed))
	s.reg.VolumeEntryCount.WithLabelValues(volume).Set(float64(entries))
}

func (s *registrySink) setVolumeHealth(volume string, available bool, memoryBytes uint64, entries int64) {
	s.reg.SetVolumeAvailable(volume, available)
	s.reg.VolumeMemoryBytes.WithLabelValues(volume).Set(float64(memoryBytes))
	s.reg.VolumeEntryCount.WithLabelValues(volume).Set(float64(entries))
}
