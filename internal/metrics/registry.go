// Package metrics holds the in-process counters and gauges described in
// SPEC_FULL.md §4.10: scan throughput, malformed-record counts, journal
// lag, query latency, IPC connection counts, and per-volume memory use.
// Updates are lock-free (prometheus's own atomic counters); rendering
// happens on demand through status or the optional local metrics surface.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every metric the service publishes. It is not a
// prometheus.Registerer itself so callers choose whether and how to expose
// it (the Operator CLI's local handler, or nothing at all).
type Registry struct {
	reg *prometheus.Registry

	RecordsScanned   *prometheus.CounterVec
	MalformedRecords *prometheus.CounterVec
	FixupFailures    *prometheus.CounterVec
	AttributeCycles  *prometheus.CounterVec

	JournalLagUSN     *prometheus.GaugeVec
	JournalBatchSize  *prometheus.HistogramVec
	RebuildsTriggered *prometheus.CounterVec

	QueryLatency    *prometheus.HistogramVec
	QueryTruncated  *prometheus.CounterVec
	QueryErrors     *prometheus.CounterVec

	IPCConnections prometheus.Gauge
	IPCBusyRejects prometheus.Counter

	VolumeMemoryBytes *prometheus.GaugeVec
	VolumeEntryCount  *prometheus.GaugeVec
	VolumeAvailable   *prometheus.GaugeVec
}

// New builds a Registry with every metric registered under its own
// prometheus.Registry, independent of the global default registry so
// multiple instances (as in tests) never collide.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		RecordsScanned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fastfind",
			Name:      "records_scanned_total",
			Help:      "MFT records observed during a cold scan or rebuild, per volume.",
		}, []string{"volume"}),
		MalformedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fastfind",
			Name:      "malformed_records_total",
			Help:      "Records skipped for failing structural validation, per volume.",
		}, []string{"volume"}),
		FixupFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fastfind",
			Name:      "fixup_failures_total",
			Help:      "Records skipped for a failed USN fixup check, per volume.",
		}, []string{"volume"}),
		AttributeCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fastfind",
			Name:      "attribute_list_cycles_total",
			Help:      "Records skipped for a cyclic attribute list, per volume.",
		}, []string{"volume"}),
		JournalLagUSN: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fastfind",
			Name:      "journal_lag_usn",
			Help:      "Difference between the volume's current USN and the last applied USN.",
		}, []string{"volume"}),
		JournalBatchSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fastfind",
			Name:      "journal_batch_records",
			Help:      "Number of USN records applied per consumer batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"volume"}),
		RebuildsTriggered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fastfind",
			Name:      "rebuilds_triggered_total",
			Help:      "Full index rebuilds triggered by journal overrun or startup.",
		}, []string{"volume"}),
		QueryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fastfind",
			Name:      "query_latency_seconds",
			Help:      "Wall-clock latency of a completed search, find_large_files, or benchmark call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		QueryTruncated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fastfind",
			Name:      "query_truncated_total",
			Help:      "Queries that hit max_results or their deadline before exhausting candidates.",
		}, []string{"method"}),
		QueryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fastfind",
			Name:      "query_errors_total",
			Help:      "Queries that returned a non-nil error, labeled by error code.",
		}, []string{"code"}),
		IPCConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fastfind",
			Name:      "ipc_connections",
			Help:      "Currently open IPC client connections.",
		}),
		IPCBusyRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fastfind",
			Name:      "ipc_busy_rejects_total",
			Help:      "Requests rejected with Busy due to the global concurrency cap.",
		}),
		VolumeMemoryBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fastfind",
			Name:      "volume_memory_bytes",
			Help:      "Estimated index memory usage, per volume.",
		}, []string{"volume"}),
		VolumeEntryCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fastfind",
			Name:      "volume_entries",
			Help:      "Live entry count in the index, per volume.",
		}, []string{"volume"}),
		VolumeAvailable: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fastfind",
			Name:      "volume_available",
			Help:      "1 if the volume's pipeline is healthy, 0 if it has been marked unavailable.",
		}, []string{"volume"}),
	}

	reg.MustRegister(
		r.RecordsScanned, r.MalformedRecords, r.FixupFailures, r.AttributeCycles,
		r.JournalLagUSN, r.JournalBatchSize, r.RebuildsTriggered,
		r.QueryLatency, r.QueryTruncated, r.QueryErrors,
		r.IPCConnections, r.IPCBusyRejects,
		r.VolumeMemoryBytes, r.VolumeEntryCount, r.VolumeAvailable,
	)
	return r
}

// Gatherer exposes the underlying prometheus.Registry for a metrics HTTP
// handler (the Operator CLI's optional local surface) without leaking
// mutation access to callers that only need to read.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// ObserveQuery records one completed query's latency and outcome.
func (r *Registry) ObserveQuery(method string, elapsed time.Duration, truncated bool, errCode string) {
	r.QueryLatency.WithLabelValues(method).Observe(elapsed.Seconds())
	if truncated {
		r.QueryTruncated.WithLabelValues(method).Inc()
	}
	if errCode != "" {
		r.QueryErrors.WithLabelValues(errCode).Inc()
	}
}

// SetVolumeAvailable records a volume's pipeline health as a 0/1 gauge.
func (r *Registry) SetVolumeAvailable(volume string, available bool) {
	v := 0.0
	if available {
		v = 1.0
	}
	r.VolumeAvailable.WithLabelValues(volume).Set(v)
}
