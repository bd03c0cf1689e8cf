// Package metrics exposes Prometheus instrumentation for the ingestion path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all collectors for the ingestion service.
// A nil *Metrics is valid everywhere and records nothing.
type Metrics struct {
	// UploadsTotal counts finished uploads by mode ("whole"/"chunked")
	// and status ("ok"/"rejected"/"error").
	UploadsTotal *prometheus.CounterVec

	// UploadBytesTotal counts payload bytes placed into the collection.
	UploadBytesTotal prometheus.Counter

	// ChunksReceivedTotal counts accepted chunk submissions.
	ChunksReceivedTotal prometheus.Counter

	// SweeperRunsTotal counts stale-session sweep passes.
	SweeperRunsTotal prometheus.Counter

	// SessionsSweptTotal counts session directories removed by the sweeper.
	SessionsSweptTotal prometheus.Counter

	// SweeperLastRunTime is the unix time of the last completed sweep.
	SweeperLastRunTime prometheus.Gauge
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		UploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vitrine",
			Subsystem: "ingest",
			Name:      "uploads_total",
			Help:      "Finished uploads by mode and status.",
		}, []string{"mode", "status"}),
		UploadBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vitrine",
			Subsystem: "ingest",
			Name:      "upload_bytes_total",
			Help:      "Payload bytes placed into the archive collection.",
		}),
		ChunksReceivedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vitrine",
			Subsystem: "ingest",
			Name:      "chunks_received_total",
			Help:      "Accepted chunk submissions.",
		}),
		SweeperRunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vitrine",
			Subsystem: "ingest",
			Name:      "sweeper_runs_total",
			Help:      "Stale-session sweep passes.",
		}),
		SessionsSweptTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vitrine",
			Subsystem: "ingest",
			Name:      "sessions_swept_total",
			Help:      "Session directories removed by the sweeper.",
		}),
		SweeperLastRunTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vitrine",
			Subsystem: "ingest",
			Name:      "sweeper_last_run_timestamp_seconds",
			Help:      "Unix time of the last completed sweep.",
		}),
	}

	reg.MustRegister(
		m.UploadsTotal,
		m.UploadBytesTotal,
		m.ChunksReceivedTotal,
		m.SweeperRunsTotal,
		m.SessionsSweptTotal,
		m.SweeperLastRunTime,
	)
	return m
}

// RecordUpload records a finished upload.
func (m *Metrics) RecordUpload(mode, status string, bytes int64) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(mode, status).Inc()
	if bytes > 0 {
		m.UploadBytesTotal.Add(float64(bytes))
	}
}

// RecordChunk records an accepted chunk submission.
func (m *Metrics) RecordChunk() {
	if m == nil {
		return
	}
	m.ChunksReceivedTotal.Inc()
}

// RecordSweep records a completed sweep pass.
func (m *Metrics) RecordSweep(swept int) {
	if m == nil {
		return
	}
	m.SweeperRunsTotal.Inc()
	m.SessionsSweptTotal.Add(float64(swept))
	m.SweeperLastRunTime.SetToCurrentTime()
}
