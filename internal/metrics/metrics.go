// Package metrics records the outcome of dbops runs as Prometheus metrics.
//
// Each dbops invocation is a short-lived process, so nothing is served over
// HTTP. Instead the registry is written once, at the end of a command, in the
// node-exporter textfile-collector format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the metrics for one dbops run.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	probeUp         *prometheus.GaugeVec
	probeStatusCode *prometheus.GaugeVec
	probeDuration   *prometheus.HistogramVec

	backupLastSuccess *prometheus.GaugeVec
	backupBytes       *prometheus.GaugeVec
	backupDuration    *prometheus.HistogramVec
	backupTotal       *prometheus.CounterVec

	rotationTotal *prometheus.CounterVec
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		probeUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dbops_probe_up",
				Help: "Result of the last health probe (1=healthy, 0=unhealthy)",
			},
			[]string{"url"},
		),
		probeStatusCode: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dbops_probe_status_code",
				Help: "HTTP status code returned by the last probe (0 on transport error)",
			},
			[]string{"url"},
		),
		probeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dbops_probe_duration_seconds",
				Help:    "Duration of health probes in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"url"},
		),

		backupLastSuccess: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dbops_backup_last_success_timestamp_seconds",
				Help: "Unix time of the last successful dump",
			},
			[]string{"database"},
		),
		backupBytes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dbops_backup_size_bytes",
				Help: "Size of the last successful dump in bytes",
			},
			[]string{"database"},
		),
		backupDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dbops_backup_duration_seconds",
				Help:    "Duration of dumps in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 300},
			},
			[]string{"database"},
		),
		backupTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbops_backup_total",
				Help: "Dumps attempted, by outcome",
			},
			[]string{"database", "status"},
		),

		rotationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbops_rotation_total",
				Help: "Credential rotations attempted, by outcome",
			},
			[]string{"database", "status"},
		),
	}

	r.registry.MustRegister(
		r.probeUp,
		r.probeStatusCode,
		r.probeDuration,
		r.backupLastSuccess,
		r.backupBytes,
		r.backupDuration,
		r.backupTotal,
		r.rotationTotal,
	)

	return r
}

// Registry exposes the underlying registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// RecordProbe records a health probe result.
func (r *Recorder) RecordProbe(url string, healthy bool, statusCode int, duration time.Duration) {
	if r == nil {
		return
	}

	value := 0.0
	if healthy {
		value = 1.0
	}
	r.probeUp.WithLabelValues(url).Set(value)
	r.probeStatusCode.WithLabelValues(url).Set(float64(statusCode))
	r.probeDuration.WithLabelValues(url).Observe(duration.Seconds())
}

// RecordBackup records a dump attempt.
func (r *Recorder) RecordBackup(database string, ok bool, size int64, duration time.Duration) {
	if r == nil {
		return
	}

	if !ok {
		r.backupTotal.WithLabelValues(database, "failed").Inc()
		return
	}
	r.backupTotal.WithLabelValues(database, "success").Inc()
	r.backupLastSuccess.WithLabelValues(database).SetToCurrentTime()
	r.backupBytes.WithLabelValues(database).Set(float64(size))
	r.backupDuration.WithLabelValues(database).Observe(duration.Seconds())
}

// RecordRotation records a rotation attempt with status "success", "failed" or "dry_run".
func (r *Recorder) RecordRotation(database, status string) {
	if r == nil {
		return
	}
	r.rotationTotal.WithLabelValues(database, status).Inc()
}

// WriteTextfile writes all gathered metrics to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
