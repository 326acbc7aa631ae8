// Package metrics collects run counters for geococo operations and exports
// them in the Prometheus text format for node_exporter's textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/menta2k/geococo/pkg/chipper"
	"github.com/menta2k/geococo/pkg/remap"
	"github.com/menta2k/geococo/pkg/repair"
)

// Metrics contains the counters recorded for one geococo invocation.
type Metrics struct {
	Records  *prometheus.CounterVec
	Failures *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	LastRun  *prometheus.GaugeVec
	registry *prometheus.Registry
}

// New creates Metrics registered on registry. A nil registry creates a
// private one.
func New(registry *prometheus.Registry) (*Metrics, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register geococo metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.Records = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geococo_records_total",
		Help: "Dataset records processed, by table and outcome.",
	}, []string{"operation", "table", "outcome"})

	m.Failures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geococo_failures_total",
		Help: "Recoverable failures, by kind.",
	}, []string{"kind"})

	m.Duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geococo_operation_duration_seconds",
		Help:    "Duration of dataset operations in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
	}, []string{"operation"})

	m.LastRun = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "geococo_last_run_timestamp_seconds",
		Help: "Unix time of the last completed operation.",
	}, []string{"operation"})
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) add(op, table, outcome string, n int) {
	if n > 0 {
		m.Records.WithLabelValues(op, table, outcome).Add(float64(n))
	}
}

// RecordChip records the summary of a chipping run.
func (m *Metrics) RecordChip(s chipper.Summary) {
	const op = "chip"
	m.add(op, "images", "read", s.SourceImages-s.ImagesSkipped)
	m.add(op, "images", "skipped", s.ImagesSkipped)
	m.add(op, "chips", "planned", s.ChipsPlanned)
	m.add(op, "chips", "emitted", s.ChipsEmitted)
	m.add(op, "chips", "skipped", s.ChipsSkipped)
	m.add(op, "annotations", "emitted", s.AnnotationsEmitted)
	m.add(op, "annotations", "clipped", s.AnnotationsClipped)
	m.add(op, "annotations", "unassigned", s.AnnotationsUnassigned)
	m.add(op, "annotations", "unresolved", s.AnnotationsUnresolved)

	if s.ImagesSkipped > 0 {
		m.Failures.WithLabelValues("source_pixel_unavailable").Add(float64(s.ImagesSkipped))
	}
	if s.ChipsSkipped > 0 {
		m.Failures.WithLabelValues("chip_extraction").Add(float64(s.ChipsSkipped))
	}
}

// RecordRepair records the report of a boundary repair pass.
func (m *Metrics) RecordRepair(r repair.Report) {
	const op = "repair"
	m.add(op, "annotations", "unchanged", r.Unchanged)
	m.add(op, "annotations", "repaired", r.Repaired)
	m.add(op, "annotations", "dropped", r.Dropped)
	m.add(op, "annotations", "unrepairable", r.Unrepairable)
	m.add(op, "annotations", "unresolved", r.Unresolved)
}

// RecordRemap records the report of a category remap operation.
func (m *Metrics) RecordRemap(op string, r remap.Report) {
	m.add(op, "categories", "emitted", r.Categories)
	m.add(op, "annotations", "kept", r.AnnotationsKept)
	m.add(op, "annotations", "dropped", r.AnnotationsDropped)
	m.add(op, "annotations", "unresolved", r.Unresolved)
	m.add(op, "images", "dropped", r.ImagesDropped)
}

// ObserveDuration records how long op took and marks it as completed now.
func (m *Metrics) ObserveDuration(op string, d time.Duration) {
	m.Duration.WithLabelValues(op).Observe(d.Seconds())
	m.LastRun.WithLabelValues(op).SetToCurrentTime()
}

// WriteTextfile writes every metric to path in the Prometheus text format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}

// Collect implements the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.Records.Collect(ch)
	m.Failures.Collect(ch)
	m.Duration.Collect(ch)
	m.LastRun.Collect(ch)
}

// Describe implements the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.Records.Describe(ch)
	m.Failures.Describe(ch)
	m.Duration.Describe(ch)
	m.LastRun.Describe(ch)
}
