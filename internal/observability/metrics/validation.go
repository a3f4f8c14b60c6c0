package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ValidationMetrics tracks validation runs, per-source correlator outcomes
// and the durability of validation record writes.
type ValidationMetrics struct {
	runsTotal        *prometheus.CounterVec
	runDuration      prometheus.Histogram
	sourceOutcomes   *prometheus.CounterVec
	sourceDuration   *prometheus.HistogramVec
	confidenceScores prometheus.Histogram
	recordWrites     *prometheus.CounterVec
	recordRetries    *prometheus.CounterVec

	collectors []prometheus.Collector
}

// NewValidationMetrics creates and registers validation metrics.
func NewValidationMetrics(registry prometheus.Registerer) (*ValidationMetrics, error) {
	m := &ValidationMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register validation metrics: %w", err)
	}
	return m, nil
}

func (m *ValidationMetrics) initMetrics() {
	m.runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roadguard_validation_runs_total",
		Help: "Validation runs by resulting verification status",
	}, []string{"status"})

	m.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "roadguard_validation_run_duration_seconds",
		Help:    "End-to-end duration of a validation run",
		Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15),
	})

	m.sourceOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roadguard_validation_source_outcomes_total",
		Help: "Correlator outcomes by source (evidence, no_evidence, fallback)",
	}, []string{"source", "outcome"})

	m.sourceDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roadguard_validation_source_duration_seconds",
		Help:    "Time taken by each evidence correlator",
		Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
	}, []string{"source"})

	m.confidenceScores = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "roadguard_validation_confidence_score",
		Help:    "Distribution of fused confidence scores",
		Buckets: prometheus.LinearBuckets(0, BucketConfidenceWidth, BucketConfidenceCount),
	})

	m.recordWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roadguard_validation_record_writes_total",
		Help: "Per-source validation record upserts by final status",
	}, []string{"source", "status"})

	m.recordRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roadguard_validation_record_retries_total",
		Help: "Retried validation record upserts",
	}, []string{"source"})

	m.collectors = []prometheus.Collector{
		m.runsTotal,
		m.runDuration,
		m.sourceOutcomes,
		m.sourceDuration,
		m.confidenceScores,
		m.recordWrites,
		m.recordRetries,
	}
}

// Describe implements the prometheus.Collector interface.
func (m *ValidationMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *ValidationMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

// RecordValidation records a completed validation run.
func (m *ValidationMetrics) RecordValidation(status string, seconds float64) {
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.Observe(seconds)
}

// RecordSourceOutcome records how a single correlator finished.
func (m *ValidationMetrics) RecordSourceOutcome(source, outcome string, seconds float64) {
	m.sourceOutcomes.WithLabelValues(source, outcome).Inc()
	m.sourceDuration.WithLabelValues(source).Observe(seconds)
}

func (m *ValidationMetrics) ObserveConfidence(score float64) {
	m.confidenceScores.Observe(score)
}

// RecordRecordWrite records the final status of a per-source record upsert.
func (m *ValidationMetrics) RecordRecordWrite(source, status string) {
	m.recordWrites.WithLabelValues(source, status).Inc()
}

func (m *ValidationMetrics) RecordRecordRetry(source string) {
	m.recordRetries.WithLabelValues(source).Inc()
}
