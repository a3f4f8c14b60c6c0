// Package metrics provides datastore metrics for observability
package metrics

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// DatastoreMetrics contains Prometheus metrics for datastore operations.
// It implements Recorder; operation strings have the form "<operation>:<table>".
type DatastoreMetrics struct {
	dbOperationsTotal      *prometheus.CounterVec
	dbOperationDuration    *prometheus.HistogramVec
	dbOperationErrorsTotal *prometheus.CounterVec
	dbQueryResultSizeHist  *prometheus.HistogramVec
	dbConnections          *prometheus.GaugeVec
	dbTableRowCount        *prometheus.GaugeVec

	collectors []prometheus.Collector
}

// NewDatastoreMetrics creates and registers new datastore metrics
func NewDatastoreMetrics(registry prometheus.Registerer) (*DatastoreMetrics, error) {
	m := &DatastoreMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register datastore metrics: %w", err)
	}
	return m, nil
}

func (m *DatastoreMetrics) initMetrics() {
	m.dbOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roadguard_datastore_operations_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "table", "status"},
	)

	m.dbOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roadguard_datastore_operation_duration_seconds",
			Help:    "Time taken for database operations",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15), // 1ms to ~16s
		},
		[]string{"operation", "table"},
	)

	m.dbOperationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roadguard_datastore_operation_errors_total",
			Help: "Total number of database operation errors",
		},
		[]string{"operation", "table", "error_type"},
	)

	m.dbQueryResultSizeHist = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roadguard_datastore_query_result_size",
			Help:    "Rows returned by evidence window queries",
			Buckets: prometheus.ExponentialBuckets(1, BucketFactor2, BucketCount12),
		},
		[]string{"operation", "table"},
	)

	m.dbConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "roadguard_datastore_connections",
			Help: "Connection pool state (in_use, idle, max_open)",
		},
		[]string{"state"},
	)

	m.dbTableRowCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "roadguard_datastore_table_rows",
			Help: "Row count of monitored tables",
		},
		[]string{"table"},
	)

	m.collectors = []prometheus.Collector{
		m.dbOperationsTotal,
		m.dbOperationDuration,
		m.dbOperationErrorsTotal,
		m.dbQueryResultSizeHist,
		m.dbConnections,
		m.dbTableRowCount,
	}
}

// Describe implements the Collector interface
func (m *DatastoreMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *DatastoreMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// splitOperation turns "get:incidents" into ("get", "incidents").
func splitOperation(operation string) (op, table string) {
	parts := strings.SplitN(operation, ":", SplitPartsCount)
	if len(parts) != SplitPartsCount {
		return operation, LabelUnknown
	}
	return parts[0], parts[1]
}

// RecordOperation implements Recorder.
func (m *DatastoreMetrics) RecordOperation(operation, status string) {
	op, table := splitOperation(operation)
	m.dbOperationsTotal.WithLabelValues(op, table, status).Inc()
}

// RecordDuration implements Recorder.
func (m *DatastoreMetrics) RecordDuration(operation string, seconds float64) {
	op, table := splitOperation(operation)
	m.dbOperationDuration.WithLabelValues(op, table).Observe(seconds)
}

// RecordError implements Recorder.
func (m *DatastoreMetrics) RecordError(operation, errorType string) {
	op, table := splitOperation(operation)
	m.dbOperationErrorsTotal.WithLabelValues(op, table, errorType).Inc()
}

// RecordQueryResultSize records the number of rows an evidence query returned.
func (m *DatastoreMetrics) RecordQueryResultSize(operation string, resultSize int) {
	op, table := splitOperation(operation)
	m.dbQueryResultSizeHist.WithLabelValues(op, table).Observe(float64(resultSize))
}

// UpdateConnectionMetrics sets the connection pool gauges.
func (m *DatastoreMetrics) UpdateConnectionMetrics(inUse, idle, maxOpen int) {
	m.dbConnections.WithLabelValues("in_use").Set(float64(inUse))
	m.dbConnections.WithLabelValues("idle").Set(float64(idle))
	m.dbConnections.WithLabelValues("max_open").Set(float64(maxOpen))
}

// UpdateTableRowCount sets the row count gauge for a table.
func (m *DatastoreMetrics) UpdateTableRowCount(table string, count int64) {
	m.dbTableRowCount.WithLabelValues(table).Set(float64(count))
}
