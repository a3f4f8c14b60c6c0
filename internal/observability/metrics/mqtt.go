package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MQTTMetrics contains Prometheus metrics for the evidence ingest and
// result publishing MQTT client.
type MQTTMetrics struct {
	ConnectionStatus  prometheus.Gauge
	MessagesReceived  *prometheus.CounterVec
	MessagesPublished prometheus.Counter
	Errors            *prometheus.CounterVec
	ReconnectAttempts prometheus.Counter
	LastConnectTime   prometheus.Gauge
	MessageSize       prometheus.Histogram
	PublishLatency    prometheus.Histogram

	collectors []prometheus.Collector
}

// NewMQTTMetrics creates and registers the MQTT metrics.
func NewMQTTMetrics(registry prometheus.Registerer) (*MQTTMetrics, error) {
	m := &MQTTMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register MQTT metrics: %w", err)
	}
	return m, nil
}

func (m *MQTTMetrics) initMetrics() {
	m.ConnectionStatus = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "roadguard_mqtt_connection_status",
		Help: "Current MQTT connection status (1 for connected, 0 for disconnected)",
	})

	m.MessagesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roadguard_mqtt_messages_received_total",
		Help: "Evidence messages received, by kind and ingest status",
	}, []string{"kind", "status"})

	m.MessagesPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roadguard_mqtt_messages_published_total",
		Help: "Validation results successfully published",
	})

	m.Errors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roadguard_mqtt_errors_total",
		Help: "MQTT errors encountered, by stage",
	}, []string{"stage"})

	m.ReconnectAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roadguard_mqtt_reconnect_attempts_total",
		Help: "Total number of MQTT reconnection attempts",
	})

	m.LastConnectTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "roadguard_mqtt_last_connect_time_seconds",
		Help: "Timestamp of the last successful MQTT connection",
	})

	m.MessageSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "roadguard_mqtt_message_size_bytes",
		Help:    "Size of received MQTT payloads in bytes",
		Buckets: prometheus.ExponentialBuckets(BucketStart64B, BucketFactor2, BucketCount10),
	})

	m.PublishLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "roadguard_mqtt_publish_latency_seconds",
		Help:    "Latency of MQTT publish operations in seconds",
		Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount10),
	})

	m.collectors = []prometheus.Collector{
		m.ConnectionStatus,
		m.MessagesReceived,
		m.MessagesPublished,
		m.Errors,
		m.ReconnectAttempts,
		m.LastConnectTime,
		m.MessageSize,
		m.PublishLatency,
	}
}

// UpdateConnectionStatus updates the connection gauge and, on connect, the last connect time.
func (m *MQTTMetrics) UpdateConnectionStatus(connected bool) {
	if connected {
		m.ConnectionStatus.Set(1)
		m.LastConnectTime.SetToCurrentTime()
	} else {
		m.ConnectionStatus.Set(0)
	}
}

// RecordMessageReceived counts an inbound evidence message and its payload size.
func (m *MQTTMetrics) RecordMessageReceived(kind, status string, sizeBytes int) {
	m.MessagesReceived.WithLabelValues(kind, status).Inc()
	m.MessageSize.Observe(float64(sizeBytes))
}

func (m *MQTTMetrics) IncrementMessagesPublished() {
	m.MessagesPublished.Inc()
}

// IncrementErrors counts an error at the given stage ("connect", "publish", "ingest").
func (m *MQTTMetrics) IncrementErrors(stage string) {
	m.Errors.WithLabelValues(stage).Inc()
}

func (m *MQTTMetrics) IncrementReconnectAttempts() {
	m.ReconnectAttempts.Inc()
}

// StartPublishTimer starts a timer for measuring publish latency.
func (m *MQTTMetrics) StartPublishTimer() *PublishTimer {
	return &PublishTimer{
		startTime: time.Now(),
		metrics:   m,
	}
}

// PublishTimer is a helper struct for measuring publish latency.
type PublishTimer struct {
	startTime time.Time
	metrics   *MQTTMetrics
}

// ObserveDuration stops the timer and records the duration.
func (pt *PublishTimer) ObserveDuration() {
	pt.metrics.PublishLatency.Observe(time.Since(pt.startTime).Seconds())
}

// Describe implements the prometheus.Collector interface.
func (m *MQTTMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *MQTTMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}
