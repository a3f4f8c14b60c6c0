// mqtt.go: Package mqtt connects roadguard to the roadside device broker. It
// ingests RFID passages and sensor readings published by the devices and
// announces validation results.
package mqtt

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/esafety/roadguard/internal/conf"
)

// Client defines the interface for MQTT client operations.
type Client interface {
	// Connect attempts to connect to the MQTT broker.
	// It returns an error if the connection fails.
	Connect(ctx context.Context) error

	// Publish sends a message to the specified topic on the MQTT broker.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers handler for topic. Subscriptions survive reconnects.
	Subscribe(topic string, handler MessageHandler) error

	// IsConnected returns true if the client is currently connected to the MQTT broker.
	IsConnected() bool

	// Disconnect closes the connection to the MQTT broker.
	Disconnect()
}

// MessageHandler processes one inbound message.
type MessageHandler func(topic string, payload []byte)

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string // Root of every device and result topic
	QoS         byte
	Retain      bool // true to retain published results at the broker
	// Connection timeouts
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// DefaultConfig returns a Config with reasonable default values
func DefaultConfig() Config {
	return Config{
		ClientID:          "roadguard",
		TopicPrefix:       "roadguard",
		QoS:               1,
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
	}
}

// ConfigFromSettings overlays the configured broker settings on DefaultConfig.
func ConfigFromSettings(s *conf.MQTTSettings) Config {
	cfg := DefaultConfig()
	cfg.Broker = s.Broker
	cfg.Username = s.Username
	cfg.Password = s.Password
	cfg.QoS = s.QoS
	cfg.Retain = s.Retain
	if s.ClientID != "" {
		cfg.ClientID = s.ClientID
	}
	if s.TopicPrefix != "" {
		cfg.TopicPrefix = strings.TrimSuffix(s.TopicPrefix, "/")
	}
	return cfg
}

// Device kinds addressable under the topic prefix.
const (
	KindRFID   = "rfid"
	KindSensor = "sensor"

	validationSegment = "validation"
)

// DeviceTopic returns the topic a device of kind publishes to, e.g. roadguard/rfid/RFID-0001.
func DeviceTopic(prefix, kind, code string) string {
	return prefix + "/" + kind + "/" + code
}

// DeviceWildcard returns the subscription filter for every device of kind.
func DeviceWildcard(prefix, kind string) string {
	return prefix + "/" + kind + "/+"
}

// ValidationTopic returns the topic validation results for an incident are published to.
func ValidationTopic(prefix string, incidentID uint) string {
	return prefix + "/" + validationSegment + "/" + strconv.FormatUint(uint64(incidentID), 10)
}

// ParseDeviceTopic splits a device topic into kind and device code.
func ParseDeviceTopic(prefix, topic string) (kind, code string, ok bool) {
	rest, found := strings.CutPrefix(topic, prefix+"/")
	if !found {
		return "", "", false
	}
	kind, code, found = strings.Cut(rest, "/")
	if !found || code == "" || strings.Contains(code, "/") {
		return "", "", false
	}
	if kind != KindRFID && kind != KindSensor {
		return "", "", false
	}
	return kind, code, true
}
