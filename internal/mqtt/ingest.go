// ingest.go: stores RFID passages and sensor readings published by roadside devices.
package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/esafety/roadguard/internal/datastore"
	"github.com/esafety/roadguard/internal/errors"
	"github.com/esafety/roadguard/internal/logger"
	"github.com/esafety/roadguard/internal/observability/metrics"
)

// ingestTimeout bounds the store calls made for one message.
const ingestTimeout = 5 * time.Second

// Ingestor turns device messages into evidence rows.
type Ingestor struct {
	store   datastore.EvidenceWriter
	prefix  string
	log     logger.Logger
	metrics *metrics.MQTTMetrics
	now     func() time.Time
}

// NewIngestor creates an Ingestor for devices publishing under prefix.
// m may be nil.
func NewIngestor(store datastore.EvidenceWriter, prefix string, log logger.Logger, m *metrics.MQTTMetrics) *Ingestor {
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelInfo)
	}
	return &Ingestor{
		store:   store,
		prefix:  prefix,
		log:     log.Module("mqtt").Module("ingest"),
		metrics: m,
		now:     time.Now,
	}
}

// Subscribe registers the ingestor for every RFID reader and sensor topic.
func (in *Ingestor) Subscribe(c Client) error {
	for _, kind := range []string{KindRFID, KindSensor} {
		if err := c.Subscribe(DeviceWildcard(in.prefix, kind), in.handle); err != nil {
			return err
		}
	}
	return nil
}

// handle adapts HandleMessage to a MessageHandler. Failures are logged since
// there is no caller to return them to.
func (in *Ingestor) handle(topic string, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()

	if err := in.HandleMessage(ctx, topic, payload); err != nil {
		in.log.Warn("dropped device message", logger.String("topic", topic), logger.Error(err))
	}
}

// HandleMessage decodes and stores one device message.
func (in *Ingestor) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	kind, code, ok := ParseDeviceTopic(in.prefix, topic)
	if !ok {
		in.record("unknown", metrics.StatusError, len(payload))
		return ingestError(errors.NewStd("topic is not a device topic"), topic, "parse_topic")
	}

	var err error
	switch kind {
	case KindRFID:
		err = in.ingestRFID(ctx, topic, code, payload)
	case KindSensor:
		err = in.ingestSensor(ctx, topic, code, payload)
	}

	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
	}
	in.record(kind, status, len(payload))
	return err
}

func (in *Ingestor) ingestRFID(ctx context.Context, topic, code string, payload []byte) error {
	var msg RFIDPassageDTO
	if err := json.Unmarshal(payload, &msg); err != nil {
		return ingestError(err, topic, "decode_rfid")
	}
	if msg.VehicleTag == "" {
		return ingestError(errors.NewStd("vehicle_tag is required"), topic, "decode_rfid")
	}

	reader, err := in.store.RFIDReaderByCode(ctx, code)
	if err != nil {
		return ingestError(err, topic, "lookup_reader")
	}

	entry := &datastore.RFIDLog{
		RFIDReaderID: reader.ID,
		VehicleTag:   msg.VehicleTag,
		Timestamp:    in.timestamp(msg.Timestamp),
		Direction:    msg.Direction,
		Lane:         msg.Lane,
		Speed:        nullDecimal(msg.Speed),
		VehicleType:  msg.VehicleType,
	}
	if msg.Latitude != nil && msg.Longitude != nil {
		entry.Latitude = nullDecimal(msg.Latitude)
		entry.Longitude = nullDecimal(msg.Longitude)
	} else {
		entry.Latitude = decimal.NewNullDecimal(reader.Latitude)
		entry.Longitude = decimal.NewNullDecimal(reader.Longitude)
	}

	if err := in.store.SaveRFIDLog(ctx, entry); err != nil {
		return ingestError(err, topic, "save_rfid_log")
	}
	in.log.Debug("stored rfid passage",
		logger.String("reader", code),
		logger.Uint64("log_id", uint64(entry.ID)))
	return nil
}

func (in *Ingestor) ingestSensor(ctx context.Context, topic, code string, payload []byte) error {
	var msg SensorReadingDTO
	if err := json.Unmarshal(payload, &msg); err != nil {
		return ingestError(err, topic, "decode_sensor")
	}
	if msg.ReadingType == "" {
		return ingestError(errors.NewStd("reading_type is required"), topic, "decode_sensor")
	}

	sensor, err := in.store.SensorByCode(ctx, code)
	if err != nil {
		return ingestError(err, topic, "lookup_sensor")
	}

	reading := &datastore.SensorReading{
		SensorID:        sensor.ID,
		Timestamp:       in.timestamp(msg.Timestamp),
		ReadingType:     msg.ReadingType,
		Value:           datastore.JSONMap(msg.Value),
		Unit:            msg.Unit,
		QualityScore:    nullDecimal(msg.QualityScore),
		AnomalyDetected: msg.AnomalyDetected,
	}
	if err := in.store.SaveSensorReading(ctx, reading); err != nil {
		return ingestError(err, topic, "save_sensor_reading")
	}
	if reading.AnomalyDetected {
		in.log.Info("stored anomalous sensor reading",
			logger.String("sensor", code),
			logger.String("reading_type", reading.ReadingType))
	}
	return nil
}

// timestamp defaults a missing device timestamp to the receive time.
func (in *Ingestor) timestamp(t time.Time) time.Time {
	if t.IsZero() {
		return in.now().UTC()
	}
	return t.UTC()
}

func (in *Ingestor) record(kind, status string, size int) {
	if in.metrics == nil {
		return
	}
	in.metrics.RecordMessageReceived(kind, status, size)
	if status == metrics.StatusError {
		in.metrics.IncrementErrors("ingest")
	}
}

func nullDecimal(v *float64) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*v))
}

func ingestError(err error, topic, operation string) error {
	return errors.New(err).
		Component("mqtt").
		Category(errors.CategoryMQTTIngest).
		Context("topic", topic).
		Context("operation", operation).
		Build()
}
