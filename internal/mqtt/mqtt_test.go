package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esafety/roadguard/internal/conf"
	"github.com/esafety/roadguard/internal/datastore"
	"github.com/esafety/roadguard/internal/errors"
	"github.com/esafety/roadguard/internal/observability/metrics"
	"github.com/esafety/roadguard/internal/validation"
)

const testPrefix = "roadguard"

// fakeClient records published messages and subscriptions.
type fakeClient struct {
	mu        sync.Mutex
	published map[string][]byte
	handlers  map[string]MessageHandler
	err       error
}

func newFakeClient() *fakeClient {
	return &fakeClient{published: map[string][]byte{}, handlers: map[string]MessageHandler{}}
}

func (f *fakeClient) Connect(context.Context) error { return nil }
func (f *fakeClient) IsConnected() bool             { return true }
func (f *fakeClient) Disconnect()                   {}

func (f *fakeClient) Publish(_ context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published[topic] = payload
	return nil
}

func (f *fakeClient) Subscribe(topic string, handler MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func newTestMetrics(t *testing.T) *metrics.MQTTMetrics {
	t.Helper()
	m, err := metrics.NewMQTTMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func openStore(t *testing.T) datastore.Interface {
	t.Helper()
	settings := &conf.Settings{}
	settings.Database.Type = conf.DatabaseSQLite
	settings.Database.SQLite.Path = ":memory:"

	store, err := datastore.New(settings, nil, nil)
	require.NoError(t, err)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestDeviceTopics(t *testing.T) {
	assert.Equal(t, "roadguard/rfid/RFID-0001", DeviceTopic(testPrefix, KindRFID, "RFID-0001"))
	assert.Equal(t, "roadguard/sensor/+", DeviceWildcard(testPrefix, KindSensor))
	assert.Equal(t, "roadguard/validation/42", ValidationTopic(testPrefix, 42))
}

func TestParseDeviceTopic(t *testing.T) {
	tests := []struct {
		topic    string
		wantKind string
		wantCode string
		wantOK   bool
	}{
		{"roadguard/rfid/RFID-0001", KindRFID, "RFID-0001", true},
		{"roadguard/sensor/SENS-7", KindSensor, "SENS-7", true},
		{"roadguard/validation/12", "", "", false},
		{"roadguard/rfid/", "", "", false},
		{"roadguard/rfid/a/b", "", "", false},
		{"other/rfid/RFID-0001", "", "", false},
		{"roadguard", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			kind, code, ok := ParseDeviceTopic(testPrefix, tt.topic)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantKind, kind)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestConfigFromSettings(t *testing.T) {
	cfg := ConfigFromSettings(&conf.MQTTSettings{
		Broker:      "tcp://broker.local:1883",
		TopicPrefix: "city/roads/",
		QoS:         2,
		Retain:      true,
	})

	assert.Equal(t, "tcp://broker.local:1883", cfg.Broker)
	assert.Equal(t, "city/roads", cfg.TopicPrefix)
	assert.Equal(t, "roadguard", cfg.ClientID, "empty client id keeps the default")
	assert.Equal(t, byte(2), cfg.QoS)
	assert.True(t, cfg.Retain)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
}

func TestNewClientRejectsBadBroker(t *testing.T) {
	for _, broker := range []string{"", "not a url", "://missing-scheme"} {
		cfg := DefaultConfig()
		cfg.Broker = broker

		c, err := NewClient(cfg, newTestMetrics(t), nil)
		require.Error(t, err, "broker %q", broker)
		assert.Nil(t, c)
		assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	}
}

func TestPublishRequiresConnection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Broker = "tcp://127.0.0.1:1883"

	c, err := NewClient(cfg, newTestMetrics(t), nil)
	require.NoError(t, err)
	assert.False(t, c.IsConnected())

	err = c.Publish(t.Context(), ValidationTopic(testPrefix, 1), []byte("{}"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTPublish))

	// Subscriptions before connecting are kept for onConnect
	require.NoError(t, c.Subscribe(DeviceWildcard(testPrefix, KindRFID), func(string, []byte) {}))
	c.Disconnect()
}

func TestIngestorStoresRFIDPassage(t *testing.T) {
	store := openStore(t)
	reader := &datastore.RFIDReader{
		ReaderCode: "RFID-0001",
		Latitude:   decimal.RequireFromString("-1.292000"),
		Longitude:  decimal.RequireFromString("36.822000"),
	}
	require.NoError(t, store.UpsertRFIDReader(t.Context(), reader))

	m := newTestMetrics(t)
	in := NewIngestor(store, testPrefix, nil, m)
	at := time.Date(2024, 3, 14, 8, 25, 0, 0, time.UTC)

	// Without coordinates the reader position is used
	payload := []byte(`{"vehicle_tag":"tag-1","timestamp":"2024-03-14T08:25:00Z","direction":"north","speed":62.5}`)
	require.NoError(t, in.HandleMessage(t.Context(), DeviceTopic(testPrefix, KindRFID, "RFID-0001"), payload))

	payload = []byte(`{"vehicle_tag":"tag-2","timestamp":"2024-03-14T08:26:00Z","latitude":-1.3,"longitude":36.9}`)
	require.NoError(t, in.HandleMessage(t.Context(), DeviceTopic(testPrefix, KindRFID, "RFID-0001"), payload))

	logs, err := store.RFIDLogsBetween(t.Context(), at, at.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, logs, 2)

	assert.Equal(t, reader.ID, logs[0].RFIDReaderID)
	assert.Equal(t, "tag-1", logs[0].VehicleTag)
	assert.True(t, logs[0].Latitude.Decimal.Equal(reader.Latitude))
	assert.True(t, logs[0].Speed.Decimal.Equal(decimal.RequireFromString("62.5")))
	assert.True(t, logs[1].Longitude.Decimal.Equal(decimal.RequireFromString("36.9")))

	assert.InDelta(t, 2, testutil.ToFloat64(m.MessagesReceived.WithLabelValues(KindRFID, metrics.StatusSuccess)), 0)
}

func TestIngestorStoresSensorReading(t *testing.T) {
	store := openStore(t)
	sensor := &datastore.Sensor{
		SensorCode: "SENS-7",
		SensorType: "vibration",
		Latitude:   decimal.RequireFromString("-1.292500"),
		Longitude:  decimal.RequireFromString("36.821500"),
	}
	require.NoError(t, store.UpsertSensor(t.Context(), sensor))

	in := NewIngestor(store, testPrefix, nil, newTestMetrics(t))
	received := time.Date(2024, 3, 14, 8, 31, 0, 0, time.UTC)
	in.now = func() time.Time { return received }

	// No timestamp: stored at receive time
	payload := []byte(`{"reading_type":"vibration","value":{"g":2.4},"unit":"g","quality_score":97.5,"anomaly_detected":true}`)
	require.NoError(t, in.HandleMessage(t.Context(), DeviceTopic(testPrefix, KindSensor, "SENS-7"), payload))

	readings, err := store.AnomalousReadingsBetween(t.Context(), received, received)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, sensor.ID, readings[0].SensorID)
	assert.InDelta(t, 2.4, readings[0].Value["g"], 1e-9)
	assert.True(t, readings[0].QualityScore.Decimal.Equal(decimal.RequireFromString("97.5")))
}

func TestIngestorRejectsBadMessages(t *testing.T) {
	store := openStore(t)
	m := newTestMetrics(t)
	in := NewIngestor(store, testPrefix, nil, m)

	tests := []struct {
		name    string
		topic   string
		payload string
	}{
		{"not a device topic", "roadguard/validation/1", `{}`},
		{"malformed json", DeviceTopic(testPrefix, KindRFID, "RFID-0001"), `{"vehicle_tag":`},
		{"missing tag", DeviceTopic(testPrefix, KindRFID, "RFID-0001"), `{"timestamp":"2024-03-14T08:25:00Z"}`},
		{"unknown reader", DeviceTopic(testPrefix, KindRFID, "RFID-9999"), `{"vehicle_tag":"tag-1"}`},
		{"missing reading type", DeviceTopic(testPrefix, KindSensor, "SENS-7"), `{"value":{}}`},
		{"unknown sensor", DeviceTopic(testPrefix, KindSensor, "SENS-7"), `{"reading_type":"flow"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := in.HandleMessage(t.Context(), tt.topic, []byte(tt.payload))
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryMQTTIngest))
		})
	}

	assert.InDelta(t, float64(len(tests)), testutil.ToFloat64(m.Errors.WithLabelValues("ingest")), 0)
}

func TestIngestorSubscribesDeviceWildcards(t *testing.T) {
	c := newFakeClient()
	in := NewIngestor(openStore(t), testPrefix, nil, nil)

	require.NoError(t, in.Subscribe(c))
	assert.Contains(t, c.handlers, "roadguard/rfid/+")
	assert.Contains(t, c.handlers, "roadguard/sensor/+")

	// Failures inside the handler are logged, not raised
	c.handlers["roadguard/rfid/+"]("roadguard/rfid/RFID-0001", []byte("garbage"))
}

func TestPublisherSendsValidationEvent(t *testing.T) {
	c := newFakeClient()
	p := NewPublisher(c, testPrefix)
	at := time.Date(2024, 3, 14, 9, 0, 0, 0, time.FixedZone("EAT", 3*3600))

	result := &validation.Result{
		IncidentID:       7,
		ConfidenceScore:  72.5,
		ValidationStatus: datastore.VerificationVerified,
		ValidationDetails: validation.Details{
			AIConfidence:    90,
			TotalConfidence: 72.5,
			CCTVVerified:    true,
		},
		Outcomes:    map[string]validation.Outcome{datastore.SourceAI: validation.OutcomeEvidence},
		TraceID:     "trace-1",
		ValidatedAt: at,
	}
	require.NoError(t, p.PublishValidation(t.Context(), result))

	raw, ok := c.published["roadguard/validation/7"]
	require.True(t, ok)

	var event ValidationEventDTO
	require.NoError(t, json.Unmarshal(raw, &event))
	assert.Equal(t, uint(7), event.IncidentID)
	assert.InDelta(t, 72.5, event.ConfidenceScore, 1e-9)
	assert.Equal(t, datastore.VerificationVerified, event.ValidationStatus)
	assert.True(t, event.ValidationDetails.CCTVVerified)
	assert.Equal(t, validation.OutcomeEvidence, event.SourceOutcomes[datastore.SourceAI])
	assert.Equal(t, time.UTC, event.ValidatedAt.Location())
	assert.True(t, event.ValidatedAt.Equal(at))
}

func TestPublisherReturnsClientError(t *testing.T) {
	c := newFakeClient()
	c.err = errors.NewStd("broker gone")

	err := NewPublisher(c, testPrefix).PublishValidation(t.Context(), &validation.Result{IncidentID: 1})
	require.Error(t, err)
	assert.Empty(t, c.published)
}
