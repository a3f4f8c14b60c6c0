package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetViper isolates tests that touch the global viper instance.
func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	resetViper(t)

	settings, err := Load(writeConfig(t, "debug: false\n"))
	require.NoError(t, err)

	v := settings.Validation
	assert.InDelta(t, 0.20, v.Weights.RFID, 1e-12)
	assert.InDelta(t, 0.30, v.Weights.CCTV, 1e-12)
	assert.InDelta(t, 0.10, v.Weights.Sensor, 1e-12)
	assert.InDelta(t, 0.40, v.Weights.AI, 1e-12)
	assert.Equal(t, 10*time.Minute, v.RFID.Window)
	assert.InDelta(t, 2.0, v.RFID.RadiusKm, 1e-12)
	assert.InDelta(t, 70.0, v.RFID.MaxScore, 1e-12)
	assert.InDelta(t, 60.0, v.Sensor.MaxScore, 1e-12)
	assert.InDelta(t, 15.0, v.Sensor.PointsPerSensor, 1e-12)
	assert.InDelta(t, 50.0, v.AI.DefaultScore, 1e-12)
	assert.InDelta(t, 70.0, v.Thresholds.Verified, 1e-12)
	assert.InDelta(t, 50.0, v.Thresholds.Probable, 1e-12)
	assert.InDelta(t, 60.0, v.Flags.CCTVVerified, 1e-12)
	assert.Equal(t, 3*time.Second, v.CorrelatorTimeout)
	assert.Equal(t, 3, v.Writer.Attempts)

	assert.Equal(t, DatabaseSQLite, settings.Database.Type)
	assert.Equal(t, "info", settings.Logging.DefaultLevel)
	require.NotNil(t, settings.Logging.Console)
	assert.True(t, settings.Logging.Console.Enabled)
}

func TestLoadDefaultListingCacheIsShortLived(t *testing.T) {
	resetViper(t)

	settings, err := Load(writeConfig(t, "debug: false\n"))
	require.NoError(t, err)

	// Listings written by another process stay stale for at most one TTL
	assert.Equal(t, 30*time.Second, settings.WebServer.CacheTTL)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	resetViper(t)

	path := writeConfig(t, `
validation:
  weights:
    rfid: 0.25
    cctv: 0.25
    sensor: 0.25
    ai: 0.25
  rfid:
    window: 5m
  thresholds:
    verified: 80
database:
  type: mysql
  mysql:
    host: db.internal
    password: s3cret
`)

	settings, err := Load(path)
	require.NoError(t, err)

	assert.InDelta(t, 0.25, settings.Validation.Weights.AI, 1e-12)
	assert.Equal(t, 5*time.Minute, settings.Validation.RFID.Window)
	assert.InDelta(t, 80.0, settings.Validation.Thresholds.Verified, 1e-12)
	assert.Equal(t, "db.internal", settings.Database.MySQL.Host)
	assert.Equal(t, 3306, settings.Database.MySQL.Port)

	redacted := settings.Redacted()
	assert.Equal(t, redactedValue, redacted.Database.MySQL.Password)
	assert.Equal(t, "s3cret", settings.Database.MySQL.Password)
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	resetViper(t)
	t.Setenv("ROADGUARD_VALIDATION_CORRELATORTIMEOUT", "750ms")
	t.Setenv("ROADGUARD_MQTT_BROKER", "tcp://broker.local:1883")

	settings, err := Load(writeConfig(t, "validation:\n  correlatortimeout: 5s\n"))
	require.NoError(t, err)

	assert.Equal(t, 750*time.Millisecond, settings.Validation.CorrelatorTimeout)
	assert.Equal(t, "tcp://broker.local:1883", settings.MQTT.Broker)
}

func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	resetViper(t)
	t.Setenv("ROADGUARD_DATABASE_TYPE", "postgres")

	_, err := Load(writeConfig(t, "debug: true\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ROADGUARD_DATABASE_TYPE")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	resetViper(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidateSettingsCollectsAllErrors(t *testing.T) {
	resetViper(t)
	settings, err := Load(writeConfig(t, "debug: false\n"))
	require.NoError(t, err)

	settings.Validation.Weights.AI = 0.5
	settings.Validation.Thresholds.Probable = 90
	settings.Validation.CorrelatorTimeout = 0
	settings.Database.Type = "oracle"

	err = ValidateSettings(settings)
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 4)
}

func TestValidateWeightTolerance(t *testing.T) {
	resetViper(t)
	settings, err := Load(writeConfig(t, "debug: false\n"))
	require.NoError(t, err)
	v := settings.Validation

	// 0.1+0.2 style float error is within tolerance
	v.Weights = WeightSettings{RFID: 0.1, CCTV: 0.2, Sensor: 0.3, AI: 0.4}
	assert.Empty(t, validateValidationSettings(&v))

	v.Weights.AI = 0.41
	assert.NotEmpty(t, validateValidationSettings(&v))
}

func TestValidateMQTTOnlyWhenEnabled(t *testing.T) {
	m := MQTTSettings{Broker: "not a url"}
	assert.Empty(t, validateMQTTSettings(&m))

	m.Enabled = true
	assert.NotEmpty(t, validateMQTTSettings(&m))

	m.Broker = "ssl://broker.example.com:8883"
	m.TopicPrefix = "roadguard"
	assert.Empty(t, validateMQTTSettings(&m))
}

func TestEnvValidators(t *testing.T) {
	tests := []struct {
		name    string
		fn      func(string) error
		value   string
		wantErr bool
	}{
		{"bool ok", validateEnvBool, "true", false},
		{"bool bad", validateEnvBool, "yes please", true},
		{"unit ok", validateEnvUnitFloat, "0.4", false},
		{"unit high", validateEnvUnitFloat, "1.2", true},
		{"score ok", validateEnvScore, "70", false},
		{"score high", validateEnvScore, "101", true},
		{"duration ok", validateEnvDuration, "3s", false},
		{"duration zero", validateEnvDuration, "0s", true},
		{"port ok", validateEnvPort, "3306", false},
		{"port bad", validateEnvPort, "70000", true},
		{"broker ok", validateEnvBrokerURL, "tcp://localhost:1883", false},
		{"broker scheme", validateEnvBrokerURL, "http://localhost", true},
		{"level ok", validateEnvLogLevel, "TRACE", false},
		{"level bad", validateEnvLogLevel, "verbose", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
