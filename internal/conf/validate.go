// conf/validate.go

package conf

import (
	"fmt"
	"math"
	"strings"
)

const (
	DatabaseSQLite = "sqlite"
	DatabaseMySQL  = "mysql"

	// weightTolerance is the allowed distance of the weight sum from 1.
	weightTolerance = 1e-9
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates the entire Settings struct and reports every problem at once.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validateValidationSettings(&settings.Validation)...)
	ve.Errors = append(ve.Errors, validateDatabaseSettings(&settings.Database)...)
	ve.Errors = append(ve.Errors, validateWebServerSettings(&settings.WebServer)...)
	ve.Errors = append(ve.Errors, validateMQTTSettings(&settings.MQTT)...)

	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "sentry is enabled but no DSN is configured")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateValidationSettings(v *ValidationSettings) []string {
	var errs []string

	w := v.Weights
	for name, weight := range map[string]float64{"rfid": w.RFID, "cctv": w.CCTV, "sensor": w.Sensor, "ai": w.AI} {
		if weight < 0 || weight > 1 {
			errs = append(errs, fmt.Sprintf("validation weight %s must be between 0 and 1, got %g", name, weight))
		}
	}
	if sum := w.RFID + w.CCTV + w.Sensor + w.AI; math.Abs(sum-1) > weightTolerance {
		errs = append(errs, fmt.Sprintf("validation weights must sum to 1, got %g", sum))
	}

	if v.RFID.Window <= 0 {
		errs = append(errs, "validation rfid window must be positive")
	}
	if v.RFID.RadiusKm <= 0 {
		errs = append(errs, "validation rfid radius must be positive")
	}
	if v.Sensor.Window <= 0 {
		errs = append(errs, "validation sensor window must be positive")
	}
	if v.Sensor.RadiusKm < 0 {
		errs = append(errs, "validation sensor radius must not be negative")
	}
	if v.Sensor.PointsPerSensor <= 0 {
		errs = append(errs, "validation sensor points per sensor must be positive")
	}

	for name, score := range map[string]float64{
		"rfid max score":          v.RFID.MaxScore,
		"sensor max score":        v.Sensor.MaxScore,
		"ai default score":        v.AI.DefaultScore,
		"verified threshold":      v.Thresholds.Verified,
		"probable threshold":      v.Thresholds.Probable,
		"confirmed threshold":     v.Thresholds.Confirmed,
		"rfid match flag":         v.Flags.RFIDMatch,
		"cctv verified flag":      v.Flags.CCTVVerified,
		"sensor correlation flag": v.Flags.SensorCorrelation,
	} {
		if score < 0 || score > 100 {
			errs = append(errs, fmt.Sprintf("validation %s must be between 0 and 100, got %g", name, score))
		}
	}
	if v.Thresholds.Probable > v.Thresholds.Verified {
		errs = append(errs, fmt.Sprintf("validation probable threshold %g exceeds verified threshold %g",
			v.Thresholds.Probable, v.Thresholds.Verified))
	}

	if v.CorrelatorTimeout <= 0 {
		errs = append(errs, "validation correlator timeout must be positive")
	}
	if v.Writer.Attempts < 1 {
		errs = append(errs, "validation writer attempts must be at least 1")
	}
	if v.Writer.Backoff < 0 {
		errs = append(errs, "validation writer backoff must not be negative")
	}

	return errs
}

func validateDatabaseSettings(d *DatabaseSettings) []string {
	switch d.Type {
	case DatabaseSQLite:
		if d.SQLite.Path == "" {
			return []string{"database sqlite path is required"}
		}
	case DatabaseMySQL:
		var errs []string
		if d.MySQL.Host == "" {
			errs = append(errs, "database mysql host is required")
		}
		if d.MySQL.Port < 1 || d.MySQL.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database mysql port %d is out of range", d.MySQL.Port))
		}
		if d.MySQL.Database == "" {
			errs = append(errs, "database mysql database name is required")
		}
		return errs
	default:
		return []string{fmt.Sprintf("database type must be %q or %q, got %q", DatabaseSQLite, DatabaseMySQL, d.Type)}
	}
	return nil
}

func validateWebServerSettings(w *WebServerSettings) []string {
	var errs []string
	if w.Listen == "" {
		errs = append(errs, "webserver listen address is required")
	}
	if w.RateLimit <= 0 {
		errs = append(errs, "webserver rate limit must be positive")
	}
	if w.RateBurst < 1 {
		errs = append(errs, "webserver rate burst must be at least 1")
	}
	return errs
}

func validateMQTTSettings(m *MQTTSettings) []string {
	if !m.Enabled {
		return nil
	}
	var errs []string
	if err := validateEnvBrokerURL(m.Broker); err != nil {
		errs = append(errs, fmt.Sprintf("mqtt broker: %v", err))
	}
	if m.TopicPrefix == "" {
		errs = append(errs, "mqtt topic prefix is required")
	}
	if m.QoS > 2 {
		errs = append(errs, fmt.Sprintf("mqtt qos must be 0, 1 or 2, got %d", m.QoS))
	}
	return errs
}
