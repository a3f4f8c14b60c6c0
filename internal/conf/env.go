// env.go - Environment variable configuration and validation for roadguard
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "ROADGUARD"

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		// Validation engine
		{"validation.weights.rfid", "ROADGUARD_VALIDATION_WEIGHTS_RFID", validateEnvUnitFloat},
		{"validation.weights.cctv", "ROADGUARD_VALIDATION_WEIGHTS_CCTV", validateEnvUnitFloat},
		{"validation.weights.sensor", "ROADGUARD_VALIDATION_WEIGHTS_SENSOR", validateEnvUnitFloat},
		{"validation.weights.ai", "ROADGUARD_VALIDATION_WEIGHTS_AI", validateEnvUnitFloat},
		{"validation.rfid.window", "ROADGUARD_VALIDATION_RFID_WINDOW", validateEnvDuration},
		{"validation.rfid.radiuskm", "ROADGUARD_VALIDATION_RFID_RADIUSKM", validateEnvNonNegativeFloat},
		{"validation.sensor.window", "ROADGUARD_VALIDATION_SENSOR_WINDOW", validateEnvDuration},
		{"validation.sensor.radiuskm", "ROADGUARD_VALIDATION_SENSOR_RADIUSKM", validateEnvNonNegativeFloat},
		{"validation.thresholds.verified", "ROADGUARD_VALIDATION_THRESHOLDS_VERIFIED", validateEnvScore},
		{"validation.thresholds.probable", "ROADGUARD_VALIDATION_THRESHOLDS_PROBABLE", validateEnvScore},
		{"validation.correlatortimeout", "ROADGUARD_VALIDATION_CORRELATORTIMEOUT", validateEnvDuration},

		// Database
		{"database.type", "ROADGUARD_DATABASE_TYPE", validateEnvDatabaseType},
		{"database.sqlite.path", "ROADGUARD_DATABASE_SQLITE_PATH", nil},
		{"database.mysql.host", "ROADGUARD_DATABASE_MYSQL_HOST", nil},
		{"database.mysql.port", "ROADGUARD_DATABASE_MYSQL_PORT", validateEnvPort},
		{"database.mysql.username", "ROADGUARD_DATABASE_MYSQL_USERNAME", nil},
		{"database.mysql.password", "ROADGUARD_DATABASE_MYSQL_PASSWORD", nil},
		{"database.mysql.database", "ROADGUARD_DATABASE_MYSQL_DATABASE", nil},

		// Transport
		{"webserver.listen", "ROADGUARD_WEBSERVER_LISTEN", nil},
		{"mqtt.enabled", "ROADGUARD_MQTT_ENABLED", validateEnvBool},
		{"mqtt.broker", "ROADGUARD_MQTT_BROKER", validateEnvBrokerURL},
		{"mqtt.username", "ROADGUARD_MQTT_USERNAME", nil},
		{"mqtt.password", "ROADGUARD_MQTT_PASSWORD", nil},

		// Telemetry
		{"sentry.enabled", "ROADGUARD_SENTRY_ENABLED", validateEnvBool},
		{"sentry.dsn", "ROADGUARD_SENTRY_DSN", nil},
		{"logging.default_level", "ROADGUARD_LOG_LEVEL", validateEnvLogLevel},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0", value)
	}
	return nil
}

func validateEnvUnitFloat(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid number: %w", err)
	}
	if f < 0 || f > 1 {
		return fmt.Errorf("must be between 0 and 1, got %g", f)
	}
	return nil
}

func validateEnvNonNegativeFloat(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid number: %w", err)
	}
	if f < 0 {
		return fmt.Errorf("must not be negative, got %g", f)
	}
	return nil
}

func validateEnvScore(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid score: %w", err)
	}
	if f < 0 || f > 100 {
		return fmt.Errorf("score must be between 0 and 100, got %g", f)
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %s", d)
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid port: %w", err)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

func validateEnvDatabaseType(value string) error {
	switch value {
	case DatabaseSQLite, DatabaseMySQL:
		return nil
	default:
		return fmt.Errorf("database type must be %q or %q", DatabaseSQLite, DatabaseMySQL)
	}
}

func validateEnvBrokerURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid broker URL: %w", err)
	}
	switch u.Scheme {
	case "tcp", "ssl", "tls", "ws", "wss", "mqtt", "mqtts":
	default:
		return fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("broker URL has no host")
	}
	return nil
}

func validateEnvLogLevel(value string) error {
	switch strings.ToLower(value) {
	case "trace", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("log level must be one of trace, debug, info, warn, error")
	}
}
