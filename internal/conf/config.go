// Package conf loads roadguard settings from defaults, a YAML file, environment
// variables and command-line flags, in increasing order of precedence.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/esafety/roadguard/internal/errors"
	"github.com/esafety/roadguard/internal/logger"
)

// Settings is the root configuration structure.
type Settings struct {
	Debug bool `mapstructure:"debug" yaml:"debug"`

	Validation ValidationSettings   `mapstructure:"validation" yaml:"validation"`
	Database   DatabaseSettings     `mapstructure:"database" yaml:"database"`
	Logging    logger.LoggingConfig `mapstructure:"logging" yaml:"logging"`
	WebServer  WebServerSettings    `mapstructure:"webserver" yaml:"webserver"`
	MQTT       MQTTSettings         `mapstructure:"mqtt" yaml:"mqtt"`
	Sentry     SentrySettings       `mapstructure:"sentry" yaml:"sentry"`
}

// ValidationSettings tunes the multi-source validation engine.
type ValidationSettings struct {
	Weights    WeightSettings    `mapstructure:"weights" yaml:"weights"`
	RFID       RFIDSettings      `mapstructure:"rfid" yaml:"rfid"`
	Sensor     SensorSettings    `mapstructure:"sensor" yaml:"sensor"`
	AI         AISettings        `mapstructure:"ai" yaml:"ai"`
	Thresholds ThresholdSettings `mapstructure:"thresholds" yaml:"thresholds"`
	Flags      FlagSettings      `mapstructure:"flags" yaml:"flags"`

	// CorrelatorTimeout bounds each evidence source; on expiry the source falls back.
	CorrelatorTimeout time.Duration  `mapstructure:"correlatortimeout" yaml:"correlatortimeout"`
	Writer            WriterSettings `mapstructure:"writer" yaml:"writer"`
}

// WeightSettings are the fusion weights. They must sum to 1.
type WeightSettings struct {
	RFID   float64 `mapstructure:"rfid" yaml:"rfid"`
	CCTV   float64 `mapstructure:"cctv" yaml:"cctv"`
	Sensor float64 `mapstructure:"sensor" yaml:"sensor"`
	AI     float64 `mapstructure:"ai" yaml:"ai"`
}

type RFIDSettings struct {
	Window   time.Duration `mapstructure:"window" yaml:"window"`
	RadiusKm float64       `mapstructure:"radiuskm" yaml:"radiuskm"`
	MaxScore float64       `mapstructure:"maxscore" yaml:"maxscore"`
}

type SensorSettings struct {
	Window time.Duration `mapstructure:"window" yaml:"window"`

	// RadiusKm limits counted sensors to those installed near the incident. 0 counts every sensor.
	RadiusKm        float64 `mapstructure:"radiuskm" yaml:"radiuskm"`
	PointsPerSensor float64 `mapstructure:"pointspersensor" yaml:"pointspersensor"`
	MaxScore        float64 `mapstructure:"maxscore" yaml:"maxscore"`
}

type AISettings struct {
	DefaultScore float64 `mapstructure:"defaultscore" yaml:"defaultscore"`
}

// ThresholdSettings hold the inclusive lower bounds of the status classes.
type ThresholdSettings struct {
	Verified float64 `mapstructure:"verified" yaml:"verified"`
	Probable float64 `mapstructure:"probable" yaml:"probable"`

	// Confirmed is the strict per-source bound above which a validation record is "confirmed".
	Confirmed float64 `mapstructure:"confirmed" yaml:"confirmed"`
}

// FlagSettings are strict thresholds for the UI evidence flags.
type FlagSettings struct {
	RFIDMatch         float64 `mapstructure:"rfidmatch" yaml:"rfidmatch"`
	CCTVVerified      float64 `mapstructure:"cctvverified" yaml:"cctvverified"`
	SensorCorrelation float64 `mapstructure:"sensorcorrelation" yaml:"sensorcorrelation"`
}

type WriterSettings struct {
	Attempts int           `mapstructure:"attempts" yaml:"attempts"`
	Backoff  time.Duration `mapstructure:"backoff" yaml:"backoff"`
}

// DatabaseSettings selects and configures the storage backend.
type DatabaseSettings struct {
	Type               string         `mapstructure:"type" yaml:"type"` // sqlite or mysql
	SQLite             SQLiteSettings `mapstructure:"sqlite" yaml:"sqlite"`
	MySQL              MySQLSettings  `mapstructure:"mysql" yaml:"mysql"`
	SlowQueryThreshold time.Duration  `mapstructure:"slowquerythreshold" yaml:"slowquerythreshold"`
}

type SQLiteSettings struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type MySQLSettings struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
}

type WebServerSettings struct {
	Listen string `mapstructure:"listen" yaml:"listen"`

	// RateLimit is the sustained rate of validate requests per second; RateBurst the bucket size.
	RateLimit float64       `mapstructure:"ratelimit" yaml:"ratelimit"`
	RateBurst int           `mapstructure:"rateburst" yaml:"rateburst"`

	// CacheTTL bounds how long an incident's validation listing is served from
	// memory. Validations run through the HTTP API drop the entry at once;
	// runs from another process (the validate command) are only seen after
	// the TTL expires.
	CacheTTL  time.Duration `mapstructure:"cachettl" yaml:"cachettl"`
}

type MQTTSettings struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	Broker      string `mapstructure:"broker" yaml:"broker"`
	ClientID    string `mapstructure:"clientid" yaml:"clientid"`
	Username    string `mapstructure:"username" yaml:"username"`
	Password    string `mapstructure:"password" yaml:"password"`
	TopicPrefix string `mapstructure:"topicprefix" yaml:"topicprefix"`
	QoS         byte   `mapstructure:"qos" yaml:"qos"`
	Retain      bool   `mapstructure:"retain" yaml:"retain"`
}

type SentrySettings struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	DSN         string `mapstructure:"dsn" yaml:"dsn"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// Load reads the configuration. An empty configFile searches the default
// locations; a missing file there is not an error.
func Load(configFile string) (*Settings, error) {
	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper(configFile string) error {
	setDefaultConfig()

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	if err := bindEnvVars(); err != nil {
		return err
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return errors.New(err).
				Component("configuration").
				Category(errors.CategoryConfiguration).
				Context("operation", "read_config").
				Context("path", configFile).
				Build()
		}
		return nil
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	for _, path := range GetDefaultConfigPaths() {
		viper.AddConfigPath(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errors.New(err).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Context("operation", "read_config").
			Build()
	}
	return nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml.
func GetDefaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "roadguard"))
	}
	return append(paths, "/etc/roadguard")
}

// ConfigFileUsed returns the path of the file viper read, or "".
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

// Redacted returns a copy of the settings with secrets blanked, for display.
func (s *Settings) Redacted() Settings {
	out := *s
	if out.Database.MySQL.Password != "" {
		out.Database.MySQL.Password = redactedValue
	}
	if out.MQTT.Password != "" {
		out.MQTT.Password = redactedValue
	}
	if out.Sentry.DSN != "" {
		out.Sentry.DSN = redactedValue
	}
	return out
}

const redactedValue = "[REDACTED]"
