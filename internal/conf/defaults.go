// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	v := DefaultValidationSettings()
	viper.SetDefault("validation.weights.rfid", v.Weights.RFID)
	viper.SetDefault("validation.weights.cctv", v.Weights.CCTV)
	viper.SetDefault("validation.weights.sensor", v.Weights.Sensor)
	viper.SetDefault("validation.weights.ai", v.Weights.AI)

	viper.SetDefault("validation.rfid.window", v.RFID.Window)
	viper.SetDefault("validation.rfid.radiuskm", v.RFID.RadiusKm)
	viper.SetDefault("validation.rfid.maxscore", v.RFID.MaxScore)

	viper.SetDefault("validation.sensor.window", v.Sensor.Window)
	viper.SetDefault("validation.sensor.radiuskm", v.Sensor.RadiusKm)
	viper.SetDefault("validation.sensor.pointspersensor", v.Sensor.PointsPerSensor)
	viper.SetDefault("validation.sensor.maxscore", v.Sensor.MaxScore)

	viper.SetDefault("validation.ai.defaultscore", v.AI.DefaultScore)

	viper.SetDefault("validation.thresholds.verified", v.Thresholds.Verified)
	viper.SetDefault("validation.thresholds.probable", v.Thresholds.Probable)
	viper.SetDefault("validation.thresholds.confirmed", v.Thresholds.Confirmed)

	viper.SetDefault("validation.flags.rfidmatch", v.Flags.RFIDMatch)
	viper.SetDefault("validation.flags.cctvverified", v.Flags.CCTVVerified)
	viper.SetDefault("validation.flags.sensorcorrelation", v.Flags.SensorCorrelation)

	viper.SetDefault("validation.correlatortimeout", v.CorrelatorTimeout)
	viper.SetDefault("validation.writer.attempts", v.Writer.Attempts)
	viper.SetDefault("validation.writer.backoff", v.Writer.Backoff)

	viper.SetDefault("database.type", "sqlite")
	viper.SetDefault("database.sqlite.path", "roadguard.db")
	viper.SetDefault("database.mysql.host", "localhost")
	viper.SetDefault("database.mysql.port", 3306)
	viper.SetDefault("database.mysql.username", "roadguard")
	viper.SetDefault("database.mysql.password", "")
	viper.SetDefault("database.mysql.database", "roadguard")
	viper.SetDefault("database.slowquerythreshold", 200*time.Millisecond)

	viper.SetDefault("logging.default_level", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", "logs/roadguard.log")
	viper.SetDefault("logging.file_output.level", "info")

	viper.SetDefault("webserver.listen", ":8080")
	viper.SetDefault("webserver.ratelimit", 5.0)
	viper.SetDefault("webserver.rateburst", 10)
	viper.SetDefault("webserver.cachettl", 30*time.Second)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.clientid", "roadguard")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.topicprefix", "roadguard")
	viper.SetDefault("mqtt.qos", 1)
	viper.SetDefault("mqtt.retain", false)

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.environment", "production")
}

// DefaultValidationSettings returns the stock scoring policy: fusion weights
// 0.2/0.3/0.1/0.4, ten minute windows, a 2 km RFID radius and the 70/50
// classification bands.
func DefaultValidationSettings() ValidationSettings {
	return ValidationSettings{
		Weights: WeightSettings{RFID: 0.20, CCTV: 0.30, Sensor: 0.10, AI: 0.40},
		RFID: RFIDSettings{
			Window:   10 * time.Minute,
			RadiusKm: 2.0,
			MaxScore: 70,
		},
		Sensor: SensorSettings{
			Window:          10 * time.Minute,
			PointsPerSensor: 15,
			MaxScore:        60,
		},
		AI:                AISettings{DefaultScore: 50},
		Thresholds:        ThresholdSettings{Verified: 70, Probable: 50, Confirmed: 50},
		Flags:             FlagSettings{RFIDMatch: 50, CCTVVerified: 60, SensorCorrelation: 40},
		CorrelatorTimeout: 3 * time.Second,
		Writer:            WriterSettings{Attempts: 3, Backoff: 100 * time.Millisecond},
	}
}
