// interfaces.go: this code defines the interfaces for the database operations
package datastore

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/esafety/roadguard/internal/conf"
	"github.com/esafety/roadguard/internal/logger"
	"github.com/esafety/roadguard/internal/observability/metrics"
)

// IncidentStore reads incidents and records the verification outcome on them.
type IncidentStore interface {
	GetIncident(ctx context.Context, id uint) (*Incident, error)
	UpdateVerification(ctx context.Context, id uint, status string, score decimal.Decimal) error
}

// RFIDLogStore queries RFID logs by time.
type RFIDLogStore interface {
	RFIDLogsBetween(ctx context.Context, from, to time.Time) ([]RFIDLog, error)
}

// CCTVFeedStore queries CCTV feeds already linked to an incident.
type CCTVFeedStore interface {
	CCTVFeedsForIncident(ctx context.Context, incidentID uint) ([]CCTVFeed, error)
}

// SensorReadingStore queries anomalous sensor readings by time. Readings carry their Sensor.
type SensorReadingStore interface {
	AnomalousReadingsBetween(ctx context.Context, from, to time.Time) ([]SensorReading, error)
}

// AIResultStore returns the newest AI result for an incident, or nil when there is none.
type AIResultStore interface {
	LatestAIResult(ctx context.Context, incidentID uint) (*AIVerificationResult, error)
}

// ValidationStore persists per-source validation records.
type ValidationStore interface {
	UpsertValidation(ctx context.Context, record *IncidentValidation) error
	ValidationsForIncident(ctx context.Context, incidentID uint) ([]IncidentValidation, error)
}

// EvidenceWriter stores evidence from ingestion and seeding.
type EvidenceWriter interface {
	SaveIncident(ctx context.Context, incident *Incident) error
	SaveRFIDLog(ctx context.Context, log *RFIDLog) error
	SaveSensorReading(ctx context.Context, reading *SensorReading) error
	SaveCCTVFeed(ctx context.Context, feed *CCTVFeed) error
	SaveAIResult(ctx context.Context, result *AIVerificationResult) error
	UpsertRFIDReader(ctx context.Context, reader *RFIDReader) error
	UpsertCCTVCamera(ctx context.Context, camera *CCTVCamera) error
	UpsertSensor(ctx context.Context, sensor *Sensor) error
	RFIDReaderByCode(ctx context.Context, code string) (*RFIDReader, error)
	SensorByCode(ctx context.Context, code string) (*Sensor, error)
}

// Interface is the complete storage backend.
type Interface interface {
	Open() error
	Close() error
	Ping(ctx context.Context) error

	IncidentStore
	RFIDLogStore
	CCTVFeedStore
	SensorReadingStore
	AIResultStore
	ValidationStore
	EvidenceWriter
}

// DataStore implements Interface on top of a GORM database. The
// dialect-specific stores embed it and only provide Open.
type DataStore struct {
	DB       *gorm.DB
	Settings *conf.Settings

	log     logger.Logger
	metrics metrics.Recorder
}

// New returns an unopened store for the configured database type.
// A nil logger discards output and a nil recorder records nothing.
func New(settings *conf.Settings, log logger.Logger, recorder metrics.Recorder) (Interface, error) {
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelInfo)
	}
	if recorder == nil {
		recorder = metrics.NoOpRecorder{}
	}
	base := DataStore{
		Settings: settings,
		log:      log.Module("datastore"),
		metrics:  recorder,
	}

	switch settings.Database.Type {
	case conf.DatabaseSQLite:
		return &SQLiteStore{DataStore: base}, nil
	case conf.DatabaseMySQL:
		return &MySQLStore{DataStore: base}, nil
	default:
		return nil, validationError("unsupported database type", "database.type", settings.Database.Type)
	}
}

// observe records the outcome and duration of a datastore operation.
func (ds *DataStore) observe(operation string, start time.Time, err error) {
	ds.metrics.RecordDuration(operation, time.Since(start).Seconds())
	if err == nil {
		ds.metrics.RecordOperation(operation, metrics.StatusSuccess)
		return
	}
	ds.metrics.RecordOperation(operation, metrics.StatusError)

	errorType := metrics.ErrorTypeDatabase
	if isNotFound(err) {
		errorType = metrics.ErrorTypeNotFound
	}
	ds.metrics.RecordError(operation, errorType)
}

// Ping checks that the database answers.
func (ds *DataStore) Ping(ctx context.Context) error {
	if ds.DB == nil {
		return stateError(errNotOpen, "ping", "connection")
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return stateError(err, "ping", "connection")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return stateError(err, "ping", "connection")
	}
	return nil
}

// Close releases the connection pool.
func (ds *DataStore) Close() error {
	if ds.DB == nil {
		return stateError(errNotOpen, "close", "connection")
	}

	sqlDB, err := ds.DB.DB()
	if err != nil {
		return stateError(err, "close", "connection")
	}
	if err := sqlDB.Close(); err != nil {
		ds.log.Error("failed to close database", logger.Error(err))
		return stateError(err, "close", "connection")
	}

	ds.log.Debug("database connection closed")
	return nil
}
