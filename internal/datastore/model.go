// model.go defines the incident and evidence schema read by the validation engine
package datastore

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/esafety/roadguard/internal/geo"
)

// Validation sources, one IncidentValidation row per incident each.
const (
	SourceCitizenReport = "citizen_report"
	SourceRFID          = "rfid"
	SourceCCTV          = "cctv"
	SourceSensor        = "sensor"
	SourceAI            = "ai"
)

// Per-source validation record statuses.
const (
	RecordPending      = "pending"
	RecordConfirmed    = "confirmed"
	RecordContradicted = "contradicted"
	RecordInconclusive = "inconclusive"
)

// Incident verification statuses written back after validation.
const (
	VerificationPending    = "pending"
	VerificationVerified   = "verified"
	VerificationProbable   = "probable"
	VerificationUnverified = "unverified"
)

// Device statuses shared by readers, cameras and sensors.
const (
	DeviceActive      = "active"
	DeviceInactive    = "inactive"
	DeviceMaintenance = "maintenance"
)

// JSONMap is a free-form JSON object column.
type JSONMap map[string]any

// Value implements driver.Valuer
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (m *JSONMap) Scan(value any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*m = JSONMap{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONMap source type %T", value)
	}
	if len(raw) == 0 {
		*m = JSONMap{}
		return nil
	}
	return json.Unmarshal(raw, m)
}

// Incident is a reported road incident. Only the fields the validation engine
// reads or writes back are modelled.
type Incident struct {
	ID                 uint            `gorm:"primaryKey"`
	Reference          string          `gorm:"size:50;uniqueIndex"` // public incident code, e.g. INC-2024-0001
	Category           string          `gorm:"size:50"`
	Description        string          `gorm:"type:text"`
	Latitude           decimal.Decimal `gorm:"type:decimal(9,6);not null"`
	Longitude          decimal.Decimal `gorm:"type:decimal(9,6);not null"`
	Timestamp          time.Time       `gorm:"index;not null"`
	VehiclesInvolved   int
	HasInjuries        bool
	VerificationStatus string              `gorm:"size:20;default:pending"`
	AIConfidenceScore  decimal.NullDecimal `gorm:"type:decimal(5,2)"`
	VerifiedAt         *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (Incident) TableName() string { return "incidents" }

// Location returns the incident position for distance checks.
func (i *Incident) Location() geo.Point {
	return geo.Point{Lat: i.Latitude.InexactFloat64(), Lon: i.Longitude.InexactFloat64()}
}

// RFIDReader is a roadside RFID gantry.
type RFIDReader struct {
	ID         uint            `gorm:"primaryKey"`
	ReaderCode string          `gorm:"size:100;uniqueIndex;not null"`
	Latitude   decimal.Decimal `gorm:"type:decimal(9,6);not null"`
	Longitude  decimal.Decimal `gorm:"type:decimal(9,6);not null"`
	MQTTTopic  string          `gorm:"size:200"`
	Status     string          `gorm:"size:20;default:active"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (RFIDReader) TableName() string { return "rfid_readers" }

// RFIDLog is one vehicle passing a reader. Tags are stored hashed upstream.
type RFIDLog struct {
	ID           uint                `gorm:"primaryKey"`
	RFIDReaderID uint                `gorm:"index:idx_rfid_logs_timestamp_reader,priority:2;not null"`
	VehicleTag   string              `gorm:"size:255;index"`
	Timestamp    time.Time           `gorm:"index:idx_rfid_logs_timestamp_reader,priority:1;not null"`
	Latitude     decimal.NullDecimal `gorm:"type:decimal(9,6)"`
	Longitude    decimal.NullDecimal `gorm:"type:decimal(9,6)"`
	Direction    string              `gorm:"size:20"`
	Lane         *int
	Speed        decimal.NullDecimal `gorm:"type:decimal(5,2)"`
	VehicleType  string              `gorm:"size:50"`
	CreatedAt    time.Time
}

func (RFIDLog) TableName() string { return "rfid_logs" }

// Location returns the log position and whether it carries one.
func (l *RFIDLog) Location() (geo.Point, bool) {
	if !l.Latitude.Valid || !l.Longitude.Valid {
		return geo.Point{}, false
	}
	return geo.Point{Lat: l.Latitude.Decimal.InexactFloat64(), Lon: l.Longitude.Decimal.InexactFloat64()}, true
}

// CCTVCamera is a surveillance camera on the road network.
type CCTVCamera struct {
	ID                   uint            `gorm:"primaryKey"`
	CameraCode           string          `gorm:"size:100;uniqueIndex;not null"`
	Latitude             decimal.Decimal `gorm:"type:decimal(9,6);not null"`
	Longitude            decimal.Decimal `gorm:"type:decimal(9,6);not null"`
	CoverageRadiusMeters int             `gorm:"default:500"`
	Protocol             string          `gorm:"size:20;default:RTSP"`
	Status               string          `gorm:"size:20;default:active"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (CCTVCamera) TableName() string { return "cctv_cameras" }

// CCTVFeed is an analysed footage window, optionally linked to an incident.
type CCTVFeed struct {
	ID                 uint      `gorm:"primaryKey"`
	CCTVCameraID       uint      `gorm:"index;not null"`
	IncidentID         *uint     `gorm:"index"`
	StartTime          time.Time `gorm:"index;not null"`
	EndTime            time.Time `gorm:"not null"`
	AIAnalysisResult   JSONMap   `gorm:"type:text"`
	IncidentDetected   bool
	ConfidenceScore    decimal.NullDecimal `gorm:"type:decimal(5,2)"`
	ManualReviewStatus string              `gorm:"size:20;default:pending"`
	CreatedAt          time.Time
}

func (CCTVFeed) TableName() string { return "cctv_feeds" }

// Sensor is a traffic, weather, road surface or vibration sensor.
type Sensor struct {
	ID         uint            `gorm:"primaryKey"`
	SensorCode string          `gorm:"size:100;uniqueIndex;not null"`
	SensorType string          `gorm:"size:50;not null"`
	Latitude   decimal.Decimal `gorm:"type:decimal(9,6);not null"`
	Longitude  decimal.Decimal `gorm:"type:decimal(9,6);not null"`
	MQTTTopic  string          `gorm:"size:200"`
	Status     string          `gorm:"size:20;default:active"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (Sensor) TableName() string { return "sensors" }

// Location returns the installed sensor position.
func (s *Sensor) Location() geo.Point {
	return geo.Point{Lat: s.Latitude.InexactFloat64(), Lon: s.Longitude.InexactFloat64()}
}

// SensorReading is one time-series sample. Value is free-form per sensor type.
type SensorReading struct {
	ID              uint                `gorm:"primaryKey"`
	SensorID        uint                `gorm:"index:idx_sensor_readings_timestamp_sensor,priority:2;index:idx_sensor_readings_sensor_anomaly,priority:1;not null"`
	Sensor          *Sensor             `gorm:"foreignKey:SensorID"`
	Timestamp       time.Time           `gorm:"index:idx_sensor_readings_timestamp_sensor,priority:1;not null"`
	ReadingType     string              `gorm:"size:50"`
	Value           JSONMap             `gorm:"type:text"`
	Unit            string              `gorm:"size:20"`
	QualityScore    decimal.NullDecimal `gorm:"type:decimal(5,2)"`
	AnomalyDetected bool                `gorm:"index:idx_sensor_readings_sensor_anomaly,priority:2"`
	CreatedAt       time.Time
}

func (SensorReading) TableName() string { return "sensor_readings" }

// AIVerificationResult is the output of the photo/video classifier for an incident.
type AIVerificationResult struct {
	ID                   uint            `gorm:"primaryKey"`
	IncidentID           uint            `gorm:"index;not null"`
	ModelName            string          `gorm:"size:100;default:YOLOv8"`
	ModelVersion         string          `gorm:"size:50;default:v1.0"`
	ClassificationResult string          `gorm:"size:50"`
	ConfidenceScore      decimal.Decimal `gorm:"type:decimal(5,2);not null"`
	CreatedAt            time.Time       `gorm:"index"`
}

func (AIVerificationResult) TableName() string { return "ai_verification_results" }

// IncidentValidation is the per-source outcome of a validation run.
// At most one row exists per (incident, source).
type IncidentValidation struct {
	ID                 uint            `gorm:"primaryKey"`
	IncidentID         uint            `gorm:"uniqueIndex:idx_incident_validations_incident_source,priority:1;not null"`
	ValidationSource   string          `gorm:"size:20;uniqueIndex:idx_incident_validations_incident_source,priority:2;not null"`
	ConfidenceScore    decimal.Decimal `gorm:"type:decimal(5,2);not null"`
	ValidationStatus   string          `gorm:"size:20;default:pending"`
	SourceData         JSONMap         `gorm:"type:text"`
	CorrelationDetails JSONMap         `gorm:"type:text"`
	ValidatedAt        time.Time       `gorm:"index"`
	ValidatedBy        *uint
}

func (IncidentValidation) TableName() string { return "incident_validations" }

// models lists every table managed by AutoMigrate.
func models() []any {
	return []any{
		&Incident{},
		&RFIDReader{},
		&RFIDLog{},
		&CCTVCamera{},
		&CCTVFeed{},
		&Sensor{},
		&SensorReading{},
		&AIVerificationResult{},
		&IncidentValidation{},
	}
}
