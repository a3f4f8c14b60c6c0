// Package mqtt provides MQTT client functionality and data transfer objects.
package mqtt

import (
	"time"

	"github.com/esafety/roadguard/internal/validation"
)

// RFIDPassageDTO is published by a reader for each tag it reads. Coordinates
// default to the reader's installed position when omitted.
type RFIDPassageDTO struct {
	VehicleTag  string    `json:"vehicle_tag"`
	Timestamp   time.Time `json:"timestamp"`
	Latitude    *float64  `json:"latitude,omitempty"`
	Longitude   *float64  `json:"longitude,omitempty"`
	Direction   string    `json:"direction,omitempty"`
	Lane        *int      `json:"lane,omitempty"`
	Speed       *float64  `json:"speed,omitempty"` // km/h
	VehicleType string    `json:"vehicle_type,omitempty"`
}

// SensorReadingDTO is published by a sensor for each sample.
type SensorReadingDTO struct {
	Timestamp       time.Time      `json:"timestamp"`
	ReadingType     string         `json:"reading_type"`
	Value           map[string]any `json:"value"`
	Unit            string         `json:"unit,omitempty"`
	QualityScore    *float64       `json:"quality_score,omitempty"`
	AnomalyDetected bool           `json:"anomaly_detected"`
}

// ValidationEventDTO is published after an incident has been validated.
type ValidationEventDTO struct {
	IncidentID        uint                          `json:"incident_id"`
	ConfidenceScore   float64                       `json:"confidence_score"`
	ValidationStatus  string                        `json:"validation_status"`
	ValidationDetails validation.Details            `json:"validation_details"`
	SourceOutcomes    map[string]validation.Outcome `json:"source_outcomes"`
	TraceID           string                        `json:"trace_id,omitempty"`
	ValidatedAt       time.Time                     `json:"validated_at"`
}

// NewValidationEventDTO converts a validation result to its wire form.
func NewValidationEventDTO(r *validation.Result) ValidationEventDTO {
	return ValidationEventDTO{
		IncidentID:        r.IncidentID,
		ConfidenceScore:   r.ConfidenceScore,
		ValidationStatus:  r.ValidationStatus,
		ValidationDetails: r.ValidationDetails,
		SourceOutcomes:    r.Outcomes,
		TraceID:           r.TraceID,
		ValidatedAt:       r.ValidatedAt.UTC(),
	}
}
