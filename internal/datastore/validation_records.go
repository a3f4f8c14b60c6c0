package datastore

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"github.com/esafety/roadguard/internal/errors"
	"github.com/esafety/roadguard/internal/observability/metrics"
)

const tableValidations = "incident_validations"

// validationUpdateColumns are overwritten when a (incident, source) row already exists.
var validationUpdateColumns = []string{
	"confidence_score",
	"validation_status",
	"source_data",
	"correlation_details",
	"validated_at",
	"validated_by",
}

// UpsertValidation inserts the record or overwrites the existing row for the
// same incident and source. Each call commits on its own.
func (ds *DataStore) UpsertValidation(ctx context.Context, record *IncidentValidation) (err error) {
	const op = metrics.OpUpsert + ":" + tableValidations
	defer func(start time.Time) { ds.observe(op, start, err) }(time.Now())

	if record.IncidentID == 0 {
		return validationError("validation record must reference an incident", "incident_id", record.IncidentID)
	}
	if record.ValidationSource == "" {
		return validationError("validation record must name its source", "validation_source", record.ValidationSource)
	}
	if record.ValidatedAt.IsZero() {
		record.ValidatedAt = time.Now().UTC()
	}

	if err := ds.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "incident_id"}, {Name: "validation_source"}},
		DoUpdates: clause.AssignmentColumns(validationUpdateColumns),
	}).Create(record).Error; err != nil {
		if isDatabaseLocked(err) {
			return stateError(err, "upsert_validation", "lock",
				"incident_id", record.IncidentID, "source", record.ValidationSource)
		}
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryPersistence).
			IncidentContext(record.IncidentID, record.ValidationSource).
			Context("operation", "upsert_validation").
			Build()
	}
	return nil
}

// ValidationsForIncident returns the stored per-source records, newest first.
func (ds *DataStore) ValidationsForIncident(ctx context.Context, incidentID uint) (records []IncidentValidation, err error) {
	const op = metrics.OpQuery + ":" + tableValidations
	defer func(start time.Time) { ds.observe(op, start, err) }(time.Now())

	if err := ds.DB.WithContext(ctx).
		Where("incident_id = ?", incidentID).
		Order("validated_at DESC").
		Order("validation_source").
		Find(&records).Error; err != nil {
		return nil, dbError(err, "validations_for_incident", errors.PriorityMedium, "incident_id", incidentID)
	}
	return records, nil
}
