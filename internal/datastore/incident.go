package datastore

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/esafety/roadguard/internal/errors"
	"github.com/esafety/roadguard/internal/observability/metrics"
)

const tableIncidents = "incidents"

// GetIncident loads an incident by primary key. A missing row yields an
// error for which errors.IsNotFound reports true.
func (ds *DataStore) GetIncident(ctx context.Context, id uint) (incident *Incident, err error) {
	const op = metrics.OpGet + ":" + tableIncidents
	defer func(start time.Time) { ds.observe(op, start, err) }(time.Now())

	var row Incident
	if err := ds.DB.WithContext(ctx).First(&row, id).Error; err != nil {
		return nil, lookupError(err, "get_incident", "incident", id)
	}
	return &row, nil
}

// SaveIncident inserts a new incident.
func (ds *DataStore) SaveIncident(ctx context.Context, incident *Incident) (err error) {
	const op = metrics.OpCreate + ":" + tableIncidents
	defer func(start time.Time) { ds.observe(op, start, err) }(time.Now())

	if incident.Timestamp.IsZero() {
		return validationError("incident timestamp is required", "timestamp", incident.Timestamp)
	}
	if !incident.Location().Valid() {
		return validationError("incident coordinates out of range", "location", incident.Location())
	}
	incident.Timestamp = incident.Timestamp.UTC()
	if incident.VerificationStatus == "" {
		incident.VerificationStatus = VerificationPending
	}

	if err := ds.DB.WithContext(ctx).Create(incident).Error; err != nil {
		return dbError(err, "save_incident", errors.PriorityMedium, "reference", incident.Reference)
	}
	return nil
}

// UpdateVerification writes the overall validation outcome back to the incident.
func (ds *DataStore) UpdateVerification(ctx context.Context, id uint, status string, score decimal.Decimal) (err error) {
	const op = metrics.OpUpdate + ":" + tableIncidents
	defer func(start time.Time) { ds.observe(op, start, err) }(time.Now())

	updates := map[string]any{
		"verification_status": status,
		"ai_confidence_score": decimal.NewNullDecimal(score.Round(2)),
	}
	if status == VerificationVerified {
		updates["verified_at"] = time.Now().UTC()
	}

	result := ds.DB.WithContext(ctx).Model(&Incident{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return dbError(result.Error, "update_verification", errors.PriorityMedium, "incident_id", id)
	}
	if result.RowsAffected == 0 {
		return notFoundError("incident", id)
	}
	return nil
}
