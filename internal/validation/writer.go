package validation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/esafety/roadguard/internal/datastore"
	"github.com/esafety/roadguard/internal/errors"
	"github.com/esafety/roadguard/internal/logger"
	"github.com/esafety/roadguard/internal/observability/metrics"
)

// RecordWriter persists one validation record per source. Every record is
// upserted on its own, so a failure part way through leaves the records
// already written intact and a rerun simply overwrites them.
type RecordWriter struct {
	store     datastore.ValidationStore
	confirmed decimal.Decimal
	attempts  int
	backoff   time.Duration
	log       logger.Logger
	metrics   Metrics
}

// NewRecordWriter returns a writer using the policy's confirmation bound and retry settings.
func NewRecordWriter(store datastore.ValidationStore, policy Policy, log logger.Logger, m Metrics) *RecordWriter {
	return &RecordWriter{
		store:     store,
		confirmed: policy.Confirmed,
		attempts:  max(1, policy.WriteAttempts),
		backoff:   policy.WriteBackoff,
		log:       log,
		metrics:   m,
	}
}

// Write upserts a record for each result. It returns the joined errors of
// the records that could not be written after all attempts.
func (w *RecordWriter) Write(ctx context.Context, incidentID uint, results []SourceResult, validatedAt time.Time) error {
	var errs []error
	for i := range results {
		if err := w.writeOne(ctx, incidentID, &results[i], validatedAt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *RecordWriter) writeOne(ctx context.Context, incidentID uint, r *SourceResult, validatedAt time.Time) error {
	record := w.record(incidentID, r, validatedAt)

	var lastErr error
	for attempt := range w.attempts {
		if attempt > 0 {
			w.metrics.RecordRecordRetry(r.Source)
			delay := w.backoff * time.Duration(attempt)
			w.log.Warn("retrying validation record write",
				logger.Uint64("incident_id", uint64(incidentID)),
				logger.String("source", r.Source),
				logger.Int("attempt", attempt+1),
				logger.Int("max_attempts", w.attempts),
				logger.Int64("delay_ms", delay.Milliseconds()),
				logger.Error(lastErr))
			if err := sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}

		lastErr = w.store.UpsertValidation(ctx, record)
		if lastErr == nil {
			w.metrics.RecordRecordWrite(r.Source, metrics.StatusSuccess)
			return nil
		}
	}

	w.metrics.RecordRecordWrite(r.Source, metrics.StatusError)
	return errors.New(lastErr).
		Component("validation").
		Category(errors.CategoryPersistence).
		IncidentContext(incidentID, r.Source).
		Context("attempts", w.attempts).
		Build()
}

// record builds the row for one source. correlation_details always carries
// the score and the run timestamp next to the correlator's own metrics.
func (w *RecordWriter) record(incidentID uint, r *SourceResult, validatedAt time.Time) *datastore.IncidentValidation {
	details := datastore.JSONMap{
		"confidence": score(r.Confidence),
		"timestamp":  validatedAt.UTC().Format(time.RFC3339Nano),
	}
	for k, v := range r.Details {
		details[k] = v
	}

	sourceData := datastore.JSONMap{
		"outcome":     string(r.Outcome),
		"duration_ms": r.Duration.Milliseconds(),
	}
	if r.Err != nil {
		sourceData["error"] = r.Err.Error()
	}

	return &datastore.IncidentValidation{
		IncidentID:         incidentID,
		ValidationSource:   r.Source,
		ConfidenceScore:    r.Confidence.Round(scorePlaces),
		ValidationStatus:   RecordStatus(r.Confidence, w.confirmed),
		SourceData:         sourceData,
		CorrelationDetails: details,
		ValidatedAt:        validatedAt.UTC(),
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
