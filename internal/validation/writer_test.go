package validation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esafety/roadguard/internal/datastore"
	"github.com/esafety/roadguard/internal/errors"
	"github.com/esafety/roadguard/internal/logger"
	"github.com/esafety/roadguard/internal/observability/metrics"
)

func newTestWriter(store datastore.ValidationStore, m Metrics) *RecordWriter {
	return NewRecordWriter(store, fastPolicy(), logger.NewSlogLogger(nil, logger.LogLevelInfo), m)
}

func TestRecordWriterBuildsRecords(t *testing.T) {
	store := newFakeStore()
	m := newRecordingMetrics()
	w := newTestWriter(store, m)
	at := incidentTime.Add(time.Hour)

	results := []SourceResult{
		{Source: datastore.SourceRFID, Confidence: dec("66.6666"), Outcome: OutcomeEvidence, Details: map[string]any{"matching_logs": 2}},
		{Source: datastore.SourceAI, Confidence: dec("50"), Outcome: OutcomeFallback, Err: fmt.Errorf("timeout")},
	}
	require.NoError(t, w.Write(t.Context(), 1, results, at))

	rfid := store.records["1/rfid"]
	assert.True(t, rfid.ConfidenceScore.Equal(dec("66.67")))
	assert.Equal(t, datastore.RecordConfirmed, rfid.ValidationStatus)
	assert.Equal(t, 2, rfid.CorrelationDetails["matching_logs"])
	assert.InDelta(t, 66.67, rfid.CorrelationDetails["confidence"], 1e-9)
	assert.Equal(t, at.Format(time.RFC3339Nano), rfid.CorrelationDetails["timestamp"])
	assert.Equal(t, "evidence", rfid.SourceData["outcome"])
	assert.NotContains(t, rfid.SourceData, "error")
	assert.True(t, rfid.ValidatedAt.Equal(at))

	ai := store.records["1/ai"]
	assert.Equal(t, datastore.RecordPending, ai.ValidationStatus, "exactly 50 is not confirmed")
	assert.Equal(t, "timeout", ai.SourceData["error"])

	assert.Equal(t, metrics.StatusSuccess, m.writes[datastore.SourceRFID])
	assert.Zero(t, m.retries[datastore.SourceRFID])
}

func TestRecordWriterRetriesTransientFailures(t *testing.T) {
	store := newFakeStore()
	store.failUpserts = 2
	m := newRecordingMetrics()
	w := newTestWriter(store, m)

	results := []SourceResult{{Source: datastore.SourceCCTV, Confidence: dec("70"), Outcome: OutcomeEvidence}}
	require.NoError(t, w.Write(t.Context(), 1, results, incidentTime))

	assert.Equal(t, 3, store.upsertCalls)
	assert.Equal(t, 2, m.retries[datastore.SourceCCTV])
	assert.Equal(t, metrics.StatusSuccess, m.writes[datastore.SourceCCTV])
	assert.Contains(t, store.records, "1/cctv")
}

func TestRecordWriterKeepsGoingAfterAFailedSource(t *testing.T) {
	store := newFakeStore()
	// Exhausts every attempt of the first source only
	store.failUpserts = fastPolicy().WriteAttempts
	m := newRecordingMetrics()
	w := newTestWriter(store, m)

	results := []SourceResult{
		{Source: datastore.SourceRFID, Confidence: zero, Outcome: OutcomeNoEvidence},
		{Source: datastore.SourceCCTV, Confidence: zero, Outcome: OutcomeNoEvidence},
	}
	err := w.Write(t.Context(), 1, results, incidentTime)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryPersistence))

	assert.NotContains(t, store.records, "1/rfid")
	assert.Contains(t, store.records, "1/cctv")
	assert.Equal(t, metrics.StatusError, m.writes[datastore.SourceRFID])
	assert.Equal(t, metrics.StatusSuccess, m.writes[datastore.SourceCCTV])
}

func TestRecordWriterStopsWaitingWhenCancelled(t *testing.T) {
	store := newFakeStore()
	store.failUpserts = 100

	policy := fastPolicy()
	policy.WriteBackoff = time.Hour
	w := NewRecordWriter(store, policy, logger.NewSlogLogger(nil, logger.LogLevelInfo), newRecordingMetrics())

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := w.Write(ctx, 1, []SourceResult{{Source: datastore.SourceSensor, Confidence: decimal.Zero}}, incidentTime)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1, store.upsertCalls)
}
