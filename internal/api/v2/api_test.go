// api_test.go: tests for the API v2 endpoints.

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esafety/roadguard/internal/buildinfo"
	"github.com/esafety/roadguard/internal/conf"
	"github.com/esafety/roadguard/internal/datastore"
	"github.com/esafety/roadguard/internal/errors"
	"github.com/esafety/roadguard/internal/observability"
	"github.com/esafety/roadguard/internal/validation"
)

func testSettings() *conf.Settings {
	settings := &conf.Settings{}
	settings.Database.Type = conf.DatabaseSQLite
	settings.Database.SQLite.Path = ":memory:"
	settings.WebServer.CacheTTL = time.Minute
	return settings
}

func openStore(t *testing.T, settings *conf.Settings) datastore.Interface {
	t.Helper()
	store, err := datastore.New(settings, nil, nil)
	require.NoError(t, err)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createIncident(t *testing.T, store datastore.Interface) *datastore.Incident {
	t.Helper()
	incident := &datastore.Incident{
		Reference: "INC-2024-0001",
		Category:  "collision",
		Latitude:  decimal.RequireFromString("-1.292100"),
		Longitude: decimal.RequireFromString("36.821900"),
		Timestamp: time.Date(2024, 3, 14, 8, 30, 0, 0, time.UTC),
	}
	require.NoError(t, store.SaveIncident(t.Context(), incident))
	return incident
}

// setupTestEnvironment wires a controller to an in-memory store and a real
// validation service.
func setupTestEnvironment(t *testing.T, settings *conf.Settings, opts ...Option) (*echo.Echo, datastore.Interface, *Controller) {
	t.Helper()
	store := openStore(t, settings)
	service, err := validation.NewService(store, validation.DefaultPolicy())
	require.NoError(t, err)

	e := echo.New()
	controller, err := New(e, store, service, settings, opts...)
	require.NoError(t, err)
	t.Cleanup(controller.Shutdown)
	return e, store, controller
}

func serve(e *echo.Echo, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// failingValidator returns result and err from every call.
type failingValidator struct {
	result *validation.Result
	err    error
}

func (f failingValidator) ValidateAndApply(context.Context, uint) (*validation.Result, error) {
	return f.result, f.err
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(echo.New(), nil, failingValidator{}, testSettings())
	require.Error(t, err)
}

func TestHealthCheck(t *testing.T) {
	e, _, _ := setupTestEnvironment(t, testSettings(), WithBuildInfo(buildinfo.NewContext("1.2.3", "2024-05-15")))

	rec := serve(e, http.MethodGet, "/api/v2/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	var response map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
	assert.Equal(t, "1.2.3", response["version"])
	assert.Equal(t, "2024-05-15", response["build_date"])
	assert.Equal(t, "connected", response["database_status"])
	assert.Equal(t, conf.DatabaseSQLite, response["database_type"])
}

func TestHealthCheckReportsClosedDatabase(t *testing.T) {
	e, store, _ := setupTestEnvironment(t, testSettings())
	require.NoError(t, store.Close())

	rec := serve(e, http.MethodGet, "/api/v2/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"degraded"`)
}

func TestValidateIncident(t *testing.T) {
	e, store, _ := setupTestEnvironment(t, testSettings())
	incident := createIncident(t, store)

	rec := serve(e, http.MethodPost, "/api/v2/incidents/1/validate")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result validation.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, incident.ID, result.IncidentID)
	// No evidence at all: only the neutral AI score contributes
	assert.InDelta(t, 20, result.ConfidenceScore, 1e-9)
	assert.Equal(t, datastore.VerificationUnverified, result.ValidationStatus)
	assert.Equal(t, validation.OutcomeNoEvidence, result.Outcomes[datastore.SourceRFID])
	assert.Equal(t, rec.Header().Get(echo.HeaderXRequestID), result.TraceID)

	stored, err := store.GetIncident(t.Context(), incident.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.VerificationUnverified, stored.VerificationStatus)
	require.True(t, stored.AIConfidenceScore.Valid)
	assert.True(t, stored.AIConfidenceScore.Decimal.Equal(decimal.NewFromInt(20)))
}

func TestGetValidationsIsCachedUntilRevalidated(t *testing.T) {
	e, store, _ := setupTestEnvironment(t, testSettings())
	createIncident(t, store)

	require.Equal(t, http.StatusOK, serve(e, http.MethodPost, "/api/v2/incidents/1/validate").Code)

	rec := serve(e, http.MethodGet, "/api/v2/incidents/1/validations")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	var resp ValidationsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint(1), resp.IncidentID)
	require.Len(t, resp.Records, 4)

	sources := map[string]ValidationRecord{}
	for _, r := range resp.Records {
		sources[r.Source] = r
	}
	assert.InDelta(t, 50, sources[datastore.SourceAI].ConfidenceScore, 1e-9)
	assert.Equal(t, datastore.RecordPending, sources[datastore.SourceAI].ValidationStatus)
	assert.Contains(t, sources[datastore.SourceRFID].CorrelationDetails, "confidence")

	rec = serve(e, http.MethodGet, "/api/v2/incidents/1/validations")
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))

	require.Equal(t, http.StatusOK, serve(e, http.MethodPost, "/api/v2/incidents/1/validate").Code)
	rec = serve(e, http.MethodGet, "/api/v2/incidents/1/validations")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Records, 4, "revalidation keeps one record per source")
}

func TestUnknownIncidentIsNotFound(t *testing.T) {
	e, _, _ := setupTestEnvironment(t, testSettings())

	for _, tc := range []struct{ method, target string }{
		{http.MethodPost, "/api/v2/incidents/99/validate"},
		{http.MethodGet, "/api/v2/incidents/99/validations"},
	} {
		rec := serve(e, tc.method, tc.target)
		assert.Equal(t, http.StatusNotFound, rec.Code, tc.target)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Incident not found", resp.Message)
		assert.Equal(t, rec.Header().Get(echo.HeaderXRequestID), resp.CorrelationID)
	}
}

func TestInvalidIncidentID(t *testing.T) {
	e, _, _ := setupTestEnvironment(t, testSettings())

	for _, id := range []string{"abc", "0", "-3", "1.5"} {
		rec := serve(e, http.MethodPost, "/api/v2/incidents/"+id+"/validate")
		assert.Equal(t, http.StatusBadRequest, rec.Code, "id %q", id)
	}
}

func TestValidateIncidentServiceFailure(t *testing.T) {
	settings := testSettings()
	store := openStore(t, settings)

	e := echo.New()
	_, err := New(e, store, failingValidator{err: errors.NewStd("database is locked")}, settings)
	require.NoError(t, err)

	rec := serve(e, http.MethodPost, "/api/v2/incidents/1/validate")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "database is locked")
}

func TestValidateIncidentReturnsResultWhenWriteBackFails(t *testing.T) {
	settings := testSettings()
	store := openStore(t, settings)
	createIncident(t, store)

	result := &validation.Result{
		IncidentID:       1,
		ConfidenceScore:  72.5,
		ValidationStatus: datastore.VerificationVerified,
	}
	e := echo.New()
	controller, err := New(e, store, failingValidator{result: result, err: errors.NewStd("database is locked")}, settings)
	require.NoError(t, err)
	t.Cleanup(controller.Shutdown)

	controller.validationCache.Set(cacheKey(1), &ValidationsResponse{IncidentID: 1}, 0)

	rec := serve(e, http.MethodPost, "/api/v2/incidents/1/validate")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "failed", rec.Header().Get(headerIncidentUpdate))

	var got validation.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.InDelta(t, 72.5, got.ConfidenceScore, 0)
	assert.Equal(t, datastore.VerificationVerified, got.ValidationStatus)

	_, cached := controller.validationCache.Get(cacheKey(1))
	assert.False(t, cached, "persisted records invalidate the listing")
}

func TestValidateIncidentIsRateLimited(t *testing.T) {
	settings := testSettings()
	settings.WebServer.RateLimit = 0.001
	settings.WebServer.RateBurst = 1
	e, store, _ := setupTestEnvironment(t, settings)
	createIncident(t, store)

	assert.Equal(t, http.StatusOK, serve(e, http.MethodPost, "/api/v2/incidents/1/validate").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(e, http.MethodPost, "/api/v2/incidents/1/validate").Code)

	// Reads are not limited
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/api/v2/incidents/1/validations").Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	e, store, _ := setupTestEnvironment(t, testSettings())
	createIncident(t, store)

	req := httptest.NewRequest(http.MethodPost, "/api/v2/incidents/1/validate", http.NoBody)
	req.Header.Set(echo.HeaderXRequestID, "req-42")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get(echo.HeaderXRequestID))
	assert.Contains(t, rec.Body.String(), `"trace_id":"req-42"`)
}

func TestMetricsEndpoint(t *testing.T) {
	m, err := observability.NewMetrics()
	require.NoError(t, err)

	e, store, _ := setupTestEnvironment(t, testSettings(), WithMetrics(m))
	createIncident(t, store)
	m.Validation.RecordValidation(datastore.VerificationUnverified, 0.01)

	rec := serve(e, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "roadguard_"), "roadguard collectors are exposed")
}
