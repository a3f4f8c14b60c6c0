package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerServesRegisteredCollectors(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	m.Validation.RecordValidation("probable", 0.01)
	m.Datastore.RecordOperation("get:incidents", "success")
	m.MQTT.UpdateConnectionStatus(true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)

	assert.Contains(t, text, `roadguard_validation_runs_total{status="probable"} 1`)
	assert.Contains(t, text, `roadguard_datastore_operations_total{operation="get",status="success",table="incidents"} 1`)
	assert.Contains(t, text, "roadguard_mqtt_connection_status 1")
	assert.Contains(t, text, "go_goroutines")
}

func TestNewMetricsUsesPrivateRegistries(t *testing.T) {
	a, err := NewMetrics()
	require.NoError(t, err)
	b, err := NewMetrics()
	require.NoError(t, err)

	assert.NotSame(t, a.Registry(), b.Registry())
}
