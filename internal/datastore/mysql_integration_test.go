//go:build integration

package datastore

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/esafety/roadguard/internal/conf"
	"github.com/esafety/roadguard/internal/observability/metrics"
)

// setupMySQL starts a throwaway MySQL server and returns a migrated store on it.
func setupMySQL(t *testing.T) *MySQLStore {
	t.Helper()
	ctx := t.Context()

	container, err := tcmysql.Run(ctx, "mysql:8.0.36",
		tcmysql.WithDatabase("roadguard"),
		tcmysql.WithUsername("roadguard"),
		tcmysql.WithPassword("roadguard"),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	settings := &conf.Settings{}
	settings.Database.Type = conf.DatabaseMySQL
	settings.Database.MySQL = conf.MySQLSettings{
		Host:     host,
		Port:     port.Int(),
		Username: "roadguard",
		Password: "roadguard",
		Database: "roadguard",
	}

	store, err := New(settings, nil, metrics.NewTestRecorder())
	require.NoError(t, err)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })

	mysqlStore, ok := store.(*MySQLStore)
	require.True(t, ok)
	return mysqlStore
}

func TestMySQLValidationUpsertAndWindows(t *testing.T) {
	ds := setupMySQL(t)
	ctx := t.Context()

	incident := &Incident{
		Reference: "INC-MYSQL-0001",
		Latitude:  decimal.RequireFromString("-1.292100"),
		Longitude: decimal.RequireFromString("36.821900"),
		Timestamp: incidentTime,
	}
	require.NoError(t, ds.SaveIncident(ctx, incident))

	reader := &RFIDReader{
		ReaderCode: "RFID-0001",
		Latitude:   decimal.RequireFromString("-1.292000"),
		Longitude:  decimal.RequireFromString("36.822000"),
	}
	require.NoError(t, ds.UpsertRFIDReader(ctx, reader))
	require.NoError(t, ds.UpsertRFIDReader(ctx, reader))
	require.NotZero(t, reader.ID)

	for _, offset := range []time.Duration{-10 * time.Minute, 10 * time.Minute, 11 * time.Minute} {
		require.NoError(t, ds.SaveRFIDLog(ctx, &RFIDLog{RFIDReaderID: reader.ID, Timestamp: incidentTime.Add(offset)}))
	}
	logs, err := ds.RFIDLogsBetween(ctx, incidentTime.Add(-10*time.Minute), incidentTime.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	for range 2 {
		for _, source := range []string{SourceRFID, SourceCCTV, SourceSensor, SourceAI} {
			require.NoError(t, ds.UpsertValidation(ctx, &IncidentValidation{
				IncidentID:       incident.ID,
				ValidationSource: source,
				ConfidenceScore:  decimal.RequireFromString("42.5"),
				ValidationStatus: RecordPending,
			}))
		}
	}
	records, err := ds.ValidationsForIncident(ctx, incident.ID)
	require.NoError(t, err)
	assert.Len(t, records, 4)

	// An unchanged write still matches the row thanks to clientFoundRows
	score := decimal.RequireFromString("42.5")
	require.NoError(t, ds.UpdateVerification(ctx, incident.ID, VerificationUnverified, score))
	require.NoError(t, ds.UpdateVerification(ctx, incident.ID, VerificationUnverified, score))
}
