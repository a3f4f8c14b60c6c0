package validation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esafety/roadguard/internal/conf"
	"github.com/esafety/roadguard/internal/datastore"
	"github.com/esafety/roadguard/internal/errors"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestFuseKnownTotals(t *testing.T) {
	w := DefaultPolicy().Weights

	tests := []struct {
		name   string
		scores Scores
		want   string
	}{
		{"no evidence", Scores{RFID: zero, CCTV: zero, Sensor: zero, AI: dec("50")}, "20"},
		{"ai only", Scores{RFID: zero, CCTV: zero, Sensor: zero, AI: dec("90")}, "36"},
		{"all eighty", Scores{RFID: dec("80"), CCTV: dec("80"), Sensor: dec("80"), AI: dec("80")}, "80"},
		{"all hundred", Scores{RFID: hundred, CCTV: hundred, Sensor: hundred, AI: hundred}, "100"},
		{"inputs clamped", Scores{RFID: dec("-40"), CCTV: dec("250"), Sensor: zero, AI: zero}, "30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fuse(tt.scores, w)
			assert.True(t, got.Equal(dec(tt.want)), "got %s, want %s", got, tt.want)
		})
	}
}

func TestFuseStaysInRange(t *testing.T) {
	w := DefaultPolicy().Weights
	values := []decimal.Decimal{dec("-1"), zero, dec("0.01"), dec("33.3333"), dec("49.99"), dec("50"), dec("70"), hundred, dec("100.5")}

	for _, r := range values {
		for _, c := range values {
			for _, s := range values {
				for _, a := range values {
					total := Fuse(Scores{RFID: r, CCTV: c, Sensor: s, AI: a}, w)
					if total.LessThan(zero) || total.GreaterThan(hundred) {
						t.Fatalf("total %s out of range for %s/%s/%s/%s", total, r, c, s, a)
					}
				}
			}
		}
	}
}

func TestClassifyBoundaries(t *testing.T) {
	th := DefaultPolicy().Thresholds

	tests := []struct {
		total string
		want  string
	}{
		{"100", datastore.VerificationVerified},
		{"70", datastore.VerificationVerified},
		{"69.99", datastore.VerificationProbable},
		{"50", datastore.VerificationProbable},
		{"49.99", datastore.VerificationUnverified},
		{"0", datastore.VerificationUnverified},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(dec(tt.total), th), "total %s", tt.total)
	}
}

func TestRecordStatusIsStrict(t *testing.T) {
	confirmed := DefaultPolicy().Confirmed

	assert.Equal(t, datastore.RecordPending, RecordStatus(dec("50"), confirmed))
	assert.Equal(t, datastore.RecordConfirmed, RecordStatus(dec("50.01"), confirmed))
	assert.Equal(t, datastore.RecordPending, RecordStatus(zero, confirmed))
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	require.NoError(t, p.Validate())
	assert.True(t, p.Weights.Sum().Equal(decimal.NewFromInt(1)), "weights sum to exactly one")
	assert.True(t, p.Weights.AI.Equal(dec("0.4")))
	assert.True(t, p.Thresholds.Verified.Equal(dec("70")))
	assert.True(t, p.Thresholds.Probable.Equal(dec("50")))
	assert.True(t, p.Confirmed.Equal(dec("50")))
	assert.True(t, p.Flags.CCTVVerified.Equal(dec("60")))
	assert.True(t, p.RFID.MaxScore.Equal(dec("70")))
	assert.True(t, p.Sensor.MaxScore.Equal(dec("60")))
	assert.True(t, p.AIDefault.Equal(dec("50")))
	assert.Equal(t, 10*time.Minute, p.RFID.Window)
	assert.Equal(t, 3*time.Second, p.CorrelatorTimeout)
	assert.Equal(t, 3, p.WriteAttempts)
}

func TestNewPolicyRejectsBadSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*conf.ValidationSettings)
	}{
		{"weights off by a tenth", func(s *conf.ValidationSettings) { s.Weights.AI = 0.5 }},
		{"negative weight", func(s *conf.ValidationSettings) { s.Weights.RFID = -0.1; s.Weights.AI = 0.7 }},
		{"probable above verified", func(s *conf.ValidationSettings) { s.Thresholds.Probable = 80 }},
		{"threshold over 100", func(s *conf.ValidationSettings) { s.Flags.SensorCorrelation = 140 }},
		{"zero rfid window", func(s *conf.ValidationSettings) { s.RFID.Window = 0 }},
		{"zero rfid radius", func(s *conf.ValidationSettings) { s.RFID.RadiusKm = 0 }},
		{"negative sensor radius", func(s *conf.ValidationSettings) { s.Sensor.RadiusKm = -1 }},
		{"no timeout", func(s *conf.ValidationSettings) { s.CorrelatorTimeout = 0 }},
		{"no write attempts", func(s *conf.ValidationSettings) { s.Writer.Attempts = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := conf.DefaultValidationSettings()
			tt.mutate(&settings)

			_, err := NewPolicy(settings)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryPolicy))
		})
	}
}

func TestNewPolicyAcceptsAlternateWeights(t *testing.T) {
	settings := conf.DefaultValidationSettings()
	settings.Weights = conf.WeightSettings{RFID: 0.25, CCTV: 0.25, Sensor: 0.25, AI: 0.25}

	p, err := NewPolicy(settings)
	require.NoError(t, err)

	total := Fuse(Scores{RFID: hundred, CCTV: zero, Sensor: zero, AI: zero}, p.Weights)
	assert.True(t, total.Equal(dec("25")))
}
