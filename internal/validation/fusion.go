package validation

import (
	"github.com/shopspring/decimal"

	"github.com/esafety/roadguard/internal/datastore"
)

// Scores are the per-source contributions fed to Fuse.
type Scores struct {
	RFID   decimal.Decimal
	CCTV   decimal.Decimal
	Sensor decimal.Decimal
	AI     decimal.Decimal
}

// Fuse combines the source scores linearly. Each input is clamped to
// [0, 100] first, so with weights summing to 1 the total stays in range.
func Fuse(s Scores, w Weights) decimal.Decimal {
	return decimal.Sum(
		clamp(s.RFID).Mul(w.RFID),
		clamp(s.CCTV).Mul(w.CCTV),
		clamp(s.Sensor).Mul(w.Sensor),
		clamp(s.AI).Mul(w.AI),
	)
}

// Classify maps a fused score to an incident verification status. Both
// bounds are inclusive.
func Classify(total decimal.Decimal, t Thresholds) string {
	switch {
	case total.GreaterThanOrEqual(t.Verified):
		return datastore.VerificationVerified
	case total.GreaterThanOrEqual(t.Probable):
		return datastore.VerificationProbable
	default:
		return datastore.VerificationUnverified
	}
}

// RecordStatus maps a single source score to its validation record status.
// Unlike Classify the bound is strict.
func RecordStatus(score, confirmed decimal.Decimal) string {
	if score.GreaterThan(confirmed) {
		return datastore.RecordConfirmed
	}
	return datastore.RecordPending
}

func clamp(d decimal.Decimal) decimal.Decimal {
	return decimal.Max(zero, decimal.Min(hundred, d))
}
