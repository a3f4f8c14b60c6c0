package validation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/esafety/roadguard/internal/conf"
	"github.com/esafety/roadguard/internal/errors"
)

var (
	zero    = decimal.Zero
	hundred = decimal.NewFromInt(100)

	// weightTolerance is how far the weight sum may drift from 1.
	weightTolerance = decimal.New(1, -9)
)

// Weights are the fusion coefficients per source.
type Weights struct {
	RFID   decimal.Decimal
	CCTV   decimal.Decimal
	Sensor decimal.Decimal
	AI     decimal.Decimal
}

// Sum returns the total of all weights.
func (w Weights) Sum() decimal.Decimal {
	return decimal.Sum(w.RFID, w.CCTV, w.Sensor, w.AI)
}

// Thresholds are the inclusive lower bounds of the verified and probable classes.
type Thresholds struct {
	Verified decimal.Decimal
	Probable decimal.Decimal
}

// Flags are the strict bounds of the UI evidence flags.
type Flags struct {
	RFIDMatch         decimal.Decimal
	CCTVVerified      decimal.Decimal
	SensorCorrelation decimal.Decimal
}

// RFIDPolicy scopes and caps the RFID correlator.
type RFIDPolicy struct {
	Window   time.Duration
	RadiusKm float64
	MaxScore decimal.Decimal
}

// SensorPolicy scopes and caps the sensor correlator. A zero RadiusKm counts
// anomalies from every sensor.
type SensorPolicy struct {
	Window          time.Duration
	RadiusKm        float64
	PointsPerSensor decimal.Decimal
	MaxScore        decimal.Decimal
}

// Policy carries every tunable of a validation run. The classifier, the
// per-source confirmation bound and the UI flags are independent of each
// other and must not be collapsed into one threshold.
type Policy struct {
	Weights    Weights
	Thresholds Thresholds
	Confirmed  decimal.Decimal
	Flags      Flags

	RFID      RFIDPolicy
	Sensor    SensorPolicy
	AIDefault decimal.Decimal

	CorrelatorTimeout time.Duration
	WriteAttempts     int
	WriteBackoff      time.Duration
}

// DefaultPolicy returns the stock policy.
func DefaultPolicy() Policy {
	p, err := NewPolicy(conf.DefaultValidationSettings())
	if err != nil {
		// The defaults are constants; failing here is a programming error
		panic(err)
	}
	return p
}

// NewPolicy converts validation settings into a policy and checks it.
func NewPolicy(s conf.ValidationSettings) (Policy, error) {
	d := decimal.NewFromFloat
	p := Policy{
		Weights: Weights{
			RFID:   d(s.Weights.RFID),
			CCTV:   d(s.Weights.CCTV),
			Sensor: d(s.Weights.Sensor),
			AI:     d(s.Weights.AI),
		},
		Thresholds: Thresholds{
			Verified: d(s.Thresholds.Verified),
			Probable: d(s.Thresholds.Probable),
		},
		Confirmed: d(s.Thresholds.Confirmed),
		Flags: Flags{
			RFIDMatch:         d(s.Flags.RFIDMatch),
			CCTVVerified:      d(s.Flags.CCTVVerified),
			SensorCorrelation: d(s.Flags.SensorCorrelation),
		},
		RFID: RFIDPolicy{
			Window:   s.RFID.Window,
			RadiusKm: s.RFID.RadiusKm,
			MaxScore: d(s.RFID.MaxScore),
		},
		Sensor: SensorPolicy{
			Window:          s.Sensor.Window,
			RadiusKm:        s.Sensor.RadiusKm,
			PointsPerSensor: d(s.Sensor.PointsPerSensor),
			MaxScore:        d(s.Sensor.MaxScore),
		},
		AIDefault:         d(s.AI.DefaultScore),
		CorrelatorTimeout: s.CorrelatorTimeout,
		WriteAttempts:     s.Writer.Attempts,
		WriteBackoff:      s.Writer.Backoff,
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate reports the first inconsistency in the policy.
func (p Policy) Validate() error {
	for name, w := range map[string]decimal.Decimal{
		"rfid": p.Weights.RFID, "cctv": p.Weights.CCTV, "sensor": p.Weights.Sensor, "ai": p.Weights.AI,
	} {
		if w.IsNegative() || w.GreaterThan(decimal.NewFromInt(1)) {
			return policyError("weight must be between 0 and 1", "weight_"+name, w)
		}
	}
	if p.Weights.Sum().Sub(decimal.NewFromInt(1)).Abs().GreaterThan(weightTolerance) {
		return policyError("weights must sum to 1", "weights", p.Weights.Sum())
	}

	if p.Thresholds.Probable.GreaterThan(p.Thresholds.Verified) {
		return policyError("probable threshold exceeds verified threshold", "thresholds", p.Thresholds.Probable)
	}
	for name, score := range map[string]decimal.Decimal{
		"verified":           p.Thresholds.Verified,
		"probable":           p.Thresholds.Probable,
		"confirmed":          p.Confirmed,
		"rfid_match":         p.Flags.RFIDMatch,
		"cctv_verified":      p.Flags.CCTVVerified,
		"sensor_correlation": p.Flags.SensorCorrelation,
		"rfid_max_score":     p.RFID.MaxScore,
		"sensor_max_score":   p.Sensor.MaxScore,
		"ai_default":         p.AIDefault,
	} {
		if score.LessThan(zero) || score.GreaterThan(hundred) {
			return policyError("score must be between 0 and 100", name, score)
		}
	}

	switch {
	case p.RFID.Window <= 0:
		return policyError("rfid window must be positive", "rfid_window", p.RFID.Window)
	case p.RFID.RadiusKm <= 0:
		return policyError("rfid radius must be positive", "rfid_radius_km", p.RFID.RadiusKm)
	case p.Sensor.Window <= 0:
		return policyError("sensor window must be positive", "sensor_window", p.Sensor.Window)
	case p.Sensor.RadiusKm < 0:
		return policyError("sensor radius must not be negative", "sensor_radius_km", p.Sensor.RadiusKm)
	case !p.Sensor.PointsPerSensor.IsPositive():
		return policyError("points per sensor must be positive", "sensor_points", p.Sensor.PointsPerSensor)
	case p.CorrelatorTimeout <= 0:
		return policyError("correlator timeout must be positive", "correlator_timeout", p.CorrelatorTimeout)
	case p.WriteAttempts < 1:
		return policyError("writer needs at least one attempt", "write_attempts", p.WriteAttempts)
	case p.WriteBackoff < 0:
		return policyError("writer backoff must not be negative", "write_backoff", p.WriteBackoff)
	}
	return nil
}

func policyError(message, field string, value any) error {
	return errors.Newf("invalid validation policy: %s", message).
		Component("validation").
		Category(errors.CategoryPolicy).
		Context("field", field).
		Context("value", value).
		Build()
}
