package validation

import (
	"time"

	"github.com/shopspring/decimal"
)

// Outcome says how a correlator arrived at its score.
type Outcome string

const (
	// OutcomeEvidence means the score was derived from records in the stream.
	OutcomeEvidence Outcome = "evidence"
	// OutcomeNoEvidence means the stream had nothing relevant and the
	// source's empty score applies.
	OutcomeNoEvidence Outcome = "no_evidence"
	// OutcomeFallback means the correlator failed or timed out and the
	// source's fallback score applies.
	OutcomeFallback Outcome = "fallback"
)

// SourceResult is the typed outcome of one correlator.
type SourceResult struct {
	Source     string
	Confidence decimal.Decimal
	Outcome    Outcome
	Err        error          // set when Outcome is OutcomeFallback
	Details    map[string]any // derived metrics stored with the validation record
	Duration   time.Duration
}

// Details is the per-source breakdown returned to callers.
type Details struct {
	RFIDConfidence    float64 `json:"rfid_confidence"`
	CCTVConfidence    float64 `json:"cctv_confidence"`
	SensorConfidence  float64 `json:"sensor_confidence"`
	AIConfidence      float64 `json:"ai_confidence"`
	TotalConfidence   float64 `json:"total_confidence"`
	RFIDMatch         bool    `json:"rfid_match"`
	CCTVVerified      bool    `json:"cctv_verified"`
	SensorCorrelation bool    `json:"sensor_correlation"`
}

// Result is the outcome of one validation run.
type Result struct {
	IncidentID        uint               `json:"incident_id"`
	ConfidenceScore   float64            `json:"confidence_score"`
	ValidationStatus  string             `json:"validation_status"`
	ValidationDetails Details            `json:"validation_details"`
	Outcomes          map[string]Outcome `json:"source_outcomes"`
	TraceID           string             `json:"trace_id,omitempty"`
	ValidatedAt       time.Time          `json:"validated_at"`

	// Total is the fused score behind ConfidenceScore, at stored precision.
	Total   decimal.Decimal `json:"-"`
	Sources []SourceResult  `json:"-"`
}

// Source returns the result of the named source, if it ran.
func (r *Result) Source(name string) (SourceResult, bool) {
	for _, s := range r.Sources {
		if s.Source == name {
			return s, true
		}
	}
	return SourceResult{}, false
}

// Fallbacks returns the sources that fell back, in source order.
func (r *Result) Fallbacks() []string {
	var out []string
	for _, s := range r.Sources {
		if s.Outcome == OutcomeFallback {
			out = append(out, s.Source)
		}
	}
	return out
}

// scorePlaces is the precision of every persisted score column.
const scorePlaces = 2

// score renders a settled decimal for JSON output.
func score(d decimal.Decimal) float64 {
	return d.Round(scorePlaces).InexactFloat64()
}
