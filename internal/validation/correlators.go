package validation

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/esafety/roadguard/internal/datastore"
	"github.com/esafety/roadguard/internal/geo"
)

// Correlator scores how strongly one evidence stream supports an incident.
// Correlate returns an error instead of a score when the stream cannot be
// read; the service then applies Fallback.
type Correlator interface {
	Source() string
	Fallback() decimal.Decimal
	Correlate(ctx context.Context, incident *datastore.Incident) (SourceResult, error)
}

// RFIDCorrelator scores the share of vehicle passages near the incident
// among all passages recorded around its time.
type RFIDCorrelator struct {
	store  datastore.RFIDLogStore
	policy RFIDPolicy
}

// NewRFIDCorrelator returns an RFID correlator reading from store.
func NewRFIDCorrelator(store datastore.RFIDLogStore, policy RFIDPolicy) *RFIDCorrelator {
	return &RFIDCorrelator{store: store, policy: policy}
}

func (c *RFIDCorrelator) Source() string            { return datastore.SourceRFID }
func (c *RFIDCorrelator) Fallback() decimal.Decimal { return zero }

func (c *RFIDCorrelator) Correlate(ctx context.Context, incident *datastore.Incident) (SourceResult, error) {
	from, to := window(incident.Timestamp, c.policy.Window)
	logs, err := c.store.RFIDLogsBetween(ctx, from, to)
	if err != nil {
		return SourceResult{}, err
	}

	details := map[string]any{
		"total_logs":     len(logs),
		"window_minutes": c.policy.Window.Minutes(),
		"radius_km":      c.policy.RadiusKm,
	}
	if len(logs) == 0 {
		return result(datastore.SourceRFID, zero, OutcomeNoEvidence, details), nil
	}

	// Logs without coordinates count towards the total but can never match
	origin := incident.Location()
	matching, located := 0, 0
	nearest := math.Inf(1)
	for i := range logs {
		p, ok := logs[i].Location()
		if !ok {
			continue
		}
		located++
		d := geo.Distance(origin, p)
		nearest = math.Min(nearest, d)
		if d <= c.policy.RadiusKm {
			matching++
		}
	}

	details["matching_logs"] = matching
	details["located_logs"] = located
	if located > 0 {
		details["nearest_km"] = decimal.NewFromFloat(nearest).Round(3).InexactFloat64()
	}

	share := decimal.NewFromInt(int64(matching)).Mul(hundred).Div(decimal.NewFromInt(int64(len(logs))))
	return result(datastore.SourceRFID, decimal.Min(c.policy.MaxScore, share), OutcomeEvidence, details), nil
}

// CCTVCorrelator averages the confidence of feeds already linked to the
// incident. It never requests new footage.
type CCTVCorrelator struct {
	store datastore.CCTVFeedStore
}

// NewCCTVCorrelator returns a CCTV correlator reading from store.
func NewCCTVCorrelator(store datastore.CCTVFeedStore) *CCTVCorrelator {
	return &CCTVCorrelator{store: store}
}

func (c *CCTVCorrelator) Source() string            { return datastore.SourceCCTV }
func (c *CCTVCorrelator) Fallback() decimal.Decimal { return zero }

func (c *CCTVCorrelator) Correlate(ctx context.Context, incident *datastore.Incident) (SourceResult, error) {
	feeds, err := c.store.CCTVFeedsForIncident(ctx, incident.ID)
	if err != nil {
		return SourceResult{}, err
	}

	// Feeds still awaiting analysis have no score and are left out of the mean
	scores := make([]float64, 0, len(feeds))
	detected := 0
	for i := range feeds {
		if feeds[i].IncidentDetected {
			detected++
		}
		if feeds[i].ConfidenceScore.Valid {
			scores = append(scores, feeds[i].ConfidenceScore.Decimal.InexactFloat64())
		}
	}

	details := map[string]any{
		"linked_feeds":   len(feeds),
		"scored_feeds":   len(scores),
		"detected_feeds": detected,
	}
	if len(scores) == 0 {
		return result(datastore.SourceCCTV, zero, OutcomeNoEvidence, details), nil
	}
	mean := decimal.NewFromFloat(stat.Mean(scores, nil))
	return result(datastore.SourceCCTV, mean, OutcomeEvidence, details), nil
}

// SensorCorrelator awards points per distinct sensor that flagged an anomaly
// around the incident time.
type SensorCorrelator struct {
	store  datastore.SensorReadingStore
	policy SensorPolicy
}

// NewSensorCorrelator returns a sensor correlator reading from store.
func NewSensorCorrelator(store datastore.SensorReadingStore, policy SensorPolicy) *SensorCorrelator {
	return &SensorCorrelator{store: store, policy: policy}
}

func (c *SensorCorrelator) Source() string            { return datastore.SourceSensor }
func (c *SensorCorrelator) Fallback() decimal.Decimal { return zero }

func (c *SensorCorrelator) Correlate(ctx context.Context, incident *datastore.Incident) (SourceResult, error) {
	from, to := window(incident.Timestamp, c.policy.Window)
	readings, err := c.store.AnomalousReadingsBetween(ctx, from, to)
	if err != nil {
		return SourceResult{}, err
	}

	origin := incident.Location()
	sensors := make(map[uint]struct{})
	for i := range readings {
		if c.policy.RadiusKm > 0 {
			s := readings[i].Sensor
			if s == nil || !geo.Within(origin, s.Location(), c.policy.RadiusKm) {
				continue
			}
		}
		sensors[readings[i].SensorID] = struct{}{}
	}

	details := map[string]any{
		"anomalous_readings": len(readings),
		"distinct_sensors":   len(sensors),
		"window_minutes":     c.policy.Window.Minutes(),
	}
	if len(sensors) == 0 {
		return result(datastore.SourceSensor, zero, OutcomeNoEvidence, details), nil
	}
	points := decimal.NewFromInt(int64(len(sensors))).Mul(c.policy.PointsPerSensor)
	return result(datastore.SourceSensor, decimal.Min(c.policy.MaxScore, points), OutcomeEvidence, details), nil
}

// AICorrelator reads the newest classifier result for the incident. Without
// one it returns a neutral prior rather than a penalty.
type AICorrelator struct {
	store        datastore.AIResultStore
	defaultScore decimal.Decimal
}

// NewAICorrelator returns an AI correlator reading from store.
func NewAICorrelator(store datastore.AIResultStore, defaultScore decimal.Decimal) *AICorrelator {
	return &AICorrelator{store: store, defaultScore: defaultScore}
}

func (c *AICorrelator) Source() string            { return datastore.SourceAI }
func (c *AICorrelator) Fallback() decimal.Decimal { return c.defaultScore }

func (c *AICorrelator) Correlate(ctx context.Context, incident *datastore.Incident) (SourceResult, error) {
	latest, err := c.store.LatestAIResult(ctx, incident.ID)
	if err != nil {
		return SourceResult{}, err
	}
	if latest == nil {
		return result(datastore.SourceAI, c.defaultScore, OutcomeNoEvidence, map[string]any{"results": 0}), nil
	}

	details := map[string]any{
		"result_id":      latest.ID,
		"model":          latest.ModelName + " " + latest.ModelVersion,
		"classification": latest.ClassificationResult,
		"time_delta_s":   latest.CreatedAt.Sub(incident.Timestamp).Seconds(),
	}
	return result(datastore.SourceAI, latest.ConfidenceScore, OutcomeEvidence, details), nil
}

// window returns the closed interval [t-w, t+w].
func window(t time.Time, w time.Duration) (from, to time.Time) {
	return t.Add(-w), t.Add(w)
}

func result(source string, confidence decimal.Decimal, outcome Outcome, details map[string]any) SourceResult {
	return SourceResult{Source: source, Confidence: confidence, Outcome: outcome, Details: details}
}
