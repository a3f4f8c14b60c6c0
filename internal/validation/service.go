// Package validation scores incident reports against independent evidence
// streams. Four correlators (RFID, CCTV, sensor and AI) each produce a score
// in [0, 100]; the scores are fused with fixed weights, the total is
// classified into verified, probable or unverified, and one validation
// record per source is upserted for audit.
//
// A failing or slow source never fails a run: it falls back to its default
// score and the fallback is reported through logs and metrics.
package validation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/esafety/roadguard/internal/datastore"
	"github.com/esafety/roadguard/internal/errors"
	"github.com/esafety/roadguard/internal/logger"
)

// ErrIncidentNotFound is returned when the incident to validate does not exist.
var ErrIncidentNotFound = errors.NewStd("incident not found")

// Store is everything the service reads and writes.
type Store interface {
	datastore.IncidentStore
	datastore.RFIDLogStore
	datastore.CCTVFeedStore
	datastore.SensorReadingStore
	datastore.AIResultStore
	datastore.ValidationStore
}

// Metrics receives validation telemetry. *metrics.ValidationMetrics implements it.
type Metrics interface {
	RecordValidation(status string, seconds float64)
	RecordSourceOutcome(source, outcome string, seconds float64)
	ObserveConfidence(score float64)
	RecordRecordWrite(source, status string)
	RecordRecordRetry(source string)
}

// Publisher announces finished validation runs, for example over MQTT.
type Publisher interface {
	PublishValidation(ctx context.Context, result *Result) error
}

type noopMetrics struct{}

func (noopMetrics) RecordValidation(string, float64)            {}
func (noopMetrics) RecordSourceOutcome(string, string, float64) {}
func (noopMetrics) ObserveConfidence(float64)                   {}
func (noopMetrics) RecordRecordWrite(string, string)            {}
func (noopMetrics) RecordRecordRetry(string)                    {}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics sets the telemetry sink.
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithPublisher publishes every applied result.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithCorrelators replaces the stock correlators.
func WithCorrelators(c ...Correlator) Option {
	return func(s *Service) { s.correlators = c }
}

// WithClock overrides the time source used for validation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service orchestrates validation runs. It is safe for concurrent use.
type Service struct {
	store       Store
	policy      Policy
	correlators []Correlator
	writer      *RecordWriter
	publisher   Publisher
	log         logger.Logger
	metrics     Metrics
	now         func() time.Time
}

// NewService builds a service over store with the given policy.
func NewService(store Store, policy Policy, opts ...Option) (*Service, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		store:   store,
		policy:  policy,
		log:     logger.NewSlogLogger(nil, logger.LogLevelInfo),
		metrics: noopMetrics{},
		now:     func() time.Time { return time.Now().UTC() },
		correlators: []Correlator{
			NewRFIDCorrelator(store, policy.RFID),
			NewCCTVCorrelator(store),
			NewSensorCorrelator(store, policy.Sensor),
			NewAICorrelator(store, policy.AIDefault),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Module("validation")
	s.writer = NewRecordWriter(store, policy, s.log, s.metrics)
	return s, nil
}

// Policy returns the policy the service scores with.
func (s *Service) Policy() Policy {
	return s.policy
}

// Validate scores the incident against all evidence sources and upserts one
// validation record per source. The incident itself is not modified.
//
// Only a missing incident or a failure to load it is returned as an error.
// Source failures fall back to their defaults and record write failures are
// logged; neither affects the returned result.
func (s *Service) Validate(ctx context.Context, incidentID uint) (*Result, error) {
	start := time.Now()

	traceID := logger.TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = uuid.NewString()
		ctx = logger.WithTraceID(ctx, traceID)
	}
	log := s.log.WithContext(ctx).With(logger.Uint64("incident_id", uint64(incidentID)))

	incident, err := s.store.GetIncident(ctx, incidentID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.New(ErrIncidentNotFound).
				Component("validation").
				Category(errors.CategoryNotFound).
				Priority(errors.PriorityLow).
				Context("incident_id", incidentID).
				Build()
		}
		log.Error("failed to load incident", logger.Error(err))
		return nil, err
	}

	sources := s.correlate(ctx, incident, log)

	// Scores are settled at stored precision before anything is derived from
	// them, so statuses and flags agree with the values returned and persisted.
	for i := range sources {
		sources[i].Confidence = sources[i].Confidence.Round(scorePlaces)
	}

	scores := Scores{}
	for _, r := range sources {
		switch r.Source {
		case datastore.SourceRFID:
			scores.RFID = r.Confidence
		case datastore.SourceCCTV:
			scores.CCTV = r.Confidence
		case datastore.SourceSensor:
			scores.Sensor = r.Confidence
		case datastore.SourceAI:
			scores.AI = r.Confidence
		}
	}
	total := Fuse(scores, s.policy.Weights).Round(scorePlaces)
	status := Classify(total, s.policy.Thresholds)
	validatedAt := s.now()

	result := &Result{
		IncidentID:       incidentID,
		ConfidenceScore:  score(total),
		ValidationStatus: status,
		ValidationDetails: Details{
			RFIDConfidence:    score(scores.RFID),
			CCTVConfidence:    score(scores.CCTV),
			SensorConfidence:  score(scores.Sensor),
			AIConfidence:      score(scores.AI),
			TotalConfidence:   score(total),
			RFIDMatch:         scores.RFID.GreaterThan(s.policy.Flags.RFIDMatch),
			CCTVVerified:      scores.CCTV.GreaterThan(s.policy.Flags.CCTVVerified),
			SensorCorrelation: scores.Sensor.GreaterThan(s.policy.Flags.SensorCorrelation),
		},
		Outcomes:    make(map[string]Outcome, len(sources)),
		TraceID:     traceID,
		ValidatedAt: validatedAt,
		Total:       total,
		Sources:     sources,
	}
	for _, r := range sources {
		result.Outcomes[r.Source] = r.Outcome
	}

	if err := s.writer.Write(ctx, incidentID, sources, validatedAt); err != nil {
		log.Error("validation records not fully persisted", logger.Error(err))
	}

	elapsed := time.Since(start)
	s.metrics.RecordValidation(status, elapsed.Seconds())
	s.metrics.ObserveConfidence(result.ConfidenceScore)
	log.Info("incident validated",
		logger.Float64("confidence", result.ConfidenceScore),
		logger.String("status", status),
		logger.Any("fallbacks", result.Fallbacks()),
		logger.Duration("duration", elapsed))

	return result, nil
}

// ValidateAndApply validates the incident and writes the verdict back onto
// it. A failed write-back is returned together with the result.
func (s *Service) ValidateAndApply(ctx context.Context, incidentID uint) (*Result, error) {
	result, err := s.Validate(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithTraceID(ctx, result.TraceID)

	if err := s.store.UpdateVerification(ctx, incidentID, result.ValidationStatus, result.Total); err != nil {
		return result, fmt.Errorf("apply validation to incident %d: %w", incidentID, err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishValidation(ctx, result); err != nil {
			s.log.WithContext(ctx).Warn("failed to publish validation result",
				logger.Uint64("incident_id", uint64(incidentID)),
				logger.Error(err))
		}
	}
	return result, nil
}

// correlate runs every correlator concurrently. Results keep correlator order.
func (s *Service) correlate(ctx context.Context, incident *datastore.Incident, log logger.Logger) []SourceResult {
	results := make([]SourceResult, len(s.correlators))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range s.correlators {
		g.Go(func() error {
			results[i] = s.runCorrelator(gctx, c, incident, log)
			return nil
		})
	}
	_ = g.Wait() // failures are captured as fallback results

	return results
}

// runCorrelator bounds one correlator by the policy timeout and converts an
// error, a panic or an expired deadline into the source's fallback score.
func (s *Service) runCorrelator(ctx context.Context, c Correlator, incident *datastore.Incident, log logger.Logger) SourceResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.policy.CorrelatorTimeout)
	defer cancel()

	type outcome struct {
		result SourceResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("correlator panicked: %v", r)}
			}
		}()
		res, err := c.Correlate(ctx, incident)
		done <- outcome{result: res, err: err}
	}()

	var res SourceResult
	var err error
	select {
	case o := <-done:
		res, err = o.result, o.err
	case <-ctx.Done():
		err = ctx.Err()
	}

	if err != nil {
		res = s.fallback(c, incident, err, time.Since(start))
		log.Warn("evidence source fell back to default score",
			logger.String("source", c.Source()),
			logger.String("fallback", res.Confidence.String()),
			logger.Error(res.Err))
	} else {
		res.Source = c.Source()
		res.Duration = time.Since(start)
	}

	s.metrics.RecordSourceOutcome(res.Source, string(res.Outcome), res.Duration.Seconds())
	return res
}

func (s *Service) fallback(c Correlator, incident *datastore.Incident, cause error, elapsed time.Duration) SourceResult {
	category := errors.CategoryCorrelation
	if errors.Is(cause, context.DeadlineExceeded) {
		category = errors.CategoryTimeout
	} else if errors.Is(cause, context.Canceled) {
		category = errors.CategoryCancellation
	}

	err := errors.New(cause).
		Component("validation").
		Category(category).
		IncidentContext(incident.ID, c.Source()).
		Timing("correlate", elapsed).
		Build()

	return SourceResult{
		Source:     c.Source(),
		Confidence: c.Fallback(),
		Outcome:    OutcomeFallback,
		Err:        err,
		Details:    map[string]any{"fallback": true},
		Duration:   elapsed,
	}
}
