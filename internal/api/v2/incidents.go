package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/esafety/roadguard/internal/datastore"
	"github.com/esafety/roadguard/internal/errors"
	"github.com/esafety/roadguard/internal/logger"
	"github.com/esafety/roadguard/internal/validation"
)

// ValidationRecord is one persisted per-source validation row.
type ValidationRecord struct {
	Source             string         `json:"source"`
	ConfidenceScore    float64        `json:"confidence_score"`
	ValidationStatus   string         `json:"validation_status"`
	SourceData         map[string]any `json:"source_data"`
	CorrelationDetails map[string]any `json:"correlation_details"`
	ValidatedAt        time.Time      `json:"validated_at"`
}

// ValidationsResponse lists the validation records of an incident.
type ValidationsResponse struct {
	IncidentID uint               `json:"incident_id"`
	Records    []ValidationRecord `json:"records"`
}

// initIncidentRoutes registers the validation endpoints
func (c *Controller) initIncidentRoutes() {
	incidents := c.Group.Group("/incidents")

	var validateMiddleware []echo.MiddlewareFunc
	if ws := c.Settings.WebServer; ws.RateLimit > 0 {
		// Each validation fans out to four evidence queries, so callers are limited per IP
		rateLimiterConfig := echomw.RateLimiterConfig{
			Store: echomw.NewRateLimiterMemoryStoreWithConfig(
				echomw.RateLimiterMemoryStoreConfig{
					Rate:      rate.Limit(ws.RateLimit),
					Burst:     ws.RateBurst,
					ExpiresIn: 3 * time.Minute,
				},
			),
			IdentifierExtractor: echomw.DefaultRateLimiterConfig.IdentifierExtractor,
			ErrorHandler: func(ctx echo.Context, err error) error {
				return c.HandleError(ctx, err, "Unable to identify caller", http.StatusForbidden)
			},
			DenyHandler: func(ctx echo.Context, identifier string, err error) error {
				return c.HandleError(ctx, err, "Too many validation requests, please wait before trying again", http.StatusTooManyRequests)
			},
		}
		validateMiddleware = append(validateMiddleware, echomw.RateLimiterWithConfig(rateLimiterConfig))
	}

	incidents.POST("/:id/validate", c.ValidateIncident, validateMiddleware...)
	incidents.GET("/:id/validations", c.GetValidations)
}

// headerIncidentUpdate is set to "failed" when a result could not be written
// back to the incident.
const headerIncidentUpdate = "X-Incident-Update"

// ValidateIncident handles POST /api/v2/incidents/:id/validate. It validates
// the incident and writes the verdict back to it. A failed write-back still
// answers with the result.
func (c *Controller) ValidateIncident(ctx echo.Context) error {
	id, err := incidentID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid incident ID", http.StatusBadRequest)
	}

	result, err := c.Validator.ValidateAndApply(ctx.Request().Context(), id)
	switch {
	case errors.Is(err, validation.ErrIncidentNotFound):
		return c.HandleError(ctx, err, "Incident not found", http.StatusNotFound)
	case err != nil && result == nil:
		return c.HandleError(ctx, err, "Failed to validate incident", http.StatusInternalServerError)
	}

	// Records are persisted by now, whether or not the incident took the verdict
	c.validationCache.Delete(cacheKey(id))

	if err != nil {
		c.log.WithContext(ctx.Request().Context()).Error("validation result not applied to incident",
			logger.Uint64("incident_id", uint64(id)),
			logger.String("validation_status", result.ValidationStatus),
			logger.Error(err))
		ctx.Response().Header().Set(headerIncidentUpdate, "failed")
		return ctx.JSON(http.StatusOK, result)
	}

	c.log.WithContext(ctx.Request().Context()).Info("incident validated via API",
		logger.Uint64("incident_id", uint64(id)),
		logger.Float64("confidence_score", result.ConfidenceScore),
		logger.String("validation_status", result.ValidationStatus))

	return ctx.JSON(http.StatusOK, result)
}

// GetValidations handles GET /api/v2/incidents/:id/validations.
func (c *Controller) GetValidations(ctx echo.Context) error {
	id, err := incidentID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid incident ID", http.StatusBadRequest)
	}

	key := cacheKey(id)
	if cached, found := c.validationCache.Get(key); found {
		if resp, ok := cached.(*ValidationsResponse); ok {
			ctx.Response().Header().Set("X-Cache", "HIT")
			return ctx.JSON(http.StatusOK, resp)
		}
	}

	reqCtx := ctx.Request().Context()
	if _, err := c.DS.GetIncident(reqCtx, id); err != nil {
		if errors.IsNotFound(err) {
			return c.HandleError(ctx, err, "Incident not found", http.StatusNotFound)
		}
		return c.HandleError(ctx, err, "Failed to load incident", http.StatusInternalServerError)
	}

	rows, err := c.DS.ValidationsForIncident(reqCtx, id)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to load validation records", http.StatusInternalServerError)
	}

	resp := &ValidationsResponse{IncidentID: id, Records: make([]ValidationRecord, 0, len(rows))}
	for i := range rows {
		resp.Records = append(resp.Records, toValidationRecord(&rows[i]))
	}
	c.validationCache.Set(key, resp, cache.DefaultExpiration)

	ctx.Response().Header().Set("X-Cache", "MISS")
	return ctx.JSON(http.StatusOK, resp)
}

func toValidationRecord(row *datastore.IncidentValidation) ValidationRecord {
	return ValidationRecord{
		Source:             row.ValidationSource,
		ConfidenceScore:    row.ConfidenceScore.InexactFloat64(),
		ValidationStatus:   row.ValidationStatus,
		SourceData:         row.SourceData,
		CorrelationDetails: row.CorrelationDetails,
		ValidatedAt:        row.ValidatedAt.UTC(),
	}
}

func incidentID(ctx echo.Context) (uint, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, errors.NewStd("incident id must be positive")
	}
	return uint(id), nil
}

func cacheKey(id uint) string {
	return "validations:" + strconv.FormatUint(uint64(id), 10)
}
