// internal/api/v2/api.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/patrickmn/go-cache"

	"github.com/esafety/roadguard/internal/api/middleware"
	"github.com/esafety/roadguard/internal/buildinfo"
	"github.com/esafety/roadguard/internal/conf"
	"github.com/esafety/roadguard/internal/datastore"
	"github.com/esafety/roadguard/internal/logger"
	"github.com/esafety/roadguard/internal/observability"
	"github.com/esafety/roadguard/internal/validation"
)

// Validator runs a validation and applies the verdict to the incident.
// *validation.Service implements it.
type Validator interface {
	ValidateAndApply(ctx context.Context, incidentID uint) (*validation.Result, error)
}

// Controller manages the API routes and handlers
type Controller struct {
	Echo      *echo.Echo
	Group     *echo.Group
	DS        datastore.Interface
	Validator Validator
	Settings  *conf.Settings

	log     logger.Logger
	metrics *observability.Metrics
	build   *buildinfo.Context

	// validationCache holds the persisted records per incident; entries are
	// dropped whenever the incident is validated again.
	validationCache *cache.Cache
	startTime       time.Time
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithLogger sets the logger for API operations.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetrics exposes the registry at GET /metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithBuildInfo reports the build version in the health check.
func WithBuildInfo(b *buildinfo.Context) Option {
	return func(c *Controller) {
		c.build = b
	}
}

// New creates a new API controller and registers its routes on e.
func New(e *echo.Echo, ds datastore.Interface, validator Validator, settings *conf.Settings, opts ...Option) (*Controller, error) {
	if ds == nil || validator == nil || settings == nil {
		return nil, fmt.Errorf("api controller requires a datastore, a validator and settings")
	}

	ttl := settings.WebServer.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	c := &Controller{
		Echo:            e,
		DS:              ds,
		Validator:       validator,
		Settings:        settings,
		log:             logger.NewSlogLogger(nil, logger.LogLevelInfo),
		validationCache: cache.New(ttl, 2*ttl),
		startTime:       time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Module("api")

	// Create v2 API group
	c.Group = e.Group("/api/v2")

	c.Group.Use(echomw.Recover())
	c.Group.Use(middleware.TraceID())
	c.Group.Use(echomw.BodyLimit("1M"))
	c.Group.Use(middleware.NewRequestLogger(c.log))

	c.initRoutes()
	return c, nil
}

// initRoutes registers all API endpoints
func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.HealthCheck)
	c.initIncidentRoutes()

	if c.metrics != nil {
		c.Echo.GET("/metrics", echo.WrapHandler(c.metrics.Handler()))
	}
}

// HealthCheck handles the API health check endpoint
func (c *Controller) HealthCheck(ctx echo.Context) error {
	response := map[string]any{
		"status":         "healthy",
		"version":        c.build.Version(),
		"build_date":     c.build.BuildDate(),
		"database_type":  c.Settings.Database.Type,
		"mqtt_enabled":   c.Settings.MQTT.Enabled,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": time.Since(c.startTime).Seconds(),
	}

	pingCtx, cancel := context.WithTimeout(ctx.Request().Context(), 2*time.Second)
	defer cancel()

	code := http.StatusOK
	if err := c.DS.Ping(pingCtx); err != nil {
		response["status"] = "degraded"
		response["database_status"] = "disconnected"
		response["database_error"] = err.Error()
		code = http.StatusServiceUnavailable
	} else {
		response["database_status"] = "connected"
	}

	return ctx.JSON(code, response)
}

// Shutdown releases controller resources.
func (c *Controller) Shutdown() {
	// TODO: The go-cache library's janitor goroutine cannot be stopped.
	// Consider migrating to a context-aware cache implementation.
	c.validationCache.Flush()
}

// ErrorResponse is the body of every API error.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"` // request trace id, also sent as X-Request-ID
}

// HandleError constructs and returns an appropriate error response
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	resp := &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: logger.TraceIDFromContext(ctx.Request().Context()),
	}

	log := c.log.WithContext(ctx.Request().Context())
	fields := []logger.Field{
		logger.String("message", message),
		logger.Int("code", code),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("method", ctx.Request().Method),
		logger.String("ip", ctx.RealIP()),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if code >= http.StatusInternalServerError {
		log.Error("API error", fields...)
	} else {
		log.Debug("API error", fields...)
	}

	return ctx.JSON(code, resp)
}
