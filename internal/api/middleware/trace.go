package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/esafety/roadguard/internal/logger"
)

// maxRequestIDLength caps caller-supplied request ids.
const maxRequestIDLength = 64

// TraceID puts a trace id on the request context and echoes it in the
// X-Request-ID response header. A caller-supplied X-Request-ID is reused.
func TraceID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" || len(id) > maxRequestIDLength {
				id = uuid.NewString()
			}

			c.SetRequest(req.WithContext(logger.WithTraceID(req.Context(), id)))
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			return next(c)
		}
	}
}
