package api

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/openquill-team/riskgate/internal/telemetry"
)

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()

			rid := req.Header.Get(echo.HeaderXRequestID)
			if rid == "" {
				rid = uuid.New().String()
			}

			res.Header().Set(echo.HeaderXRequestID, rid)
			c.Set("request_id", rid)

			return next(c)
		}
	}
}

// MetricsMiddleware records HTTP request metrics for Prometheus
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(c.Response().Status)
			method := c.Request().Method

			// Use route pattern (e.g., /api/v1/abuse/:address) not the actual
			// path to bound label cardinality
			route := c.Path()
			if route == "" {
				route = "unknown"
			}

			telemetry.HTTPRequestDuration.WithLabelValues(method, route, status).Observe(duration)

			return err
		}
	}
}

// NewBodyLimitMiddleware creates a body limit middleware with the given limit
func NewBodyLimitMiddleware(limit string) echo.MiddlewareFunc {
	return middleware.BodyLimit(limit)
}
