package api

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all API routes
func SetupRoutes(e *echo.Echo, h *Handlers, hh *HealthHandlers, rl *RateLimiterConfig, adminKey string) {
	// Health check and metrics endpoints (no middleware)
	e.GET("/health", hh.Health)
	e.GET("/health/ready", hh.Readiness)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Apply middleware to all other routes
	e.Use(RequestIDMiddleware())
	e.Use(MetricsMiddleware())
	e.Use(SecurityHeadersMiddleware())

	api := e.Group("/api/v1")

	// The gated endpoint: velocity limit in front, tight body limit
	api.POST("/articles/generate", h.GenerateArticle,
		rl.Generation.Middleware(), NewBodyLimitMiddleware("10KB"))

	// Accounts and verification
	api.POST("/accounts", h.CreateAccount,
		rl.GeneralAPI.Middleware(), NewBodyLimitMiddleware("10KB"))
	api.GET("/accounts/:id", h.GetAccount, rl.GeneralAPI.Middleware())
	api.POST("/verify", h.VerifyChallenge,
		rl.GeneralAPI.Middleware(), NewBodyLimitMiddleware("10KB"))

	// Admin surface behind the static key
	admin := api.Group("/admin", AdminKeyMiddleware(adminKey), rl.Admin.Middleware())
	admin.GET("/abuse/:address", h.GetAbuseRecord)
	admin.PATCH("/abuse/:address", h.PatchAbuseRecord)
	admin.POST("/abuse/:address/recheck", h.RecheckAbuseRecord)
	admin.POST("/abuse/purge", h.PurgeAbuseRecords)
	admin.GET("/events", h.StreamEvents)
}
