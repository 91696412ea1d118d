// Package middleware provides HTTP middleware for the relay API.
//
// This file implements structured, per-request access logging so every
// HTTP request carries the same fields as the rest of the relay's
// zerolog output (module tag, request id, status, duration).
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/consortium/relay/internal/logger"
)

// StructuredLoggerConfig customizes StructuredLogger.
type StructuredLoggerConfig struct {
	SkipPaths       []string
	SkipHealthCheck bool
	LogQuery        bool
}

// DefaultStructuredLoggerConfig returns the relay's default config.
func DefaultStructuredLoggerConfig() StructuredLoggerConfig {
	return StructuredLoggerConfig{SkipHealthCheck: true, LogQuery: true}
}

// StructuredLogger logs every request at INFO (2xx/3xx), WARN (4xx), or
// ERROR (5xx), tagged with the http module and the request id.
func StructuredLogger(cfg StructuredLoggerConfig) gin.HandlerFunc {
	skip := make(map[string]bool, len(cfg.SkipPaths)+1)
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}
	if cfg.SkipHealthCheck {
		skip["/health"] = true
	}

	log := logger.HTTP()

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if skip[path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		}

		event = event.
			Str("request_id", GetRequestID(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP())

		if cfg.LogQuery && c.Request.URL.RawQuery != "" {
			event = event.Str("query", c.Request.URL.RawQuery)
		}
		if accountID, ok := c.Get("accountId"); ok {
			event = event.Interface("account_id", accountID)
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}

		event.Msg("request")
	}
}
