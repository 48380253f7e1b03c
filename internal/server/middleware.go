package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// withMetrics records request count, latency and error class per route
func (h *HTTPServer) withMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		if endpoint == "/metrics" {
			return
		}

		status := c.Writer.Status()
		h.metrics.RecordHTTPRequest(c.Request.Method, endpoint, strconv.Itoa(status), time.Since(start).Seconds())

		if status >= 400 {
			errorType := "client_error"
			if status >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(c.Request.Method, endpoint, errorType)
		}
	}
}

// requestLogger logs every request at a level chosen by status code.
// Health and metrics probes are skipped.
func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/health" || path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)

		var event *zerolog.Event
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		default:
			event = logger.Debug()
		}

		if q := c.Request.URL.RawQuery; q != "" {
			path = path + "?" + q
		}
		event = event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", latency).
			Str("client", c.ClientIP())
		if latency > 500*time.Millisecond {
			event = event.Bool("slow", true)
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}
		event.Msg("Request completed")
	}
}

// recovery turns handler panics into 500 responses
func recovery(logger zerolog.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error().
			Interface("panic", recovered).
			Str("path", c.Request.URL.Path).
			Msg("Handler panicked")
		c.AbortWithStatusJSON(500, errorBody{Error: "internal error"})
	})
}
