package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"price-aggregator/utils"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	loggerKey       = "logger"
)

// RequestID reuses the caller's X-Request-ID or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

// RequestLogger logs one line per request and stores a request-scoped logger
// in the gin context.
func RequestLogger(logger *utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqLogger := logger.With(requestIDKey, c.GetString(requestIDKey))
		c.Set(loggerKey, reqLogger)

		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start).Round(time.Millisecond)
		switch {
		case status >= 500:
			reqLogger.Error("[http] %s %s %d %v %v", c.Request.Method, c.Request.URL.Path, status, latency, c.Errors.Errors())
		case status >= 400:
			reqLogger.Warn("[http] %s %s %d %v", c.Request.Method, c.Request.URL.Path, status, latency)
		default:
			reqLogger.Info("[http] %s %s %d %v", c.Request.Method, c.Request.URL.Path, status, latency)
		}
	}
}

// Recovery turns a handler panic into a 500.
func Recovery(logger *utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("[http] Panic serving %s %s (request %s): %v",
					c.Request.Method, c.Request.URL.Path, c.GetString(requestIDKey), r)
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
			}
		}()
		c.Next()
	}
}

func requestLogger(c *gin.Context, fallback *utils.Logger) *utils.Logger {
	if l, ok := c.Get(loggerKey); ok {
		if logger, ok := l.(*utils.Logger); ok {
			return logger
		}
	}
	return fallback
}
