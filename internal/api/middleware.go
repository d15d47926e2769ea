package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"chauffeur/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	requestIDHeader = "X-Request-ID"

	ctxRequestID = "request_id"
	ctxLogger    = "logger"
	ctxStartTime = "request_start_time"
)

// CurrentTimeFunc can be replaced in tests.
var CurrentTimeFunc = time.Now

func StartRequest(c *gin.Context) {
	c.Set(ctxStartTime, CurrentTimeFunc())
}

// RequestID takes the id from the request header or generates one.
func RequestID(c *gin.Context) {
	rid := c.GetHeader(requestIDHeader)
	if rid == "" || len(rid) > 64 {
		rid = uuid.NewString()
	}
	c.Set(ctxRequestID, rid)
	c.Writer.Header().Set(requestIDHeader, rid)
}

func RegisterLogger(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestLogger := logger.
			With().
			Str("request_id", c.GetString(ctxRequestID)).
			Logger()

		c.Set(ctxLogger, &requestLogger)
		c.Request = c.Request.WithContext(requestLogger.WithContext(c.Request.Context()))
	}
}

// TraceLog writes one line per request once every other handler is done.
func TraceLog(c *gin.Context) {
	c.Next()

	start, _ := c.Get(ctxStartTime)
	startTime, ok := start.(time.Time)
	if !ok {
		startTime = CurrentTimeFunc()
	}
	elapsed := time.Since(startTime).Seconds()

	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	metrics.ObserveHTTP(route, c.Request.Method, strconv.Itoa(c.Writer.Status()), elapsed)

	event := requestLogger(c).Info()
	if c.Writer.Status() >= http.StatusInternalServerError {
		event = requestLogger(c).Error()
	}
	event.
		Str("label", "trace").
		Str("method", c.Request.Method).
		Str("url", c.Request.URL.Path).
		Int("code", c.Writer.Status()).
		Float64("duration", elapsed).
		Msg("")
}

func PanicRecovery(c *gin.Context) {
	gin.CustomRecoveryWithWriter(&recoveryWriter{
		logger: requestLogger(c),
	}, func(c *gin.Context, err any) {
		requestLogger(c).Error().Str("panic", fmt.Sprint(err)).Msg("panic recovered")
		abortWithError(c, http.StatusInternalServerError, codeInternal, "internal error", nil)
	})(c)
}

type recoveryWriter struct {
	logger *zerolog.Logger
}

func (r *recoveryWriter) Write(p []byte) (n int, err error) {
	r.logger.Error().Msg(string(p))
	return len(p), nil
}

// RateLimit rejects clients that exceed their token bucket.
func RateLimit(limiter *rateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			abortWithError(c, http.StatusTooManyRequests, codeRateLimited, "rate limit exceeded", nil)
			return
		}
		c.Next()
	}
}

func requestLogger(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(ctxLogger); ok {
		if l, ok := v.(*zerolog.Logger); ok {
			return l
		}
	}
	return zerolog.Ctx(c.Request.Context())
}
