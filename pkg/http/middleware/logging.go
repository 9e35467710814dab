package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"SignalPulse/pkg/logger"
)

// RequestLogging writes one debug entry per request, and a warning for
// requests slower than slow (zero disables).
func RequestLogging(log *logger.Logger, slow time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			took := time.Since(start)

			fields := []logger.Field{
				logger.String("method", c.Request().Method),
				logger.String("route", routeOf(c)),
				logger.Int("status", c.Response().Status),
				logger.Duration("duration_ms", took),
				logger.Int64("bytes", c.Response().Size),
			}
			switch {
			case c.Response().Status >= 500:
				log.Error("http request failed", fields...)
			case slow > 0 && took >= slow:
				log.Warn("http request slow", fields...)
			default:
				log.Debug("http request", fields...)
			}
			return nil
		}
	}
}

func routeOf(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return "unmatched"
}
