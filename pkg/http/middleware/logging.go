package middleware

import (
	"log"
	"time"

	applogger "SeriesPrep/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging writes one line per completed request. With a nil
// logger it falls back to the process log.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			req := c.Request()
			status := c.Response().Status
			elapsed := time.Since(start)
			if l != nil {
				l.Info("http request",
					applogger.String("method", req.Method),
					applogger.String("uri", req.RequestURI),
					applogger.String("remote", req.RemoteAddr),
					applogger.Int("status", status),
					applogger.Duration("duration_ms", elapsed),
				)
			} else {
				log.Printf("[%s] %s %s - %d (%s)", req.Method, req.RequestURI, req.RemoteAddr, status, elapsed)
			}
			return err
		}
	}
}
