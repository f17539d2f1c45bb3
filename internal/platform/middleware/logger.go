package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medremind/medremind/internal/platform/auth"
)

// Logger emits one structured log line per request. The level follows the
// response status so alerting can key on it: 5xx logs as error, 4xx as warn.
// Health checks arrive every few seconds and are logged at debug to keep
// them out of the default output.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			rid, _ := c.Get("request_id").(string)

			err := next(c)

			// Errors are handled by echo after the chain unwinds, so the
			// response status is not committed yet; derive it from the error.
			status := c.Response().Status
			if err != nil {
				status = 500
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			var evt *zerolog.Event
			switch {
			case req.URL.Path == "/health" || req.URL.Path == "/health/db":
				evt = logger.Debug()
			case status >= 500:
				evt = logger.Error().Err(err)
			case status >= 400:
				evt = logger.Warn()
			default:
				evt = logger.Info()
			}

			evt = evt.
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Int64("bytes_out", c.Response().Size).
				Str("remote_ip", c.RealIP())
			if pid := auth.PatientIDFromContext(req.Context()); pid != "" {
				evt = evt.Str("patient_id", pid)
			}
			evt.Msg("request")

			return err
		}
	}
}
