package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/auth"
)

// Logger returns middleware that writes one structured log line per request.
// When the request carries an authenticated identity, the actor's ID and role
// are included so workflow activity can be traced back to a user.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			rid := RequestIDFromContext(c)

			err := next(c)

			evt := logger.Info()
			if err != nil {
				evt = logger.Error().Err(err)
			}

			evt = evt.
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP())

			if id := auth.IdentityFromContext(req.Context()); id != nil {
				evt = evt.
					Str("user_id", id.ID.String()).
					Str("role", string(id.Role))
			}

			evt.Msg("request")

			return err
		}
	}
}
