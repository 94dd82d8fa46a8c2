package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/barangay172/portal/internal/platform/auth"
)

func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			rid, _ := c.Get("request_id").(string)

			err := next(c)

			evt := logger.Info()
			if err != nil {
				evt = logger.Error().Err(err)
			}

			// Auth runs further down the chain and stores the principal on
			// the request it hands to the handler, which echo keeps.
			if p, ok := auth.PrincipalFromContext(c.Request().Context()); ok && p.UserID != uuid.Nil {
				evt = evt.Str("user_id", p.UserID.String()).Str("role", p.Role)
			}
			if code, ok := c.Get("barangay").(string); ok {
				evt = evt.Str("barangay", code)
			}

			evt.
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")

			return err
		}
	}
}
