package middleware

import (
	"net/http"
	"runtime"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/barangay172/portal/internal/platform/auth"
)

const maxPanicStack = 8 << 10

// Recovery turns a handler panic into a 500. The panic value and stack go to
// the log only; the caller gets the request id to quote to barangay staff.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}

				stack := make([]byte, maxPanicStack)
				stack = stack[:runtime.Stack(stack, false)]

				rid, _ := c.Get("request_id").(string)
				evt := logger.Error().
					Str("request_id", rid).
					Str("method", c.Request().Method).
					Str("path", c.Request().URL.Path).
					Interface("panic", r).
					Bytes("stack", stack)
				if p, ok := auth.PrincipalFromContext(c.Request().Context()); ok && p.UserID != uuid.Nil {
					evt = evt.Str("user_id", p.UserID.String())
				}
				if code, ok := c.Get("barangay").(string); ok {
					evt = evt.Str("barangay", code)
				}
				evt.Msg("panic recovered")

				msg := "internal server error"
				if rid != "" {
					msg += " (request " + rid + ")"
				}
				err = echo.NewHTTPError(http.StatusInternalServerError, msg)
			}()
			return next(c)
		}
	}
}
