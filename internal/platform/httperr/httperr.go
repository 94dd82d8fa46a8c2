// Package httperr maps domain errors onto HTTP responses.
package httperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/barangay172/portal/internal/platform/db"
)

type invalidError struct{ msg string }

func (e *invalidError) Error() string { return e.msg }

// Invalid returns a validation error whose message is safe to show callers.
func Invalid(format string, args ...interface{}) error {
	return &invalidError{msg: fmt.Sprintf(format, args...)}
}

func IsInvalid(err error) bool {
	var ie *invalidError
	return errors.As(err, &ie)
}

// From converts err into an *echo.HTTPError: validation errors are 400,
// db.ErrNotFound is 404 and an err matching one of conflicts is 409 with
// the error text. Anything else is a 500 whose cause is kept as the internal
// error for the request log and never sent to the client.
func From(err error, conflicts ...error) error {
	var he *echo.HTTPError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &he):
		return he
	case IsInvalid(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, db.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	for _, c := range conflicts {
		if errors.Is(err, c) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}
