package pagination

import (
	"github.com/gorilla/schema"
	"github.com/labstack/echo/v4"
)

var filterDecoder = newFilterDecoder()

func newFilterDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	// Pagination and barangay keys share the query string with filters.
	d.IgnoreUnknownKeys(true)
	return d
}

// DecodeFilter fills dst, a struct with `schema` tags, from the request's
// query string.
func DecodeFilter(c echo.Context, dst interface{}) error {
	return filterDecoder.Decode(dst, c.QueryParams())
}
