package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass bearer-token authentication. They still run under the
// barangay middleware so login and registration reach the right schema.
var publicPaths = map[string]bool{
	"/health":                 true,
	"/health/db":              true,
	"/api/v1/auth/login":      true,
	"/api/v1/auth/register":   true,
	"/api/v1/services/public": true,
	"/api/v1/settings/public": true,
}

// AuthSkipper returns true for requests whose route should skip authentication.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// IsPublicPath reports whether path bypasses authentication.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
