package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/barangay172/portal/internal/platform/auth"
)

// AuditEntry describes one state-changing request made by staff.
type AuditEntry struct {
	UserID     uuid.UUID
	UserName   string
	Role       string
	Resource   string // first segment after /api/v1/, e.g. "appointments"
	ResourceID string
	Action     string // create, update, delete
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AuditRecorder persists audit entries. The context still carries the
// request's barangay connection.
type AuditRecorder interface {
	RecordAccess(ctx context.Context, entry AuditEntry) error
}

type AuditRecorderFunc func(ctx context.Context, entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(ctx context.Context, entry AuditEntry) error {
	return f(ctx, entry)
}

// Audit records successful mutating /api/v1 requests made by staff and
// admins. Every /api/v1 request is also written to the structured log.
// Residents' own actions are not recorded in the activity log.
//
// Recording failures are logged and never fail the request.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path

			if !isAuditablePath(path) {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}

			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				Path:       path,
				Method:     req.Method,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				StatusCode: status,
				Action:     httpMethodToAction(req.Method),
				Resource:   extractResource(path),
				ResourceID: extractResourceID(path),
			}

			ctx := c.Request().Context()
			if p, ok := auth.PrincipalFromContext(ctx); ok {
				entry.UserID = p.UserID
				entry.UserName = p.Name
				entry.Role = p.Role
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}

			if shouldRecord(entry, err) {
				for _, r := range recorders {
					if r == nil {
						continue
					}
					if recErr := r.RecordAccess(ctx, entry); recErr != nil {
						logger.Error().Err(recErr).
							Str("request_id", entry.RequestID).
							Msg("failed to record audit entry")
					}
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID.String()).
				Str("role", entry.Role).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("api_access")

			return err
		}
	}
}

func shouldRecord(entry AuditEntry, err error) bool {
	if err != nil || entry.StatusCode >= http.StatusBadRequest {
		return false
	}
	if entry.Action == "read" || entry.UserID == uuid.Nil {
		return false
	}
	return entry.Role == auth.RoleAdmin || auth.IsStaffRole(entry.Role)
}

func isAuditablePath(path string) bool {
	return strings.HasPrefix(path, "/api/v1/")
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// extractResource returns the first path segment after /api/v1/.
//
//	/api/v1/appointments          -> appointments
//	/api/v1/appointments/<id>/... -> appointments
func extractResource(path string) string {
	segments := strings.Split(strings.TrimPrefix(path, "/api/v1/"), "/")
	if len(segments) > 0 && segments[0] != "" {
		return segments[0]
	}
	return "unknown"
}

// extractResourceID returns the first UUID in the path, if any.
func extractResourceID(path string) string {
	for _, seg := range strings.Split(strings.TrimPrefix(path, "/api/v1/"), "/") {
		if _, err := uuid.Parse(seg); err == nil {
			return seg
		}
	}
	return ""
}
