package settings

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/barangay172/portal/internal/platform/auth"
	"github.com/barangay172/portal/internal/platform/httperr"
	"github.com/barangay172/portal/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/settings/public", h.Public)

	admin := api.Group("/settings", auth.RequireRole(auth.RoleAdmin))
	admin.GET("", h.List)
	admin.GET("/:key", h.Get)
	admin.PUT("/:key", h.Set)
}

func (h *Handler) Public(c echo.Context) error {
	values, err := h.svc.Public(c.Request().Context())
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, values)
}

func (h *Handler) List(c echo.Context) error {
	items, err := h.svc.List(c.Request().Context(), c.QueryParam("group"))
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items})
}

func (h *Handler) Get(c echo.Context) error {
	st, err := h.svc.Get(c.Request().Context(), c.Param("key"))
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) Set(c echo.Context) error {
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	st, err := h.svc.Set(c.Request().Context(), c.Param("key"), req.Value)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, st)
}

// MaintenanceGate answers 503 to everyone but admins while maintenance_mode
// is on. Public routes stay reachable so admins can still sign in.
func MaintenanceGate(svc *Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if auth.IsPublicPath(c.Path()) {
				return next(c)
			}
			ctx := c.Request().Context()
			if auth.RoleFromContext(ctx) == auth.RoleAdmin || !svc.Bool(ctx, KeyMaintenanceMode, false) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusServiceUnavailable, "the system is under maintenance")
		}
	}
}

// PageSize makes items_per_page the default page size of list requests
// that do not ask for one.
func PageSize(svc *Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method != http.MethodGet || c.QueryParam("per_page") != "" || c.QueryParam("limit") != "" {
				return next(c)
			}
			pagination.SetDefaultLimit(c, svc.Int(c.Request().Context(), KeyItemsPerPage, pagination.DefaultLimit))
			return next(c)
		}
	}
}

// EmailEnabled reports the email_enabled switch; the outbox consults it
// before every delivery.
func EmailEnabled(svc *Service) func(ctx context.Context) bool {
	return func(ctx context.Context) bool {
		return svc.Bool(ctx, KeyEmailEnabled, true)
	}
}
