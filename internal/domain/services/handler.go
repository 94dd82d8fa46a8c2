package services

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/barangay172/portal/internal/platform/auth"
	"github.com/barangay172/portal/internal/platform/httperr"
	"github.com/barangay172/portal/internal/platform/reporting"
	"github.com/barangay172/portal/pkg/pagination"
)

type Handler struct {
	svc *Service
	now func() time.Time
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

// RegisterRoutes mounts /health-services and /barangay-services for their
// managing roles. Residents read the active catalogue through
// /services/public.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/services/public", h.Public)
	h.mount(api.Group("/health-services", auth.RequireRole(auth.HealthRoles...)), KindHealth)
	h.mount(api.Group("/barangay-services", auth.RequireRole(auth.RoleBarangayHall)), KindBarangay)
}

func (h *Handler) mount(g *echo.Group, kind string) {
	bind := func(fn func(echo.Context, string) error) echo.HandlerFunc {
		return func(c echo.Context) error { return fn(c, kind) }
	}
	g.GET("", bind(h.List))
	g.POST("", bind(h.Create))
	g.GET("/export", bind(h.Export))
	g.GET("/:id", bind(h.Get))
	g.PUT("/:id", bind(h.Update))
	g.DELETE("/:id", bind(h.Delete))
}

func mapError(err error) error {
	if errors.Is(err, ErrForbidden) {
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	}
	return httperr.From(err, ErrDuplicateName)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) Public(c echo.Context) error {
	kind := c.QueryParam("kind")
	if kind == "" {
		kind = KindHealth
	}
	items, err := h.svc.ListActive(c.Request().Context(), kind)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items})
}

func (h *Handler) Create(c echo.Context, kind string) error {
	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	o, err := h.svc.Create(c.Request().Context(), kind, in)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) Get(c echo.Context, kind string) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	o, err := h.svc.Get(c.Request().Context(), kind, id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) Update(c echo.Context, kind string) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	o, err := h.svc.Update(c.Request().Context(), kind, id, in)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) Delete(c echo.Context, kind string) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), kind, id); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) List(c echo.Context, kind string) error {
	var f Filter
	if err := pagination.DecodeFilter(c, &f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid filter")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), kind, f, pg.Limit, pg.Offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Export(c echo.Context, kind string) error {
	var f Filter
	if err := pagination.DecodeFilter(c, &f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid filter")
	}
	items, err := h.svc.ListAll(c.Request().Context(), kind, f)
	if err != nil {
		return mapError(err)
	}
	return reporting.SendCSV(c, reporting.NewTable(kind+"_services", csvHeader, items, csvRow), h.now())
}
