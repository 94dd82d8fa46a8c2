package activity

import (
	"net/http"
	"time"

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

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/activity", h.List)
	admin.GET("/activity/export", h.Export)
}

func (h *Handler) List(c echo.Context) error {
	var f Filter
	if err := pagination.DecodeFilter(c, &f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid filter")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Export(c echo.Context) error {
	var f Filter
	if err := pagination.DecodeFilter(c, &f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid filter")
	}
	items, err := h.svc.ListAll(c.Request().Context(), f)
	if err != nil {
		return httperr.From(err)
	}
	return reporting.SendCSV(c, reporting.NewTable("activity_logs", csvHeader, items, csvRow), h.now())
}
