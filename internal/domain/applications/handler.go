package applications

import (
	"errors"
	"fmt"
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

func (h *Handler) RegisterRoutes(api *echo.Group) {
	all := api.Group("", auth.RequireRole(auth.RoleResident, auth.RoleBarangayHall))
	all.GET("/applications", h.List)
	all.GET("/applications/:id", h.Get)
	all.GET("/applications/:id/certificate", h.Certificate)

	resident := api.Group("", auth.RequireRole(auth.RoleResident))
	resident.POST("/applications", h.Submit)

	staff := api.Group("", auth.RequireRole(auth.RoleBarangayHall))
	staff.GET("/applications/export", h.Export)
	staff.PUT("/applications/:id/status", h.UpdateStatus)
}

func mapError(err error) error {
	if errors.Is(err, ErrNotApproved) {
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	}
	return httperr.From(err, ErrInvalidTransition)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) Submit(c echo.Context) error {
	var in SubmitInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.Submit(c.Request().Context(), in)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Certificate(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	cert, err := h.svc.Certificate(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	page, err := cert.Render()
	if err != nil {
		return mapError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`inline; filename="%s.html"`, cert.Reference))
	return c.HTMLBlob(http.StatusOK, page)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in StatusInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.UpdateStatus(c.Request().Context(), id, in)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) List(c echo.Context) error {
	var f Filter
	if err := pagination.DecodeFilter(c, &f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid filter")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return mapError(err)
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
		return mapError(err)
	}
	return reporting.SendCSV(c, reporting.NewTable("applications", csvHeader, items, csvRow), h.now())
}
