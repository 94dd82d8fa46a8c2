package concerns

import (
	"net/http"

	"github.com/google/uuid"
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
	all := api.Group("", auth.RequireRole(auth.RoleResident, auth.RoleBarangayHall))
	all.GET("/concerns", h.List)
	all.GET("/concerns/:id", h.Get)

	api.POST("/concerns", h.Report, auth.RequireRole(auth.RoleResident))
	api.PUT("/concerns/:id/status", h.Respond, auth.RequireRole(auth.RoleBarangayHall))
}

func mapError(err error) error {
	return httperr.From(err, ErrInvalidTransition)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) Report(c echo.Context) error {
	var in ReportInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	concern, err := h.svc.Report(c.Request().Context(), in)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, concern)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	concern, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, concern)
}

func (h *Handler) Respond(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in RespondInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	concern, err := h.svc.Respond(c.Request().Context(), id, in)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, concern)
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
