package patients

import (
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
	resident := api.Group("", auth.RequireRole(auth.RoleResident))
	resident.POST("/patient-registrations", h.Submit)
	resident.GET("/patient-registrations/mine", h.MyStatus)

	staff := api.Group("", auth.RequireRole(auth.HealthRoles...))
	staff.GET("/patient-registrations", h.List)
	staff.GET("/patient-registrations/archived", h.ListArchived)
	staff.GET("/patient-registrations/export", h.Export)
	staff.GET("/patient-registrations/:id", h.Get)
	staff.POST("/patient-registrations/:id/approve", h.Approve)
	staff.POST("/patient-registrations/:id/reject", h.Reject)
	staff.POST("/patient-registrations/:id/archive", h.Archive)
	staff.POST("/patient-registrations/:id/restore", h.Restore)
}

func mapError(err error) error {
	return httperr.From(err, ErrOpenRegistration, ErrInvalidTransition, ErrAlreadyArchived, ErrNotArchived)
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
	reg, err := h.svc.Submit(c.Request().Context(), in)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, reg)
}

func (h *Handler) MyStatus(c echo.Context) error {
	reg, err := h.svc.MyStatus(c.Request().Context())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, reg)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	reg, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, reg)
}

func (h *Handler) list(c echo.Context, archived bool) error {
	var f Filter
	if err := pagination.DecodeFilter(c, &f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid filter")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), f, archived, pg.Limit, pg.Offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) List(c echo.Context) error         { return h.list(c, false) }
func (h *Handler) ListArchived(c echo.Context) error { return h.list(c, true) }

func (h *Handler) Export(c echo.Context) error {
	var f Filter
	if err := pagination.DecodeFilter(c, &f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid filter")
	}
	archived := c.QueryParam("archived") == "true"
	items, err := h.svc.ListAll(c.Request().Context(), f, archived)
	if err != nil {
		return mapError(err)
	}
	name := "patient_registrations"
	if archived {
		name = "archived_patient_registrations"
	}
	return reporting.SendCSV(c, reporting.NewTable(name, csvHeader, items, csvRow), h.now())
}

func (h *Handler) review(c echo.Context, fn func(c echo.Context, id uuid.UUID, in ReviewInput) (*Registration, error)) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in ReviewInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	reg, err := fn(c, id, in)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, reg)
}

func (h *Handler) Approve(c echo.Context) error {
	return h.review(c, func(c echo.Context, id uuid.UUID, in ReviewInput) (*Registration, error) {
		return h.svc.Approve(c.Request().Context(), id, in)
	})
}

func (h *Handler) Reject(c echo.Context) error {
	return h.review(c, func(c echo.Context, id uuid.UUID, in ReviewInput) (*Registration, error) {
		return h.svc.Reject(c.Request().Context(), id, in)
	})
}

func (h *Handler) Archive(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	reg, err := h.svc.Archive(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, reg)
}

func (h *Handler) Restore(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	reg, err := h.svc.Restore(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, reg)
}
