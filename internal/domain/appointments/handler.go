package appointments

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

func (h *Handler) RegisterRoutes(api *echo.Group) {
	all := api.Group("", auth.RequireRole(auth.RoleResident, auth.RoleHealthCenter, auth.RoleHealthStaff))
	all.POST("/appointments", h.Request)
	all.GET("/appointments", h.List)
	all.GET("/appointments/:id", h.Get)
	all.POST("/appointments/:id/cancel", h.Cancel)

	staff := api.Group("", auth.RequireRole(auth.HealthRoles...))
	staff.GET("/appointments/archived", h.ListArchived)
	staff.GET("/appointments/export", h.Export)
	staff.POST("/appointments/:id/confirm", h.Confirm)
	staff.POST("/appointments/:id/complete", h.Complete)
	staff.POST("/appointments/:id/no-show", h.MarkNoShow)
	staff.POST("/appointments/:id/archive", h.Archive)
	staff.POST("/appointments/:id/restore", h.Restore)
}

func mapError(err error) error {
	if errors.Is(err, ErrUnknownResident) || errors.Is(err, ErrNotResident) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return httperr.From(err, ErrInvalidTransition, ErrAlreadyArchived, ErrNotArchived)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) Request(c echo.Context) error {
	var in RequestInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.Request(c.Request().Context(), in)
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

// Export downloads the active list, or the archive with ?archived=true.
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
	name := "appointments"
	if archived {
		name = "archived_appointments"
	}
	return reporting.SendCSV(c, reporting.NewTable(name, csvHeader, items, csvRow), h.now())
}

func (h *Handler) Confirm(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in ConfirmInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.Confirm(c.Request().Context(), id, in)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, a)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req cancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.Cancel(c.Request().Context(), id, req.Reason)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) action(c echo.Context, fn func(ctx echo.Context, id uuid.UUID) (*Appointment, error)) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := fn(c, id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Complete(c echo.Context) error {
	return h.action(c, func(c echo.Context, id uuid.UUID) (*Appointment, error) {
		return h.svc.Complete(c.Request().Context(), id)
	})
}

func (h *Handler) MarkNoShow(c echo.Context) error {
	return h.action(c, func(c echo.Context, id uuid.UUID) (*Appointment, error) {
		return h.svc.MarkNoShow(c.Request().Context(), id)
	})
}

func (h *Handler) Archive(c echo.Context) error {
	return h.action(c, func(c echo.Context, id uuid.UUID) (*Appointment, error) {
		return h.svc.Archive(c.Request().Context(), id)
	})
}

func (h *Handler) Restore(c echo.Context) error {
	return h.action(c, func(c echo.Context, id uuid.UUID) (*Appointment, error) {
		return h.svc.Restore(c.Request().Context(), id)
	})
}
