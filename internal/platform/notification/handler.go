package notification

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/barangay172/portal/internal/platform/auth"
	"github.com/barangay172/portal/internal/platform/db"
	"github.com/barangay172/portal/pkg/pagination"
)

type Handler struct {
	outbox *Outbox
}

func NewHandler(outbox *Outbox) *Handler {
	return &Handler{outbox: outbox}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/email-outbox", h.ListOutbox)
	admin.POST("/email-outbox/:id/retry", h.RetryOutbox)
	admin.POST("/email/test", h.SendTestEmail)
}

func (h *Handler) ListOutbox(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.outbox.List(c.Request().Context(), c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) RetryOutbox(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	e, err := h.outbox.Retry(c.Request().Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "email not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "email retry failed")
	}
	return c.JSON(http.StatusOK, e)
}

type testEmailRequest struct {
	Email string `json:"email"`
}

func (h *Handler) SendTestEmail(c echo.Context) error {
	var req testEmailRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	e, err := h.outbox.SendTest(c.Request().Context(), req.Email)
	if errors.Is(err, ErrInvalidRecipient) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid email address")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not queue test email")
	}
	return c.JSON(http.StatusAccepted, e)
}
