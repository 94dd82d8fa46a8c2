package users

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/barangay172/portal/internal/platform/auth"
	"github.com/barangay172/portal/internal/platform/blobstore"
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
	api.POST("/auth/login", h.Login)
	api.POST("/auth/register", h.Register)
	api.GET("/auth/me", h.Me)
	api.POST("/auth/password", h.ChangePassword)
	api.PUT("/profile", h.UpdateProfile)
	api.POST("/users/me/documents", h.UploadDocuments, auth.RequireRole(auth.RoleResident))
	api.GET("/users/me/documents/:kind", h.OwnDocument, auth.RequireRole(auth.RoleResident))

	staff := api.Group("", auth.RequireRole(auth.RoleBarangayHall))
	staff.GET("/users", h.List)
	staff.GET("/users/:id", h.Get)
	staff.PUT("/users/:id/status", h.UpdateStatus)
	staff.POST("/users/:id/verify", h.Verify)
	staff.GET("/users/:id/documents/:kind", h.Document)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/users", h.CreateStaff)
	admin.GET("/users/export", h.Export)
	admin.PUT("/users/:id/role", h.UpdateRole)
	admin.DELETE("/users/:id", h.Delete)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrProtectedAccount):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotResident):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, blobstore.ErrFileTooLarge), errors.Is(err, blobstore.ErrInvalidContentType),
		errors.Is(err, blobstore.ErrMissingFileName):
		return blobstore.UploadError(err)
	}
	return httperr.From(err, ErrDuplicateEmail, ErrAlreadyVerified)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func principal(c echo.Context) (auth.Principal, error) {
	p, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return p, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return p, nil
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	login := req.Username
	if login == "" {
		login = req.Email
	}
	res, err := h.svc.Login(c.Request().Context(), login, req.Password)
	switch {
	case errors.Is(err, ErrInvalidLogin):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrInactiveAccount):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case err != nil:
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.RegisterResident(c.Request().Context(), req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) Me(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	u, err := h.svc.Get(c.Request().Context(), p.UserID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, meResponse{User: u, Documents: u.Documents(h.now())})
}

// meResponse adds the document deadline status for residents.
type meResponse struct {
	*User
	Documents *DocumentStatus `json:"documents,omitempty"`
}

// formUpload returns nil when the form has no file under field.
func formUpload(c echo.Context, field string) (*Upload, func(), error) {
	fh, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, func() {}, echo.NewHTTPError(http.StatusBadRequest, "invalid multipart form")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, func() {}, err
	}
	return &Upload{FileName: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Body: f}, func() { f.Close() }, nil
}

func (h *Handler) UploadDocuments(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var in DocumentUploads
	for field, dst := range map[string]**Upload{DocPurokEndorsement: &in.PurokEndorsement, DocValidID: &in.ValidID} {
		up, closeFn, err := formUpload(c, field)
		if err != nil {
			return err
		}
		defer closeFn()
		*dst = up
	}
	u, err := h.svc.UploadDocuments(c.Request().Context(), p.UserID, in)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, meResponse{User: u, Documents: u.Documents(h.now())})
}

func (h *Handler) OwnDocument(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	rc, meta, err := h.svc.Document(c.Request().Context(), p.UserID, c.Param("kind"))
	if err != nil {
		return mapError(err)
	}
	return blobstore.Serve(c, rc, meta)
}

func (h *Handler) Document(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rc, meta, err := h.svc.Document(c.Request().Context(), id, c.Param("kind"))
	if err != nil {
		return mapError(err)
	}
	return blobstore.Serve(c, rc, meta)
}

func (h *Handler) Verify(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	u, err := h.svc.Verify(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, u)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handler) ChangePassword(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.ChangePassword(c.Request().Context(), p.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var upd ProfileUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	u, err := h.svc.UpdateProfile(c.Request().Context(), p.UserID, upd)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) CreateStaff(c echo.Context) error {
	var req CreateStaffRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.CreateStaff(c.Request().Context(), req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	u, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, u)
}

// staffFilter keeps barangay hall staff to the resident list.
func staffFilter(c echo.Context) (Filter, error) {
	var f Filter
	if err := pagination.DecodeFilter(c, &f); err != nil {
		return f, echo.NewHTTPError(http.StatusBadRequest, "invalid filter")
	}
	if auth.RoleFromContext(c.Request().Context()) == auth.RoleBarangayHall {
		f.Role = auth.RoleResident
	}
	return f, nil
}

func (h *Handler) List(c echo.Context) error {
	f, err := staffFilter(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Export(c echo.Context) error {
	f, err := staffFilter(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListAll(c.Request().Context(), f)
	if err != nil {
		return mapError(err)
	}
	return reporting.SendCSV(c, reporting.NewTable("users", csvHeader, items, csvRow), h.now())
}

type roleRequest struct {
	Role string `json:"role"`
}

func (h *Handler) UpdateRole(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req roleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	u, err := h.svc.UpdateRole(c.Request().Context(), id, req.Role)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, u)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	u, err := h.svc.UpdateStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
