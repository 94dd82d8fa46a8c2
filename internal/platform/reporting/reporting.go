package reporting

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/barangay172/portal/internal/platform/auth"
	"github.com/barangay172/portal/internal/platform/db"
)

// MeasureDefinition defines a dashboard measure with its SQL query.
type MeasureDefinition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	SQL         string `json:"-"`
}

// MeasureReport holds the results of evaluating a measure.
type MeasureReport struct {
	MeasureID   string                   `json:"measure_id"`
	MeasureName string                   `json:"measure_name"`
	GeneratedAt time.Time                `json:"generated_at"`
	Results     []map[string]interface{} `json:"results"`
}

// PredefinedMeasures is the list of dashboard measures. Archived rows are
// excluded everywhere.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          "users-by-role",
		Name:        "Users by Role",
		Description: "Number of accounts per role and status",
		SQL:         `SELECT role, status, COUNT(*) AS total FROM users GROUP BY role, status ORDER BY role, status`,
	},
	{
		ID:          "new-users-30d",
		Name:        "New Users (30 days)",
		Description: "Accounts created in the last 30 days, by role",
		SQL:         `SELECT role, COUNT(*) AS total FROM users WHERE created_at >= NOW() - INTERVAL '30 days' GROUP BY role ORDER BY total DESC`,
	},
	{
		ID:          "appointments-by-status",
		Name:        "Appointments by Status",
		Description: "Active appointments grouped by status",
		SQL:         `SELECT status, COUNT(*) AS total FROM appointments WHERE archived_at IS NULL GROUP BY status ORDER BY total DESC`,
	},
	{
		ID:          "registrations-by-status",
		Name:        "Patient Registrations by Status",
		Description: "Active patient registrations grouped by status",
		SQL:         `SELECT status, COUNT(*) AS total FROM patient_registrations WHERE archived_at IS NULL GROUP BY status ORDER BY total DESC`,
	},
	{
		ID:          "applications-by-status",
		Name:        "Applications by Status",
		Description: "Barangay hall document applications grouped by status",
		SQL:         `SELECT status, COUNT(*) AS total FROM applications GROUP BY status ORDER BY total DESC`,
	},
	{
		ID:          "concerns-by-status",
		Name:        "Concerns by Status",
		Description: "Community concerns grouped by status",
		SQL:         `SELECT status, COUNT(*) AS total FROM concerns GROUP BY status ORDER BY total DESC`,
	},
}

// Handler provides HTTP handlers for the reporting API.
type Handler struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
	now    func() time.Time
}

func NewHandler(pool *pgxpool.Pool, logger zerolog.Logger) *Handler {
	return &Handler{pool: pool, logger: logger, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	reportGroup := api.Group("/reports", auth.RequireRole(auth.RoleAdmin))
	reportGroup.GET("/measures", h.ListMeasures)
	reportGroup.GET("/measures/:id/evaluate", h.EvaluateMeasure)
	reportGroup.GET("/dashboard", h.Dashboard)
}

func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, PredefinedMeasures)
}

// EvaluateMeasure executes a measure's SQL and returns the results.
func (h *Handler) EvaluateMeasure(c echo.Context) error {
	measure := FindMeasure(c.Param("id"))
	if measure == nil {
		return echo.NewHTTPError(http.StatusNotFound, "measure not found")
	}

	report, err := h.evaluate(c.Request().Context(), measure)
	if err != nil {
		h.logger.Error().Err(err).Str("measure", measure.ID).Msg("evaluate measure")
		return echo.NewHTTPError(http.StatusInternalServerError, "report query failed")
	}
	return c.JSON(http.StatusOK, report)
}

// Dashboard evaluates every predefined measure.
func (h *Handler) Dashboard(c echo.Context) error {
	ctx := c.Request().Context()
	reports := make(map[string]*MeasureReport, len(PredefinedMeasures))
	for i := range PredefinedMeasures {
		m := &PredefinedMeasures[i]
		report, err := h.evaluate(ctx, m)
		if err != nil {
			h.logger.Error().Err(err).Str("measure", m.ID).Msg("evaluate measure")
			return echo.NewHTTPError(http.StatusInternalServerError, "report query failed")
		}
		reports[m.ID] = report
	}
	return c.JSON(http.StatusOK, reports)
}

func (h *Handler) evaluate(ctx context.Context, m *MeasureDefinition) (*MeasureReport, error) {
	results, err := h.executeSQL(ctx, m.SQL)
	if err != nil {
		return nil, err
	}
	return &MeasureReport{
		MeasureID:   m.ID,
		MeasureName: m.Name,
		GeneratedAt: h.now().UTC(),
		Results:     results,
	}, nil
}

// executeSQL runs a query on the request's barangay connection and returns
// rows as maps keyed by column name.
func (h *Handler) executeSQL(ctx context.Context, sql string) ([]map[string]interface{}, error) {
	rows, err := db.Conn(ctx, h.pool).Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	results := []map[string]interface{}{}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(fieldDescs))
		for i, fd := range fieldDescs {
			row[string(fd.Name)] = values[i]
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// FindMeasure looks up a measure by ID.
func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}
