package db

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	BarangayKey contextKey = "barangay"
	DBConnKey   contextKey = "db_conn"
	DBTxKey     contextKey = "db_tx"
)

// BarangayHeader lets unauthenticated callers (login, registration) pick a barangay.
const BarangayHeader = "X-Barangay"

var barangayCodePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// SchemaName returns the PostgreSQL schema holding a barangay's tables.
func SchemaName(code string) string {
	return "barangay_" + strings.ToLower(code)
}

// ValidBarangayCode reports whether code is safe to embed in a schema name.
func ValidBarangayCode(code string) bool {
	return barangayCodePattern.MatchString(code)
}

// BarangayMiddleware acquires a connection for the request, points its
// search_path at the caller's barangay schema and stores it in the context.
func BarangayMiddleware(pool *pgxpool.Pool, defaultCode string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			code := extractBarangay(c, defaultCode)

			if !ValidBarangayCode(code) {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid barangay code")
			}

			ctx := c.Request().Context()
			conn, err := pool.Acquire(ctx)
			if err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
			}
			defer conn.Release()

			if err := setSearchPath(ctx, conn, code); err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "barangay resolution failed")
			}

			ctx = context.WithValue(ctx, BarangayKey, code)
			ctx = context.WithValue(ctx, DBConnKey, conn)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("barangay", code)

			return next(c)
		}
	}
}

func setSearchPath(ctx context.Context, conn *pgxpool.Conn, code string) error {
	schema := pgx.Identifier{SchemaName(code)}.Sanitize()
	_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s, public", schema))
	return err
}

func extractBarangay(c echo.Context, defaultCode string) string {
	// Signed token claim wins over anything the client sends.
	if code, ok := c.Get("jwt_barangay").(string); ok && code != "" {
		return code
	}
	if code := c.Request().Header.Get(BarangayHeader); code != "" {
		return code
	}
	if code := c.QueryParam("barangay"); code != "" {
		return code
	}
	return defaultCode
}

// WithBarangayConn acquires a pooled connection scoped to a barangay schema for
// work that runs outside an HTTP request (CLI commands, background workers).
// The returned release func must be called when done.
func WithBarangayConn(ctx context.Context, pool *pgxpool.Pool, code string) (context.Context, func(), error) {
	if !ValidBarangayCode(code) {
		return ctx, func() {}, fmt.Errorf("invalid barangay code: %s", code)
	}
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return ctx, func() {}, fmt.Errorf("acquire connection: %w", err)
	}
	if err := setSearchPath(ctx, conn, code); err != nil {
		conn.Release()
		return ctx, func() {}, fmt.Errorf("set search_path for %s: %w", code, err)
	}
	ctx = context.WithValue(ctx, BarangayKey, code)
	ctx = context.WithValue(ctx, DBConnKey, conn)
	return ctx, conn.Release, nil
}

// ConnFromContext retrieves the barangay-scoped database connection from context.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(DBConnKey).(*pgxpool.Conn)
	return conn
}

// BarangayFromContext retrieves the barangay code from context.
func BarangayFromContext(ctx context.Context) string {
	code, _ := ctx.Value(BarangayKey).(string)
	return code
}

// CreateBarangaySchema creates the schema for a barangay and runs all
// migrations against it. If migrationsDir is empty, migrations are skipped.
func CreateBarangaySchema(ctx context.Context, pool *pgxpool.Pool, code string, migrationsDir string) error {
	if !ValidBarangayCode(code) {
		return fmt.Errorf("invalid barangay code: %s", code)
	}

	schema := SchemaName(code)

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize())
	if err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}

	if migrationsDir != "" {
		migrator := NewMigrator(pool, migrationsDir)
		if _, err := migrator.Up(ctx, schema); err != nil {
			return fmt.Errorf("run migrations for %s: %w", schema, err)
		}
	}

	return nil
}

// ListBarangays returns the codes of every barangay schema in the database.
func ListBarangays(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	rows, err := pool.Query(ctx, `
		SELECT substring(schema_name FROM 10) FROM information_schema.schemata
		WHERE schema_name LIKE 'barangay\_%' ORDER BY schema_name`)
	if err != nil {
		return nil, fmt.Errorf("list barangay schemas: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}
