package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/barangay172/portal/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Env:                 "development",
		DefaultBarangay:     "172",
		JWTSecret:           "test-signing-secret",
		TokenTTL:            time.Hour,
		CORSOrigins:         []string{"http://localhost:3000"},
		RateLimitRPS:        100,
		RateLimitBurst:      100,
		BarangayName:        "Barangay 172 Urduja",
		UploadsDir:          t.TempDir(),
		SystemURL:           "http://localhost:8000",
		SMTPFromName:        "Barangay Portal",
		OutboxKey:           "6465762d6f6e6c792d6f7574626f782d6b65792d6e6f742d666f722d70726f64",
		OutboxRetrySchedule: "@every 5m",
		OutboxMaxAttempts:   3,
		OutboxBatchSize:     10,
	}
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	cfg := testConfig(t)
	a, err := buildApp(cfg, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	return newServer(cfg, nil, a, zerolog.Nop())
}

func TestBuildApp_BadOutboxKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.OutboxKey = "abc"
	if _, err := buildApp(cfg, nil, zerolog.Nop()); err == nil {
		t.Fatal("expected error for short outbox key")
	}
}

func TestBuildApp_UploadsDirIsAFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.UploadsDir = filepath.Join(t.TempDir(), "uploads")
	if err := os.WriteFile(cfg.UploadsDir, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := buildApp(cfg, nil, zerolog.Nop()); err == nil {
		t.Fatal("expected error when the uploads dir cannot be created")
	}
}

func TestNewServer_Routes(t *testing.T) {
	cfg := testConfig(t)
	a, err := buildApp(cfg, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	e := newServer(cfg, nil, a, zerolog.Nop())

	registered := make(map[string]bool)
	for _, r := range e.Routes() {
		registered[r.Method+" "+r.Path] = true
	}

	want := []string{
		"GET /health",
		"GET /health/db",
		"POST /api/v1/auth/login",
		"POST /api/v1/auth/register",
		"GET /api/v1/users/export",
		"POST /api/v1/users/me/documents",
		"GET /api/v1/users/me/documents/:kind",
		"POST /api/v1/users/:id/verify",
		"GET /api/v1/users/:id/documents/:kind",
		"POST /api/v1/appointments/:id/confirm",
		"POST /api/v1/patient-registrations/:id/approve",
		"GET /api/v1/medical-records",
		"GET /api/v1/patients/:user_id/medical-records",
		"GET /api/v1/health-services/export",
		"PUT /api/v1/barangay-services/:id",
		"GET /api/v1/services/public",
		"GET /api/v1/settings/public",
		"PUT /api/v1/settings/:key",
		"POST /api/v1/applications",
		"PUT /api/v1/applications/:id/status",
		"GET /api/v1/applications/:id/certificate",
		"PUT /api/v1/concerns/:id/status",
		"GET /api/v1/activity/export",
		"GET /api/v1/notifications/unread-count",
		"GET /api/v1/badges",
		"POST /api/v1/email-outbox/:id/retry",
		"GET /api/v1/reports/dashboard",
	}
	for _, route := range want {
		if !registered[route] {
			t.Errorf("route %q not registered", route)
		}
	}
}

func TestHealth(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Request-ID"); got == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	h := newTestServer(t)

	for _, path := range []string{"/api/v1/appointments", "/api/v1/settings", "/api/v1/notifications"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, rec.Code)
		}
	}
}

func TestProtectedRouteRejectsForeignToken(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
