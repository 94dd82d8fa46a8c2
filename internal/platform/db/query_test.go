package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestSelectQuery_Filters(t *testing.T) {
	q := NewSelectQuery("users", "id, username").
		Search("juan", "username", "full_name", "email").
		Eq("role", "resident").
		Eq("status", "").
		OrderBy("created_at DESC")

	wantCount := "SELECT COUNT(*) FROM users WHERE 1=1 AND (username ILIKE $1 OR full_name ILIKE $1 OR email ILIKE $1) AND role = $2"
	if got := q.CountSQL(); got != wantCount {
		t.Errorf("CountSQL:\n got %s\nwant %s", got, wantCount)
	}

	wantData := "SELECT id, username FROM users WHERE 1=1 AND (username ILIKE $1 OR full_name ILIKE $1 OR email ILIKE $1) AND role = $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4"
	if got := q.DataSQL(); got != wantData {
		t.Errorf("DataSQL:\n got %s\nwant %s", got, wantData)
	}

	args := q.DataArgs(10, 20)
	if len(args) != 4 {
		t.Fatalf("expected 4 args, got %d", len(args))
	}
	if args[0] != "%juan%" || args[1] != "resident" || args[2] != 10 || args[3] != 20 {
		t.Errorf("unexpected args %v", args)
	}
}

func TestSelectQuery_ArchivedAndDates(t *testing.T) {
	q := NewSelectQuery("appointments a", "a.id").
		Archived("a.archived_at", true).
		OnDate("a.appointment_date", "2024-05-01").
		Between("a.created_at", "2024-01-01", "")

	want := "SELECT COUNT(*) FROM appointments a WHERE 1=1 AND a.archived_at IS NOT NULL AND a.appointment_date::date = $1::date AND a.created_at::date >= $2::date"
	if got := q.CountSQL(); got != want {
		t.Errorf("CountSQL:\n got %s\nwant %s", got, want)
	}
	if len(q.Args()) != 2 {
		t.Errorf("expected 2 args, got %d", len(q.Args()))
	}

	active := NewSelectQuery("appointments", "id").Archived("archived_at", false)
	if got := active.AllSQL(); got != "SELECT id FROM appointments WHERE 1=1 AND archived_at IS NULL" {
		t.Errorf("unexpected active query %s", got)
	}
}

func TestSelectQuery_SearchEscapesWildcards(t *testing.T) {
	q := NewSelectQuery("users", "id").Search("50%_off", "username")
	if got := q.Args()[0]; got != `%50\%\_off%` {
		t.Errorf("expected escaped pattern, got %v", got)
	}

	blank := NewSelectQuery("users", "id").Search("   ", "username")
	if len(blank.Args()) != 0 {
		t.Error("blank search should add no clause")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"}
	wrapped := fmt.Errorf("insert user: %w", dup)

	if !IsUniqueViolation(wrapped, "") {
		t.Error("expected wrapped unique violation to match")
	}
	if !IsUniqueViolation(dup, "users_email_key") {
		t.Error("expected constraint match")
	}
	if IsUniqueViolation(dup, "users_username_key") {
		t.Error("expected constraint mismatch")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Error("foreign key violation is not a unique violation")
	}
	if IsUniqueViolation(errors.New("boom"), "") {
		t.Error("plain error is not a unique violation")
	}
}

func TestIsForeignKeyViolation(t *testing.T) {
	fk := &pgconn.PgError{Code: "23503", ConstraintName: "medical_records_user_id_fkey"}
	if !IsForeignKeyViolation(fmt.Errorf("insert: %w", fk), "medical_records_user_id_fkey") {
		t.Error("expected wrapped foreign key violation to match")
	}
	if IsForeignKeyViolation(fk, "medical_records_appointment_id_fkey") {
		t.Error("expected constraint mismatch")
	}
	if IsForeignKeyViolation(&pgconn.PgError{Code: "23505"}, "") {
		t.Error("unique violation is not a foreign key violation")
	}
}

func TestNotFound(t *testing.T) {
	if !errors.Is(NotFound(pgx.ErrNoRows), ErrNotFound) {
		t.Error("expected ErrNoRows to map to ErrNotFound")
	}
	other := errors.New("other")
	if NotFound(other) != other {
		t.Error("expected other errors to pass through")
	}
	if NotFound(nil) != nil {
		t.Error("expected nil to stay nil")
	}
}
