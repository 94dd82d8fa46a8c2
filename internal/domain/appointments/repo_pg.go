package appointments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/barangay172/portal/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const from = `appointments a
	JOIN users u ON u.id = a.user_id
	LEFT JOIN users cb ON cb.id = a.confirmed_by`

const cols = `a.id, a.user_id, u.full_name, a.service_type, a.appointment_date, a.status,
	COALESCE(a.notes, ''), a.confirmed_by, COALESCE(cb.full_name, ''), a.created_at, a.updated_at,
	a.archived_at, a.archived_by`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.UserID, &a.ResidentName, &a.ServiceType, &a.AppointmentDate, &a.Status,
		&a.Notes, &a.ConfirmedBy, &a.ConfirmedByName, &a.CreatedAt, &a.UpdatedAt,
		&a.ArchivedAt, &a.ArchivedBy)
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, user_id, service_type, appointment_date, status, notes)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		RETURNING created_at, updated_at`,
		a.ID, a.UserID, a.ServiceType, a.AppointmentDate, a.Status, a.Notes).Scan(&a.CreatedAt, &a.UpdatedAt)
	if db.IsForeignKeyViolation(err, "appointments_user_id_fkey") {
		return ErrUnknownResident
	}
	return err
}

func (r *repoPG) UserRole(ctx context.Context, id uuid.UUID) (string, error) {
	var role string
	err := r.conn(ctx).QueryRow(ctx, `SELECT role FROM users WHERE id = $1`, id).Scan(&role)
	return role, db.NotFound(err)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM `+from+` WHERE a.id = $1`, id))
	return a, db.NotFound(err)
}

func (r *repoPG) SetStatus(ctx context.Context, id uuid.UUID, fromStatuses []string, status string, date *time.Time, confirmedBy *uuid.UUID, notes string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET
			status = $3,
			appointment_date = COALESCE($4, appointment_date),
			confirmed_by = COALESCE($5, confirmed_by),
			notes = COALESCE(NULLIF($6, ''), notes),
			updated_at = NOW()
		WHERE id = $1 AND status = ANY($2) AND archived_at IS NULL`,
		id, fromStatuses, status, date, confirmedBy, notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (r *repoPG) Archive(ctx context.Context, id, by uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET archived_at = $2, archived_by = $3
		WHERE id = $1 AND archived_at IS NULL`, id, at, by)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyArchived
	}
	return nil
}

func (r *repoPG) Restore(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET archived_at = NULL, archived_by = NULL
		WHERE id = $1 AND archived_at IS NOT NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotArchived
	}
	return nil
}

func buildQuery(f Filter, archived bool) *db.SelectQuery {
	q := db.NewSelectQuery(from, cols).
		Archived("a.archived_at", archived).
		Search(f.Search, "u.full_name", "a.service_type", "a.notes").
		Eq("a.status", f.Status).
		OnDate("a.appointment_date", f.Date).
		Eq("a.user_id::text", f.UserID)
	if archived {
		return q.OrderBy("a.archived_at DESC")
	}
	return q.OrderBy("a.appointment_date DESC")
}

func (r *repoPG) List(ctx context.Context, f Filter, archived bool, limit, offset int) ([]*Appointment, int, error) {
	q := buildQuery(f, archived)
	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	items, err := r.collect(ctx, q.DataSQL(), q.DataArgs(limit, offset))
	return items, total, err
}

func (r *repoPG) ListAll(ctx context.Context, f Filter, archived bool) ([]*Appointment, error) {
	q := buildQuery(f, archived)
	return r.collect(ctx, q.AllSQL(), q.Args())
}

func (r *repoPG) collect(ctx context.Context, sql string, args []interface{}) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
