package patients

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

const from = `patient_registrations p
	JOIN users u ON u.id = p.user_id
	LEFT JOIN users ab ON ab.id = p.approved_by`

const cols = `p.id, p.user_id, u.full_name, u.email, COALESCE(p.blood_type, ''),
	COALESCE(p.emergency_contact, ''), COALESCE(p.medical_history, ''), p.status,
	COALESCE(p.staff_notes, ''), p.approved_by, COALESCE(ab.full_name, ''), p.approved_at,
	p.created_at, p.updated_at, p.archived_at, p.archived_by`

func scanRegistration(row pgx.Row) (*Registration, error) {
	var r Registration
	err := row.Scan(&r.ID, &r.UserID, &r.PatientName, &r.PatientEmail, &r.BloodType,
		&r.EmergencyContact, &r.MedicalHistory, &r.Status,
		&r.StaffNotes, &r.ApprovedBy, &r.ApprovedByName, &r.ApprovedAt,
		&r.CreatedAt, &r.UpdatedAt, &r.ArchivedAt, &r.ArchivedBy)
	return &r, err
}

func (r *repoPG) Create(ctx context.Context, reg *Registration) error {
	reg.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient_registrations (id, user_id, blood_type, emergency_contact, medical_history, status)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6)
		RETURNING created_at, updated_at`,
		reg.ID, reg.UserID, reg.BloodType, reg.EmergencyContact, reg.MedicalHistory, reg.Status,
	).Scan(&reg.CreatedAt, &reg.UpdatedAt)
	if db.IsUniqueViolation(err, "patient_registrations_open_key") {
		return ErrOpenRegistration
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Registration, error) {
	reg, err := scanRegistration(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM `+from+` WHERE p.id = $1`, id))
	return reg, db.NotFound(err)
}

func (r *repoPG) LatestByUser(ctx context.Context, userID uuid.UUID) (*Registration, error) {
	reg, err := scanRegistration(r.conn(ctx).QueryRow(ctx, `
		SELECT `+cols+` FROM `+from+`
		WHERE p.user_id = $1 AND p.archived_at IS NULL
		ORDER BY p.created_at DESC LIMIT 1`, userID))
	return reg, db.NotFound(err)
}

func (r *repoPG) HasOpen(ctx context.Context, userID uuid.UUID) (bool, error) {
	var open bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM patient_registrations
			WHERE user_id = $1 AND archived_at IS NULL AND status IN ('pending', 'approved'))`,
		userID).Scan(&open)
	return open, err
}

func (r *repoPG) Review(ctx context.Context, id uuid.UUID, status, notes string, by uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient_registrations
		SET status = $2, staff_notes = NULLIF($3, ''), approved_by = $4, approved_at = $5, updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND archived_at IS NULL`,
		id, status, notes, by, at)
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
		UPDATE patient_registrations SET archived_at = $2, archived_by = $3
		WHERE id = $1 AND archived_at IS NULL`, id, at, by)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyArchived
	}
	return nil
}

// Restore fails with ErrOpenRegistration if the user opened a new
// registration while this one was archived.
func (r *repoPG) Restore(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient_registrations SET archived_at = NULL, archived_by = NULL
		WHERE id = $1 AND archived_at IS NOT NULL`, id)
	if db.IsUniqueViolation(err, "patient_registrations_open_key") {
		return ErrOpenRegistration
	}
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
		Archived("p.archived_at", archived).
		Search(f.Search, "u.full_name", "u.email", "p.blood_type", "p.emergency_contact").
		Eq("p.status", f.Status)
	if archived {
		return q.OrderBy("p.archived_at DESC")
	}
	return q.OrderBy("p.created_at DESC")
}

func (r *repoPG) List(ctx context.Context, f Filter, archived bool, limit, offset int) ([]*Registration, int, error) {
	q := buildQuery(f, archived)
	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	items, err := r.collect(ctx, q.DataSQL(), q.DataArgs(limit, offset))
	return items, total, err
}

func (r *repoPG) ListAll(ctx context.Context, f Filter, archived bool) ([]*Registration, error) {
	q := buildQuery(f, archived)
	return r.collect(ctx, q.AllSQL(), q.Args())
}

func (r *repoPG) collect(ctx context.Context, sql string, args []interface{}) ([]*Registration, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, reg)
	}
	return items, rows.Err()
}
