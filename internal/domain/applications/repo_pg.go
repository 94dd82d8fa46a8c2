package applications

import (
	"context"
	"errors"

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

const from = `applications a
	JOIN users u ON u.id = a.user_id
	LEFT JOIN services s ON s.id = a.service_id
	LEFT JOIN users pb ON pb.id = a.processed_by`

const cols = `a.id, a.reference_number, a.user_id, u.full_name, u.email, COALESCE(u.address, ''), a.service_id, COALESCE(s.name, ''),
	a.application_type, COALESCE(a.purpose, ''), a.status, a.fee, a.fee_paid, COALESCE(a.admin_notes, ''),
	a.processed_by, COALESCE(pb.full_name, ''), a.processed_at, a.created_at, a.updated_at`

func scanApplication(row pgx.Row) (*Application, error) {
	var a Application
	err := row.Scan(&a.ID, &a.ReferenceNumber, &a.UserID, &a.ResidentName, &a.ResidentEmail, &a.ResidentAddress, &a.ServiceID, &a.ServiceName,
		&a.ApplicationType, &a.Purpose, &a.Status, &a.Fee, &a.FeePaid, &a.AdminNotes,
		&a.ProcessedBy, &a.ProcessedByName, &a.ProcessedAt, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *Application) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO applications (id, reference_number, user_id, service_id, application_type, purpose, status, fee)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
		ON CONFLICT ON CONSTRAINT applications_reference_number_key DO NOTHING
		RETURNING created_at, updated_at`,
		a.ID, a.ReferenceNumber, a.UserID, a.ServiceID, a.ApplicationType, a.Purpose, a.Status, a.Fee,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicateRef
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Application, error) {
	a, err := scanApplication(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM `+from+` WHERE a.id = $1`, id))
	return a, db.NotFound(err)
}

func (r *repoPG) SetStatus(ctx context.Context, id uuid.UUID, c Change) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE applications SET
			status = $3,
			admin_notes = COALESCE(NULLIF($4, ''), admin_notes),
			fee = COALESCE($5, fee),
			fee_paid = COALESCE($6, fee_paid),
			processed_by = $7,
			processed_at = $8,
			updated_at = NOW()
		WHERE id = $1 AND status = ANY($2)`,
		id, c.From, c.Status, c.AdminNotes, c.Fee, c.FeePaid, c.ProcessedBy, c.ProcessedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func buildQuery(f Filter) *db.SelectQuery {
	return db.NewSelectQuery(from, cols).
		Search(f.Search, "a.reference_number", "u.full_name", "a.purpose").
		Eq("a.status", f.Status).
		Eq("a.application_type", f.ApplicationType).
		Eq("a.user_id::text", f.UserID).
		OrderBy("a.created_at DESC")
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Application, int, error) {
	q := buildQuery(f)
	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	items, err := r.collect(ctx, q.DataSQL(), q.DataArgs(limit, offset))
	return items, total, err
}

func (r *repoPG) ListAll(ctx context.Context, f Filter) ([]*Application, error) {
	q := buildQuery(f)
	return r.collect(ctx, q.AllSQL(), q.Args())
}

func (r *repoPG) collect(ctx context.Context, sql string, args []interface{}) ([]*Application, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
