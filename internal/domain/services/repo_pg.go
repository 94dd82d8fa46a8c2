package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/barangay172/portal/internal/platform/db"
)

const nameConstraint = "services_kind_name_key"

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const cols = `id, kind, name, COALESCE(description, ''), COALESCE(service_type, ''), COALESCE(schedule, ''),
	COALESCE(requirements, ''), COALESCE(processing_time, ''), fee, status, created_by, created_at, updated_at`

func scanOffering(row pgx.Row) (*Offering, error) {
	var o Offering
	err := row.Scan(&o.ID, &o.Kind, &o.Name, &o.Description, &o.ServiceType, &o.Schedule,
		&o.Requirements, &o.ProcessingTime, &o.Fee, &o.Status, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	return &o, err
}

func (r *repoPG) Create(ctx context.Context, o *Offering) error {
	o.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO services (id, kind, name, description, service_type, schedule, requirements,
			processing_time, fee, status, created_by)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''),
			NULLIF($8, ''), $9, $10, $11)
		RETURNING created_at, updated_at`,
		o.ID, o.Kind, o.Name, o.Description, o.ServiceType, o.Schedule, o.Requirements,
		o.ProcessingTime, o.Fee, o.Status, o.CreatedBy).Scan(&o.CreatedAt, &o.UpdatedAt)
	if db.IsUniqueViolation(err, nameConstraint) {
		return ErrDuplicateName
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, kind string, id uuid.UUID) (*Offering, error) {
	o, err := scanOffering(r.conn(ctx).QueryRow(ctx,
		`SELECT `+cols+` FROM services WHERE id = $1 AND kind = $2`, id, kind))
	return o, db.NotFound(err)
}

func (r *repoPG) Update(ctx context.Context, o *Offering) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE services SET
			name = $3, description = NULLIF($4, ''), service_type = NULLIF($5, ''), schedule = NULLIF($6, ''),
			requirements = NULLIF($7, ''), processing_time = NULLIF($8, ''), fee = $9, status = $10,
			updated_at = NOW()
		WHERE id = $1 AND kind = $2
		RETURNING updated_at`,
		o.ID, o.Kind, o.Name, o.Description, o.ServiceType, o.Schedule,
		o.Requirements, o.ProcessingTime, o.Fee, o.Status).Scan(&o.UpdatedAt)
	if db.IsUniqueViolation(err, nameConstraint) {
		return ErrDuplicateName
	}
	return db.NotFound(err)
}

func (r *repoPG) Delete(ctx context.Context, kind string, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM services WHERE id = $1 AND kind = $2`, id, kind)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func buildQuery(kind string, f Filter) *db.SelectQuery {
	return db.NewSelectQuery("services", cols).
		Eq("kind", kind).
		Search(f.Search, "name", "description").
		Eq("status", f.Status).
		Eq("service_type", f.ServiceType).
		OrderBy("name ASC")
}

func (r *repoPG) List(ctx context.Context, kind string, f Filter, limit, offset int) ([]*Offering, int, error) {
	q := buildQuery(kind, f)
	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	items, err := r.collect(ctx, q.DataSQL(), q.DataArgs(limit, offset))
	return items, total, err
}

func (r *repoPG) ListAll(ctx context.Context, kind string, f Filter) ([]*Offering, error) {
	q := buildQuery(kind, f)
	return r.collect(ctx, q.AllSQL(), q.Args())
}

func (r *repoPG) collect(ctx context.Context, sql string, args []interface{}) ([]*Offering, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Offering
	for rows.Next() {
		o, err := scanOffering(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}
