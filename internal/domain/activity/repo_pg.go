package activity

import (
	"context"

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

const cols = `id, action_type, action_description, COALESCE(target_type, ''), target_id,
	COALESCE(target_name, ''), performed_by, COALESCE(performed_by_name, ''),
	COALESCE(ip_address, ''), COALESCE(user_agent, ''), created_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.ActionType, &e.Description, &e.TargetType, &e.TargetID,
		&e.TargetName, &e.PerformedBy, &e.PerformedByName, &e.IPAddress, &e.UserAgent, &e.CreatedAt)
	return &e, err
}

func (r *repoPG) Create(ctx context.Context, e *Entry) error {
	e.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO activity_logs (id, action_type, action_description, target_type, target_id,
			target_name, performed_by, performed_by_name, ip_address, user_agent)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), $7, NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''))
		RETURNING created_at`,
		e.ID, e.ActionType, e.Description, e.TargetType, e.TargetID,
		e.TargetName, e.PerformedBy, e.PerformedByName, e.IPAddress, e.UserAgent).Scan(&e.CreatedAt)
}

func buildQuery(f Filter) *db.SelectQuery {
	return db.NewSelectQuery("activity_logs", cols).
		Eq("action_type", f.ActionType).
		Eq("target_type", f.TargetType).
		Eq("performed_by::text", f.PerformedBy).
		Search(f.Search, "action_description", "target_name", "performed_by_name").
		Between("created_at", f.DateFrom, f.DateTo).
		OrderBy("created_at DESC")
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	q := buildQuery(f)
	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	items, err := r.collect(ctx, q.DataSQL(), q.DataArgs(limit, offset))
	return items, total, err
}

func (r *repoPG) ListAll(ctx context.Context, f Filter) ([]*Entry, error) {
	q := buildQuery(f)
	return r.collect(ctx, q.AllSQL(), q.Args())
}

func (r *repoPG) collect(ctx context.Context, sql string, args []interface{}) ([]*Entry, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
