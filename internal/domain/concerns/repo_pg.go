package concerns

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

const from = `concerns c
	JOIN users u ON u.id = c.user_id
	LEFT JOIN users rb ON rb.id = c.responded_by`

const cols = `c.id, c.user_id, u.full_name, c.concern_type, c.title, c.description, COALESCE(c.location, ''),
	c.priority, c.status, COALESCE(c.admin_response, ''), c.responded_by, COALESCE(rb.full_name, ''),
	c.resolved_at, c.created_at, c.updated_at`

func scanConcern(row pgx.Row) (*Concern, error) {
	var c Concern
	err := row.Scan(&c.ID, &c.UserID, &c.ResidentName, &c.ConcernType, &c.Title, &c.Description, &c.Location,
		&c.Priority, &c.Status, &c.AdminResponse, &c.RespondedBy, &c.RespondedByName,
		&c.ResolvedAt, &c.CreatedAt, &c.UpdatedAt)
	return &c, err
}

func (r *repoPG) Create(ctx context.Context, c *Concern) error {
	c.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO concerns (id, user_id, concern_type, title, description, location, priority, status)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
		RETURNING created_at, updated_at`,
		c.ID, c.UserID, c.ConcernType, c.Title, c.Description, c.Location, c.Priority, c.Status,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Concern, error) {
	c, err := scanConcern(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM `+from+` WHERE c.id = $1`, id))
	return c, db.NotFound(err)
}

func (r *repoPG) SetStatus(ctx context.Context, id uuid.UUID, ch Change) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE concerns SET
			status = $3,
			admin_response = COALESCE(NULLIF($4, ''), admin_response),
			priority = COALESCE(NULLIF($5, ''), priority),
			responded_by = $6,
			resolved_at = COALESCE($7, resolved_at),
			updated_at = NOW()
		WHERE id = $1 AND status = ANY($2)`,
		id, ch.From, ch.Status, ch.AdminResponse, ch.Priority, ch.RespondedBy, ch.ResolvedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Concern, int, error) {
	q := db.NewSelectQuery(from, cols).
		Search(f.Search, "c.title", "c.description", "c.location", "u.full_name").
		Eq("c.status", f.Status).
		Eq("c.concern_type", f.ConcernType).
		Eq("c.priority", f.Priority).
		Eq("c.user_id::text", f.UserID).
		OrderBy("c.created_at DESC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Concern
	for rows.Next() {
		c, err := scanConcern(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}
