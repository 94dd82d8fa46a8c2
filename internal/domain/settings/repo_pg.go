package settings

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

const cols = `key, value, type, grp, label, updated_by, updated_at`

func scanSetting(row pgx.Row) (*Setting, error) {
	var s Setting
	err := row.Scan(&s.Key, &s.Value, &s.Type, &s.Group, &s.Label, &s.UpdatedBy, &s.UpdatedAt)
	return &s, err
}

func (r *repoPG) Get(ctx context.Context, key string) (*Setting, error) {
	s, err := scanSetting(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM system_settings WHERE key = $1`, key))
	return s, db.NotFound(err)
}

func (r *repoPG) List(ctx context.Context, group string) ([]*Setting, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+cols+` FROM system_settings
		WHERE $1 = '' OR grp = $1
		ORDER BY grp, key`, group)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Setting
	for rows.Next() {
		s, err := scanSetting(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *repoPG) SetValue(ctx context.Context, key, value string, by uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE system_settings SET value = $2, updated_by = $3, updated_at = NOW()
		WHERE key = $1`, key, value, by)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}
