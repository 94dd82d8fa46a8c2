package inbox

import (
	"context"
	"fmt"
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

const cols = `id, user_id, kind, reference_id, COALESCE(status, ''), message, is_read, created_at`

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.UserID, &n.Kind, &n.ReferenceID, &n.Status, &n.Message, &n.IsRead, &n.CreatedAt)
	return &n, err
}

func (r *repoPG) Create(ctx context.Context, n *Notification) error {
	n.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO notifications (id, user_id, kind, reference_id, status, message)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		RETURNING created_at`,
		n.ID, n.UserID, n.Kind, n.ReferenceID, n.Status, n.Message).Scan(&n.CreatedAt)
}

func (r *repoPG) ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	q := db.NewSelectQuery("notifications", cols)
	q.Add(fmt.Sprintf("user_id = $%d", q.Idx()), userID)
	if unreadOnly {
		q.Add("NOT is_read")
	}
	q.OrderBy("created_at DESC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, n)
	}
	return items, total, rows.Err()
}

func (r *repoPG) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID).Scan(&n)
	return n, err
}

func (r *repoPG) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *repoPG) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND NOT is_read`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) LastViewed(ctx context.Context, userID uuid.UUID) (map[string]time.Time, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT module, last_viewed_at FROM module_views WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	views := make(map[string]time.Time)
	for rows.Next() {
		var module string
		var at time.Time
		if err := rows.Scan(&module, &at); err != nil {
			return nil, err
		}
		views[module] = at
	}
	return views, rows.Err()
}

func (r *repoPG) MarkViewed(ctx context.Context, userID uuid.UUID, module string, at time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO module_views (user_id, module, last_viewed_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, module) DO UPDATE SET last_viewed_at = EXCLUDED.last_viewed_at`,
		userID, module, at)
	return err
}

// Staff queries take $1 = since; resident queries take $1 = since, $2 = user id.
var badgeSQL = map[string]map[string]string{
	scopeStaff: {
		ModulePatients: `SELECT COUNT(*) FROM patient_registrations
			WHERE archived_at IS NULL AND status = 'pending' AND created_at > $1`,
		ModuleAppointments: `SELECT COUNT(*) FROM appointments
			WHERE archived_at IS NULL AND status = 'scheduled' AND created_at > $1`,
		ModuleConcerns:     `SELECT COUNT(*) FROM concerns WHERE status = 'reported' AND created_at > $1`,
		ModuleApplications: `SELECT COUNT(*) FROM applications WHERE status = 'pending' AND created_at > $1`,
		ModuleResidents: `SELECT COUNT(*) FROM users
			WHERE role = 'resident' AND status = 'pending' AND created_at > $1`,
	},
	scopeResident: {
		ModuleAppointments: `SELECT COUNT(*) FROM appointments
			WHERE user_id = $2 AND archived_at IS NULL AND updated_at > created_at AND updated_at > $1`,
		ModuleApplications: `SELECT COUNT(*) FROM applications
			WHERE user_id = $2 AND updated_at > created_at AND updated_at > $1`,
		ModuleConcerns: `SELECT COUNT(*) FROM concerns
			WHERE user_id = $2 AND updated_at > created_at AND updated_at > $1`,
	},
}

func (r *repoPG) CountBadge(ctx context.Context, scope, module string, userID uuid.UUID, since time.Time) (int, error) {
	sql, ok := badgeSQL[scope][module]
	if !ok {
		return 0, fmt.Errorf("no badge for %s/%s", scope, module)
	}
	args := []interface{}{since}
	if scope == scopeResident {
		args = append(args, userID)
	}
	var n int
	err := r.conn(ctx).QueryRow(ctx, sql, args...).Scan(&n)
	return n, err
}
