package users

import (
	"context"
	"errors"
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

const cols = `id, username, full_name, email, password_hash, role, COALESCE(phone, ''),
	COALESCE(address, ''), COALESCE(house_no, ''), COALESCE(street, ''), status,
	COALESCE(purok_endorsement, ''), COALESCE(valid_id, ''), verified_at, last_login, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.Email, &u.PasswordHash, &u.Role, &u.Phone,
		&u.Address, &u.HouseNo, &u.Street, &u.Status,
		&u.PurokEndorsement, &u.ValidID, &u.VerifiedAt, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt)
	return &u, err
}

func (r *repoPG) Create(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	// A username collision yields no row instead of aborting the surrounding
	// transaction, so the caller can retry with the next candidate.
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (id, username, full_name, email, password_hash, role, phone, address,
			house_no, street, status)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), $11)
		ON CONFLICT ON CONSTRAINT users_username_key DO NOTHING
		RETURNING created_at, updated_at`,
		u.ID, u.Username, u.FullName, u.Email, u.PasswordHash, u.Role, u.Phone, u.Address,
		u.HouseNo, u.Street, u.Status).Scan(&u.CreatedAt, &u.UpdatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrUsernameTaken
	case db.IsUniqueViolation(err, "users_email_key"):
		return ErrDuplicateEmail
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM users WHERE id = $1`, id))
	return u, db.NotFound(err)
}

func (r *repoPG) GetByLogin(ctx context.Context, login string) (*User, error) {
	u, err := scanUser(r.conn(ctx).QueryRow(ctx,
		`SELECT `+cols+` FROM users WHERE username = $1 OR lower(email) = lower($1) LIMIT 1`, login))
	return u, db.NotFound(err)
}

func (r *repoPG) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = lower($1))`, email).Scan(&exists)
	return exists, err
}

func (r *repoPG) UsernamesWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT username FROM users WHERE username ~ ('^' || $1 || '[0-9]+$')`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *repoPG) CountByRole(ctx context.Context, role string) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE role = $1`, role).Scan(&n)
	return n, err
}

func (r *repoPG) exec(ctx context.Context, sql string, args ...interface{}) error {
	tag, err := r.conn(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *repoPG) UpdateProfile(ctx context.Context, u *User) error {
	return r.exec(ctx, `
		UPDATE users SET full_name = $2, phone = NULLIF($3, ''), house_no = NULLIF($4, ''),
			street = NULLIF($5, ''), address = NULLIF($6, ''), updated_at = NOW()
		WHERE id = $1`,
		u.ID, u.FullName, u.Phone, u.HouseNo, u.Street, u.Address)
}

func (r *repoPG) UpdateRole(ctx context.Context, id uuid.UUID, role string) error {
	return r.exec(ctx, `UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`, id, role)
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	return r.exec(ctx, `UPDATE users SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
}

func (r *repoPG) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	return r.exec(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
}

func (r *repoPG) UpdateDocuments(ctx context.Context, id uuid.UUID, purokEndorsement, validID string) error {
	return r.exec(ctx, `
		UPDATE users SET purok_endorsement = COALESCE(NULLIF($2, ''), purok_endorsement),
			valid_id = COALESCE(NULLIF($3, ''), valid_id), updated_at = NOW()
		WHERE id = $1`,
		id, purokEndorsement, validID)
}

func (r *repoPG) MarkVerified(ctx context.Context, id, by uuid.UUID, at time.Time) error {
	return r.exec(ctx, `
		UPDATE users SET verified_at = $3, verified_by = $2, status = 'active', updated_at = NOW()
		WHERE id = $1`,
		id, by, at)
}

func (r *repoPG) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.exec(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, id, at)
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, `DELETE FROM users WHERE id = $1`, id)
}

func buildQuery(f Filter) *db.SelectQuery {
	return db.NewSelectQuery("users", cols).
		Search(f.Search, "username", "full_name", "email").
		Eq("role", f.Role).
		Eq("status", f.Status).
		OrderBy("created_at DESC")
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*User, int, error) {
	q := buildQuery(f)
	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	items, err := r.collect(ctx, q.DataSQL(), q.DataArgs(limit, offset))
	return items, total, err
}

func (r *repoPG) ListAll(ctx context.Context, f Filter) ([]*User, error) {
	q := buildQuery(f)
	return r.collect(ctx, q.AllSQL(), q.Args())
}

func (r *repoPG) collect(ctx context.Context, sql string, args []interface{}) ([]*User, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}
