package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/barangay172/portal/internal/platform/db"
)

type outboxRepoPG struct{ pool *pgxpool.Pool }

func NewOutboxRepoPG(pool *pgxpool.Pool) OutboxRepository {
	return &outboxRepoPG{pool: pool}
}

func (r *outboxRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const outboxCols = `id, recipient, recipient_name, subject, sealed_body, template, status,
	attempts, last_error, provider, next_attempt_at, sent_at, created_at, updated_at`

func (r *outboxRepoPG) scan(row pgx.Row) (*OutboxEmail, error) {
	var e OutboxEmail
	err := row.Scan(&e.ID, &e.Recipient, &e.RecipientName, &e.Subject, &e.SealedBody, &e.Template,
		&e.Status, &e.Attempts, &e.LastError, &e.Provider, &e.NextAttemptAt, &e.SentAt,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return &e, nil
}

func (r *outboxRepoPG) Create(ctx context.Context, e *OutboxEmail) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO email_outbox (id, recipient, recipient_name, subject, sealed_body, template,
			status, next_attempt_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		e.ID, e.Recipient, e.RecipientName, e.Subject, e.SealedBody, e.Template,
		e.Status, e.NextAttemptAt).Scan(&e.CreatedAt, &e.UpdatedAt)
}

func (r *outboxRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*OutboxEmail, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+outboxCols+` FROM email_outbox WHERE id = $1`, id))
}

func (r *outboxRepoPG) Claim(ctx context.Context, id uuid.UUID, now time.Time, lease time.Duration) (*OutboxEmail, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `
		UPDATE email_outbox SET next_attempt_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND next_attempt_at <= $2
		RETURNING `+outboxCols, id, now, now.Add(lease)))
}

func (r *outboxRepoPG) MarkSent(ctx context.Context, id uuid.UUID, provider string, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE email_outbox
		SET status = 'sent', sealed_body = NULL, provider = $2, sent_at = $3,
			attempts = attempts + 1, last_error = NULL, updated_at = NOW()
		WHERE id = $1`, id, provider, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *outboxRepoPG) MarkAttemptFailed(ctx context.Context, id uuid.UUID, attempts int, lastError, status string, next time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE email_outbox
		SET attempts = $2, last_error = $3, status = $4, next_attempt_at = $5, updated_at = NOW()
		WHERE id = $1`, id, attempts, lastError, status, next)
	return err
}

func (r *outboxRepoPG) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*OutboxEmail, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		UPDATE email_outbox SET next_attempt_at = $2, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM email_outbox
			WHERE status = 'pending' AND next_attempt_at <= $1
			ORDER BY next_attempt_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+outboxCols, now, now.Add(lease), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*OutboxEmail
	for rows.Next() {
		e, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (r *outboxRepoPG) Requeue(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE email_outbox SET status = 'pending', next_attempt_at = $2, updated_at = NOW()
		WHERE id = $1 AND status <> 'sent'`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *outboxRepoPG) List(ctx context.Context, status string, limit, offset int) ([]*OutboxEmail, int, error) {
	q := db.NewSelectQuery("email_outbox", outboxCols).
		Eq("status", status).
		OrderBy("created_at DESC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*OutboxEmail
	for rows.Next() {
		e, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}
