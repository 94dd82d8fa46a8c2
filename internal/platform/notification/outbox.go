package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// OutboxEmail is a queued message. The body is sealed at rest and cleared
// once delivered; it is never serialised.
type OutboxEmail struct {
	ID            uuid.UUID  `json:"id"`
	Recipient     string     `json:"recipient"`
	RecipientName string     `json:"recipient_name"`
	Subject       string     `json:"subject"`
	SealedBody    *string    `json:"-"`
	Template      string     `json:"template"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	LastError     *string    `json:"last_error,omitempty"`
	Provider      *string    `json:"provider,omitempty"`
	NextAttemptAt time.Time  `json:"next_attempt_at"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Delivered reports whether the message reached a provider.
func (e *OutboxEmail) Delivered() bool { return e.Status == StatusSent }

type OutboxRepository interface {
	Create(ctx context.Context, e *OutboxEmail) error
	GetByID(ctx context.Context, id uuid.UUID) (*OutboxEmail, error)
	// Claim leases one pending row that is due, as ClaimDue does. It returns
	// db.ErrNotFound when the row is missing, not pending or already leased.
	Claim(ctx context.Context, id uuid.UUID, now time.Time, lease time.Duration) (*OutboxEmail, error)
	MarkSent(ctx context.Context, id uuid.UUID, provider string, at time.Time) error
	MarkAttemptFailed(ctx context.Context, id uuid.UUID, attempts int, lastError, status string, next time.Time) error
	// ClaimDue leases up to limit pending rows whose next attempt is due by
	// pushing next_attempt_at forward, so concurrent workers skip them.
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*OutboxEmail, error)
	Requeue(ctx context.Context, id uuid.UUID, at time.Time) error
	List(ctx context.Context, status string, limit, offset int) ([]*OutboxEmail, int, error)
}
