package patients

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Create returns ErrOpenRegistration when the user already holds a
	// pending or approved registration.
	Create(ctx context.Context, r *Registration) error
	GetByID(ctx context.Context, id uuid.UUID) (*Registration, error)
	// LatestByUser returns the user's most recent non-archived registration.
	LatestByUser(ctx context.Context, userID uuid.UUID) (*Registration, error)
	HasOpen(ctx context.Context, userID uuid.UUID) (bool, error)
	// Review records a decision on a pending registration. It returns
	// ErrInvalidTransition if the registration is no longer pending.
	Review(ctx context.Context, id uuid.UUID, status, notes string, by uuid.UUID, at time.Time) error
	Archive(ctx context.Context, id, by uuid.UUID, at time.Time) error
	Restore(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter, archived bool, limit, offset int) ([]*Registration, int, error)
	ListAll(ctx context.Context, f Filter, archived bool) ([]*Registration, error)
}
