package appointments

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Create returns ErrUnknownResident when a.UserID matches no user.
	Create(ctx context.Context, a *Appointment) error
	// UserRole returns the role of user id, or db.ErrNotFound.
	UserRole(ctx context.Context, id uuid.UUID) (string, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// SetStatus moves id to status only while its current status is one of
	// from and it is not archived. It returns ErrInvalidTransition otherwise.
	SetStatus(ctx context.Context, id uuid.UUID, from []string, status string, date *time.Time, confirmedBy *uuid.UUID, notes string) error
	Archive(ctx context.Context, id, by uuid.UUID, at time.Time) error
	Restore(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter, archived bool, limit, offset int) ([]*Appointment, int, error)
	ListAll(ctx context.Context, f Filter, archived bool) ([]*Appointment, error)
}
