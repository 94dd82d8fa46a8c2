package concerns

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, c *Concern) error
	GetByID(ctx context.Context, id uuid.UUID) (*Concern, error)
	// SetStatus returns ErrInvalidTransition when the row is not in c.From.
	SetStatus(ctx context.Context, id uuid.UUID, c Change) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Concern, int, error)
}
