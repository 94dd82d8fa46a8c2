package applications

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create returns ErrDuplicateRef when the reference number is taken.
	Create(ctx context.Context, a *Application) error
	GetByID(ctx context.Context, id uuid.UUID) (*Application, error)
	// SetStatus applies c if the row is in one of c.From, otherwise it
	// returns ErrInvalidTransition.
	SetStatus(ctx context.Context, id uuid.UUID, c Change) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Application, int, error)
	ListAll(ctx context.Context, f Filter) ([]*Application, error)
}
