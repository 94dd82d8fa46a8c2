package services

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create and Update return ErrDuplicateName when kind+name is taken.
	Create(ctx context.Context, o *Offering) error
	GetByID(ctx context.Context, kind string, id uuid.UUID) (*Offering, error)
	Update(ctx context.Context, o *Offering) error
	Delete(ctx context.Context, kind string, id uuid.UUID) error
	List(ctx context.Context, kind string, f Filter, limit, offset int) ([]*Offering, int, error)
	ListAll(ctx context.Context, kind string, f Filter) ([]*Offering, error)
}
