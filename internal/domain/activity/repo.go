package activity

import (
	"context"
)

type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error)
	ListAll(ctx context.Context, f Filter) ([]*Entry, error)
}
