package settings

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Get(ctx context.Context, key string) (*Setting, error)
	// List returns every setting, or those in group when it is non-empty.
	List(ctx context.Context, group string) ([]*Setting, error)
	SetValue(ctx context.Context, key, value string, by uuid.UUID) error
}
