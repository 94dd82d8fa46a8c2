package inbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)

	// LastViewed returns the last view time per module for userID.
	LastViewed(ctx context.Context, userID uuid.UUID) (map[string]time.Time, error)
	MarkViewed(ctx context.Context, userID uuid.UUID, module string, at time.Time) error
	// CountBadge counts items of module changed after since. userID limits
	// the resident scope to the user's own rows.
	CountBadge(ctx context.Context, scope, module string, userID uuid.UUID, since time.Time) (int, error)
}
