package inbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/barangay172/portal/internal/platform/auth"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

func (s *Service) Create(ctx context.Context, n *Notification) error {
	if n.UserID == uuid.Nil {
		return fmt.Errorf("user_id is required")
	}
	if n.Kind == "" {
		return fmt.Errorf("kind is required")
	}
	if n.Message == "" {
		return fmt.Errorf("message is required")
	}
	return s.repo.Create(ctx, n)
}

// Notify tells userID about a change to a resource. Delivery is best-effort;
// callers run it after their own work has committed.
func (s *Service) Notify(ctx context.Context, userID uuid.UUID, kind string, refID uuid.UUID, status, message string) {
	n := &Notification{UserID: userID, Kind: kind, Status: status, Message: message}
	if refID != uuid.Nil {
		n.ReferenceID = &refID
	}
	if err := s.Create(ctx, n); err != nil {
		s.logger.Error().Err(err).Str("kind", kind).Str("user_id", userID.String()).Msg("create notification")
	}
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	return s.repo.ListByUser(ctx, userID, unreadOnly, limit, offset)
}

func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	return s.repo.MarkRead(ctx, userID, id)
}

func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID)
}

// Badges returns, per module visible to p, the number of items changed
// since p last opened that module.
func (s *Service) Badges(ctx context.Context, p auth.Principal) (map[string]int, error) {
	modules, scope := BadgeModules(p.Role)
	views, err := s.repo.LastViewed(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(modules))
	for _, m := range modules {
		n, err := s.repo.CountBadge(ctx, scope, m, p.UserID, views[m])
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", m, err)
		}
		counts[m] = n
	}
	return counts, nil
}

// MarkViewed resets the badge of module for p.
func (s *Service) MarkViewed(ctx context.Context, p auth.Principal, module string) error {
	modules, _ := BadgeModules(p.Role)
	if !lo.Contains(modules, module) {
		return fmt.Errorf("unknown module: %s", module)
	}
	return s.repo.MarkViewed(ctx, p.UserID, module, s.now())
}
