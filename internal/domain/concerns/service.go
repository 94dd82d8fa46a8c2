package concerns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/barangay172/portal/internal/domain/activity"
	"github.com/barangay172/portal/internal/domain/inbox"
	"github.com/barangay172/portal/internal/platform/auth"
	"github.com/barangay172/portal/internal/platform/db"
	"github.com/barangay172/portal/internal/platform/httperr"
)

type ActivityRecorder interface {
	Record(ctx context.Context, actionType, description string, target *activity.Target) error
}

type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, kind string, refID uuid.UUID, status, message string)
}

type Service struct {
	repo     Repository
	tx       db.TxManager
	activity ActivityRecorder
	notifier Notifier
	now      func() time.Time
}

func NewService(repo Repository, tx db.TxManager, recorder ActivityRecorder, notifier Notifier) *Service {
	return &Service{repo: repo, tx: tx, activity: recorder, notifier: notifier, now: time.Now}
}

// Report files a concern for the calling resident.
func (s *Service) Report(ctx context.Context, in ReportInput) (*Concern, error) {
	userID := auth.UserIDFromContext(ctx)
	if userID == uuid.Nil {
		return nil, httperr.Invalid("authentication required")
	}
	c := &Concern{
		UserID:      userID,
		ConcernType: in.ConcernType,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Location:    strings.TrimSpace(in.Location),
		Priority:    in.Priority,
		Status:      StatusReported,
	}
	if c.Priority == "" {
		c.Priority = defaultPriority
	}
	switch {
	case !validTypes[c.ConcernType]:
		return nil, httperr.Invalid("invalid concern_type: %s", in.ConcernType)
	case c.Title == "":
		return nil, httperr.Invalid("title is required")
	case c.Description == "":
		return nil, httperr.Invalid("description is required")
	case !validPriorities[c.Priority]:
		return nil, httperr.Invalid("invalid priority: %s", in.Priority)
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, c.ID)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Concern, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p, _ := auth.PrincipalFromContext(ctx); p.Role == auth.RoleResident && c.UserID != p.UserID {
		return nil, db.ErrNotFound
	}
	return c, nil
}

// Respond moves a concern to in.Status with an optional response. Resolving
// requires a response and stamps resolved_at.
func (s *Service) Respond(ctx context.Context, id uuid.UUID, in RespondInput) (*Concern, error) {
	from, ok := allowedFrom[in.Status]
	if !ok {
		return nil, httperr.Invalid("invalid status: %s", in.Status)
	}
	response := strings.TrimSpace(in.AdminResponse)
	if in.Status == StatusResolved && response == "" {
		return nil, httperr.Invalid("admin_response is required when resolving a concern")
	}
	if in.Priority != "" && !validPriorities[in.Priority] {
		return nil, httperr.Invalid("invalid priority: %s", in.Priority)
	}
	ch := Change{
		From:          from,
		Status:        in.Status,
		AdminResponse: response,
		Priority:      in.Priority,
		RespondedBy:   auth.UserIDFromContext(ctx),
	}
	if in.Status == StatusResolved {
		at := s.now().UTC()
		ch.ResolvedAt = &at
	}

	var c *Concern
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !lo.Contains(from, current.Status) {
			return ErrInvalidTransition
		}
		if err := s.repo.SetStatus(ctx, id, ch); err != nil {
			return err
		}
		if c, err = s.repo.GetByID(ctx, id); err != nil {
			return err
		}
		return s.activity.Record(ctx, "concern_"+c.Status,
			fmt.Sprintf("Marked concern %q from %s as %s", c.Title, c.ResidentName, strings.ReplaceAll(c.Status, "_", " ")),
			&activity.Target{Type: "concern", ID: c.ID, Name: c.Title})
	})
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, c.UserID, inbox.KindConcern, c.ID, c.Status, fmt.Sprintf(statusMessages[c.Status], c.Title))
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Concern, int, error) {
	switch {
	case f.Status != "" && !validStatuses[f.Status]:
		return nil, 0, httperr.Invalid("invalid status: %s", f.Status)
	case f.ConcernType != "" && !validTypes[f.ConcernType]:
		return nil, 0, httperr.Invalid("invalid concern_type: %s", f.ConcernType)
	case f.Priority != "" && !validPriorities[f.Priority]:
		return nil, 0, httperr.Invalid("invalid priority: %s", f.Priority)
	}
	if f.UserID != "" {
		if _, err := uuid.Parse(f.UserID); err != nil {
			return nil, 0, httperr.Invalid("invalid user_id: %s", f.UserID)
		}
	}
	if p, _ := auth.PrincipalFromContext(ctx); p.Role == auth.RoleResident {
		f.UserID = p.UserID.String()
	}
	return s.repo.List(ctx, f, limit, offset)
}
