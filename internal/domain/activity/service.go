package activity

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/barangay172/portal/internal/platform/auth"
	"github.com/barangay172/portal/internal/platform/httperr"
	"github.com/barangay172/portal/internal/platform/middleware"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Record appends an entry performed by the caller in ctx. Inside a
// transaction the row commits with it.
func (s *Service) Record(ctx context.Context, actionType, description string, target *Target) error {
	e := &Entry{ActionType: actionType, Description: description}
	if target != nil {
		e.TargetType = target.Type
		e.TargetName = target.Name
		if target.ID != uuid.Nil {
			id := target.ID
			e.TargetID = &id
		}
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		id := p.UserID
		e.PerformedBy = &id
		e.PerformedByName = p.Name
	}
	return s.Create(ctx, e)
}

// RecordBestEffort is Record for secondary bookkeeping: failures are logged
// and swallowed.
func (s *Service) RecordBestEffort(ctx context.Context, actionType, description string, target *Target) {
	if err := s.Record(ctx, actionType, description, target); err != nil {
		s.logger.Error().Err(err).Str("action_type", actionType).Msg("record activity")
	}
}

func (s *Service) Create(ctx context.Context, e *Entry) error {
	if e.ActionType == "" {
		return httperr.Invalid("action_type is required")
	}
	if e.Description == "" {
		return httperr.Invalid("action_description is required")
	}
	return s.repo.Create(ctx, e)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	if err := validateFilter(f); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, f, limit, offset)
}

func (s *Service) ListAll(ctx context.Context, f Filter) ([]*Entry, error) {
	if err := validateFilter(f); err != nil {
		return nil, err
	}
	return s.repo.ListAll(ctx, f)
}

func validateFilter(f Filter) error {
	if f.PerformedBy != "" {
		if _, err := uuid.Parse(f.PerformedBy); err != nil {
			return httperr.Invalid("invalid performed_by: %s", f.PerformedBy)
		}
	}
	return nil
}

// AuditRecorder stores HTTP audit entries as activity rows. Resources whose
// services already record their own activity are skipped.
type AuditRecorder struct {
	svc  *Service
	skip map[string]bool
}

func NewAuditRecorder(svc *Service, skipResources ...string) *AuditRecorder {
	skip := make(map[string]bool, len(skipResources))
	for _, r := range skipResources {
		skip[r] = true
	}
	return &AuditRecorder{svc: svc, skip: skip}
}

var _ middleware.AuditRecorder = (*AuditRecorder)(nil)

func (r *AuditRecorder) RecordAccess(ctx context.Context, a middleware.AuditEntry) error {
	if r.skip[a.Resource] {
		return nil
	}
	e := &Entry{
		ActionType:      strings.ReplaceAll(a.Resource, "-", "_") + "_" + a.Action,
		Description:     fmt.Sprintf("%s %s", a.Method, a.Path),
		TargetType:      a.Resource,
		PerformedByName: a.UserName,
		IPAddress:       a.IPAddress,
		UserAgent:       a.UserAgent,
	}
	if a.UserID != uuid.Nil {
		id := a.UserID
		e.PerformedBy = &id
	}
	if id, err := uuid.Parse(a.ResourceID); err == nil {
		e.TargetID = &id
	}
	return r.svc.Create(ctx, e)
}
