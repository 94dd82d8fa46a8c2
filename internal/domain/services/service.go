package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/barangay172/portal/internal/domain/activity"
	"github.com/barangay172/portal/internal/platform/auth"
	"github.com/barangay172/portal/internal/platform/db"
	"github.com/barangay172/portal/internal/platform/httperr"
)

type ActivityRecorder interface {
	Record(ctx context.Context, actionType, description string, target *activity.Target) error
}

type Service struct {
	repo     Repository
	tx       db.TxManager
	activity ActivityRecorder
}

func NewService(repo Repository, tx db.TxManager, recorder ActivityRecorder) *Service {
	return &Service{repo: repo, tx: tx, activity: recorder}
}

func validKind(kind string) bool {
	_, ok := managers[kind]
	return ok
}

// authorize checks that the caller may edit services of kind.
func authorize(ctx context.Context, kind string) error {
	if !validKind(kind) {
		return httperr.Invalid("invalid service kind: %s", kind)
	}
	p, _ := auth.PrincipalFromContext(ctx)
	if !auth.HasRole(p, managers[kind]...) {
		return ErrForbidden
	}
	return nil
}

func apply(o *Offering, in Input) error {
	o.Name = strings.TrimSpace(in.Name)
	o.Description = strings.TrimSpace(in.Description)
	o.ServiceType = strings.TrimSpace(in.ServiceType)
	o.Schedule = strings.TrimSpace(in.Schedule)
	o.Requirements = strings.TrimSpace(in.Requirements)
	o.ProcessingTime = strings.TrimSpace(in.ProcessingTime)
	o.Fee = in.Fee
	o.Status = in.Status
	if o.Status == "" {
		o.Status = StatusActive
	}
	switch {
	case o.Name == "":
		return httperr.Invalid("name is required")
	case o.Fee < 0:
		return httperr.Invalid("fee must not be negative")
	case o.Status != StatusActive && o.Status != StatusInactive:
		return httperr.Invalid("invalid status: %s", o.Status)
	case o.Kind == KindHealth && !healthServiceTypes[o.ServiceType]:
		return httperr.Invalid("invalid service_type: %s", o.ServiceType)
	}
	return nil
}

func actionPrefix(kind string) string {
	return kind + "_service"
}

func (s *Service) Create(ctx context.Context, kind string, in Input) (*Offering, error) {
	if err := authorize(ctx, kind); err != nil {
		return nil, err
	}
	o := &Offering{Kind: kind}
	if err := apply(o, in); err != nil {
		return nil, err
	}
	if by := auth.UserIDFromContext(ctx); by != uuid.Nil {
		o.CreatedBy = &by
	}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, o); err != nil {
			return err
		}
		return s.activity.Record(ctx, actionPrefix(kind)+"_created",
			fmt.Sprintf("Created %s service %s", kind, o.Name),
			&activity.Target{Type: actionPrefix(kind), ID: o.ID, Name: o.Name})
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) Get(ctx context.Context, kind string, id uuid.UUID) (*Offering, error) {
	if !validKind(kind) {
		return nil, httperr.Invalid("invalid service kind: %s", kind)
	}
	return s.repo.GetByID(ctx, kind, id)
}

func (s *Service) Update(ctx context.Context, kind string, id uuid.UUID, in Input) (*Offering, error) {
	if err := authorize(ctx, kind); err != nil {
		return nil, err
	}
	var o *Offering
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if o, err = s.repo.GetByID(ctx, kind, id); err != nil {
			return err
		}
		if err := apply(o, in); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, o); err != nil {
			return err
		}
		return s.activity.Record(ctx, actionPrefix(kind)+"_updated",
			fmt.Sprintf("Updated %s service %s", kind, o.Name),
			&activity.Target{Type: actionPrefix(kind), ID: o.ID, Name: o.Name})
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) Delete(ctx context.Context, kind string, id uuid.UUID) error {
	if err := authorize(ctx, kind); err != nil {
		return err
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetByID(ctx, kind, id)
		if err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, kind, id); err != nil {
			return err
		}
		return s.activity.Record(ctx, actionPrefix(kind)+"_deleted",
			fmt.Sprintf("Deleted %s service %s", kind, o.Name),
			&activity.Target{Type: actionPrefix(kind), ID: o.ID, Name: o.Name})
	})
}

func validateFilter(kind string, f Filter) error {
	if !validKind(kind) {
		return httperr.Invalid("invalid service kind: %s", kind)
	}
	if f.Status != "" && f.Status != StatusActive && f.Status != StatusInactive {
		return httperr.Invalid("invalid status: %s", f.Status)
	}
	return nil
}

func (s *Service) List(ctx context.Context, kind string, f Filter, limit, offset int) ([]*Offering, int, error) {
	if err := validateFilter(kind, f); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, kind, f, limit, offset)
}

func (s *Service) ListAll(ctx context.Context, kind string, f Filter) ([]*Offering, error) {
	if err := validateFilter(kind, f); err != nil {
		return nil, err
	}
	return s.repo.ListAll(ctx, kind, f)
}

// ListActive is the resident-facing catalogue.
func (s *Service) ListActive(ctx context.Context, kind string) ([]*Offering, error) {
	return s.ListAll(ctx, kind, Filter{Status: StatusActive})
}
