package patients

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

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

// Submit files a registration for the calling resident.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*Registration, error) {
	userID := auth.UserIDFromContext(ctx)
	if userID == uuid.Nil {
		return nil, httperr.Invalid("authentication required")
	}
	bloodType := strings.ToUpper(strings.TrimSpace(in.BloodType))
	if bloodType != "" && !bloodTypes[bloodType] {
		return nil, httperr.Invalid("invalid blood type: %s", in.BloodType)
	}
	open, err := s.repo.HasOpen(ctx, userID)
	if err != nil {
		return nil, err
	}
	if open {
		return nil, ErrOpenRegistration
	}
	reg := &Registration{
		UserID:           userID,
		BloodType:        bloodType,
		EmergencyContact: strings.TrimSpace(in.EmergencyContact),
		MedicalHistory:   strings.TrimSpace(in.MedicalHistory),
		Status:           StatusPending,
	}
	if err := s.repo.Create(ctx, reg); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, reg.ID)
}

// MyStatus returns the caller's current registration.
func (s *Service) MyStatus(ctx context.Context) (*Registration, error) {
	return s.repo.LatestByUser(ctx, auth.UserIDFromContext(ctx))
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Registration, error) {
	reg, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p, _ := auth.PrincipalFromContext(ctx); p.Role == auth.RoleResident && reg.UserID != p.UserID {
		return nil, db.ErrNotFound
	}
	return reg, nil
}

func (s *Service) Approve(ctx context.Context, id uuid.UUID, in ReviewInput) (*Registration, error) {
	return s.review(ctx, id, StatusApproved, strings.TrimSpace(in.StaffNotes),
		"patient_approved", "Approved patient registration for %s", ApprovedMessage)
}

func (s *Service) Reject(ctx context.Context, id uuid.UUID, in ReviewInput) (*Registration, error) {
	notes := strings.TrimSpace(in.StaffNotes)
	if notes == "" {
		return nil, httperr.Invalid("staff_notes is required when rejecting a registration")
	}
	return s.review(ctx, id, StatusRejected, notes,
		"patient_rejected", "Rejected patient registration for %s", RejectedMessage)
}

func (s *Service) review(ctx context.Context, id uuid.UUID, status, notes, actionType, description, message string) (*Registration, error) {
	by := auth.UserIDFromContext(ctx)
	var reg *Registration
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if current.Archived() || current.Status != StatusPending {
			return ErrInvalidTransition
		}
		if err := s.repo.Review(ctx, id, status, notes, by, s.now().UTC()); err != nil {
			return err
		}
		if reg, err = s.repo.GetByID(ctx, id); err != nil {
			return err
		}
		return s.activity.Record(ctx, actionType, fmt.Sprintf(description, reg.PatientName),
			&activity.Target{Type: "patient_registration", ID: reg.ID, Name: reg.PatientName})
	})
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, reg.UserID, inbox.KindRegistration, reg.ID, reg.Status, message)
	}
	return reg, nil
}

func (s *Service) Archive(ctx context.Context, id uuid.UUID) (*Registration, error) {
	by := auth.UserIDFromContext(ctx)
	var reg *Registration
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if current.Archived() {
			return ErrAlreadyArchived
		}
		if err := s.repo.Archive(ctx, id, by, s.now().UTC()); err != nil {
			return err
		}
		if reg, err = s.repo.GetByID(ctx, id); err != nil {
			return err
		}
		return s.activity.Record(ctx, "patient_archived",
			fmt.Sprintf("Archived patient registration for %s", reg.PatientName),
			&activity.Target{Type: "patient_registration", ID: reg.ID, Name: reg.PatientName})
	})
	return reg, err
}

func (s *Service) Restore(ctx context.Context, id uuid.UUID) (*Registration, error) {
	var reg *Registration
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !current.Archived() {
			return ErrNotArchived
		}
		if err := s.repo.Restore(ctx, id); err != nil {
			return err
		}
		if reg, err = s.repo.GetByID(ctx, id); err != nil {
			return err
		}
		return s.activity.Record(ctx, "patient_restored",
			fmt.Sprintf("Restored patient registration for %s", reg.PatientName),
			&activity.Target{Type: "patient_registration", ID: reg.ID, Name: reg.PatientName})
	})
	return reg, err
}

func validateFilter(f Filter) error {
	switch f.Status {
	case "", StatusPending, StatusApproved, StatusRejected:
		return nil
	}
	return httperr.Invalid("invalid status: %s", f.Status)
}

func (s *Service) List(ctx context.Context, f Filter, archived bool, limit, offset int) ([]*Registration, int, error) {
	if err := validateFilter(f); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, f, archived, limit, offset)
}

func (s *Service) ListAll(ctx context.Context, f Filter, archived bool) ([]*Registration, error) {
	if err := validateFilter(f); err != nil {
		return nil, err
	}
	return s.repo.ListAll(ctx, f, archived)
}
