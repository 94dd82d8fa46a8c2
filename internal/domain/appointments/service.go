package appointments

import (
	"context"
	"errors"
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

// localZone is Philippine Standard Time; appointment dates and times are
// entered in it.
var localZone = time.FixedZone("PHT", 8*60*60)

const displayLayout = "Jan 2, 2006 3:04 PM"

type ActivityRecorder interface {
	Record(ctx context.Context, actionType, description string, target *activity.Target) error
}

// Notifier delivers in-app notifications; *inbox.Service satisfies it.
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

func parseDateTime(date, clock string) (time.Time, error) {
	if clock == "" {
		return time.ParseInLocation("2006-01-02", date, localZone)
	}
	return time.ParseInLocation("2006-01-02 15:04", date+" "+clock, localZone)
}

// Request books an appointment. Residents book for themselves; health
// staff may book on behalf of a resident.
func (s *Service) Request(ctx context.Context, in RequestInput) (*Appointment, error) {
	caller, _ := auth.PrincipalFromContext(ctx)
	if caller.Role == auth.RoleResident {
		in.UserID = caller.UserID
	} else if err := s.requireResident(ctx, in.UserID); err != nil {
		return nil, err
	}
	in.ServiceType = strings.TrimSpace(in.ServiceType)
	if in.ServiceType == "" {
		return nil, httperr.Invalid("service_type is required")
	}
	date := s.now().In(localZone).Add(24 * time.Hour)
	if in.PreferredDate != "" {
		d, err := parseDateTime(in.PreferredDate, in.PreferredTime)
		if err != nil {
			return nil, httperr.Invalid("invalid preferred date or time")
		}
		date = d
	}
	notes := strings.TrimSpace(in.Notes)
	if notes == "" {
		notes = defaultNotes
	}
	a := &Appointment{
		UserID:          in.UserID,
		ServiceType:     in.ServiceType,
		AppointmentDate: date,
		Status:          StatusScheduled,
		Notes:           notes,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, a.ID)
}

func (s *Service) requireResident(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return httperr.Invalid("user_id is required")
	}
	role, err := s.repo.UserRole(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return ErrUnknownResident
	}
	if err != nil {
		return err
	}
	if role != auth.RoleResident {
		return ErrNotResident
	}
	return nil
}

// Get returns an appointment visible to the caller. Residents only see
// their own.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p, _ := auth.PrincipalFromContext(ctx); p.Role == auth.RoleResident && a.UserID != p.UserID {
		return nil, db.ErrNotFound
	}
	return a, nil
}

// Confirm schedules a requested appointment for a concrete date and time.
// The status change and its activity row commit together.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID, in ConfirmInput) (*Appointment, error) {
	if in.Date == "" || in.Time == "" {
		return nil, httperr.Invalid("appointment date and time are required")
	}
	when, err := parseDateTime(in.Date, in.Time)
	if err != nil {
		return nil, httperr.Invalid("invalid appointment date or time")
	}
	staff := auth.UserIDFromContext(ctx)
	a, err := s.transition(ctx, id, StatusConfirmed, &when, &staff, strings.TrimSpace(in.Notes),
		"appointment_confirmed", "Confirmed appointment for %s - %s")
	if err != nil {
		return nil, err
	}
	s.notify(ctx, a, fmt.Sprintf("Your appointment for %s has been confirmed for %s.",
		a.ServiceType, a.AppointmentDate.In(localZone).Format(displayLayout)))
	return a, nil
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	a, err := s.transition(ctx, id, StatusCancelled, nil, nil, strings.TrimSpace(reason),
		"appointment_cancelled", "Cancelled appointment for %s - %s")
	if err != nil {
		return nil, err
	}
	s.notify(ctx, a, fmt.Sprintf("Your appointment for %s has been cancelled.", a.ServiceType))
	return a, nil
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.transition(ctx, id, StatusCompleted, nil, nil, "",
		"appointment_completed", "Completed appointment for %s - %s")
	if err != nil {
		return nil, err
	}
	s.notify(ctx, a, fmt.Sprintf("Your appointment for %s has been completed.", a.ServiceType))
	return a, nil
}

func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.transition(ctx, id, StatusNoShow, nil, nil, "",
		"appointment_no_show", "Marked appointment for %s - %s as no-show")
	if err != nil {
		return nil, err
	}
	s.notify(ctx, a, fmt.Sprintf("You missed your appointment for %s.", a.ServiceType))
	return a, nil
}

// transition moves id to status and records actionType in one transaction.
// description is formatted with the resident name and service type.
func (s *Service) transition(ctx context.Context, id uuid.UUID, status string, date *time.Time, by *uuid.UUID, notes, actionType, description string) (*Appointment, error) {
	var a *Appointment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if current.Archived() || !lo.Contains(allowedFrom[status], current.Status) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current.Status, status)
		}
		if err := s.repo.SetStatus(ctx, id, allowedFrom[status], status, date, by, notes); err != nil {
			return err
		}
		if a, err = s.repo.GetByID(ctx, id); err != nil {
			return err
		}
		return s.activity.Record(ctx, actionType, fmt.Sprintf(description, a.ResidentName, a.ServiceType),
			&activity.Target{Type: "appointment", ID: a.ID, Name: a.ResidentName})
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) notify(ctx context.Context, a *Appointment, message string) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, a.UserID, inbox.KindAppointment, a.ID, a.Status, message)
	}
}

// Archive hides an appointment from the active list. Its status is kept.
func (s *Service) Archive(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	by := auth.UserIDFromContext(ctx)
	var a *Appointment
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
		if a, err = s.repo.GetByID(ctx, id); err != nil {
			return err
		}
		return s.activity.Record(ctx, "appointment_archived",
			fmt.Sprintf("Archived appointment for %s - %s", a.ResidentName, a.ServiceType),
			&activity.Target{Type: "appointment", ID: a.ID, Name: a.ResidentName})
	})
	return a, err
}

// Restore returns an archived appointment to the active list.
func (s *Service) Restore(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var a *Appointment
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
		if a, err = s.repo.GetByID(ctx, id); err != nil {
			return err
		}
		return s.activity.Record(ctx, "appointment_restored",
			fmt.Sprintf("Restored appointment for %s - %s", a.ResidentName, a.ServiceType),
			&activity.Target{Type: "appointment", ID: a.ID, Name: a.ResidentName})
	})
	return a, err
}

// scope validates f and restricts residents to their own appointments.
func scope(ctx context.Context, f Filter) (Filter, error) {
	if f.Status != "" && !validStatuses[f.Status] {
		return f, httperr.Invalid("invalid status: %s", f.Status)
	}
	if f.Date != "" {
		if _, err := time.Parse("2006-01-02", f.Date); err != nil {
			return f, httperr.Invalid("invalid date: %s", f.Date)
		}
	}
	if f.UserID != "" {
		if _, err := uuid.Parse(f.UserID); err != nil {
			return f, httperr.Invalid("invalid user_id: %s", f.UserID)
		}
	}
	if p, _ := auth.PrincipalFromContext(ctx); p.Role == auth.RoleResident {
		f.UserID = p.UserID.String()
	}
	return f, nil
}

func (s *Service) List(ctx context.Context, f Filter, archived bool, limit, offset int) ([]*Appointment, int, error) {
	f, err := scope(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, f, archived, limit, offset)
}

func (s *Service) ListAll(ctx context.Context, f Filter, archived bool) ([]*Appointment, error) {
	f, err := scope(ctx, f)
	if err != nil {
		return nil, err
	}
	return s.repo.ListAll(ctx, f, archived)
}
