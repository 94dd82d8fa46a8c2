package applications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/barangay172/portal/internal/domain/activity"
	"github.com/barangay172/portal/internal/domain/inbox"
	"github.com/barangay172/portal/internal/domain/services"
	"github.com/barangay172/portal/internal/domain/settings"
	"github.com/barangay172/portal/internal/platform/auth"
	"github.com/barangay172/portal/internal/platform/db"
	"github.com/barangay172/portal/internal/platform/httperr"
	"github.com/barangay172/portal/internal/platform/notification"
)

type ActivityRecorder interface {
	Record(ctx context.Context, actionType, description string, target *activity.Target) error
}

type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, kind string, refID uuid.UUID, status, message string)
}

// Mailer queues the ready-for-pickup email; *notification.Outbox satisfies it.
type Mailer interface {
	Enqueue(ctx context.Context, msg notification.Message) (*notification.OutboxEmail, error)
	Deliver(ctx context.Context, id uuid.UUID) (*notification.OutboxEmail, error)
}

// Catalog resolves the barangay service an application is filed against.
type Catalog interface {
	Get(ctx context.Context, kind string, id uuid.UUID) (*services.Offering, error)
}

// SettingsReader reads the letterhead settings; *settings.Service satisfies it.
type SettingsReader interface {
	String(ctx context.Context, key, def string) string
}

type Service struct {
	repo     Repository
	tx       db.TxManager
	activity ActivityRecorder
	notifier Notifier
	mailer   Mailer
	catalog  Catalog
	settings SettingsReader
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, tx db.TxManager, recorder ActivityRecorder, notifier Notifier, mailer Mailer, catalog Catalog, settingsReader SettingsReader, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		tx:       tx,
		activity: recorder,
		notifier: notifier,
		mailer:   mailer,
		catalog:  catalog,
		settings: settingsReader,
		logger:   logger,
		now:      time.Now,
	}
}

// Submit files an application for the calling resident.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*Application, error) {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok || p.UserID == uuid.Nil {
		return nil, httperr.Invalid("authentication required")
	}
	if !validTypes[in.ApplicationType] {
		return nil, httperr.Invalid("invalid application_type: %s", in.ApplicationType)
	}
	purpose := strings.TrimSpace(in.Purpose)
	if purpose == "" {
		return nil, httperr.Invalid("purpose is required")
	}
	a := &Application{
		UserID:          p.UserID,
		ServiceID:       in.ServiceID,
		ApplicationType: in.ApplicationType,
		Purpose:         purpose,
		Status:          StatusPending,
	}
	if in.ServiceID != nil {
		svc, err := s.catalog.Get(ctx, services.KindBarangay, *in.ServiceID)
		if errors.Is(err, db.ErrNotFound) || (err == nil && svc.Status != services.StatusActive) {
			return nil, httperr.Invalid("service is not available")
		}
		if err != nil {
			return nil, err
		}
		a.Fee = svc.Fee
	}

	var created *Application
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
			a.ID = uuid.New()
			a.ReferenceNumber = ReferenceNumber(s.now(), a.ID)
			if err = s.repo.Create(ctx, a); !errors.Is(err, ErrDuplicateRef) {
				break
			}
		}
		if err != nil {
			return err
		}
		if created, err = s.repo.GetByID(ctx, a.ID); err != nil {
			return err
		}
		return s.activity.Record(ctx, "application_submitted",
			fmt.Sprintf("Submitted application %s (%s)", created.ReferenceNumber, created.DisplayService()),
			&activity.Target{Type: "application", ID: created.ID, Name: created.ReferenceNumber})
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Application, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p, _ := auth.PrincipalFromContext(ctx); p.Role == auth.RoleResident && a.UserID != p.UserID {
		return nil, db.ErrNotFound
	}
	return a, nil
}

// Certificate builds the printable certificate. Staff may print any
// application; residents only their own once it is approved.
func (s *Service) Certificate(ctx context.Context, id uuid.UUID) (*Certificate, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p, _ := auth.PrincipalFromContext(ctx); p.Role == auth.RoleResident && a.Status != StatusApproved {
		return nil, ErrNotApproved
	}
	lh := Letterhead{
		BarangayName:    s.settings.String(ctx, settings.KeyBarangayName, "Barangay 172 Urduja"),
		BarangayAddress: s.settings.String(ctx, settings.KeyBarangayAddress, "Caloocan City"),
	}
	return NewCertificate(a, lh, s.now()), nil
}

// UpdateStatus moves an application along its workflow. Approval queues
// the ready-for-pickup email in the same transaction.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, in StatusInput) (*Application, error) {
	from, ok := allowedFrom[in.Status]
	if !ok {
		return nil, httperr.Invalid("invalid status: %s", in.Status)
	}
	notes := strings.TrimSpace(in.AdminNotes)
	if in.Status == StatusRejected && notes == "" {
		return nil, httperr.Invalid("admin_notes is required when rejecting an application")
	}
	if in.Fee != nil && *in.Fee < 0 {
		return nil, httperr.Invalid("fee must not be negative")
	}

	var (
		a      *Application
		queued *notification.OutboxEmail
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !lo.Contains(from, current.Status) {
			return ErrInvalidTransition
		}
		if err := s.repo.SetStatus(ctx, id, Change{
			From:        from,
			Status:      in.Status,
			AdminNotes:  notes,
			Fee:         in.Fee,
			FeePaid:     in.FeePaid,
			ProcessedBy: auth.UserIDFromContext(ctx),
			ProcessedAt: s.now().UTC(),
		}); err != nil {
			return err
		}
		if a, err = s.repo.GetByID(ctx, id); err != nil {
			return err
		}
		if a.Status == StatusApproved && a.ResidentEmail != "" {
			queued, err = s.mailer.Enqueue(ctx, notification.Message{
				To:       a.ResidentEmail,
				ToName:   a.ResidentName,
				Template: notification.TemplateReadyForPickup,
				Data: map[string]string{
					"full_name":        a.ResidentName,
					"reference_number": a.ReferenceNumber,
					"service_name":     a.DisplayService(),
				},
			})
			if err != nil {
				return err
			}
		}
		return s.activity.Record(ctx, "application_"+a.Status,
			fmt.Sprintf("Marked application %s for %s as %s", a.ReferenceNumber, a.ResidentName, a.Status),
			&activity.Target{Type: "application", ID: a.ID, Name: a.ReferenceNumber})
	})
	if err != nil {
		return nil, err
	}

	if queued != nil {
		if _, err := s.mailer.Deliver(ctx, queued.ID); err != nil {
			s.logger.Warn().Err(err).Str("reference_number", a.ReferenceNumber).Msg("ready-for-pickup email left queued")
		}
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, a.UserID, inbox.KindApplication, a.ID, a.Status, fmt.Sprintf(statusMessages[a.Status], a.ReferenceNumber))
	}
	return a, nil
}

// scope validates f and restricts residents to their own applications.
func scope(ctx context.Context, f Filter) (Filter, error) {
	if f.Status != "" && !validStatuses[f.Status] {
		return f, httperr.Invalid("invalid status: %s", f.Status)
	}
	if f.ApplicationType != "" && !validTypes[f.ApplicationType] {
		return f, httperr.Invalid("invalid application_type: %s", f.ApplicationType)
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

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Application, int, error) {
	f, err := scope(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, f, limit, offset)
}

func (s *Service) ListAll(ctx context.Context, f Filter) ([]*Application, error) {
	f, err := scope(ctx, f)
	if err != nil {
		return nil, err
	}
	return s.repo.ListAll(ctx, f)
}
