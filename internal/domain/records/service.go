package records

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/barangay172/portal/internal/domain/activity"
	"github.com/barangay172/portal/internal/platform/auth"
	"github.com/barangay172/portal/internal/platform/db"
	"github.com/barangay172/portal/internal/platform/httperr"
)

const dateLayout = "2006-01-02"

type ActivityRecorder interface {
	Record(ctx context.Context, actionType, description string, target *activity.Target) error
}

type Service struct {
	repo     Repository
	tx       db.TxManager
	activity ActivityRecorder
	now      func() time.Time
}

func NewService(repo Repository, tx db.TxManager, recorder ActivityRecorder) *Service {
	return &Service{repo: repo, tx: tx, activity: recorder, now: time.Now}
}

func (s *Service) apply(m *MedicalRecord, in Input) error {
	m.AppointmentID = in.AppointmentID
	if in.RecordDate == "" {
		y, mo, d := s.now().Date()
		m.RecordDate = time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
	} else {
		date, err := time.Parse(dateLayout, in.RecordDate)
		if err != nil {
			return httperr.Invalid("invalid record_date: %s", in.RecordDate)
		}
		m.RecordDate = date
	}
	m.Symptoms = strings.TrimSpace(in.Symptoms)
	m.Diagnosis = strings.TrimSpace(in.Diagnosis)
	m.Treatment = strings.TrimSpace(in.Treatment)
	m.Prescription = strings.TrimSpace(in.Prescription)
	m.DoctorName = strings.TrimSpace(in.DoctorName)
	m.Notes = strings.TrimSpace(in.Notes)
	if m.Symptoms == "" && m.Diagnosis == "" && m.Treatment == "" {
		return httperr.Invalid("at least one of symptoms, diagnosis or treatment is required")
	}
	return nil
}

func (s *Service) Create(ctx context.Context, in Input) (*MedicalRecord, error) {
	if in.UserID == uuid.Nil {
		return nil, httperr.Invalid("user_id is required")
	}
	m := &MedicalRecord{UserID: in.UserID}
	if err := s.apply(m, in); err != nil {
		return nil, err
	}
	if by := auth.UserIDFromContext(ctx); by != uuid.Nil {
		m.CreatedBy = &by
	}
	var created *MedicalRecord
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, m); err != nil {
			return err
		}
		var err error
		if created, err = s.repo.GetByID(ctx, m.ID); err != nil {
			return err
		}
		return s.activity.Record(ctx, "medical_record_created",
			fmt.Sprintf("Created medical record for %s", created.PatientName),
			&activity.Target{Type: "medical_record", ID: created.ID, Name: created.PatientName})
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Get returns a record. Residents only see their own.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*MedicalRecord, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p, _ := auth.PrincipalFromContext(ctx); p.Role == auth.RoleResident && m.UserID != p.UserID {
		return nil, db.ErrNotFound
	}
	return m, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (*MedicalRecord, error) {
	var updated *MedicalRecord
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		m, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.apply(m, in); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, m); err != nil {
			return err
		}
		if updated, err = s.repo.GetByID(ctx, id); err != nil {
			return err
		}
		return s.activity.Record(ctx, "medical_record_updated",
			fmt.Sprintf("Updated medical record for %s", updated.PatientName),
			&activity.Target{Type: "medical_record", ID: updated.ID, Name: updated.PatientName})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		m, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return err
		}
		return s.activity.Record(ctx, "medical_record_deleted",
			fmt.Sprintf("Deleted medical record for %s dated %s", m.PatientName, m.RecordDate.Format(dateLayout)),
			&activity.Target{Type: "medical_record", ID: m.ID, Name: m.PatientName})
	})
}

// ListByPatient returns a patient's history, newest first.
func (s *Service) ListByPatient(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*MedicalRecord, int, error) {
	return s.List(ctx, Filter{UserID: userID.String()}, limit, offset)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*MedicalRecord, int, error) {
	for _, d := range []string{f.DateFrom, f.DateTo} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(dateLayout, d); err != nil {
			return nil, 0, httperr.Invalid("invalid date: %s", d)
		}
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
