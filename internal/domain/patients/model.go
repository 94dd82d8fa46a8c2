package patients

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/barangay172/portal/internal/platform/reporting"
)

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Resident-facing outcomes of a registration review.
const (
	ApprovedMessage = "Your patient registration has been approved. You can now access health services."
	RejectedMessage = "Your patient registration has been rejected. Please review the staff notes for more information."
)

var (
	ErrOpenRegistration  = errors.New("you already have a pending or approved patient registration")
	ErrInvalidTransition = errors.New("registration has already been reviewed")
	ErrAlreadyArchived   = errors.New("registration is already archived")
	ErrNotArchived       = errors.New("registration is not archived")
)

var bloodTypes = map[string]bool{
	"A+": true, "A-": true, "B+": true, "B-": true,
	"AB+": true, "AB-": true, "O+": true, "O-": true,
}

type Registration struct {
	ID               uuid.UUID  `json:"id"`
	UserID           uuid.UUID  `json:"user_id"`
	PatientName      string     `json:"patient_name"`
	PatientEmail     string     `json:"patient_email"`
	BloodType        string     `json:"blood_type,omitempty"`
	EmergencyContact string     `json:"emergency_contact,omitempty"`
	MedicalHistory   string     `json:"medical_history,omitempty"`
	Status           string     `json:"status"`
	StaffNotes       string     `json:"staff_notes,omitempty"`
	ApprovedBy       *uuid.UUID `json:"approved_by,omitempty"`
	ApprovedByName   string     `json:"approved_by_name,omitempty"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	ArchivedAt       *time.Time `json:"archived_at,omitempty"`
	ArchivedBy       *uuid.UUID `json:"archived_by,omitempty"`
}

func (r *Registration) Archived() bool { return r.ArchivedAt != nil }

type Filter struct {
	Search string `schema:"search"`
	Status string `schema:"status"`
}

type SubmitInput struct {
	BloodType        string `json:"blood_type"`
	EmergencyContact string `json:"emergency_contact"`
	MedicalHistory   string `json:"medical_history"`
}

type ReviewInput struct {
	StaffNotes string `json:"staff_notes"`
}

var csvHeader = []string{
	"Registration ID", "Patient Name", "Email", "Blood Type", "Emergency Contact", "Medical History",
	"Status", "Staff Notes", "Reviewed By", "Reviewed Date", "Created Date", "Archived Date",
}

func csvRow(r *Registration) []string {
	return []string{
		r.ID.String(), r.PatientName, r.PatientEmail, r.BloodType, r.EmergencyContact, r.MedicalHistory,
		r.Status, r.StaffNotes, r.ApprovedByName, reporting.FormatTime(r.ApprovedAt),
		r.CreatedAt.Format(reporting.DateTimeLayout), reporting.FormatTime(r.ArchivedAt),
	}
}
