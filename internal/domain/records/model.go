package records

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnknownPatient     = errors.New("patient does not exist")
	ErrUnknownAppointment = errors.New("appointment does not exist")
)

// MedicalRecord is a consultation entry written by health center staff.
type MedicalRecord struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	PatientName   string     `json:"patient_name"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	RecordDate    time.Time  `json:"record_date"`
	Symptoms      string     `json:"symptoms,omitempty"`
	Diagnosis     string     `json:"diagnosis,omitempty"`
	Treatment     string     `json:"treatment,omitempty"`
	Prescription  string     `json:"prescription,omitempty"`
	DoctorName    string     `json:"doctor_name,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	CreatedBy     *uuid.UUID `json:"created_by,omitempty"`
	CreatedByName string     `json:"created_by_name,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type Filter struct {
	Search   string `schema:"search"`
	UserID   string `schema:"user_id"`
	DateFrom string `schema:"date_from"`
	DateTo   string `schema:"date_to"`
}

// Input carries the writable fields. RecordDate is YYYY-MM-DD and defaults
// to today.
type Input struct {
	UserID        uuid.UUID  `json:"user_id"`
	AppointmentID *uuid.UUID `json:"appointment_id"`
	RecordDate    string     `json:"record_date"`
	Symptoms      string     `json:"symptoms"`
	Diagnosis     string     `json:"diagnosis"`
	Treatment     string     `json:"treatment"`
	Prescription  string     `json:"prescription"`
	DoctorName    string     `json:"doctor_name"`
	Notes         string     `json:"notes"`
}
