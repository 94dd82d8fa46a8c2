package appointments

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/barangay172/portal/internal/platform/reporting"
)

const (
	StatusScheduled = "scheduled"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
	StatusNoShow    = "no_show"
)

var validStatuses = map[string]bool{
	StatusScheduled: true,
	StatusConfirmed: true,
	StatusCancelled: true,
	StatusCompleted: true,
	StatusNoShow:    true,
}

// allowedFrom lists the statuses each target status may be reached from.
var allowedFrom = map[string][]string{
	StatusConfirmed: {StatusScheduled},
	StatusCancelled: {StatusScheduled, StatusConfirmed},
	StatusCompleted: {StatusConfirmed},
	StatusNoShow:    {StatusConfirmed},
}

var (
	ErrInvalidTransition = errors.New("appointment status does not allow this action")
	ErrAlreadyArchived   = errors.New("appointment is already archived")
	ErrNotArchived       = errors.New("appointment is not archived")
	ErrUnknownResident   = errors.New("resident does not exist")
	ErrNotResident       = errors.New("appointments can only be booked for residents")
)

const defaultNotes = "Online appointment request"

type Appointment struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	ResidentName    string     `json:"resident_name"`
	ServiceType     string     `json:"service_type"`
	AppointmentDate time.Time  `json:"appointment_date"`
	Status          string     `json:"status"`
	Notes           string     `json:"notes,omitempty"`
	ConfirmedBy     *uuid.UUID `json:"confirmed_by,omitempty"`
	ConfirmedByName string     `json:"confirmed_by_name,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	ArchivedAt      *time.Time `json:"archived_at,omitempty"`
	ArchivedBy      *uuid.UUID `json:"archived_by,omitempty"`
}

func (a *Appointment) Archived() bool { return a.ArchivedAt != nil }

type Filter struct {
	Search string `schema:"search"`
	Status string `schema:"status"`
	Date   string `schema:"date"`
	UserID string `schema:"user_id"`
}

type RequestInput struct {
	UserID        uuid.UUID `json:"user_id"`
	ServiceType   string    `json:"service_type"`
	PreferredDate string    `json:"preferred_date"`
	PreferredTime string    `json:"preferred_time"`
	Notes         string    `json:"notes"`
}

type ConfirmInput struct {
	Date  string `json:"appointment_date"`
	Time  string `json:"appointment_time"`
	Notes string `json:"notes"`
}

var csvHeader = []string{
	"Appointment ID", "Resident Name", "Service Type", "Appointment Date", "Status", "Notes",
	"Confirmed By", "Created Date", "Archived Date",
}

func csvRow(a *Appointment) []string {
	return []string{
		a.ID.String(), a.ResidentName, a.ServiceType, a.AppointmentDate.Format(reporting.DateTimeLayout),
		a.Status, a.Notes, a.ConfirmedByName, a.CreatedAt.Format(reporting.DateTimeLayout),
		reporting.FormatTime(a.ArchivedAt),
	}
}
