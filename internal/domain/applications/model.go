package applications

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/barangay172/portal/internal/platform/reporting"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusApproved   = "approved"
	StatusRejected   = "rejected"
	StatusCompleted  = "completed"
)

var validStatuses = map[string]bool{
	StatusPending: true, StatusProcessing: true, StatusApproved: true,
	StatusRejected: true, StatusCompleted: true,
}

// allowedFrom lists the statuses each target status may be reached from.
var allowedFrom = map[string][]string{
	StatusProcessing: {StatusPending},
	StatusApproved:   {StatusProcessing},
	StatusRejected:   {StatusPending, StatusProcessing},
	StatusCompleted:  {StatusApproved},
}

var validTypes = map[string]bool{
	"business_permit":       true,
	"barangay_clearance":    true,
	"indigency_certificate": true,
	"residency_certificate": true,
	"other":                 true,
}

// statusMessages are sent to the resident's inbox; %s is the reference number.
var statusMessages = map[string]string{
	StatusProcessing: "Your application %s is now being processed.",
	StatusApproved:   "Your application %s has been approved and is ready for pick-up at the Barangay Hall.",
	StatusRejected:   "Your application %s has been rejected. Please see the remarks from the barangay hall.",
	StatusCompleted:  "Your application %s has been completed. Thank you.",
}

var (
	ErrInvalidTransition = errors.New("application status does not allow this action")
	ErrDuplicateRef      = errors.New("reference number already exists")
)

const maxReferenceAttempts = 3

// ReferenceNumber builds BRGY-{YYYYMMDD}-{6 hex}.
func ReferenceNumber(at time.Time, id uuid.UUID) string {
	return fmt.Sprintf("BRGY-%s-%s", at.Format("20060102"), strings.ToUpper(id.String()[:6]))
}

type Application struct {
	ID              uuid.UUID  `json:"id"`
	ReferenceNumber string     `json:"reference_number"`
	UserID          uuid.UUID  `json:"user_id"`
	ResidentName    string     `json:"resident_name"`
	ResidentEmail   string     `json:"resident_email"`
	ResidentAddress string     `json:"resident_address,omitempty"`
	ServiceID       *uuid.UUID `json:"service_id,omitempty"`
	ServiceName     string     `json:"service_name,omitempty"`
	ApplicationType string     `json:"application_type"`
	Purpose         string     `json:"purpose,omitempty"`
	Status          string     `json:"status"`
	Fee             float64    `json:"fee"`
	FeePaid         bool       `json:"fee_paid"`
	AdminNotes      string     `json:"admin_notes,omitempty"`
	ProcessedBy     *uuid.UUID `json:"processed_by,omitempty"`
	ProcessedByName string     `json:"processed_by_name,omitempty"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// DisplayService is the service name, or the humanised application type
// when no catalogue entry is linked.
func (a *Application) DisplayService() string {
	if a.ServiceName != "" {
		return a.ServiceName
	}
	words := strings.Split(a.ApplicationType, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

type Filter struct {
	Search          string `schema:"search"`
	Status          string `schema:"status"`
	ApplicationType string `schema:"application_type"`
	UserID          string `schema:"user_id"`
}

type SubmitInput struct {
	ServiceID       *uuid.UUID `json:"service_id"`
	ApplicationType string     `json:"application_type"`
	Purpose         string     `json:"purpose"`
}

// StatusInput moves an application. Fee and FeePaid are left unchanged
// when nil.
type StatusInput struct {
	Status     string   `json:"status"`
	AdminNotes string   `json:"admin_notes"`
	Fee        *float64 `json:"fee"`
	FeePaid    *bool    `json:"fee_paid"`
}

// Change is what the repository writes on a status transition.
type Change struct {
	From        []string
	Status      string
	AdminNotes  string
	Fee         *float64
	FeePaid     *bool
	ProcessedBy uuid.UUID
	ProcessedAt time.Time
}

var csvHeader = []string{
	"Reference No.", "Resident", "Email", "Service", "Type", "Purpose", "Status",
	"Fee", "Fee Paid", "Remarks", "Processed By", "Processed Date", "Created Date",
}

func csvRow(a *Application) []string {
	return []string{
		a.ReferenceNumber, a.ResidentName, a.ResidentEmail, a.DisplayService(), a.ApplicationType, a.Purpose, a.Status,
		strconv.FormatFloat(a.Fee, 'f', 2, 64), strconv.FormatBool(a.FeePaid), a.AdminNotes,
		a.ProcessedByName, reporting.FormatTime(a.ProcessedAt), a.CreatedAt.Format(reporting.DateTimeLayout),
	}
}
