package services

import (
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/barangay172/portal/internal/platform/auth"
	"github.com/barangay172/portal/internal/platform/reporting"
)

const (
	KindHealth   = "health"
	KindBarangay = "barangay"

	StatusActive   = "active"
	StatusInactive = "inactive"
)

var (
	ErrDuplicateName = errors.New("a service with this name already exists")
	ErrForbidden     = errors.New("not allowed to manage this kind of service")
)

var healthServiceTypes = map[string]bool{
	"consultation": true, "vaccination": true, "laboratory": true,
	"dental": true, "pharmacy": true, "other": true,
}

// managers lists the staff role allowed to edit each kind besides admin.
var managers = map[string][]string{
	KindHealth:   auth.HealthRoles,
	KindBarangay: {auth.RoleBarangayHall},
}

// Offering is a service the barangay hall or health center provides.
type Offering struct {
	ID             uuid.UUID  `json:"id"`
	Kind           string     `json:"kind"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	ServiceType    string     `json:"service_type,omitempty"`
	Schedule       string     `json:"schedule,omitempty"`
	Requirements   string     `json:"requirements,omitempty"`
	ProcessingTime string     `json:"processing_time,omitempty"`
	Fee            float64    `json:"fee"`
	Status         string     `json:"status"`
	CreatedBy      *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type Filter struct {
	Search      string `schema:"search"`
	Status      string `schema:"status"`
	ServiceType string `schema:"service_type"`
}

type Input struct {
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	ServiceType    string  `json:"service_type"`
	Schedule       string  `json:"schedule"`
	Requirements   string  `json:"requirements"`
	ProcessingTime string  `json:"processing_time"`
	Fee            float64 `json:"fee"`
	Status         string  `json:"status"`
}

var csvHeader = []string{
	"Service ID", "Name", "Type", "Description", "Schedule", "Requirements",
	"Processing Time", "Fee", "Status", "Created Date", "Last Updated",
}

func csvRow(o *Offering) []string {
	return []string{
		o.ID.String(), o.Name, o.ServiceType, o.Description, o.Schedule, o.Requirements,
		o.ProcessingTime, strconv.FormatFloat(o.Fee, 'f', 2, 64), o.Status,
		o.CreatedAt.Format(reporting.DateTimeLayout), o.UpdatedAt.Format(reporting.DateTimeLayout),
	}
}
