package concerns

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	StatusReported     = "reported"
	StatusAcknowledged = "acknowledged"
	StatusInProgress   = "in_progress"
	StatusResolved     = "resolved"
	StatusClosed       = "closed"
)

var validStatuses = map[string]bool{
	StatusReported: true, StatusAcknowledged: true, StatusInProgress: true,
	StatusResolved: true, StatusClosed: true,
}

var allowedFrom = map[string][]string{
	StatusAcknowledged: {StatusReported},
	StatusInProgress:   {StatusReported, StatusAcknowledged},
	StatusResolved:     {StatusAcknowledged, StatusInProgress},
	StatusClosed:       {StatusReported, StatusAcknowledged, StatusInProgress, StatusResolved},
}

var validTypes = map[string]bool{
	"noise_complaint": true, "garbage_disposal": true, "street_lighting": true,
	"road_maintenance": true, "security": true, "health_related": true, "other": true,
}

var validPriorities = map[string]bool{"low": true, "medium": true, "high": true, "urgent": true}

const defaultPriority = "medium"

var statusMessages = map[string]string{
	StatusAcknowledged: "Your concern %q has been acknowledged by the barangay hall.",
	StatusInProgress:   "Your concern %q is now being addressed.",
	StatusResolved:     "Your concern %q has been resolved.",
	StatusClosed:       "Your concern %q has been closed.",
}

var ErrInvalidTransition = errors.New("concern status does not allow this action")

type Concern struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	ResidentName    string     `json:"resident_name"`
	ConcernType     string     `json:"concern_type"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Location        string     `json:"location,omitempty"`
	Priority        string     `json:"priority"`
	Status          string     `json:"status"`
	AdminResponse   string     `json:"admin_response,omitempty"`
	RespondedBy     *uuid.UUID `json:"responded_by,omitempty"`
	RespondedByName string     `json:"responded_by_name,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type Filter struct {
	Search      string `schema:"search"`
	Status      string `schema:"status"`
	ConcernType string `schema:"concern_type"`
	Priority    string `schema:"priority"`
	UserID      string `schema:"user_id"`
}

type ReportInput struct {
	ConcernType string `json:"concern_type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Priority    string `json:"priority"`
}

type RespondInput struct {
	Status        string `json:"status"`
	AdminResponse string `json:"admin_response"`
	Priority      string `json:"priority"`
}

// Change is what the repository writes on a status transition. ResolvedAt
// is set only when moving to resolved.
type Change struct {
	From          []string
	Status        string
	AdminResponse string
	Priority      string
	RespondedBy   uuid.UUID
	ResolvedAt    *time.Time
}
