package inbox

import (
	"time"

	"github.com/google/uuid"

	"github.com/barangay172/portal/internal/platform/auth"
)

// Notification kinds, one per resource a resident is told about.
const (
	KindAppointment  = "appointment"
	KindRegistration = "patient_registration"
	KindApplication  = "application"
	KindConcern      = "concern"
)

// Modules carrying a badge counter.
const (
	ModulePatients     = "patients"
	ModuleAppointments = "appointments"
	ModuleConcerns     = "concerns"
	ModuleApplications = "applications"
	ModuleResidents    = "residents"
)

// Notification is an in-app message for one user.
type Notification struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	Kind        string     `json:"kind"`
	ReferenceID *uuid.UUID `json:"reference_id,omitempty"`
	Status      string     `json:"status,omitempty"`
	Message     string     `json:"message"`
	IsRead      bool       `json:"is_read"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Badge scopes: staff badges count work waiting in a queue, resident badges
// count updates to the resident's own items.
const (
	scopeStaff    = "staff"
	scopeResident = "resident"
)

// BadgeModules returns the modules shown to role and the scope they count in.
func BadgeModules(role string) ([]string, string) {
	switch {
	case role == auth.RoleAdmin:
		return []string{ModulePatients, ModuleAppointments, ModuleConcerns, ModuleApplications, ModuleResidents}, scopeStaff
	case auth.IsHealthRole(role):
		return []string{ModulePatients, ModuleAppointments}, scopeStaff
	case role == auth.RoleBarangayHall:
		return []string{ModuleConcerns, ModuleApplications, ModuleResidents}, scopeStaff
	case role == auth.RoleResident:
		return []string{ModuleAppointments, ModuleApplications, ModuleConcerns}, scopeResident
	}
	return nil, ""
}
