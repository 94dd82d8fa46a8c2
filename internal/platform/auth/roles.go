package auth

import "github.com/samber/lo"

const (
	RoleAdmin        = "admin"
	RoleResident     = "resident"
	RoleBarangayHall = "barangay_hall"
	RoleHealthCenter = "health_center"
	RoleHealthStaff  = "health_staff"
)

// AllRoles lists every role a user row may carry.
var AllRoles = []string{RoleAdmin, RoleResident, RoleBarangayHall, RoleHealthCenter, RoleHealthStaff}

// StaffRoles are the roles an admin may create accounts for.
var StaffRoles = []string{RoleBarangayHall, RoleHealthCenter, RoleHealthStaff}

// HealthRoles may work the health center queues.
var HealthRoles = []string{RoleHealthCenter, RoleHealthStaff}

func ValidRole(role string) bool {
	return lo.Contains(AllRoles, role)
}

func IsStaffRole(role string) bool {
	return lo.Contains(StaffRoles, role)
}

func IsHealthRole(role string) bool {
	return lo.Contains(HealthRoles, role)
}

var roleDisplayNames = map[string]string{
	RoleAdmin:        "Administrator",
	RoleResident:     "Resident",
	RoleBarangayHall: "Barangay Hall Staff",
	RoleHealthCenter: "Health Center Staff",
	RoleHealthStaff:  "Health Center Staff",
}

// DisplayName returns the human label used in emails and exports.
func DisplayName(role string) string {
	if name, ok := roleDisplayNames[role]; ok {
		return name
	}
	return role
}
