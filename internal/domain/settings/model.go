package settings

import (
	"time"

	"github.com/google/uuid"
)

const (
	TypeString = "string"
	TypeInt    = "int"
	TypeBool   = "bool"
)

const (
	KeySystemName      = "system_name"
	KeyBarangayName    = "barangay_name"
	KeyBarangayAddress = "barangay_address"
	KeyItemsPerPage    = "items_per_page"
	KeyEmailEnabled    = "email_enabled"
	KeyMaintenanceMode = "maintenance_mode"
)

// publicKeys are readable without signing in.
var publicKeys = []string{KeySystemName, KeyBarangayName, KeyBarangayAddress, KeyMaintenanceMode}

type Setting struct {
	Key       string     `json:"key"`
	Value     string     `json:"value"`
	Type      string     `json:"type"`
	Group     string     `json:"group"`
	Label     string     `json:"label"`
	UpdatedBy *uuid.UUID `json:"updated_by,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type UpdateRequest struct {
	Value string `json:"value"`
}
