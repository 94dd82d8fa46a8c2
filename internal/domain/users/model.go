package users

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/barangay172/portal/internal/platform/auth"
	"github.com/barangay172/portal/internal/platform/reporting"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusPending  = "pending"
)

// Credential delivery outcomes reported after account creation.
const (
	DeliverySent   = "sent"
	DeliveryQueued = "queued"
)

var (
	ErrDuplicateEmail   = errors.New("email address already exists")
	ErrProtectedAccount = errors.New("administrator accounts cannot be modified")
	ErrUsernameTaken    = errors.New("username already taken")
	ErrInvalidLogin     = errors.New("invalid username or password")
	ErrInactiveAccount  = errors.New("account is inactive")
	ErrAlreadyVerified  = errors.New("account is already verified")
	ErrNotResident      = errors.New("only resident accounts carry verification documents")
)

// Verification document kinds, also the users column each blob ID is kept in.
const (
	DocPurokEndorsement = "purok_endorsement"
	DocValidID          = "valid_id"
)

// DocumentDeadline is how long a new resident has to upload both documents.
const DocumentDeadline = 30 * 24 * time.Hour

// Document deadline states shown to residents.
const (
	DocStateVerified = "verified"
	DocStatePending  = "pending_verification"
	DocStateExpired  = "expired"
	DocStateCritical = "critical"
	DocStateWarning  = "warning"
	DocStateSafe     = "safe"
)

// DocumentStatus summarises a resident's verification progress.
type DocumentStatus struct {
	PurokEndorsement bool      `json:"purok_endorsement"`
	ValidID          bool      `json:"valid_id"`
	Verified         bool      `json:"verified"`
	Deadline         time.Time `json:"deadline"`
	DaysRemaining    int       `json:"days_remaining"`
	State            string    `json:"state"`
}

// Documents computes the status at now. Non-residents have none.
func (u *User) Documents(now time.Time) *DocumentStatus {
	if u.Role != auth.RoleResident {
		return nil
	}
	ds := &DocumentStatus{
		PurokEndorsement: u.PurokEndorsement != "",
		ValidID:          u.ValidID != "",
		Verified:         u.VerifiedAt != nil,
		Deadline:         u.CreatedAt.Add(DocumentDeadline),
	}
	remaining := ds.Deadline.Sub(now)
	ds.DaysRemaining = int(math.Ceil(remaining.Hours() / 24))
	if ds.DaysRemaining < 0 {
		ds.DaysRemaining = 0
	}
	switch {
	case ds.Verified:
		ds.State = DocStateVerified
	case ds.PurokEndorsement && ds.ValidID:
		ds.State = DocStatePending
	case remaining <= 0:
		ds.State = DocStateExpired
	case ds.DaysRemaining <= 5:
		ds.State = DocStateCritical
	case ds.DaysRemaining <= 10:
		ds.State = DocStateWarning
	default:
		ds.State = DocStateSafe
	}
	return ds
}

// Upload is one file from a multipart form.
type Upload struct {
	FileName    string
	ContentType string
	Body        io.Reader
}

// DocumentUploads carries the files a resident submits. Either may be nil.
type DocumentUploads struct {
	PurokEndorsement *Upload
	ValidID          *Upload
}

// User maps to the users table.
type User struct {
	ID               uuid.UUID  `json:"id"`
	Username         string     `json:"username"`
	FullName         string     `json:"full_name"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"-"`
	Role             string     `json:"role"`
	Phone            string     `json:"phone,omitempty"`
	Address          string     `json:"address,omitempty"`
	HouseNo          string     `json:"house_no,omitempty"`
	Street           string     `json:"street,omitempty"`
	Status           string     `json:"status"`
	PurokEndorsement string     `json:"purok_endorsement,omitempty"`
	ValidID          string     `json:"valid_id,omitempty"`
	VerifiedAt       *time.Time `json:"verified_at,omitempty"`
	LastLogin        *time.Time `json:"last_login,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (u *User) Principal() auth.Principal {
	return auth.Principal{UserID: u.ID, Role: u.Role, Name: u.FullName}
}

type Filter struct {
	Search string `schema:"search"`
	Role   string `schema:"role"`
	Status string `schema:"status"`
}

type CreateStaffRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

type RegisterRequest struct {
	FirstName     string `json:"first_name"`
	MiddleName    string `json:"middle_name"`
	LastName      string `json:"last_name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	HouseNo       string `json:"house_no"`
	Street        string `json:"street"`
	TermsAccepted bool   `json:"terms_accepted"`
}

func (r RegisterRequest) FullName() string {
	var parts []string
	for _, p := range []string{r.FirstName, r.MiddleName, r.LastName} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// ProfileUpdate carries self-service changes. Empty fields are left unchanged.
type ProfileUpdate struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	HouseNo  string `json:"house_no"`
	Street   string `json:"street"`
	Address  string `json:"address"`
}

// CreateResult never carries the generated password.
type CreateResult struct {
	User                *User  `json:"user"`
	CredentialsDelivery string `json:"credentials_delivery"`
}

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

// ResidentAddress is the complete address stored for residents.
func ResidentAddress(houseNo, street string) string {
	return fmt.Sprintf("%s %s, Zone 15, Brgy. 172, Caloocan City", strings.TrimSpace(houseNo), strings.TrimSpace(street))
}

// usernameFormat returns the prefix and counter width for generated usernames.
func usernameFormat(role string) (string, int) {
	switch role {
	case auth.RoleBarangayHall:
		return "bh", 3
	case auth.RoleHealthCenter, auth.RoleHealthStaff:
		return "hc", 3
	case auth.RoleResident:
		return "res", 5
	}
	return "user", 3
}

var csvHeader = []string{
	"User ID", "Full Name", "Username", "Email", "Role", "Phone", "House No.", "Street",
	"Complete Address", "Status", "Purok Endorsement", "Valid ID", "Created Date", "Last Updated",
}

func csvRow(u *User) []string {
	return []string{
		u.ID.String(), u.FullName, u.Username, u.Email, auth.DisplayName(u.Role), u.Phone, u.HouseNo, u.Street,
		u.Address, u.Status, u.PurokEndorsement, u.ValidID,
		u.CreatedAt.Format(reporting.DateTimeLayout), u.UpdatedAt.Format(reporting.DateTimeLayout),
	}
}
