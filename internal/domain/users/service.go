package users

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dchest/validator"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/barangay172/portal/internal/domain/activity"
	"github.com/barangay172/portal/internal/platform/auth"
	"github.com/barangay172/portal/internal/platform/blobstore"
	"github.com/barangay172/portal/internal/platform/db"
	"github.com/barangay172/portal/internal/platform/httperr"
	"github.com/barangay172/portal/internal/platform/notification"
)

const (
	generatedPasswordLength = 8
	maxUsernameAttempts     = 5
	adminUsername           = "admin"
)

// CredentialMailer queues and sends account emails. *notification.Outbox
// satisfies it.
type CredentialMailer interface {
	Enqueue(ctx context.Context, msg notification.Message) (*notification.OutboxEmail, error)
	Deliver(ctx context.Context, id uuid.UUID) (*notification.OutboxEmail, error)
}

// ActivityRecorder writes audit rows; *activity.Service satisfies it.
type ActivityRecorder interface {
	Record(ctx context.Context, actionType, description string, target *activity.Target) error
}

type TokenIssuer interface {
	Issue(p auth.Principal, barangay string) (string, time.Time, error)
}

type Service struct {
	repo     Repository
	tx       db.TxManager
	mailer   CredentialMailer
	activity ActivityRecorder
	tokens   TokenIssuer
	docs     blobstore.BlobStore
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, tx db.TxManager, mailer CredentialMailer, recorder ActivityRecorder, tokens TokenIssuer, docs blobstore.BlobStore, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		tx:       tx,
		mailer:   mailer,
		activity: recorder,
		tokens:   tokens,
		docs:     docs,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateStaff creates a staff account with a generated username and
// password and queues the credentials email in the same transaction.
func (s *Service) CreateStaff(ctx context.Context, req CreateStaffRequest) (*CreateResult, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = strings.TrimSpace(req.Email)
	if req.FullName == "" {
		return nil, httperr.Invalid("full_name is required")
	}
	if !validator.IsValidEmail(req.Email) {
		return nil, httperr.Invalid("invalid email address: %s", req.Email)
	}
	if !lo.Contains(auth.StaffRoles, req.Role) {
		return nil, httperr.Invalid("invalid role: %s", req.Role)
	}
	u := &User{
		FullName: req.FullName,
		Email:    req.Email,
		Role:     req.Role,
		Phone:    strings.TrimSpace(req.Phone),
		Address:  strings.TrimSpace(req.Address),
		Status:   StatusActive,
	}
	return s.createWithCredentials(ctx, u, "user_created",
		fmt.Sprintf("Created %s account for %s", auth.DisplayName(u.Role), u.FullName))
}

// RegisterResident is the public self-registration flow.
func (s *Service) RegisterResident(ctx context.Context, req RegisterRequest) (*CreateResult, error) {
	req.Email = strings.TrimSpace(req.Email)
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" ||
		req.Email == "" || strings.TrimSpace(req.HouseNo) == "" || strings.TrimSpace(req.Street) == "" {
		return nil, httperr.Invalid("please fill in all required fields")
	}
	if !req.TermsAccepted {
		return nil, httperr.Invalid("you must accept the terms and conditions")
	}
	if !validator.IsValidEmail(req.Email) {
		return nil, httperr.Invalid("invalid email address: %s", req.Email)
	}
	u := &User{
		FullName: req.FullName(),
		Email:    req.Email,
		Role:     auth.RoleResident,
		Phone:    strings.TrimSpace(req.Phone),
		HouseNo:  strings.TrimSpace(req.HouseNo),
		Street:   strings.TrimSpace(req.Street),
		Address:  ResidentAddress(req.HouseNo, req.Street),
		Status:   StatusActive,
	}
	return s.createWithCredentials(ctx, u, "resident_registered",
		fmt.Sprintf("Resident %s registered", u.FullName))
}

// SeedAdmin makes sure an administrator exists. It returns nil, nil when
// one already does.
func (s *Service) SeedAdmin(ctx context.Context, email string) (*CreateResult, error) {
	n, err := s.repo.CountByRole(ctx, auth.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, nil
	}
	if !validator.IsValidEmail(email) {
		return nil, httperr.Invalid("invalid email address: %s", email)
	}
	holder, err := s.repo.GetByLogin(ctx, adminUsername)
	switch {
	case err == nil:
		return nil, fmt.Errorf("username %q belongs to %s account %s; rename it or make it the administrator: %w",
			adminUsername, auth.DisplayName(holder.Role), holder.ID, ErrUsernameTaken)
	case !errors.Is(err, db.ErrNotFound):
		return nil, err
	}
	u := &User{
		Username: adminUsername,
		FullName: "System Administrator",
		Email:    email,
		Role:     auth.RoleAdmin,
		Status:   StatusActive,
	}
	res, err := s.createWithCredentials(ctx, u, "admin_seeded", "Seeded administrator account")
	if errors.Is(err, ErrUsernameTaken) {
		return nil, fmt.Errorf("username %q was taken while seeding the administrator: %w", adminUsername, err)
	}
	return res, err
}

func (s *Service) createWithCredentials(ctx context.Context, u *User, actionType, description string) (*CreateResult, error) {
	exists, err := s.repo.EmailExists(ctx, u.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateEmail
	}
	password, err := auth.GeneratePassword(generatedPasswordLength)
	if err != nil {
		return nil, err
	}
	if u.PasswordHash, err = auth.HashPassword(password); err != nil {
		return nil, err
	}

	var queued *notification.OutboxEmail
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.insert(ctx, u); err != nil {
			return err
		}
		queued, err = s.mailer.Enqueue(ctx, notification.Message{
			To:       u.Email,
			ToName:   u.FullName,
			Template: notification.TemplateCredentials,
			Data: map[string]string{
				"full_name": u.FullName,
				"role":      auth.DisplayName(u.Role),
				"username":  u.Username,
				"password":  password,
			},
		})
		if err != nil {
			return fmt.Errorf("queue credentials email: %w", err)
		}
		return s.activity.Record(ctx, actionType, description,
			&activity.Target{Type: "user", ID: u.ID, Name: u.FullName})
	})
	if err != nil {
		return nil, err
	}

	result := &CreateResult{User: u, CredentialsDelivery: DeliveryQueued}
	sent, err := s.mailer.Deliver(ctx, queued.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("outbox_id", queued.ID.String()).Msg("deliver credentials email")
	} else if sent.Delivered() {
		result.CredentialsDelivery = DeliverySent
	}
	return result, nil
}

// insert picks the lowest free username for the role's prefix, moving on to
// the next candidate when a concurrent insert claims it first.
func (s *Service) insert(ctx context.Context, u *User) error {
	if u.Username != "" {
		return s.repo.Create(ctx, u)
	}
	prefix, width := usernameFormat(u.Role)
	tried := make(map[string]bool)
	for i := 0; i < maxUsernameAttempts; i++ {
		taken, err := s.repo.UsernamesWithPrefix(ctx, prefix)
		if err != nil {
			return err
		}
		u.Username = NextUsername(prefix, width, taken, tried)
		err = s.repo.Create(ctx, u)
		if !errors.Is(err, ErrUsernameTaken) {
			return err
		}
		tried[u.Username] = true
	}
	return fmt.Errorf("could not allocate a %s username", prefix)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*User, int, error) {
	if err := validateFilter(f); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, f, limit, offset)
}

func (s *Service) ListAll(ctx context.Context, f Filter) ([]*User, error) {
	if err := validateFilter(f); err != nil {
		return nil, err
	}
	return s.repo.ListAll(ctx, f)
}

func validateFilter(f Filter) error {
	if f.Role != "" && !auth.ValidRole(f.Role) {
		return httperr.Invalid("invalid role: %s", f.Role)
	}
	if f.Status != "" && !validStatus(f.Status) {
		return httperr.Invalid("invalid status: %s", f.Status)
	}
	return nil
}

func validStatus(status string) bool {
	return lo.Contains([]string{StatusActive, StatusInactive, StatusPending}, status)
}

// Delete removes a non-admin account.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		u, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if u.Role == auth.RoleAdmin {
			return ErrProtectedAccount
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return err
		}
		return s.activity.Record(ctx, "user_deleted",
			fmt.Sprintf("Deleted user %s (%s)", u.FullName, u.Username),
			&activity.Target{Type: "user", ID: u.ID, Name: u.FullName})
	})
}

// UpdateRole changes a non-admin account to another non-admin role.
func (s *Service) UpdateRole(ctx context.Context, id uuid.UUID, role string) (*User, error) {
	if !auth.ValidRole(role) || role == auth.RoleAdmin {
		return nil, httperr.Invalid("invalid role: %s", role)
	}
	var u *User
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if u, err = s.repo.GetByID(ctx, id); err != nil {
			return err
		}
		if u.Role == auth.RoleAdmin {
			return ErrProtectedAccount
		}
		old := u.Role
		if err := s.repo.UpdateRole(ctx, id, role); err != nil {
			return err
		}
		u.Role = role
		return s.activity.Record(ctx, "user_role_updated",
			fmt.Sprintf("Changed role of %s from %s to %s", u.FullName, auth.DisplayName(old), auth.DisplayName(role)),
			&activity.Target{Type: "user", ID: u.ID, Name: u.FullName})
	})
	return u, err
}

// UpdateStatus activates, deactivates or marks an account pending. Barangay
// hall staff may only change residents.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*User, error) {
	if !validStatus(status) {
		return nil, httperr.Invalid("invalid status: %s", status)
	}
	caller, _ := auth.PrincipalFromContext(ctx)
	var u *User
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if u, err = s.repo.GetByID(ctx, id); err != nil {
			return err
		}
		if u.Role == auth.RoleAdmin {
			return ErrProtectedAccount
		}
		if caller.Role != auth.RoleAdmin && u.Role != auth.RoleResident {
			return ErrProtectedAccount
		}
		if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
			return err
		}
		u.Status = status
		return s.activity.Record(ctx, "user_status_updated",
			fmt.Sprintf("Set status of %s to %s", u.FullName, status),
			&activity.Target{Type: "user", ID: u.ID, Name: u.FullName})
	})
	return u, err
}

// UpdateProfile applies self-service changes to the caller's account.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, upd ProfileUpdate) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if v := strings.TrimSpace(upd.FullName); v != "" {
		u.FullName = v
	}
	if v := strings.TrimSpace(upd.Phone); v != "" {
		u.Phone = v
	}
	houseNo, street := strings.TrimSpace(upd.HouseNo), strings.TrimSpace(upd.Street)
	if houseNo != "" {
		u.HouseNo = houseNo
	}
	if street != "" {
		u.Street = street
	}
	switch {
	case strings.TrimSpace(upd.Address) != "":
		u.Address = strings.TrimSpace(upd.Address)
	case u.Role == auth.RoleResident && (houseNo != "" || street != ""):
		u.Address = ResidentAddress(u.HouseNo, u.Street)
	}
	if err := s.repo.UpdateProfile(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login verifies credentials and issues a session token.
func (s *Service) Login(ctx context.Context, login, password string) (*LoginResult, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, httperr.Invalid("please fill in all fields")
	}
	u, err := s.repo.GetByLogin(ctx, login)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrInvalidLogin
	}
	if err != nil {
		return nil, err
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, ErrInvalidLogin
		}
		return nil, err
	}
	if u.Status == StatusInactive {
		return nil, ErrInactiveAccount
	}
	token, exp, err := s.tokens.Issue(u.Principal(), db.BarangayFromContext(ctx))
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := s.repo.TouchLastLogin(ctx, u.ID, now); err != nil {
		s.logger.Warn().Err(err).Str("user_id", u.ID.String()).Msg("update last_login")
	} else {
		u.LastLogin = &now
	}
	return &LoginResult{Token: token, ExpiresAt: exp, User: u}, nil
}

// ChangePassword requires the current password.
func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error {
	if len(next) < auth.MinPasswordLength {
		return httperr.Invalid("new password must be at least %d characters", auth.MinPasswordLength)
	}
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := auth.CheckPassword(u.PasswordHash, current); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return httperr.Invalid("current password is incorrect")
		}
		return err
	}
	hash, err := auth.HashPassword(next)
	if err != nil {
		return err
	}
	return s.repo.UpdatePassword(ctx, id, hash)
}

// UploadDocuments stores a resident's verification documents and records
// their blob IDs. Replaced blobs are removed once the update commits.
func (s *Service) UploadDocuments(ctx context.Context, id uuid.UUID, in DocumentUploads) (*User, error) {
	if in.PurokEndorsement == nil && in.ValidID == nil {
		return nil, httperr.Invalid("upload a purok endorsement or a valid id")
	}
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Role != auth.RoleResident {
		return nil, ErrNotResident
	}
	if u.VerifiedAt != nil {
		return nil, ErrAlreadyVerified
	}

	uploads := []struct {
		kind    string
		file    *Upload
		current string
	}{
		{DocPurokEndorsement, in.PurokEndorsement, u.PurokEndorsement},
		{DocValidID, in.ValidID, u.ValidID},
	}
	stored := make(map[string]string, len(uploads))
	var replaced []string
	for _, up := range uploads {
		if up.file == nil {
			continue
		}
		meta, err := s.docs.Upload(ctx, blobstore.BlobMetadata{
			FileName:    up.file.FileName,
			ContentType: up.file.ContentType,
			OwnerID:     id.String(),
			Category:    up.kind,
		}, up.file.Body)
		if err != nil {
			s.discard(ctx, lo.Values(stored)...)
			return nil, err
		}
		stored[up.kind] = meta.ID
		if up.current != "" {
			replaced = append(replaced, up.current)
		}
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.UpdateDocuments(ctx, id, stored[DocPurokEndorsement], stored[DocValidID]); err != nil {
			return err
		}
		return s.activity.Record(ctx, "documents_uploaded",
			fmt.Sprintf("%s uploaded verification documents", u.FullName),
			&activity.Target{Type: "user", ID: u.ID, Name: u.FullName})
	})
	if err != nil {
		s.discard(ctx, lo.Values(stored)...)
		return nil, err
	}
	s.discard(ctx, replaced...)

	if v, ok := stored[DocPurokEndorsement]; ok {
		u.PurokEndorsement = v
	}
	if v, ok := stored[DocValidID]; ok {
		u.ValidID = v
	}
	return u, nil
}

func (s *Service) discard(ctx context.Context, ids ...string) {
	for _, id := range ids {
		if err := s.docs.Delete(ctx, id); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
			s.logger.Warn().Err(err).Str("blob_id", id).Msg("remove document blob")
		}
	}
}

// Verify marks a resident who has uploaded both documents as verified.
func (s *Service) Verify(ctx context.Context, id uuid.UUID) (*User, error) {
	caller, _ := auth.PrincipalFromContext(ctx)
	var u *User
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if u, err = s.repo.GetByID(ctx, id); err != nil {
			return err
		}
		if u.Role != auth.RoleResident {
			return ErrNotResident
		}
		if u.VerifiedAt != nil {
			return ErrAlreadyVerified
		}
		if u.PurokEndorsement == "" || u.ValidID == "" {
			return httperr.Invalid("%s has not uploaded both verification documents", u.FullName)
		}
		now := s.now().UTC()
		if err := s.repo.MarkVerified(ctx, id, caller.UserID, now); err != nil {
			return err
		}
		u.VerifiedAt = &now
		u.Status = StatusActive
		return s.activity.Record(ctx, "resident_verified",
			fmt.Sprintf("Verified resident %s", u.FullName),
			&activity.Target{Type: "user", ID: u.ID, Name: u.FullName})
	})
	return u, err
}

// Document opens one of a user's verification documents.
func (s *Service) Document(ctx context.Context, id uuid.UUID, kind string) (io.ReadCloser, *blobstore.BlobMetadata, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	var blobID string
	switch kind {
	case DocPurokEndorsement:
		blobID = u.PurokEndorsement
	case DocValidID:
		blobID = u.ValidID
	default:
		return nil, nil, httperr.Invalid("invalid document: %s", kind)
	}
	if blobID == "" {
		return nil, nil, db.ErrNotFound
	}
	rc, meta, err := s.docs.Download(ctx, blobID)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, nil, db.ErrNotFound
	}
	return rc, meta, err
}
