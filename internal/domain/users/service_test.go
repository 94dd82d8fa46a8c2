package users

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/barangay172/portal/internal/domain/activity"
	"github.com/barangay172/portal/internal/platform/auth"
	"github.com/barangay172/portal/internal/platform/blobstore"
	"github.com/barangay172/portal/internal/platform/db"
	"github.com/barangay172/portal/internal/platform/httperr"
	"github.com/barangay172/portal/internal/platform/notification"
)

// -- Mocks --

type mockRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*User
	// stolen usernames are inserted by a "concurrent" writer on first use.
	stolen map[string]bool
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[uuid.UUID]*User), stolen: make(map[string]bool)}
}

func (m *mockRepo) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stolen[u.Username] {
		delete(m.stolen, u.Username)
		other := &User{ID: uuid.New(), Username: u.Username, Email: uuid.NewString() + "@example.com", Role: u.Role}
		m.items[other.ID] = other
		return ErrUsernameTaken
	}
	for _, existing := range m.items {
		if existing.Username == u.Username {
			return ErrUsernameTaken
		}
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrDuplicateEmail
		}
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	m.items[u.ID] = u
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.items[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockRepo) GetByLogin(_ context.Context, login string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.items {
		if u.Username == login || strings.EqualFold(u.Email, login) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *mockRepo) EmailExists(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.items {
		if strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) UsernamesWithPrefix(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for _, u := range m.items {
		if _, ok := usernameCounter(prefix, u.Username); ok {
			names = append(names, u.Username)
		}
	}
	return names, nil
}

func (m *mockRepo) CountByRole(_ context.Context, role string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range m.items {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) update(id uuid.UUID, fn func(u *User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.items[id]
	if !ok {
		return db.ErrNotFound
	}
	fn(u)
	return nil
}

func (m *mockRepo) UpdateProfile(_ context.Context, u *User) error {
	return m.update(u.ID, func(existing *User) {
		existing.FullName, existing.Phone = u.FullName, u.Phone
		existing.HouseNo, existing.Street, existing.Address = u.HouseNo, u.Street, u.Address
	})
}

func (m *mockRepo) UpdateRole(_ context.Context, id uuid.UUID, role string) error {
	return m.update(id, func(u *User) { u.Role = role })
}

func (m *mockRepo) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	return m.update(id, func(u *User) { u.Status = status })
}

func (m *mockRepo) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	return m.update(id, func(u *User) { u.PasswordHash = hash })
}

func (m *mockRepo) UpdateDocuments(_ context.Context, id uuid.UUID, purokEndorsement, validID string) error {
	return m.update(id, func(u *User) {
		if purokEndorsement != "" {
			u.PurokEndorsement = purokEndorsement
		}
		if validID != "" {
			u.ValidID = validID
		}
	})
}

func (m *mockRepo) MarkVerified(_ context.Context, id, _ uuid.UUID, at time.Time) error {
	return m.update(id, func(u *User) {
		u.VerifiedAt = &at
		u.Status = StatusActive
	})
}

func (m *mockRepo) TouchLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	return m.update(id, func(u *User) { u.LastLogin = &at })
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return db.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *mockRepo) matching(f Filter) []*User {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*User
	for _, u := range m.items {
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if f.Status != "" && u.Status != f.Status {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(u.FullName+" "+u.Username+" "+u.Email), strings.ToLower(f.Search)) {
			continue
		}
		result = append(result, u)
	}
	return result
}

func (m *mockRepo) List(_ context.Context, f Filter, limit, offset int) ([]*User, int, error) {
	all := m.matching(f)
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

func (m *mockRepo) ListAll(_ context.Context, f Filter) ([]*User, error) {
	return m.matching(f), nil
}

type fakeTx struct{ calls int }

func (f *fakeTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	return fn(ctx)
}

type fakeMailer struct {
	messages   []notification.Message
	deliver    bool
	enqueueErr error
}

func (f *fakeMailer) Enqueue(_ context.Context, msg notification.Message) (*notification.OutboxEmail, error) {
	if f.enqueueErr != nil {
		return nil, f.enqueueErr
	}
	f.messages = append(f.messages, msg)
	return &notification.OutboxEmail{ID: uuid.New(), Recipient: msg.To, Status: notification.StatusPending}, nil
}

func (f *fakeMailer) Deliver(_ context.Context, id uuid.UUID) (*notification.OutboxEmail, error) {
	e := &notification.OutboxEmail{ID: id, Status: notification.StatusPending}
	if f.deliver {
		e.Status = notification.StatusSent
	}
	return e, nil
}

type fakeRecorder struct{ actions []string }

func (f *fakeRecorder) Record(_ context.Context, actionType, _ string, _ *activity.Target) error {
	f.actions = append(f.actions, actionType)
	return nil
}

type fakeTokens struct{}

func (fakeTokens) Issue(p auth.Principal, barangay string) (string, time.Time, error) {
	return "token-" + p.UserID.String(), time.Now().Add(time.Hour), nil
}

type fixture struct {
	svc      *Service
	repo     *mockRepo
	tx       *fakeTx
	mailer   *fakeMailer
	recorder *fakeRecorder
	docs     *blobstore.InMemoryBlobStore
}

func newFixture() *fixture {
	f := &fixture{
		repo:     newMockRepo(),
		tx:       &fakeTx{},
		mailer:   &fakeMailer{deliver: true},
		recorder: &fakeRecorder{},
		docs:     blobstore.NewInMemoryBlobStore(),
	}
	f.svc = NewService(f.repo, f.tx, f.mailer, f.recorder, fakeTokens{}, f.docs, zerolog.Nop())
	return f
}

func (f *fixture) seed(t *testing.T, u *User, password string) *User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatal(err)
	}
	u.PasswordHash = hash
	if u.Status == "" {
		u.Status = StatusActive
	}
	if err := f.repo.Create(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return u
}

var staffUsername = regexp.MustCompile(`^(bh|hc)\d{3,}$`)

// -- Tests --

func TestCreateStaff(t *testing.T) {
	f := newFixture()
	res, err := f.svc.CreateStaff(context.Background(), CreateStaffRequest{
		FullName: "Maria Santos", Email: "maria@example.com", Role: auth.RoleBarangayHall,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.User.Username != "bh001" {
		t.Errorf("expected bh001, got %s", res.User.Username)
	}
	if res.CredentialsDelivery != DeliverySent {
		t.Errorf("expected sent, got %s", res.CredentialsDelivery)
	}
	if f.tx.calls != 1 {
		t.Errorf("expected one transaction, got %d", f.tx.calls)
	}
	if len(f.mailer.messages) != 1 {
		t.Fatalf("expected 1 queued email, got %d", len(f.mailer.messages))
	}
	msg := f.mailer.messages[0]
	if msg.Template != notification.TemplateCredentials || msg.Data["username"] != "bh001" {
		t.Errorf("unexpected message %+v", msg)
	}
	password := msg.Data["password"]
	if len(password) != generatedPasswordLength {
		t.Errorf("expected %d-char password, got %q", generatedPasswordLength, password)
	}
	if err := auth.CheckPassword(res.User.PasswordHash, password); err != nil {
		t.Errorf("stored hash does not match emailed password: %v", err)
	}
	if len(f.recorder.actions) != 1 || f.recorder.actions[0] != "user_created" {
		t.Errorf("expected user_created activity, got %v", f.recorder.actions)
	}
}

func TestCreateStaff_QueuedWhenDeliveryFails(t *testing.T) {
	f := newFixture()
	f.mailer.deliver = false
	res, err := f.svc.CreateStaff(context.Background(), CreateStaffRequest{
		FullName: "Ana Reyes", Email: "ana@example.com", Role: auth.RoleHealthCenter,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CredentialsDelivery != DeliveryQueued {
		t.Errorf("expected queued, got %s", res.CredentialsDelivery)
	}
}

func TestCreateStaff_DuplicateEmail(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	req := CreateStaffRequest{FullName: "Ana Reyes", Email: "ana@example.com", Role: auth.RoleHealthCenter}
	if _, err := f.svc.CreateStaff(ctx, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req.Email = "ANA@example.com"
	_, err := f.svc.CreateStaff(ctx, req)
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("expected ErrDuplicateEmail, got %v", err)
	}
	if len(f.mailer.messages) != 1 {
		t.Error("expected no email for the rejected account")
	}
}

func TestCreateStaff_Validation(t *testing.T) {
	f := newFixture()
	tests := []struct {
		name string
		req  CreateStaffRequest
	}{
		{"missing name", CreateStaffRequest{Email: "a@example.com", Role: auth.RoleBarangayHall}},
		{"bad email", CreateStaffRequest{FullName: "A", Email: "not-an-email", Role: auth.RoleBarangayHall}},
		{"admin role", CreateStaffRequest{FullName: "A", Email: "a@example.com", Role: auth.RoleAdmin}},
		{"resident role", CreateStaffRequest{FullName: "A", Email: "a@example.com", Role: auth.RoleResident}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateStaff(context.Background(), tt.req)
			if !httperr.IsInvalid(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreateStaff_EnqueueFailureAborts(t *testing.T) {
	f := newFixture()
	f.mailer.enqueueErr = fmt.Errorf("outbox unavailable")
	_, err := f.svc.CreateStaff(context.Background(), CreateStaffRequest{
		FullName: "Ana Reyes", Email: "ana@example.com", Role: auth.RoleHealthCenter,
	})
	if err == nil {
		t.Fatal("expected error when the credentials email cannot be queued")
	}
}

func TestCreateStaff_UsernamesUniqueAndLowestFree(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seen := make(map[string]bool)
	for i := 0; i < 12; i++ {
		role := auth.RoleHealthCenter
		if i%2 == 0 {
			role = auth.RoleBarangayHall
		}
		res, err := f.svc.CreateStaff(ctx, CreateStaffRequest{
			FullName: fmt.Sprintf("Staff %d", i), Email: fmt.Sprintf("staff%d@example.com", i), Role: role,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		name := res.User.Username
		if !staffUsername.MatchString(name) {
			t.Errorf("username %q does not match pattern", name)
		}
		if seen[name] {
			t.Errorf("duplicate username %q", name)
		}
		seen[name] = true
	}

	// Free bh002 and expect it to be reused.
	for _, u := range f.repo.items {
		if u.Username == "bh002" {
			delete(f.repo.items, u.ID)
		}
	}
	res, err := f.svc.CreateStaff(ctx, CreateStaffRequest{FullName: "New", Email: "new@example.com", Role: auth.RoleBarangayHall})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.User.Username != "bh002" {
		t.Errorf("expected lowest free bh002, got %s", res.User.Username)
	}
}

func TestCreateStaff_RetriesOnUsernameRace(t *testing.T) {
	f := newFixture()
	f.repo.stolen["hc001"] = true
	res, err := f.svc.CreateStaff(context.Background(), CreateStaffRequest{
		FullName: "Nurse", Email: "nurse@example.com", Role: auth.RoleHealthStaff,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.User.Username != "hc002" {
		t.Errorf("expected hc002 after race, got %s", res.User.Username)
	}
}

func TestRegisterResident(t *testing.T) {
	f := newFixture()
	res, err := f.svc.RegisterResident(context.Background(), RegisterRequest{
		FirstName: "Juan", MiddleName: "Santos", LastName: "Dela Cruz",
		Email: "juan@example.com", HouseNo: "12", Street: "Urduja St", TermsAccepted: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	u := res.User
	if u.Username != "res00001" {
		t.Errorf("expected res00001, got %s", u.Username)
	}
	if u.FullName != "Juan Santos Dela Cruz" {
		t.Errorf("unexpected full name %q", u.FullName)
	}
	if u.Address != "12 Urduja St, Zone 15, Brgy. 172, Caloocan City" {
		t.Errorf("unexpected address %q", u.Address)
	}
	if u.Role != auth.RoleResident {
		t.Errorf("expected resident role, got %s", u.Role)
	}
}

func TestRegisterResident_RequiresTerms(t *testing.T) {
	f := newFixture()
	_, err := f.svc.RegisterResident(context.Background(), RegisterRequest{
		FirstName: "Juan", LastName: "Dela Cruz", Email: "juan@example.com", HouseNo: "12", Street: "Urduja St",
	})
	if !httperr.IsInvalid(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestDelete_RefusesAdmin(t *testing.T) {
	f := newFixture()
	admin := f.seed(t, &User{Username: "admin", FullName: "Admin", Email: "admin@example.com", Role: auth.RoleAdmin}, "secret123")
	if err := f.svc.Delete(context.Background(), admin.ID); !errors.Is(err, ErrProtectedAccount) {
		t.Errorf("expected ErrProtectedAccount, got %v", err)
	}
	if _, err := f.repo.GetByID(context.Background(), admin.ID); err != nil {
		t.Error("admin should still exist")
	}
}

func TestDelete(t *testing.T) {
	f := newFixture()
	u := f.seed(t, &User{Username: "bh001", FullName: "Clerk", Email: "clerk@example.com", Role: auth.RoleBarangayHall}, "secret123")
	if err := f.svc.Delete(context.Background(), u.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.repo.GetByID(context.Background(), u.ID); !errors.Is(err, db.ErrNotFound) {
		t.Error("expected user removed")
	}
	if f.recorder.actions[len(f.recorder.actions)-1] != "user_deleted" {
		t.Error("expected user_deleted activity")
	}
}

func TestUpdateRole(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	admin := f.seed(t, &User{Username: "admin", FullName: "Admin", Email: "admin@example.com", Role: auth.RoleAdmin}, "secret123")
	staff := f.seed(t, &User{Username: "bh001", FullName: "Clerk", Email: "clerk@example.com", Role: auth.RoleBarangayHall}, "secret123")

	if _, err := f.svc.UpdateRole(ctx, admin.ID, auth.RoleResident); !errors.Is(err, ErrProtectedAccount) {
		t.Errorf("expected ErrProtectedAccount, got %v", err)
	}
	if _, err := f.svc.UpdateRole(ctx, staff.ID, auth.RoleAdmin); !httperr.IsInvalid(err) {
		t.Errorf("expected promotion to admin refused, got %v", err)
	}
	u, err := f.svc.UpdateRole(ctx, staff.ID, auth.RoleHealthCenter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Role != auth.RoleHealthCenter {
		t.Errorf("expected health_center, got %s", u.Role)
	}
}

func TestUpdateStatus_BarangayHallLimitedToResidents(t *testing.T) {
	f := newFixture()
	clerk := auth.Principal{UserID: uuid.New(), Role: auth.RoleBarangayHall}
	ctx := auth.WithPrincipal(context.Background(), clerk)
	resident := f.seed(t, &User{Username: "res00001", FullName: "Juan", Email: "juan@example.com", Role: auth.RoleResident, Status: StatusPending}, "secret123")
	nurse := f.seed(t, &User{Username: "hc001", FullName: "Nurse", Email: "nurse@example.com", Role: auth.RoleHealthCenter}, "secret123")

	u, err := f.svc.UpdateStatus(ctx, resident.ID, StatusActive)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Status != StatusActive {
		t.Errorf("expected active, got %s", u.Status)
	}
	if _, err := f.svc.UpdateStatus(ctx, nurse.ID, StatusInactive); !errors.Is(err, ErrProtectedAccount) {
		t.Errorf("expected ErrProtectedAccount, got %v", err)
	}
	if _, err := f.svc.UpdateStatus(ctx, resident.ID, "banned"); !httperr.IsInvalid(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	u := f.seed(t, &User{Username: "bh001", FullName: "Clerk", Email: "clerk@example.com", Role: auth.RoleBarangayHall}, "secret123")

	res, err := f.svc.Login(ctx, "CLERK@example.com", "secret123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Token == "" || res.User.ID != u.ID {
		t.Errorf("unexpected result %+v", res)
	}
	stored, _ := f.repo.GetByID(ctx, u.ID)
	if stored.LastLogin == nil {
		t.Error("expected last_login updated")
	}

	if _, err := f.svc.Login(ctx, "bh001", "wrong"); !errors.Is(err, ErrInvalidLogin) {
		t.Errorf("expected ErrInvalidLogin, got %v", err)
	}
	if _, err := f.svc.Login(ctx, "nobody", "secret123"); !errors.Is(err, ErrInvalidLogin) {
		t.Errorf("expected ErrInvalidLogin for unknown user, got %v", err)
	}
}

func TestLogin_InactiveRefused(t *testing.T) {
	f := newFixture()
	f.seed(t, &User{Username: "res00001", FullName: "Juan", Email: "juan@example.com", Role: auth.RoleResident, Status: StatusInactive}, "secret123")
	if _, err := f.svc.Login(context.Background(), "res00001", "secret123"); !errors.Is(err, ErrInactiveAccount) {
		t.Errorf("expected ErrInactiveAccount, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	u := f.seed(t, &User{Username: "res00001", FullName: "Juan", Email: "juan@example.com", Role: auth.RoleResident}, "secret123")

	if err := f.svc.ChangePassword(ctx, u.ID, "secret123", "short"); !httperr.IsInvalid(err) {
		t.Errorf("expected length error, got %v", err)
	}
	if err := f.svc.ChangePassword(ctx, u.ID, "wrong-password", "brand-new-pass"); !httperr.IsInvalid(err) {
		t.Errorf("expected mismatch error, got %v", err)
	}
	if err := f.svc.ChangePassword(ctx, u.ID, "secret123", "brand-new-pass"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.svc.Login(ctx, "res00001", "brand-new-pass"); err != nil {
		t.Errorf("expected login with new password: %v", err)
	}
}

func TestUpdateProfile_RecomposesResidentAddress(t *testing.T) {
	f := newFixture()
	u := f.seed(t, &User{Username: "res00001", FullName: "Juan", Email: "juan@example.com", Role: auth.RoleResident,
		HouseNo: "12", Street: "Urduja St", Address: ResidentAddress("12", "Urduja St")}, "secret123")

	got, err := f.svc.UpdateProfile(context.Background(), u.ID, ProfileUpdate{HouseNo: "14", Phone: "09171234567"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Address != "14 Urduja St, Zone 15, Brgy. 172, Caloocan City" {
		t.Errorf("unexpected address %q", got.Address)
	}
	if got.Phone != "09171234567" || got.FullName != "Juan" {
		t.Errorf("unexpected profile %+v", got)
	}
}

func TestSeedAdmin(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	res, err := f.svc.SeedAdmin(ctx, "admin@barangay172.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res == nil || res.User.Username != "admin" || res.User.Role != auth.RoleAdmin {
		t.Fatalf("unexpected result %+v", res)
	}
	again, err := f.svc.SeedAdmin(ctx, "admin@barangay172.com")
	if err != nil || again != nil {
		t.Errorf("expected no-op on second seed, got %+v %v", again, err)
	}
}

func TestSeedAdmin_UsernameHeldByNonAdmin(t *testing.T) {
	f := newFixture()
	f.seed(t, &User{Username: "admin", FullName: "Not Admin", Email: "x@example.com", Role: auth.RoleResident}, "secret123")

	_, err := f.svc.SeedAdmin(context.Background(), "admin@barangay172.com")
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
	if !strings.Contains(err.Error(), `username "admin" belongs to Resident account`) {
		t.Errorf("expected message naming the holder, got %q", err.Error())
	}
	if len(f.mailer.messages) != 0 {
		t.Errorf("expected no credentials email, got %d", len(f.mailer.messages))
	}
}

func pngUpload(body string) *Upload {
	return &Upload{FileName: "doc.png", ContentType: "image/png", Body: strings.NewReader(body)}
}

func TestUploadDocuments(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	resident := f.seed(t, &User{Username: "res00001", FullName: "Juan", Email: "juan@example.com", Role: auth.RoleResident}, "secret123")

	u, err := f.svc.UploadDocuments(ctx, resident.ID, DocumentUploads{PurokEndorsement: pngUpload("endorsement")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.PurokEndorsement == "" || u.ValidID != "" {
		t.Fatalf("expected only the endorsement stored, got %+v", u)
	}
	first := u.PurokEndorsement

	u, err = f.svc.UploadDocuments(ctx, resident.ID, DocumentUploads{
		PurokEndorsement: pngUpload("endorsement v2"),
		ValidID:          pngUpload("id"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, _ := f.repo.GetByID(ctx, resident.ID)
	if stored.PurokEndorsement == first || stored.PurokEndorsement != u.PurokEndorsement || stored.ValidID != u.ValidID {
		t.Errorf("expected both columns updated, got %+v", stored)
	}
	if f.docs.Len() != 2 {
		t.Errorf("expected replaced blob removed leaving 2, got %d", f.docs.Len())
	}
	rc, meta, err := f.svc.Document(ctx, resident.ID, DocValidID)
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	rc.Close()
	if meta.Category != DocValidID || meta.OwnerID != resident.ID.String() {
		t.Errorf("unexpected metadata %+v", meta)
	}
	if got := f.recorder.actions; len(got) != 2 || got[1] != "documents_uploaded" {
		t.Errorf("unexpected activity %v", got)
	}
}

func TestUploadDocuments_Rejections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	resident := f.seed(t, &User{Username: "res00001", FullName: "Juan", Email: "juan@example.com", Role: auth.RoleResident}, "secret123")
	clerk := f.seed(t, &User{Username: "bh001", FullName: "Clerk", Email: "clerk@example.com", Role: auth.RoleBarangayHall}, "secret123")

	if _, err := f.svc.UploadDocuments(ctx, resident.ID, DocumentUploads{}); !httperr.IsInvalid(err) {
		t.Errorf("expected validation error for no files, got %v", err)
	}
	if _, err := f.svc.UploadDocuments(ctx, clerk.ID, DocumentUploads{ValidID: pngUpload("id")}); !errors.Is(err, ErrNotResident) {
		t.Errorf("expected ErrNotResident, got %v", err)
	}
	bad := &Upload{FileName: "doc.exe", ContentType: "application/octet-stream", Body: strings.NewReader("x")}
	if _, err := f.svc.UploadDocuments(ctx, resident.ID, DocumentUploads{PurokEndorsement: pngUpload("ok"), ValidID: bad}); !errors.Is(err, blobstore.ErrInvalidContentType) {
		t.Errorf("expected ErrInvalidContentType, got %v", err)
	}
	if f.docs.Len() != 0 {
		t.Errorf("expected partial upload cleaned up, got %d blobs", f.docs.Len())
	}
	if _, _, err := f.svc.Document(ctx, resident.ID, DocValidID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected ErrNotFound for a missing document, got %v", err)
	}
}

func TestVerify(t *testing.T) {
	f := newFixture()
	clerk := auth.Principal{UserID: uuid.New(), Role: auth.RoleBarangayHall}
	ctx := auth.WithPrincipal(context.Background(), clerk)
	resident := f.seed(t, &User{Username: "res00001", FullName: "Juan", Email: "juan@example.com", Role: auth.RoleResident, Status: StatusPending}, "secret123")
	nurse := f.seed(t, &User{Username: "hc001", FullName: "Nurse", Email: "nurse@example.com", Role: auth.RoleHealthCenter}, "secret123")

	if _, err := f.svc.Verify(ctx, resident.ID); !httperr.IsInvalid(err) {
		t.Fatalf("expected validation error without documents, got %v", err)
	}
	if _, err := f.svc.UploadDocuments(ctx, resident.ID, DocumentUploads{PurokEndorsement: pngUpload("e"), ValidID: pngUpload("i")}); err != nil {
		t.Fatal(err)
	}
	u, err := f.svc.Verify(ctx, resident.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.VerifiedAt == nil || u.Status != StatusActive {
		t.Errorf("expected verified active account, got %+v", u)
	}
	if _, err := f.svc.Verify(ctx, resident.ID); !errors.Is(err, ErrAlreadyVerified) {
		t.Errorf("expected ErrAlreadyVerified, got %v", err)
	}
	if _, err := f.svc.UploadDocuments(ctx, resident.ID, DocumentUploads{ValidID: pngUpload("again")}); !errors.Is(err, ErrAlreadyVerified) {
		t.Errorf("expected uploads refused once verified, got %v", err)
	}
	if _, err := f.svc.Verify(ctx, nurse.ID); !errors.Is(err, ErrNotResident) {
		t.Errorf("expected ErrNotResident, got %v", err)
	}
}

func TestUser_Documents(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	verified := created.Add(48 * time.Hour)
	tests := []struct {
		name  string
		user  User
		now   time.Time
		state string
		days  int
	}{
		{"fresh", User{}, created.Add(time.Hour), DocStateSafe, 30},
		{"warning", User{}, created.Add(21 * 24 * time.Hour), DocStateWarning, 9},
		{"critical", User{ValidID: "v"}, created.Add(26 * 24 * time.Hour), DocStateCritical, 4},
		{"expired", User{}, created.Add(31 * 24 * time.Hour), DocStateExpired, 0},
		{"both uploaded", User{PurokEndorsement: "p", ValidID: "v"}, created.Add(40 * 24 * time.Hour), DocStatePending, 0},
		{"verified", User{PurokEndorsement: "p", ValidID: "v", VerifiedAt: &verified}, created.Add(40 * 24 * time.Hour), DocStateVerified, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := tt.user
			u.Role, u.CreatedAt = auth.RoleResident, created
			ds := u.Documents(tt.now)
			if ds.State != tt.state || ds.DaysRemaining != tt.days {
				t.Errorf("expected %s/%d, got %s/%d", tt.state, tt.days, ds.State, ds.DaysRemaining)
			}
			if !ds.Deadline.Equal(created.Add(DocumentDeadline)) {
				t.Errorf("unexpected deadline %v", ds.Deadline)
			}
		})
	}
	staff := User{Role: auth.RoleBarangayHall}
	if staff.Documents(created) != nil {
		t.Error("expected no document status for staff")
	}
}

func TestList_InvalidFilter(t *testing.T) {
	f := newFixture()
	if _, _, err := f.svc.List(context.Background(), Filter{Role: "superuser"}, 10, 0); !httperr.IsInvalid(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestNextUsername(t *testing.T) {
	tests := []struct {
		taken []string
		skip  map[string]bool
		want  string
	}{
		{nil, nil, "bh001"},
		{[]string{"bh001", "bh002"}, nil, "bh003"},
		{[]string{"bh001", "bh003"}, nil, "bh002"},
		{[]string{"bh001", "bhx02", "hc002"}, nil, "bh002"},
		{[]string{"bh001"}, map[string]bool{"bh002": true}, "bh003"},
		{[]string{"bh999"}, nil, "bh001"},
	}
	for _, tt := range tests {
		if got := NextUsername("bh", 3, tt.taken, tt.skip); got != tt.want {
			t.Errorf("NextUsername(%v) = %s, want %s", tt.taken, got, tt.want)
		}
	}
	if got := NextUsername("bh", 3, []string{"bh1000"}, map[string]bool{"bh001": true}); got != "bh002" {
		t.Errorf("got %s", got)
	}
}
