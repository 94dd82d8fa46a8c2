package notification

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/barangay172/portal/internal/platform/db"
)

// -- Mock Repository --

type mockOutboxRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*OutboxEmail
}

func newMockOutboxRepo() *mockOutboxRepo {
	return &mockOutboxRepo{items: make(map[uuid.UUID]*OutboxEmail)}
}

func (m *mockOutboxRepo) Create(_ context.Context, e *OutboxEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	cp := *e
	m.items[e.ID] = &cp
	return nil
}

func (m *mockOutboxRepo) GetByID(_ context.Context, id uuid.UUID) (*OutboxEmail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *mockOutboxRepo) MarkSent(_ context.Context, id uuid.UUID, provider string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[id]
	if !ok {
		return db.ErrNotFound
	}
	e.Status = StatusSent
	e.SealedBody = nil
	e.Provider = &provider
	e.SentAt = &at
	e.Attempts++
	e.LastError = nil
	return nil
}

func (m *mockOutboxRepo) MarkAttemptFailed(_ context.Context, id uuid.UUID, attempts int, lastError, status string, next time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.items[id]
	e.Attempts = attempts
	e.LastError = &lastError
	e.Status = status
	e.NextAttemptAt = next
	return nil
}

func (m *mockOutboxRepo) ClaimDue(_ context.Context, now time.Time, lease time.Duration, limit int) ([]*OutboxEmail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*OutboxEmail
	for _, e := range m.items {
		if e.Status == StatusPending && !e.NextAttemptAt.After(now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextAttemptAt.Before(due[j].NextAttemptAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]*OutboxEmail, len(due))
	for i, e := range due {
		e.NextAttemptAt = now.Add(lease)
		cp := *e
		out[i] = &cp
	}
	return out, nil
}

func (m *mockOutboxRepo) Claim(_ context.Context, id uuid.UUID, now time.Time, lease time.Duration) (*OutboxEmail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[id]
	if !ok || e.Status != StatusPending || e.NextAttemptAt.After(now) {
		return nil, db.ErrNotFound
	}
	e.NextAttemptAt = now.Add(lease)
	cp := *e
	return &cp, nil
}

func (m *mockOutboxRepo) Requeue(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[id]
	if !ok || e.Status == StatusSent {
		return db.ErrNotFound
	}
	e.Status = StatusPending
	e.NextAttemptAt = at
	return nil
}

func (m *mockOutboxRepo) List(_ context.Context, status string, limit, offset int) ([]*OutboxEmail, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*OutboxEmail
	for _, e := range m.items {
		if status == "" || e.Status == status {
			result = append(result, e)
		}
	}
	return result, len(result), nil
}

// -- Helpers --

var testKey = []byte("0123456789abcdef0123456789abcdef")

type fixture struct {
	repo     *mockOutboxRepo
	primary  *MockEmailSender
	fallback *MockEmailSender
	outbox   *Outbox
	clock    time.Time
}

func newFixture(t *testing.T, enabled bool) *fixture {
	t.Helper()
	sealer, err := NewSealer(testKey)
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	f := &fixture{
		repo:     newMockOutboxRepo(),
		primary:  &MockEmailSender{SenderName: "smtp", FailError: "connection refused"},
		fallback: &MockEmailSender{SenderName: "sendgrid", FailError: "status 401"},
		clock:    time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	f.outbox = NewOutbox(f.repo, sealer, NewFallbackSender(f.primary, f.fallback), NewTemplateEngine(),
		OutboxConfig{
			Enabled:     enabled,
			MaxAttempts: 3,
			BatchSize:   10,
			Defaults: map[string]string{
				"system_name":   "Barangay 172 Urduja Management System",
				"barangay_name": "Barangay 172 Urduja",
				"login_url":     "https://portal.example/login",
			},
		}, zerolog.Nop())
	f.outbox.now = func() time.Time { return f.clock }
	return f
}

func credentialsMessage() Message {
	return Message{
		To:       "maria@example.com",
		ToName:   "Maria Santos",
		Template: TemplateCredentials,
		Data: map[string]string{
			"full_name": "Maria Santos",
			"username":  "hc001",
			"password":  "Xy7!abcd",
			"role":      "Health Center Staff",
		},
	}
}

// -- Tests --

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{-1, time.Minute},
		{0, time.Minute},
		{1, 2 * time.Minute},
		{3, 8 * time.Minute},
		{8, 256 * time.Minute},
		{9, 6 * time.Hour},
		{40, 6 * time.Hour},
	}
	for _, tt := range tests {
		if got := Backoff(tt.attempts); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestEnqueue_SealsBody(t *testing.T) {
	f := newFixture(t, true)
	e, err := f.outbox.Enqueue(context.Background(), credentialsMessage())
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	stored, _ := f.repo.GetByID(context.Background(), e.ID)
	if stored.Status != StatusPending {
		t.Errorf("expected pending, got %s", stored.Status)
	}
	if stored.SealedBody == nil || strings.Contains(*stored.SealedBody, "Xy7!abcd") {
		t.Fatal("stored body must be sealed")
	}
	if stored.Subject != "Your Barangay 172 Urduja Management System Account" {
		t.Errorf("unexpected subject %q", stored.Subject)
	}
}

func TestEnqueue_InvalidRecipient(t *testing.T) {
	f := newFixture(t, true)
	msg := credentialsMessage()
	msg.To = "not-an-email"
	if _, err := f.outbox.Enqueue(context.Background(), msg); !errors.Is(err, ErrInvalidRecipient) {
		t.Errorf("expected ErrInvalidRecipient, got %v", err)
	}
}

func TestEnqueue_UnknownTemplate(t *testing.T) {
	f := newFixture(t, true)
	msg := credentialsMessage()
	msg.Template = "missing"
	if _, err := f.outbox.Enqueue(context.Background(), msg); err == nil {
		t.Error("expected error for unknown template")
	}
}

func TestDeliver_PrimarySucceeds(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	e, _ := f.outbox.Enqueue(ctx, credentialsMessage())

	got, err := f.outbox.Deliver(ctx, e.ID)
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if !got.Delivered() || *got.Provider != "smtp" {
		t.Fatalf("expected sent via smtp, got %s", got.Status)
	}
	calls := f.primary.Calls()
	if len(calls) != 1 || !strings.Contains(calls[0].Body, "Username: hc001") || !strings.Contains(calls[0].Body, "Password: Xy7!abcd") {
		t.Errorf("unexpected delivered body: %+v", calls)
	}
	if len(f.fallback.Calls()) != 0 {
		t.Error("fallback must not be used when primary succeeds")
	}

	stored, _ := f.repo.GetByID(ctx, e.ID)
	if stored.SealedBody != nil {
		t.Error("body must be cleared after delivery")
	}
}

func TestDeliver_FallsBackToSecondary(t *testing.T) {
	f := newFixture(t, true)
	f.primary.ShouldFail = true
	ctx := context.Background()
	e, _ := f.outbox.Enqueue(ctx, credentialsMessage())

	got, err := f.outbox.Deliver(ctx, e.ID)
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if !got.Delivered() || *got.Provider != "sendgrid" {
		t.Errorf("expected sent via sendgrid, got %s", got.Status)
	}
}

func TestDeliver_AllFail_SchedulesRetry(t *testing.T) {
	f := newFixture(t, true)
	f.primary.ShouldFail = true
	f.fallback.ShouldFail = true
	ctx := context.Background()
	e, _ := f.outbox.Enqueue(ctx, credentialsMessage())

	got, err := f.outbox.Deliver(ctx, e.ID)
	if err != nil {
		t.Fatalf("provider failures must not surface as errors: %v", err)
	}
	if got.Status != StatusPending || got.Attempts != 1 {
		t.Errorf("expected pending after 1 attempt, got %s/%d", got.Status, got.Attempts)
	}
	if !got.NextAttemptAt.Equal(f.clock.Add(time.Minute)) {
		t.Errorf("expected retry in 1m, got %v", got.NextAttemptAt)
	}
	if got.LastError == nil || !strings.Contains(*got.LastError, "connection refused") || !strings.Contains(*got.LastError, "status 401") {
		t.Errorf("expected both provider errors, got %v", got.LastError)
	}
	stored, _ := f.repo.GetByID(ctx, e.ID)
	if stored.SealedBody == nil {
		t.Error("body must be kept for retry")
	}
}

func TestDeliver_Disabled_StaysQueued(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	e, _ := f.outbox.Enqueue(ctx, credentialsMessage())

	got, err := f.outbox.Deliver(ctx, e.ID)
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if got.Status != StatusPending || got.Attempts != 0 {
		t.Errorf("expected untouched pending row, got %s/%d", got.Status, got.Attempts)
	}
	if len(f.primary.Calls()) != 0 {
		t.Error("no provider may be called while email is disabled")
	}
}

func TestDeliver_SwitchedOffStaysQueued(t *testing.T) {
	f := newFixture(t, true)
	on := false
	f.outbox.cfg.Switch = func(context.Context) bool { return on }
	ctx := context.Background()
	e, _ := f.outbox.Enqueue(ctx, credentialsMessage())

	got, err := f.outbox.Deliver(ctx, e.ID)
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if got.Status != StatusPending || got.Attempts != 0 {
		t.Errorf("expected untouched pending row, got %s/%d", got.Status, got.Attempts)
	}
	if sent, failed, err := f.outbox.RetryDue(ctx); err != nil || sent+failed != 0 {
		t.Errorf("RetryDue must skip while switched off: sent=%d failed=%d err=%v", sent, failed, err)
	}
	if len(f.primary.Calls()) != 0 {
		t.Fatal("no provider may be called while the switch is off")
	}

	on = true
	if sent, _, err := f.outbox.RetryDue(ctx); err != nil || sent != 1 {
		t.Errorf("expected the queued message sent once switched on, got %d (%v)", sent, err)
	}
}

func TestDeliver_SkipsRowLeasedByWorker(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	e, _ := f.outbox.Enqueue(ctx, credentialsMessage())

	if _, err := f.repo.ClaimDue(ctx, f.clock, claimLease, 10); err != nil {
		t.Fatal(err)
	}
	got, err := f.outbox.Deliver(ctx, e.ID)
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if got.Status != StatusPending || got.Attempts != 0 {
		t.Errorf("expected the leased row untouched, got %s/%d", got.Status, got.Attempts)
	}
	if len(f.primary.Calls()) != 0 {
		t.Error("a leased row must not be sent by Deliver")
	}
}

func TestDeliver_RacesRetryDue_SendsOnce(t *testing.T) {
	for i := 0; i < 50; i++ {
		f := newFixture(t, true)
		ctx := context.Background()
		e, _ := f.outbox.Enqueue(ctx, credentialsMessage())

		var wg sync.WaitGroup
		start := make(chan struct{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			if _, err := f.outbox.Deliver(ctx, e.ID); err != nil {
				t.Errorf("Deliver: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			<-start
			if _, _, err := f.outbox.RetryDue(ctx); err != nil {
				t.Errorf("RetryDue: %v", err)
			}
		}()
		close(start)
		wg.Wait()

		if n := len(f.primary.Calls()); n != 1 {
			t.Fatalf("run %d: expected exactly one send, got %d", i, n)
		}
		stored, _ := f.repo.GetByID(ctx, e.ID)
		if !stored.Delivered() || stored.Attempts != 1 {
			t.Fatalf("run %d: expected sent after one attempt, got %s/%d", i, stored.Status, stored.Attempts)
		}
	}
}

func TestDeliver_TamperedBodyFailsPermanently(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	a, _ := f.outbox.Enqueue(ctx, credentialsMessage())
	b, _ := f.outbox.Enqueue(ctx, credentialsMessage())

	// Body sealed for row a moved onto row b.
	f.repo.items[b.ID].SealedBody = f.repo.items[a.ID].SealedBody

	got, err := f.outbox.Deliver(ctx, b.ID)
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if got.Status != StatusFailed {
		t.Errorf("expected failed, got %s", got.Status)
	}
	if len(f.primary.Calls()) != 0 {
		t.Error("tampered message must not be sent")
	}
}

func TestRetryDue_BacksOffAndGivesUp(t *testing.T) {
	f := newFixture(t, true)
	f.primary.ShouldFail = true
	f.fallback.ShouldFail = true
	ctx := context.Background()
	e, _ := f.outbox.Enqueue(ctx, credentialsMessage())

	wantDelays := []time.Duration{time.Minute, 2 * time.Minute}
	for i, delay := range wantDelays {
		before := f.clock
		if _, failed, err := f.outbox.RetryDue(ctx); err != nil || failed != 1 {
			t.Fatalf("run %d: failed=%d err=%v", i, failed, err)
		}
		stored, _ := f.repo.GetByID(ctx, e.ID)
		if !stored.NextAttemptAt.Equal(before.Add(delay)) {
			t.Errorf("run %d: expected next attempt +%v, got %v", i, delay, stored.NextAttemptAt.Sub(before))
		}

		// Not due yet.
		if _, failed, _ := f.outbox.RetryDue(ctx); failed != 0 {
			t.Errorf("run %d: message retried before its backoff elapsed", i)
		}
		f.clock = stored.NextAttemptAt
	}

	if _, _, err := f.outbox.RetryDue(ctx); err != nil {
		t.Fatalf("final run: %v", err)
	}
	stored, _ := f.repo.GetByID(ctx, e.ID)
	if stored.Status != StatusFailed || stored.Attempts != 3 {
		t.Errorf("expected failed after 3 attempts, got %s/%d", stored.Status, stored.Attempts)
	}
}

func TestRetryDue_DeliversWhenProviderRecovers(t *testing.T) {
	f := newFixture(t, true)
	f.primary.ShouldFail = true
	f.fallback.ShouldFail = true
	ctx := context.Background()
	e, _ := f.outbox.Enqueue(ctx, credentialsMessage())
	f.outbox.Deliver(ctx, e.ID)

	f.primary.ShouldFail = false
	f.clock = f.clock.Add(2 * time.Minute)
	sent, _, err := f.outbox.RetryDue(ctx)
	if err != nil || sent != 1 {
		t.Fatalf("expected 1 sent, got %d (%v)", sent, err)
	}
}

func TestRetry_ManualIgnoresBackoff(t *testing.T) {
	f := newFixture(t, true)
	f.primary.ShouldFail = true
	f.fallback.ShouldFail = true
	ctx := context.Background()
	e, _ := f.outbox.Enqueue(ctx, credentialsMessage())
	f.outbox.Deliver(ctx, e.ID)

	f.fallback.ShouldFail = false
	got, err := f.outbox.Retry(ctx, e.ID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if !got.Delivered() {
		t.Errorf("expected sent, got %s", got.Status)
	}
}

func TestRetry_NotFound(t *testing.T) {
	f := newFixture(t, true)
	if _, err := f.outbox.Retry(context.Background(), uuid.New()); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestList_InvalidStatus(t *testing.T) {
	f := newFixture(t, true)
	if _, _, err := f.outbox.List(context.Background(), "bounced", 10, 0); err == nil {
		t.Error("expected error for invalid status")
	}
}

func TestSendTest(t *testing.T) {
	f := newFixture(t, true)
	got, err := f.outbox.SendTest(context.Background(), "admin@barangay172.com")
	if err != nil {
		t.Fatalf("SendTest: %v", err)
	}
	if !got.Delivered() || got.Template != TemplateTest {
		t.Errorf("unexpected result %+v", got)
	}
}
