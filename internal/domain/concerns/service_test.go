package concerns

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/barangay172/portal/internal/domain/activity"
	"github.com/barangay172/portal/internal/platform/auth"
	"github.com/barangay172/portal/internal/platform/db"
	"github.com/barangay172/portal/internal/platform/httperr"
)

type mockRepo struct {
	items map[uuid.UUID]*Concern
}

func (m *mockRepo) Create(_ context.Context, c *Concern) error {
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	m.items[c.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Concern, error) {
	c, ok := m.items[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockRepo) SetStatus(_ context.Context, id uuid.UUID, ch Change) error {
	c, ok := m.items[id]
	if !ok || !lo.Contains(ch.From, c.Status) {
		return ErrInvalidTransition
	}
	c.Status = ch.Status
	if ch.AdminResponse != "" {
		c.AdminResponse = ch.AdminResponse
	}
	if ch.Priority != "" {
		c.Priority = ch.Priority
	}
	by := ch.RespondedBy
	c.RespondedBy = &by
	if ch.ResolvedAt != nil {
		c.ResolvedAt = ch.ResolvedAt
	}
	return nil
}

func (m *mockRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Concern, int, error) {
	var out []*Concern
	for _, c := range m.items {
		if (f.UserID != "" && c.UserID.String() != f.UserID) || (f.Status != "" && c.Status != f.Status) {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(c.Title), strings.ToLower(f.Search)) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, len(out), nil
}

type passthroughTx struct{}

func (passthroughTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeRecorder struct{ actions []string }

func (f *fakeRecorder) Record(_ context.Context, actionType, _ string, _ *activity.Target) error {
	f.actions = append(f.actions, actionType)
	return nil
}

type fakeNotifier struct{ messages []string }

func (f *fakeNotifier) Notify(_ context.Context, _ uuid.UUID, _ string, _ uuid.UUID, _, message string) {
	f.messages = append(f.messages, message)
}

type fixture struct {
	svc      *Service
	recorder *fakeRecorder
	notifier *fakeNotifier
	resident auth.Principal
	staff    auth.Principal
	now      time.Time
}

func newFixture() *fixture {
	f := &fixture{
		recorder: &fakeRecorder{},
		notifier: &fakeNotifier{},
		resident: auth.Principal{UserID: uuid.New(), Role: auth.RoleResident},
		staff:    auth.Principal{UserID: uuid.New(), Role: auth.RoleBarangayHall},
		now:      time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(&mockRepo{items: make(map[uuid.UUID]*Concern)}, passthroughTx{}, f.recorder, f.notifier)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) residentCtx() context.Context {
	return auth.WithPrincipal(context.Background(), f.resident)
}

func (f *fixture) staffCtx() context.Context {
	return auth.WithPrincipal(context.Background(), f.staff)
}

func (f *fixture) report(t *testing.T) *Concern {
	t.Helper()
	c, err := f.svc.Report(f.residentCtx(), ReportInput{
		ConcernType: "street_lighting",
		Title:       "Broken street light",
		Description: "The light on Urduja St. has been out for a week.",
		Location:    "Urduja St.",
	})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	return c
}

func TestReport_Defaults(t *testing.T) {
	f := newFixture()
	c := f.report(t)
	if c.Status != StatusReported || c.Priority != "medium" || c.UserID != f.resident.UserID {
		t.Errorf("unexpected concern %+v", c)
	}
}

func TestReport_Validation(t *testing.T) {
	f := newFixture()
	cases := []ReportInput{
		{ConcernType: "flooding", Title: "t", Description: "d"},
		{ConcernType: "security", Description: "d"},
		{ConcernType: "security", Title: "t"},
		{ConcernType: "security", Title: "t", Description: "d", Priority: "critical"},
	}
	for i, in := range cases {
		if _, err := f.svc.Report(f.residentCtx(), in); !httperr.IsInvalid(err) {
			t.Errorf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestRespond_ResolveStampsResolvedAt(t *testing.T) {
	f := newFixture()
	c := f.report(t)
	ctx := f.staffCtx()

	got, err := f.svc.Respond(ctx, c.ID, respondWith(StatusAcknowledged, "", "high"))
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if got.Priority != "high" || got.ResolvedAt != nil {
		t.Errorf("unexpected concern %+v", got)
	}
	if _, err := f.svc.Respond(ctx, c.ID, respondWith(StatusResolved, "", "")); !httperr.IsInvalid(err) {
		t.Errorf("resolving requires a response, got %v", err)
	}
	got, err = f.svc.Respond(ctx, c.ID, respondWith(StatusResolved, "Bulb replaced", ""))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ResolvedAt == nil || !got.ResolvedAt.Equal(f.now) || got.AdminResponse != "Bulb replaced" {
		t.Errorf("unexpected concern %+v", got)
	}
	if got.RespondedBy == nil || *got.RespondedBy != f.staff.UserID {
		t.Errorf("expected responder recorded, got %v", got.RespondedBy)
	}
	if len(f.notifier.messages) != 2 || f.notifier.messages[1] != `Your concern "Broken street light" has been resolved.` {
		t.Errorf("unexpected notifications %v", f.notifier.messages)
	}
	if strings.Join(f.recorder.actions, ",") != "concern_acknowledged,concern_resolved" {
		t.Errorf("unexpected activity %v", f.recorder.actions)
	}
}

func TestRespond_InvalidTransitions(t *testing.T) {
	f := newFixture()
	c := f.report(t)
	ctx := f.staffCtx()
	if _, err := f.svc.Respond(ctx, c.ID, respondWith(StatusResolved, "done", "")); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("reported cannot be resolved directly, got %v", err)
	}
	if _, err := f.svc.Respond(ctx, c.ID, respondWith(StatusReported, "", "")); !httperr.IsInvalid(err) {
		t.Errorf("reported is not a target status, got %v", err)
	}
	if _, err := f.svc.Respond(ctx, c.ID, respondWith(StatusClosed, "Duplicate report", "")); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := f.svc.Respond(ctx, c.ID, respondWith(StatusInProgress, "", "")); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("closed is final, got %v", err)
	}
}

func TestList_ResidentScope(t *testing.T) {
	f := newFixture()
	f.report(t)
	other := auth.WithPrincipal(context.Background(), auth.Principal{UserID: uuid.New(), Role: auth.RoleResident})
	if _, total, _ := f.svc.List(other, Filter{}, 10, 0); total != 0 {
		t.Errorf("expected no concerns for another resident, got %d", total)
	}
	if _, total, _ := f.svc.List(f.staffCtx(), Filter{}, 10, 0); total != 1 {
		t.Errorf("expected staff to see the concern, got %d", total)
	}
}

func respondWith(status, response, priority string) RespondInput {
	return RespondInput{Status: status, AdminResponse: response, Priority: priority}
}
