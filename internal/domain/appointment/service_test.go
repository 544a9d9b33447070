package appointment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/platform/db"
)

type mockRepo struct {
	mu      sync.Mutex
	appts   map[uuid.UUID]*Appointment
	updates int
}

func newMockRepo() *mockRepo {
	return &mockRepo{appts: make(map[uuid.UUID]*Appointment)}
}

func scopeMatches(scope db.Scope, tenantID *string) bool {
	if scope.IsAny() {
		return true
	}
	if tid, ok := scope.TenantID(); ok {
		return tenantID != nil && *tenantID == tid
	}
	return tenantID == nil
}

func (m *mockRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.New()
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, scope db.Scope, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || !scopeMatches(scope, a.TenantID) {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.appts[a.ID]; !ok {
		return pgx.ErrNoRows
	}
	m.updates++
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockRepo) List(_ context.Context, scope db.Scope, filter ListFilter, limit, offset int) ([]*Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []*Appointment
	for _, a := range m.appts {
		if !scopeMatches(scope, a.TenantID) {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.PatientID != uuid.Nil && a.PatientID != filter.PatientID {
			continue
		}
		cp := *a
		items = append(items, &cp)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	total := len(items)
	if offset > len(items) {
		offset = len(items)
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items, total, nil
}

func (m *mockRepo) FindMostRecentActiveByPatient(_ context.Context, scope db.Scope, patientID uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *Appointment
	for _, a := range m.appts {
		if !scopeMatches(scope, a.TenantID) || a.PatientID != patientID || IsTerminalStatus(a.Status) {
			continue
		}
		if best == nil || laterWhen(a, best) {
			best = a
		}
	}
	if best == nil {
		return nil, pgx.ErrNoRows
	}
	cp := *best
	return &cp, nil
}

func laterWhen(a, b *Appointment) bool {
	aw, bw := a.When(), b.When()
	if aw == nil {
		return false
	}
	if bw == nil {
		return true
	}
	return aw.After(*bw)
}

func (m *mockRepo) CloseOpenAppointments(_ context.Context, scope db.Scope, dayStart, dayEnd time.Time, status string, now time.Time) (CloseResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res CloseResult
	for _, a := range m.appts {
		if !scopeMatches(scope, a.TenantID) {
			continue
		}
		if a.Status != StatusPending && a.Status != StatusScheduled && a.Status != StatusConfirmed {
			continue
		}
		w := a.When()
		if w == nil || w.Before(dayStart) || !w.Before(dayEnd) {
			continue
		}
		res.Matched++
		a.Status = status
		t := now
		if status == StatusCancelled {
			a.CancelledAt = &t
		} else {
			a.CompletedAt = &t
		}
		res.Updated++
	}
	return res, nil
}

func (m *mockRepo) ListDueForReminder(_ context.Context, scope db.Scope, from, to time.Time, limit int) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []*Appointment
	for _, a := range m.appts {
		if !scopeMatches(scope, a.TenantID) || a.ReminderSent {
			continue
		}
		if a.Status != StatusScheduled && a.Status != StatusConfirmed {
			continue
		}
		w := a.When()
		if w == nil || w.Before(from) || !w.Before(to) {
			continue
		}
		cp := *a
		items = append(items, &cp)
		if len(items) >= limit {
			break
		}
	}
	return items, nil
}

type recordingPropagator struct {
	calls []string
	err   error
}

func (p *recordingPropagator) AppointmentStatusChanged(_ context.Context, a *Appointment) error {
	p.calls = append(p.calls, a.Status)
	return p.err
}

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	return NewService(repo, zerolog.Nop()), repo
}

func createScheduled(t *testing.T, svc *Service, ctx context.Context) *Appointment {
	t.Helper()
	when := time.Now().Add(2 * time.Hour)
	a := &Appointment{PatientID: uuid.New(), ScheduledAt: &when}
	if err := svc.Create(ctx, a); err != nil {
		t.Fatalf("create appointment: %v", err)
	}
	return a
}

func TestCreateDefaultsToScheduled(t *testing.T) {
	svc, _ := newTestService()
	a := createScheduled(t, svc, context.Background())
	if a.Status != StatusScheduled {
		t.Errorf("expected scheduled, got %s", a.Status)
	}
}

func TestCreateRequiresDate(t *testing.T) {
	svc, _ := newTestService()
	err := svc.Create(context.Background(), &Appointment{PatientID: uuid.New()})
	if err == nil {
		t.Error("expected error for missing date")
	}
}

func TestCreateAcceptsLegacyDateOnly(t *testing.T) {
	svc, _ := newTestService()
	date := time.Date(2026, 8, 27, 0, 0, 0, 0, time.Local)
	a := &Appointment{PatientID: uuid.New(), AppointmentDate: &date}
	if err := svc.Create(context.Background(), a); err != nil {
		t.Fatalf("legacy date-only appointment rejected: %v", err)
	}
}

func TestUpdateStatusPropagatesAndSuppresses(t *testing.T) {
	svc, _ := newTestService()
	prop := &recordingPropagator{}
	svc.SetPropagator(prop)

	a := createScheduled(t, svc, context.Background())
	if _, err := svc.UpdateStatus(context.Background(), a.ID, StatusCancelled, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prop.calls) != 1 || prop.calls[0] != StatusCancelled {
		t.Errorf("expected one propagation, got %v", prop.calls)
	}

	b := createScheduled(t, svc, context.Background())
	if _, err := svc.UpdateStatus(context.Background(), b.ID, StatusCancelled, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prop.calls) != 1 {
		t.Error("suppressed update must not propagate")
	}
}

func TestUpdateStatusSameStatusNoWrite(t *testing.T) {
	svc, repo := newTestService()
	prop := &recordingPropagator{}
	svc.SetPropagator(prop)

	a := createScheduled(t, svc, context.Background())
	before := repo.updates
	if _, err := svc.UpdateStatus(context.Background(), a.ID, StatusScheduled, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.updates != before || len(prop.calls) != 0 {
		t.Error("same-status update must be a pure no-op")
	}
}

func TestUpdateStatusPropagationFailureSwallowed(t *testing.T) {
	svc, _ := newTestService()
	svc.SetPropagator(&recordingPropagator{err: errors.New("store unavailable")})

	a := createScheduled(t, svc, context.Background())
	updated, err := svc.UpdateStatus(context.Background(), a.ID, StatusCompleted, false)
	if err != nil {
		t.Fatalf("propagation failure must not surface: %v", err)
	}
	if updated.Status != StatusCompleted || updated.CompletedAt == nil {
		t.Errorf("primary mutation must stand: %+v", updated)
	}
}

func TestTenantIsolation(t *testing.T) {
	svc, _ := newTestService()
	ctxA := db.WithScope(context.Background(), db.TenantScope("clinic-a"))
	ctxB := db.WithScope(context.Background(), db.TenantScope("clinic-b"))

	a := createScheduled(t, svc, ctxA)
	if _, err := svc.Get(ctxB, a.ID); err == nil {
		t.Error("tenant B must not see tenant A's appointment")
	}
	if _, err := svc.Get(ctxA, a.ID); err != nil {
		t.Errorf("tenant A must see its own appointment: %v", err)
	}
}
