package cleanup

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/domain/appointment"
	"github.com/clinicdesk/clinicdesk/internal/domain/queue"
	"github.com/clinicdesk/clinicdesk/internal/platform/db"
)

func scopeMatches(scope db.Scope, tenantID *string) bool {
	if scope.IsAny() {
		return true
	}
	if tid, ok := scope.TenantID(); ok {
		return tenantID != nil && *tenantID == tid
	}
	return tenantID == nil
}

type queueStore struct {
	entries   map[uuid.UUID]*queue.QueueEntry
	failClose error
}

func newQueueStore() *queueStore {
	return &queueStore{entries: make(map[uuid.UUID]*queue.QueueEntry)}
}

func (s *queueStore) add(tenantID *string, status string, queuedAt time.Time) *queue.QueueEntry {
	e := &queue.QueueEntry{
		ID:        uuid.New(),
		TenantID:  tenantID,
		PatientID: uuid.New(),
		Status:    status,
		QueuedAt:  queuedAt,
	}
	s.entries[e.ID] = e
	return e
}

func (s *queueStore) Create(_ context.Context, e *queue.QueueEntry) error { return nil }

func (s *queueStore) GetByID(_ context.Context, _ db.Scope, _ uuid.UUID) (*queue.QueueEntry, error) {
	return nil, pgx.ErrNoRows
}

func (s *queueStore) Update(_ context.Context, _ *queue.QueueEntry) error { return nil }

func (s *queueStore) List(context.Context, db.Scope, queue.ListFilter, int, int) ([]*queue.QueueEntry, int, error) {
	return nil, 0, nil
}

func (s *queueStore) FindMostRecentActiveByPatient(context.Context, db.Scope, uuid.UUID) (*queue.QueueEntry, error) {
	return nil, pgx.ErrNoRows
}

func (s *queueStore) FindActiveByAppointment(context.Context, db.Scope, uuid.UUID) (*queue.QueueEntry, error) {
	return nil, pgx.ErrNoRows
}

func (s *queueStore) CloseOpenEntries(_ context.Context, scope db.Scope, dayStart, dayEnd time.Time, status, notes string, now time.Time) (queue.CloseResult, error) {
	if s.failClose != nil {
		return queue.CloseResult{}, s.failClose
	}
	var res queue.CloseResult
	for _, e := range s.entries {
		if !scopeMatches(scope, e.TenantID) || queue.IsTerminalStatus(e.Status) {
			continue
		}
		if e.QueuedAt.Before(dayStart) || !e.QueuedAt.Before(dayEnd) {
			continue
		}
		res.Matched++
		e.Status = status
		t := now
		n := notes
		e.CompletedAt = &t
		e.CompletionNotes = &n
		res.Updated++
	}
	return res, nil
}

type apptStore struct {
	appts     map[uuid.UUID]*appointment.Appointment
	failClose error
}

func newApptStore() *apptStore {
	return &apptStore{appts: make(map[uuid.UUID]*appointment.Appointment)}
}

func (s *apptStore) add(tenantID *string, status string, when time.Time) *appointment.Appointment {
	a := &appointment.Appointment{
		ID:          uuid.New(),
		TenantID:    tenantID,
		PatientID:   uuid.New(),
		Status:      status,
		ScheduledAt: &when,
	}
	s.appts[a.ID] = a
	return a
}

func (s *apptStore) Create(_ context.Context, _ *appointment.Appointment) error { return nil }

func (s *apptStore) GetByID(context.Context, db.Scope, uuid.UUID) (*appointment.Appointment, error) {
	return nil, pgx.ErrNoRows
}

func (s *apptStore) Update(_ context.Context, _ *appointment.Appointment) error { return nil }

func (s *apptStore) List(context.Context, db.Scope, appointment.ListFilter, int, int) ([]*appointment.Appointment, int, error) {
	return nil, 0, nil
}

func (s *apptStore) FindMostRecentActiveByPatient(context.Context, db.Scope, uuid.UUID) (*appointment.Appointment, error) {
	return nil, pgx.ErrNoRows
}

func (s *apptStore) CloseOpenAppointments(_ context.Context, scope db.Scope, dayStart, dayEnd time.Time, status string, now time.Time) (appointment.CloseResult, error) {
	if s.failClose != nil {
		return appointment.CloseResult{}, s.failClose
	}
	var res appointment.CloseResult
	for _, a := range s.appts {
		if !scopeMatches(scope, a.TenantID) {
			continue
		}
		if a.Status != appointment.StatusPending && a.Status != appointment.StatusScheduled && a.Status != appointment.StatusConfirmed {
			continue
		}
		w := a.When()
		if w == nil || w.Before(dayStart) || !w.Before(dayEnd) {
			continue
		}
		res.Matched++
		a.Status = status
		t := now
		if status == appointment.StatusCancelled {
			a.CancelledAt = &t
		} else {
			a.CompletedAt = &t
		}
		res.Updated++
	}
	return res, nil
}

func (s *apptStore) ListDueForReminder(context.Context, db.Scope, time.Time, time.Time, int) ([]*appointment.Appointment, error) {
	return nil, nil
}

func newTestCloser() (*Closer, *queueStore, *apptStore) {
	qs := newQueueStore()
	as := newApptStore()
	return NewCloser(qs, as, zerolog.Nop()), qs, as
}

func strPtr(s string) *string { return &s }

func TestRunClosesOpenRecords(t *testing.T) {
	closer, qs, as := newTestCloser()

	day := time.Date(2026, 8, 27, 0, 0, 0, 0, time.Local)
	tenant := strPtr("clinic-a")

	waiting := qs.add(tenant, queue.StatusWaiting, day.Add(9*time.Hour))
	inProg := qs.add(tenant, queue.StatusInProgress, day.Add(10*time.Hour))
	done := qs.add(tenant, queue.StatusCompleted, day.Add(11*time.Hour))

	pending := as.add(tenant, appointment.StatusPending, day.Add(14*time.Hour))
	cancelled := as.add(tenant, appointment.StatusCancelled, day.Add(15*time.Hour))

	res := closer.Run(context.Background(), Options{
		Scope:      db.TenantScope("clinic-a"),
		TargetDate: day.Add(13 * time.Hour),
	})

	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	if !res.TargetDate.Equal(day) {
		t.Errorf("expected target date %v, got %v", day, res.TargetDate)
	}
	if res.Queues.Updated != 2 {
		t.Errorf("expected 2 queue entries closed, got %d", res.Queues.Updated)
	}
	if res.Appointments.Updated != 1 {
		t.Errorf("expected 1 appointment closed, got %d", res.Appointments.Updated)
	}

	for _, e := range []*queue.QueueEntry{waiting, inProg} {
		if e.Status != queue.StatusCompleted || e.CompletedAt == nil {
			t.Errorf("entry %s not closed: %+v", e.ID, e)
		}
		if e.CompletionNotes == nil || *e.CompletionNotes != CloseNotes {
			t.Errorf("entry %s missing auto-close notes", e.ID)
		}
	}
	if done.CompletionNotes != nil {
		t.Error("already-completed entry must be untouched")
	}
	if pending.Status != appointment.StatusCompleted || pending.CompletedAt == nil {
		t.Errorf("pending appointment not closed: %+v", pending)
	}
	if cancelled.CancelledAt != nil {
		t.Error("already-cancelled appointment must be untouched")
	}
}

func TestRunIsIdempotent(t *testing.T) {
	closer, qs, as := newTestCloser()

	day := time.Date(2026, 8, 27, 0, 0, 0, 0, time.Local)
	qs.add(strPtr("clinic-a"), queue.StatusWaiting, day.Add(9*time.Hour))
	as.add(strPtr("clinic-a"), appointment.StatusScheduled, day.Add(10*time.Hour))

	opts := Options{Scope: db.TenantScope("clinic-a"), TargetDate: day}

	first := closer.Run(context.Background(), opts)
	if first.Queues.Updated != 1 || first.Appointments.Updated != 1 {
		t.Fatalf("first run: %+v", first)
	}

	second := closer.Run(context.Background(), opts)
	if second.Queues.Matched != 0 || second.Appointments.Matched != 0 {
		t.Errorf("second run must match nothing: %+v", second)
	}
}

func TestRunRespectsTenantScope(t *testing.T) {
	closer, qs, _ := newTestCloser()

	day := time.Date(2026, 8, 27, 0, 0, 0, 0, time.Local)
	a := qs.add(strPtr("clinic-a"), queue.StatusWaiting, day.Add(9*time.Hour))
	b := qs.add(strPtr("clinic-b"), queue.StatusWaiting, day.Add(9*time.Hour))
	legacy := qs.add(nil, queue.StatusWaiting, day.Add(9*time.Hour))

	res := closer.Run(context.Background(), Options{Scope: db.TenantScope("clinic-a"), TargetDate: day})
	if res.Queues.Updated != 1 {
		t.Fatalf("expected 1 closed, got %d", res.Queues.Updated)
	}
	if a.Status != queue.StatusCompleted {
		t.Error("clinic-a entry must be closed")
	}
	if b.Status != queue.StatusWaiting || legacy.Status != queue.StatusWaiting {
		t.Error("other partitions must be untouched")
	}

	res = closer.Run(context.Background(), Options{Scope: db.LegacyScope(), TargetDate: day})
	if res.Queues.Updated != 1 || legacy.Status != queue.StatusCompleted {
		t.Error("legacy scope must close only untenanted entries")
	}
	if b.Status != queue.StatusWaiting {
		t.Error("clinic-b entry must survive the legacy sweep")
	}
}

func TestRunOutsideWindowUntouched(t *testing.T) {
	closer, qs, _ := newTestCloser()

	day := time.Date(2026, 8, 27, 0, 0, 0, 0, time.Local)
	yesterday := qs.add(nil, queue.StatusWaiting, day.Add(-2*time.Hour))
	tomorrow := qs.add(nil, queue.StatusWaiting, day.Add(25*time.Hour))
	today := qs.add(nil, queue.StatusWaiting, day.Add(23*time.Hour+59*time.Minute))

	res := closer.Run(context.Background(), Options{Scope: db.LegacyScope(), TargetDate: day})
	if res.Queues.Updated != 1 {
		t.Fatalf("expected only the in-window entry, got %d", res.Queues.Updated)
	}
	if today.Status != queue.StatusCompleted {
		t.Error("in-window entry must be closed")
	}
	if yesterday.Status != queue.StatusWaiting || tomorrow.Status != queue.StatusWaiting {
		t.Error("out-of-window entries must be untouched")
	}
}

func TestRunClosedAsCancelled(t *testing.T) {
	closer, qs, as := newTestCloser()

	day := time.Date(2026, 8, 27, 0, 0, 0, 0, time.Local)
	e := qs.add(nil, queue.StatusWaiting, day.Add(9*time.Hour))
	a := as.add(nil, appointment.StatusScheduled, day.Add(9*time.Hour))

	res := closer.Run(context.Background(), Options{
		Scope:               db.LegacyScope(),
		TargetDate:          day,
		QueueClosedAs:       queue.StatusCancelled,
		AppointmentClosedAs: appointment.StatusCancelled,
	})

	if res.Queues.ClosedAs != queue.StatusCancelled || res.Appointments.ClosedAs != appointment.StatusCancelled {
		t.Errorf("result must echo the close statuses: %+v", res)
	}
	if e.Status != queue.StatusCancelled {
		t.Errorf("expected cancelled entry, got %s", e.Status)
	}
	if a.Status != appointment.StatusCancelled || a.CancelledAt == nil {
		t.Errorf("expected cancelled appointment with timestamp: %+v", a)
	}
}

func TestRunSweepsAreIsolated(t *testing.T) {
	closer, qs, as := newTestCloser()
	qs.failClose = errors.New("relation locked")

	day := time.Date(2026, 8, 27, 0, 0, 0, 0, time.Local)
	a := as.add(nil, appointment.StatusScheduled, day.Add(9*time.Hour))

	res := closer.Run(context.Background(), Options{Scope: db.LegacyScope(), TargetDate: day})

	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "queue sweep") {
		t.Fatalf("expected one queue sweep error, got %v", res.Errors)
	}
	if res.Appointments.Updated != 1 || a.Status != appointment.StatusCompleted {
		t.Error("appointment sweep must run despite the queue failure")
	}
}
