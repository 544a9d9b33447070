package appointment

import (
	"testing"
	"time"
)

func TestWhenPrefersScheduledAt(t *testing.T) {
	date := time.Date(2026, 8, 27, 0, 0, 0, 0, time.Local)
	sched := time.Date(2026, 8, 27, 14, 30, 0, 0, time.Local)

	a := &Appointment{AppointmentDate: &date, ScheduledAt: &sched}
	if got := a.When(); got == nil || !got.Equal(sched) {
		t.Errorf("expected scheduled_at, got %v", got)
	}

	a = &Appointment{AppointmentDate: &date}
	if got := a.When(); got == nil || !got.Equal(date) {
		t.Errorf("expected fallback to appointment_date, got %v", got)
	}

	a = &Appointment{}
	if a.When() != nil {
		t.Error("expected nil when neither date is set")
	}
}

func TestApplyStatusTimestamps(t *testing.T) {
	now := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)

	a := &Appointment{Status: StatusScheduled}
	a.ApplyStatus(StatusInProgress, now)
	if a.CheckedInAt == nil {
		t.Error("in-progress must stamp checked_in_at")
	}

	a = &Appointment{Status: StatusScheduled}
	a.ApplyStatus(StatusCheckedIn, now)
	if a.CheckedInAt == nil {
		t.Error("checked-in must stamp checked_in_at")
	}

	a = &Appointment{Status: StatusInProgress}
	a.ApplyStatus(StatusCompleted, now)
	if a.CompletedAt == nil {
		t.Error("completed must stamp completed_at")
	}

	a = &Appointment{Status: StatusConfirmed}
	a.ApplyStatus(StatusNoShow, now)
	if a.CancelledAt == nil {
		t.Error("no-show must stamp cancelled_at")
	}
}

func TestApplyStatusIdempotent(t *testing.T) {
	t1 := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	a := &Appointment{Status: StatusScheduled}
	if a.ApplyStatus(StatusScheduled, t1) {
		t.Error("same-status apply must report no change")
	}

	a.ApplyStatus(StatusCompleted, t1)
	a.ApplyStatus(StatusInProgress, t2)
	a.ApplyStatus(StatusCompleted, t2)
	if !a.CompletedAt.Equal(t1) {
		t.Error("completed_at must keep its first value")
	}
}

func TestMarkReminderSentOnce(t *testing.T) {
	t1 := time.Date(2026, 8, 27, 8, 0, 0, 0, time.UTC)

	a := &Appointment{}
	if !a.MarkReminderSent(t1) {
		t.Fatal("first mark must report a change")
	}
	if a.MarkReminderSent(t1.Add(time.Hour)) {
		t.Error("second mark must be a no-op")
	}
	if !a.ReminderSentAt.Equal(t1) {
		t.Error("reminder timestamp must not move")
	}
}
