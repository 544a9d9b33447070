package appointment

import (
	"time"

	"github.com/google/uuid"
)

// Appointment statuses. pending covers unconfirmed online bookings;
// completed, cancelled and no-show are terminal.
const (
	StatusPending    = "pending"
	StatusScheduled  = "scheduled"
	StatusConfirmed  = "confirmed"
	StatusCheckedIn  = "checked-in"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusNoShow     = "no-show"
)

// Appointment maps to the appointment table.
//
// Two date columns exist for historical reasons: appointment_date was the
// original date-only field, scheduled_at the full timestamp newer records
// carry. Either may be populated depending on the creation path; read the
// canonical time through When(), not the fields.
type Appointment struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	TenantID     *string    `db:"tenant_id" json:"tenant_id,omitempty"`
	PatientID    uuid.UUID  `db:"patient_id" json:"patient_id"`
	QueueEntryID *uuid.UUID `db:"queue_entry_id" json:"queue_entry_id,omitempty"`
	Provider     *string    `db:"provider" json:"provider,omitempty"`
	Reason       *string    `db:"reason" json:"reason,omitempty"`

	Status string `db:"status" json:"status"`

	AppointmentDate *time.Time `db:"appointment_date" json:"appointment_date,omitempty"`
	AppointmentTime *string    `db:"appointment_time" json:"appointment_time,omitempty"`
	ScheduledAt     *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	DurationMins    int        `db:"duration_mins" json:"duration_mins"`

	CheckedInAt *time.Time `db:"checked_in_at" json:"checked_in_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`

	ReminderSent   bool       `db:"reminder_sent" json:"reminder_sent"`
	ReminderSentAt *time.Time `db:"reminder_sent_at" json:"reminder_sent_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

var validStatuses = map[string]bool{
	StatusPending:    true,
	StatusScheduled:  true,
	StatusConfirmed:  true,
	StatusCheckedIn:  true,
	StatusInProgress: true,
	StatusCompleted:  true,
	StatusCancelled:  true,
	StatusNoShow:     true,
}

var terminalStatuses = map[string]bool{
	StatusCompleted: true,
	StatusCancelled: true,
	StatusNoShow:    true,
}

// IsValidStatus reports whether s is a known appointment status.
func IsValidStatus(s string) bool { return validStatuses[s] }

// IsTerminalStatus reports whether s is terminal.
func IsTerminalStatus(s string) bool { return terminalStatuses[s] }

// When returns the canonical scheduled time: scheduled_at when populated,
// else the legacy appointment_date. Nil when the record carries neither.
func (a *Appointment) When() *time.Time {
	if a.ScheduledAt != nil {
		return a.ScheduledAt
	}
	return a.AppointmentDate
}

// ApplyStatus sets the status and stamps the matching transition timestamp if
// not already set. Re-applying the current status changes nothing.
func (a *Appointment) ApplyStatus(status string, now time.Time) (changed bool) {
	if a.Status == status {
		return false
	}
	a.Status = status
	switch status {
	case StatusCheckedIn, StatusInProgress:
		if a.CheckedInAt == nil {
			t := now
			a.CheckedInAt = &t
		}
	case StatusCompleted:
		if a.CompletedAt == nil {
			t := now
			a.CompletedAt = &t
		}
	case StatusCancelled, StatusNoShow:
		if a.CancelledAt == nil {
			t := now
			a.CancelledAt = &t
		}
	}
	return true
}

// MarkReminderSent records the one-time reminder attempt.
func (a *Appointment) MarkReminderSent(now time.Time) (changed bool) {
	if a.ReminderSent {
		return false
	}
	a.ReminderSent = true
	t := now
	a.ReminderSentAt = &t
	return true
}
