package queue

import (
	"time"

	"github.com/google/uuid"
)

// Queue entry statuses. A visit moves waiting → in-progress → completed in
// the happy path; cancelled and no-show are the other terminal states.
const (
	StatusWaiting    = "waiting"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusNoShow     = "no-show"
)

// QueueEntry maps to the queue_entry table. Timestamps are set once on the
// corresponding transition and never overwritten.
type QueueEntry struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	TenantID      *string    `db:"tenant_id" json:"tenant_id,omitempty"`
	PatientID     uuid.UUID  `db:"patient_id" json:"patient_id"`
	AppointmentID *uuid.UUID `db:"appointment_id" json:"appointment_id,omitempty"`
	Provider      *string    `db:"provider" json:"provider,omitempty"`
	Room          *string    `db:"room" json:"room,omitempty"`
	Reason        *string    `db:"reason" json:"reason,omitempty"`

	QueueNumber int    `db:"queue_number" json:"queue_number"`
	Status      string `db:"status" json:"status"`

	QueuedAt    time.Time  `db:"queued_at" json:"queued_at"`
	CalledAt    *time.Time `db:"called_at" json:"called_at,omitempty"`
	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`

	CheckedIn     bool       `db:"checked_in" json:"checked_in"`
	CheckedInAt   *time.Time `db:"checked_in_at" json:"checked_in_at,omitempty"`
	CheckInMethod *string    `db:"check_in_method" json:"check_in_method,omitempty"`

	CompletionNotes *string `db:"completion_notes" json:"completion_notes,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

var validStatuses = map[string]bool{
	StatusWaiting:    true,
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

// IsValidStatus reports whether s is a known queue status.
func IsValidStatus(s string) bool { return validStatuses[s] }

// IsTerminalStatus reports whether s is a status from which no further
// workflow transition is expected.
func IsTerminalStatus(s string) bool { return terminalStatuses[s] }

// ApplyStatus sets the entry's status and stamps the matching transition
// timestamp if it is not already set. Re-applying the current status changes
// nothing.
func (e *QueueEntry) ApplyStatus(status string, now time.Time) (changed bool) {
	if e.Status == status {
		return false
	}
	e.Status = status
	switch status {
	case StatusInProgress:
		if e.CalledAt == nil {
			t := now
			e.CalledAt = &t
		}
		if e.StartedAt == nil {
			t := now
			e.StartedAt = &t
		}
	case StatusCompleted:
		if e.CompletedAt == nil {
			t := now
			e.CompletedAt = &t
		}
	case StatusCancelled, StatusNoShow:
		if e.CancelledAt == nil {
			t := now
			e.CancelledAt = &t
		}
	}
	return true
}

// MarkCheckedIn records the one-time check-in. Later calls leave the original
// timestamp and method in place.
func (e *QueueEntry) MarkCheckedIn(method string, now time.Time) (changed bool) {
	if e.CheckedIn {
		return false
	}
	e.CheckedIn = true
	t := now
	e.CheckedInAt = &t
	if method != "" {
		e.CheckInMethod = &method
	}
	return true
}
