package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinicdesk/internal/platform/db"
)

// ListFilter narrows List results. Zero values mean "no filter".
type ListFilter struct {
	Status    string
	PatientID uuid.UUID
	Day       time.Time // matches appointments falling on this calendar day
}

// CloseResult reports a bulk close sweep.
type CloseResult struct {
	Matched int64
	Updated int64
}

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, scope db.Scope, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	List(ctx context.Context, scope db.Scope, filter ListFilter, limit, offset int) ([]*Appointment, int, error)

	// FindMostRecentActiveByPatient returns the patient's latest-scheduled
	// appointment still in a non-terminal status, or pgx.ErrNoRows. When a
	// patient has several active appointments the latest-scheduled pick is a
	// heuristic, not a guarantee.
	FindMostRecentActiveByPatient(ctx context.Context, scope db.Scope, patientID uuid.UUID) (*Appointment, error)

	// CloseOpenAppointments force-closes every pending, scheduled or
	// confirmed appointment dated in [dayStart, dayEnd). Bulk set-based;
	// does not run the synchronizer.
	CloseOpenAppointments(ctx context.Context, scope db.Scope, dayStart, dayEnd time.Time, status string, now time.Time) (CloseResult, error)

	// ListDueForReminder returns scheduled/confirmed appointments in the
	// window whose reminder has not been attempted yet.
	ListDueForReminder(ctx context.Context, scope db.Scope, from, to time.Time, limit int) ([]*Appointment, error)
}
