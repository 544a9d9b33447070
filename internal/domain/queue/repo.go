package queue

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
	Day       time.Time // matches entries queued on this calendar day
}

// CloseResult reports a bulk close sweep: how many open entries the window
// matched and how many rows the update actually touched.
type CloseResult struct {
	Matched int64
	Updated int64
}

type Repository interface {
	Create(ctx context.Context, e *QueueEntry) error
	GetByID(ctx context.Context, scope db.Scope, id uuid.UUID) (*QueueEntry, error)
	Update(ctx context.Context, e *QueueEntry) error
	List(ctx context.Context, scope db.Scope, filter ListFilter, limit, offset int) ([]*QueueEntry, int, error)

	// FindMostRecentActiveByPatient returns the patient's newest entry still
	// in a non-terminal status, or pgx.ErrNoRows.
	FindMostRecentActiveByPatient(ctx context.Context, scope db.Scope, patientID uuid.UUID) (*QueueEntry, error)

	// FindActiveByAppointment returns the non-terminal entry explicitly
	// linked to an appointment, or pgx.ErrNoRows.
	FindActiveByAppointment(ctx context.Context, scope db.Scope, appointmentID uuid.UUID) (*QueueEntry, error)

	// CloseOpenEntries force-closes every entry queued in [dayStart, dayEnd)
	// still in a non-terminal status. Bulk set-based; does not run the
	// synchronizer.
	CloseOpenEntries(ctx context.Context, scope db.Scope, dayStart, dayEnd time.Time, status, notes string, now time.Time) (CloseResult, error)
}
