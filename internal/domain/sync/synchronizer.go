package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/domain/appointment"
	"github.com/clinicdesk/clinicdesk/internal/domain/queue"
	"github.com/clinicdesk/clinicdesk/internal/platform/db"
)

// PropagationError reports a failed mirror write. Callers log it and move
// on: the triggering mutation has already been committed and must stand.
type PropagationError struct {
	Direction string
	Err       error
}

func (e *PropagationError) Error() string {
	return fmt.Sprintf("propagation %s: %v", e.Direction, e.Err)
}

func (e *PropagationError) Unwrap() error { return e.Err }

// Synchronizer mirrors status changes between queue entries and
// appointments. It writes through the repositories directly, so its own
// writes never re-enter the services' propagation hooks.
type Synchronizer struct {
	queues queue.Repository
	appts  appointment.Repository
	logger zerolog.Logger
}

func New(queues queue.Repository, appts appointment.Repository, logger zerolog.Logger) *Synchronizer {
	return &Synchronizer{queues: queues, appts: appts, logger: logger}
}

// QueueStatusChanged implements queue.Propagator.
func (s *Synchronizer) QueueStatusChanged(ctx context.Context, e *queue.QueueEntry) error {
	return s.ApplyQueueToAppointment(ctx, e, false)
}

// AppointmentStatusChanged implements appointment.Propagator.
func (s *Synchronizer) AppointmentStatusChanged(ctx context.Context, a *appointment.Appointment) error {
	return s.ApplyAppointmentToQueue(ctx, a, false)
}

func scopeFor(tenantID *string) db.Scope {
	if tenantID != nil {
		return db.TenantScope(*tenantID)
	}
	return db.LegacyScope()
}

// ApplyQueueToAppointment mirrors a queue status change onto the linked
// appointment. skip marks a write that originated from the synchronizer
// itself; it short-circuits to stop mutual re-triggering. Statuses with no
// mapping and entries with no live appointment are silent no-ops.
func (s *Synchronizer) ApplyQueueToAppointment(ctx context.Context, e *queue.QueueEntry, skip bool) error {
	if skip {
		return nil
	}
	mapped, ok := MapQueueToAppointment(e.Status)
	if !ok {
		return nil
	}

	scope := scopeFor(e.TenantID)

	var (
		a   *appointment.Appointment
		err error
	)
	if e.AppointmentID != nil {
		a, err = s.appts.GetByID(ctx, scope, *e.AppointmentID)
	} else {
		a, err = s.appts.FindMostRecentActiveByPatient(ctx, scope, e.PatientID)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		// A queue entry may exist with no live appointment.
		return nil
	}
	if err != nil {
		return &PropagationError{Direction: "queue->appointment", Err: err}
	}

	if !a.ApplyStatus(mapped, time.Now()) {
		return nil
	}
	if err := s.appts.Update(ctx, a); err != nil {
		return &PropagationError{Direction: "queue->appointment", Err: err}
	}

	s.logger.Debug().
		Str("queue_entry_id", e.ID.String()).
		Str("appointment_id", a.ID.String()).
		Str("status", mapped).
		Msg("mirrored queue status onto appointment")
	return nil
}

// ApplyAppointmentToQueue mirrors an appointment status change onto the
// patient's active queue entry. Same skip, no-mapping and no-match
// semantics as the queue-to-appointment direction.
func (s *Synchronizer) ApplyAppointmentToQueue(ctx context.Context, a *appointment.Appointment, skip bool) error {
	if skip {
		return nil
	}
	mapped, ok := MapAppointmentToQueue(a.Status)
	if !ok {
		return nil
	}

	scope := scopeFor(a.TenantID)

	// Prefer an explicit link in either direction; the patient heuristic is
	// the last resort.
	var (
		e   *queue.QueueEntry
		err error
	)
	if a.QueueEntryID != nil {
		e, err = s.queues.GetByID(ctx, scope, *a.QueueEntryID)
	} else {
		e, err = s.queues.FindActiveByAppointment(ctx, scope, a.ID)
		if errors.Is(err, pgx.ErrNoRows) {
			e, err = s.queues.FindMostRecentActiveByPatient(ctx, scope, a.PatientID)
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return &PropagationError{Direction: "appointment->queue", Err: err}
	}

	if !e.ApplyStatus(mapped, time.Now()) {
		return nil
	}
	if err := s.queues.Update(ctx, e); err != nil {
		return &PropagationError{Direction: "appointment->queue", Err: err}
	}

	s.logger.Debug().
		Str("appointment_id", a.ID.String()).
		Str("queue_entry_id", e.ID.String()).
		Str("status", mapped).
		Msg("mirrored appointment status onto queue entry")
	return nil
}
