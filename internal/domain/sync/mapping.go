// Package sync keeps a patient's queue entry and appointment in step. Every
// status change on one side is mirrored onto the other through a fixed
// mapping, best-effort: the two records may be briefly inconsistent, but a
// staff action never fails because of the mirror write.
package sync

import (
	"github.com/clinicdesk/clinicdesk/internal/domain/appointment"
	"github.com/clinicdesk/clinicdesk/internal/domain/queue"
)

// queueToAppointment maps a queue status to its appointment counterpart.
var queueToAppointment = map[string]string{
	queue.StatusWaiting:    appointment.StatusScheduled,
	queue.StatusInProgress: appointment.StatusInProgress,
	queue.StatusCompleted:  appointment.StatusCompleted,
	queue.StatusCancelled:  appointment.StatusCancelled,
	queue.StatusNoShow:     appointment.StatusNoShow,
}

// appointmentToQueue maps an appointment status to its queue counterpart.
// pending has no queue analogue; no propagation occurs for it.
var appointmentToQueue = map[string]string{
	appointment.StatusScheduled:  queue.StatusWaiting,
	appointment.StatusConfirmed:  queue.StatusWaiting,
	appointment.StatusCheckedIn:  queue.StatusWaiting,
	appointment.StatusInProgress: queue.StatusInProgress,
	appointment.StatusCompleted:  queue.StatusCompleted,
	appointment.StatusCancelled:  queue.StatusCancelled,
	appointment.StatusNoShow:     queue.StatusNoShow,
}

// MapQueueToAppointment returns the appointment status mirroring a queue
// status, and whether a mapping exists.
func MapQueueToAppointment(status string) (string, bool) {
	s, ok := queueToAppointment[status]
	return s, ok
}

// MapAppointmentToQueue returns the queue status mirroring an appointment
// status, and whether a mapping exists.
func MapAppointmentToQueue(status string) (string, bool) {
	s, ok := appointmentToQueue[status]
	return s, ok
}
