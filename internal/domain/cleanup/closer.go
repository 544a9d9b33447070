// Package cleanup closes out queue entries and appointments left open at the
// end of a clinic day. It runs from the cron surface, once per day per
// tenant, and is safe to re-run: already-closed records never match again.
package cleanup

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/domain/appointment"
	"github.com/clinicdesk/clinicdesk/internal/domain/queue"
	"github.com/clinicdesk/clinicdesk/internal/platform/db"
)

// CloseNotes is written into the completion notes of every queue entry the
// sweep closes, so staff can tell an automatic close from a manual one.
const CloseNotes = "Auto-closed by end-of-day cleanup"

// Options controls a single cleanup run.
type Options struct {
	// Scope selects the tenant partition to sweep. A legacy scope sweeps
	// only rows with no tenant; AnyScope sweeps everything.
	Scope db.Scope

	// TargetDate is any instant within the local day to close out.
	TargetDate time.Time

	// QueueClosedAs and AppointmentClosedAs are the terminal statuses to
	// apply. Both default to completed.
	QueueClosedAs       string
	AppointmentClosedAs string
}

// SweepResult reports one side of a run.
type SweepResult struct {
	Matched  int64  `json:"matched"`
	Updated  int64  `json:"updated"`
	ClosedAs string `json:"closedAs"`
}

// Result reports a full run. Errors holds per-sweep failures; a run with a
// non-empty Errors still carries the counts of the sweeps that succeeded.
// TargetDate is the local midnight of the day the run closed out, so callers
// can tell which day a response refers to.
type Result struct {
	TargetDate   time.Time   `json:"targetDate"`
	Queues       SweepResult `json:"queues"`
	Appointments SweepResult `json:"appointments"`
	Errors       []string    `json:"errors,omitempty"`
	RanAt        time.Time   `json:"ranAt"`
}

// Closer runs the end-of-day sweeps against both stores.
type Closer struct {
	queues queue.Repository
	appts  appointment.Repository
	logger zerolog.Logger
}

func NewCloser(queues queue.Repository, appts appointment.Repository, logger zerolog.Logger) *Closer {
	return &Closer{queues: queues, appts: appts, logger: logger}
}

// Run closes every open queue entry and appointment that falls inside the
// target day. The two sweeps are independent: a failure on one side is
// recorded and the other side still runs.
func (c *Closer) Run(ctx context.Context, opts Options) Result {
	if opts.QueueClosedAs == "" {
		opts.QueueClosedAs = queue.StatusCompleted
	}
	if opts.AppointmentClosedAs == "" {
		opts.AppointmentClosedAs = appointment.StatusCompleted
	}

	now := time.Now()
	dayStart := time.Date(opts.TargetDate.Year(), opts.TargetDate.Month(), opts.TargetDate.Day(), 0, 0, 0, 0, opts.TargetDate.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	res := Result{
		TargetDate:   dayStart,
		Queues:       SweepResult{ClosedAs: opts.QueueClosedAs},
		Appointments: SweepResult{ClosedAs: opts.AppointmentClosedAs},
		RanAt:        now,
	}

	qr, err := c.queues.CloseOpenEntries(ctx, opts.Scope, dayStart, dayEnd, opts.QueueClosedAs, CloseNotes, now)
	if err != nil {
		c.logger.Error().Err(err).Msg("queue sweep failed")
		res.Errors = append(res.Errors, "queue sweep: "+err.Error())
	} else {
		res.Queues.Matched = qr.Matched
		res.Queues.Updated = qr.Updated
	}

	ar, err := c.appts.CloseOpenAppointments(ctx, opts.Scope, dayStart, dayEnd, opts.AppointmentClosedAs, now)
	if err != nil {
		c.logger.Error().Err(err).Msg("appointment sweep failed")
		res.Errors = append(res.Errors, "appointment sweep: "+err.Error())
	} else {
		res.Appointments.Matched = ar.Matched
		res.Appointments.Updated = ar.Updated
	}

	c.logger.Info().
		Time("day_start", dayStart).
		Int64("queues_closed", res.Queues.Updated).
		Int64("appointments_closed", res.Appointments.Updated).
		Int("errors", len(res.Errors)).
		Msg("end-of-day cleanup finished")

	return res
}
