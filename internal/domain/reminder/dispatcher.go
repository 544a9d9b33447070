// Package reminder sends upcoming-appointment reminders. Each appointment
// gets at most one reminder attempt, ever: the reminder_sent flag is set
// after the attempt whether or not any channel succeeded, so delivery
// failures are never retried against the patient.
package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/domain/appointment"
	"github.com/clinicdesk/clinicdesk/internal/domain/patient"
	"github.com/clinicdesk/clinicdesk/internal/platform/db"
	"github.com/clinicdesk/clinicdesk/internal/platform/notification"
)

const (
	templateEmail = "appointment-reminder"
	templateSMS   = "appointment-reminder-sms"

	// defaultBatchLimit caps a single run so a cron tick cannot hold a
	// connection for an unbounded scan.
	defaultBatchLimit = 500
)

// Notifier is the slice of the notification manager the dispatcher needs.
type Notifier interface {
	SendFromTemplate(ctx context.Context, templateID string, ch notification.Channel, recipient string, data map[string]string) (*notification.Notification, error)
}

// ChannelResult records one delivery attempt for one appointment.
type ChannelResult struct {
	Channel notification.Channel `json:"channel"`
	Sent    bool                 `json:"sent"`
	Error   string               `json:"error,omitempty"`
}

// Result reports a dispatcher run.
type Result struct {
	Due       int       `json:"due"`
	Attempted int       `json:"attempted"`
	Delivered int       `json:"delivered"`
	Errors    []string  `json:"errors,omitempty"`
	RanAt     time.Time `json:"ranAt"`
}

// Dispatcher scans for appointments inside the reminder lead window and
// pushes a reminder over every channel the patient's record supports.
type Dispatcher struct {
	appts       appointment.Repository
	patients    patient.Repository
	notifier    Notifier
	leadTime    time.Duration
	sendTimeout time.Duration
	logger      zerolog.Logger
}

func NewDispatcher(appts appointment.Repository, patients patient.Repository, notifier Notifier, leadTime, sendTimeout time.Duration, logger zerolog.Logger) *Dispatcher {
	if leadTime <= 0 {
		leadTime = 24 * time.Hour
	}
	if sendTimeout <= 0 {
		sendTimeout = 5 * time.Second
	}
	return &Dispatcher{
		appts:       appts,
		patients:    patients,
		notifier:    notifier,
		leadTime:    leadTime,
		sendTimeout: sendTimeout,
		logger:      logger,
	}
}

// Run finds every unreminded scheduled or confirmed appointment falling in
// [now, now+lead] within scope and attempts its reminder. The reminder flag
// is stamped after the attempt regardless of channel outcomes.
func (d *Dispatcher) Run(ctx context.Context, scope db.Scope) Result {
	now := time.Now()
	res := Result{RanAt: now}

	due, err := d.appts.ListDueForReminder(ctx, scope, now, now.Add(d.leadTime), defaultBatchLimit)
	if err != nil {
		d.logger.Error().Err(err).Msg("reminder scan failed")
		res.Errors = append(res.Errors, "scan: "+err.Error())
		return res
	}
	res.Due = len(due)

	for _, a := range due {
		results, err := d.remind(ctx, scope, a, now)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("appointment %s: %v", a.ID, err))
			continue
		}
		res.Attempted++
		delivered := false
		for _, r := range results {
			if r.Sent {
				delivered = true
			} else {
				res.Errors = append(res.Errors, fmt.Sprintf("appointment %s %s: %s", a.ID, r.Channel, r.Error))
			}
		}
		if delivered {
			res.Delivered++
		}
	}

	d.logger.Info().
		Int("due", res.Due).
		Int("attempted", res.Attempted).
		Int("delivered", res.Delivered).
		Int("errors", len(res.Errors)).
		Msg("reminder run finished")

	return res
}

// remind attempts delivery for one appointment and stamps the flag. A patient
// lookup failure leaves the flag unset so the next run can try again; a
// channel failure does not.
func (d *Dispatcher) remind(ctx context.Context, scope db.Scope, a *appointment.Appointment, now time.Time) ([]ChannelResult, error) {
	p, err := d.patients.GetByID(ctx, scope, a.PatientID)
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}

	data := reminderData(p, a)
	var results []ChannelResult

	if p.Phone != nil && *p.Phone != "" {
		results = append(results, d.attempt(ctx, templateSMS, notification.ChannelSMS, *p.Phone, data))
	}
	if p.Email != nil && *p.Email != "" {
		results = append(results, d.attempt(ctx, templateEmail, notification.ChannelEmail, *p.Email, data))
	}
	if p.PortalUserID != nil && *p.PortalUserID != "" {
		results = append(results, d.attempt(ctx, templateEmail, notification.ChannelInApp, *p.PortalUserID, data))
	}

	if a.MarkReminderSent(now) {
		if err := d.appts.Update(ctx, a); err != nil {
			// The attempt happened; a lost flag risks a duplicate
			// reminder next run, so surface it loudly.
			return results, fmt.Errorf("mark reminder sent: %w", err)
		}
	}
	return results, nil
}

func (d *Dispatcher) attempt(ctx context.Context, templateID string, ch notification.Channel, recipient string, data map[string]string) ChannelResult {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	r := ChannelResult{Channel: ch}
	if _, err := d.notifier.SendFromTemplate(sendCtx, templateID, ch, recipient, data); err != nil {
		r.Error = err.Error()
		d.logger.Warn().Err(err).Str("channel", string(ch)).Msg("reminder delivery failed")
		return r
	}
	r.Sent = true
	return r
}

func reminderData(p *patient.Patient, a *appointment.Appointment) map[string]string {
	data := map[string]string{
		"patient_name": p.FullName(),
		"provider":     "your care team",
	}
	if a.Provider != nil && *a.Provider != "" {
		data["provider"] = *a.Provider
	}
	if w := a.When(); w != nil {
		data["date"] = w.Format("Monday, January 2")
		data["time"] = w.Format("3:04 PM")
	}
	if a.AppointmentTime != nil && *a.AppointmentTime != "" {
		data["time"] = *a.AppointmentTime
	}
	return data
}
