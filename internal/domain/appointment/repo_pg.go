package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/clinicdesk/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const apptCols = `id, tenant_id, patient_id, queue_entry_id, provider, reason, status,
	appointment_date, appointment_time, scheduled_at, duration_mins,
	checked_in_at, completed_at, cancelled_at, reminder_sent, reminder_sent_at,
	created_at, updated_at`

func scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.TenantID, &a.PatientID, &a.QueueEntryID, &a.Provider, &a.Reason, &a.Status,
		&a.AppointmentDate, &a.AppointmentTime, &a.ScheduledAt, &a.DurationMins,
		&a.CheckedInAt, &a.CompletedAt, &a.CancelledAt, &a.ReminderSent, &a.ReminderSentAt,
		&a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointment (id, tenant_id, patient_id, queue_entry_id, provider, reason, status,
			appointment_date, appointment_time, scheduled_at, duration_mins)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		a.ID, a.TenantID, a.PatientID, a.QueueEntryID, a.Provider, a.Reason, a.Status,
		a.AppointmentDate, a.AppointmentTime, a.ScheduledAt, a.DurationMins)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, scope db.Scope, id uuid.UUID) (*Appointment, error) {
	args := []interface{}{id}
	cond := scope.Cond("tenant_id", &args)
	return scanAppt(r.pool.QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointment WHERE id = $1`+cond, args...))
}

func (r *repoPG) Update(ctx context.Context, a *Appointment) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE appointment SET queue_entry_id=$2, provider=$3, reason=$4, status=$5,
			appointment_date=$6, appointment_time=$7, scheduled_at=$8, duration_mins=$9,
			checked_in_at=$10, completed_at=$11, cancelled_at=$12,
			reminder_sent=$13, reminder_sent_at=$14, updated_at=NOW()
		WHERE id = $1`,
		a.ID, a.QueueEntryID, a.Provider, a.Reason, a.Status,
		a.AppointmentDate, a.AppointmentTime, a.ScheduledAt, a.DurationMins,
		a.CheckedInAt, a.CompletedAt, a.CancelledAt,
		a.ReminderSent, a.ReminderSentAt)
	return err
}

// dateWindow is the dual-date compatibility shim: legacy rows carry only
// appointment_date, newer rows scheduled_at, so window queries must accept
// either.
func dateWindow(args *[]interface{}, dayStart, dayEnd time.Time) string {
	*args = append(*args, dayStart, dayEnd)
	i, j := len(*args)-1, len(*args)
	return fmt.Sprintf(` AND ((scheduled_at >= $%d AND scheduled_at < $%d)
		OR (scheduled_at IS NULL AND appointment_date >= $%d AND appointment_date < $%d))`, i, j, i, j)
}

func (r *repoPG) List(ctx context.Context, scope db.Scope, filter ListFilter, limit, offset int) ([]*Appointment, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	where += scope.Cond("tenant_id", &args)

	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if filter.PatientID != uuid.Nil {
		args = append(args, filter.PatientID)
		where += fmt.Sprintf(` AND patient_id = $%d`, len(args))
	}
	if !filter.Day.IsZero() {
		dayStart := time.Date(filter.Day.Year(), filter.Day.Month(), filter.Day.Day(), 0, 0, 0, 0, filter.Day.Location())
		where += dateWindow(&args, dayStart, dayStart.AddDate(0, 0, 1))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM appointment`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx,
		`SELECT `+apptCols+` FROM appointment`+where+
			fmt.Sprintf(` ORDER BY COALESCE(scheduled_at, appointment_date) LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := scanAppt(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *repoPG) FindMostRecentActiveByPatient(ctx context.Context, scope db.Scope, patientID uuid.UUID) (*Appointment, error) {
	args := []interface{}{patientID, StatusCompleted, StatusCancelled, StatusNoShow}
	cond := scope.Cond("tenant_id", &args)
	return scanAppt(r.pool.QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointment
		 WHERE patient_id = $1 AND status NOT IN ($2, $3, $4)`+cond+`
		 ORDER BY COALESCE(scheduled_at, appointment_date) DESC NULLS LAST LIMIT 1`, args...))
}

func (r *repoPG) CloseOpenAppointments(ctx context.Context, scope db.Scope, dayStart, dayEnd time.Time, status string, now time.Time) (CloseResult, error) {
	var res CloseResult

	args := []interface{}{StatusPending, StatusScheduled, StatusConfirmed}
	cond := scope.Cond("tenant_id", &args)
	window := ` WHERE status IN ($1, $2, $3)` + cond + dateWindow(&args, dayStart, dayEnd)

	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM appointment`+window, args...).Scan(&res.Matched); err != nil {
		return res, fmt.Errorf("count open appointments: %w", err)
	}
	if res.Matched == 0 {
		return res, nil
	}

	args = append(args, status)
	set := fmt.Sprintf(`SET status = $%d, updated_at = NOW()`, len(args))
	switch status {
	case StatusCompleted:
		args = append(args, now)
		set = fmt.Sprintf(`SET status = $%d, completed_at = $%d, updated_at = NOW()`, len(args)-1, len(args))
	case StatusCancelled:
		args = append(args, now)
		set = fmt.Sprintf(`SET status = $%d, cancelled_at = $%d, updated_at = NOW()`, len(args)-1, len(args))
	}

	tag, err := r.pool.Exec(ctx, `UPDATE appointment `+set+window, args...)
	if err != nil {
		return res, fmt.Errorf("close open appointments: %w", err)
	}
	res.Updated = tag.RowsAffected()
	return res, nil
}

func (r *repoPG) ListDueForReminder(ctx context.Context, scope db.Scope, from, to time.Time, limit int) ([]*Appointment, error) {
	args := []interface{}{StatusScheduled, StatusConfirmed}
	cond := scope.Cond("tenant_id", &args)
	window := dateWindow(&args, from, to)

	args = append(args, limit)
	rows, err := r.pool.Query(ctx,
		`SELECT `+apptCols+` FROM appointment
		 WHERE status IN ($1, $2) AND reminder_sent = FALSE`+cond+window+
			fmt.Sprintf(` ORDER BY COALESCE(scheduled_at, appointment_date) LIMIT $%d`, len(args)),
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := scanAppt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
