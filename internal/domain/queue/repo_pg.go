package queue

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

const entryCols = `id, tenant_id, patient_id, appointment_id, provider, room, reason,
	queue_number, status, queued_at, called_at, started_at, completed_at, cancelled_at,
	checked_in, checked_in_at, check_in_method, completion_notes, created_at, updated_at`

func scanEntry(row pgx.Row) (*QueueEntry, error) {
	var e QueueEntry
	err := row.Scan(&e.ID, &e.TenantID, &e.PatientID, &e.AppointmentID, &e.Provider, &e.Room, &e.Reason,
		&e.QueueNumber, &e.Status, &e.QueuedAt, &e.CalledAt, &e.StartedAt, &e.CompletedAt, &e.CancelledAt,
		&e.CheckedIn, &e.CheckedInAt, &e.CheckInMethod, &e.CompletionNotes, &e.CreatedAt, &e.UpdatedAt)
	return &e, err
}

// nextQueueNumber draws the next number for a tenant-day from the counter
// table. The upsert is a single atomic statement, so concurrent creations get
// strictly increasing numbers. A failed insert after drawing burns the number
// rather than reusing it.
func (r *repoPG) nextQueueNumber(ctx context.Context, tenantKey string, day time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		INSERT INTO queue_counter (tenant_key, day, value)
		VALUES ($1, $2, 1)
		ON CONFLICT (tenant_key, day)
		DO UPDATE SET value = queue_counter.value + 1
		RETURNING value`,
		tenantKey, day.Format("2006-01-02")).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("next queue number: %w", err)
	}
	return n, nil
}

func (r *repoPG) Create(ctx context.Context, e *QueueEntry) error {
	e.ID = uuid.New()
	if e.QueuedAt.IsZero() {
		e.QueuedAt = time.Now()
	}

	tenantKey := ""
	if e.TenantID != nil {
		tenantKey = *e.TenantID
	}
	n, err := r.nextQueueNumber(ctx, tenantKey, e.QueuedAt)
	if err != nil {
		return err
	}
	e.QueueNumber = n

	_, err = r.pool.Exec(ctx, `
		INSERT INTO queue_entry (id, tenant_id, patient_id, appointment_id, provider, room, reason,
			queue_number, status, queued_at, checked_in, checked_in_at, check_in_method)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		e.ID, e.TenantID, e.PatientID, e.AppointmentID, e.Provider, e.Room, e.Reason,
		e.QueueNumber, e.Status, e.QueuedAt, e.CheckedIn, e.CheckedInAt, e.CheckInMethod)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, scope db.Scope, id uuid.UUID) (*QueueEntry, error) {
	args := []interface{}{id}
	cond := scope.Cond("tenant_id", &args)
	return scanEntry(r.pool.QueryRow(ctx,
		`SELECT `+entryCols+` FROM queue_entry WHERE id = $1`+cond, args...))
}

func (r *repoPG) Update(ctx context.Context, e *QueueEntry) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE queue_entry SET appointment_id=$2, provider=$3, room=$4, reason=$5,
			status=$6, called_at=$7, started_at=$8, completed_at=$9, cancelled_at=$10,
			checked_in=$11, checked_in_at=$12, check_in_method=$13, completion_notes=$14,
			updated_at=NOW()
		WHERE id = $1`,
		e.ID, e.AppointmentID, e.Provider, e.Room, e.Reason,
		e.Status, e.CalledAt, e.StartedAt, e.CompletedAt, e.CancelledAt,
		e.CheckedIn, e.CheckedInAt, e.CheckInMethod, e.CompletionNotes)
	return err
}

func (r *repoPG) List(ctx context.Context, scope db.Scope, filter ListFilter, limit, offset int) ([]*QueueEntry, int, error) {
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
		args = append(args, dayStart, dayStart.AddDate(0, 0, 1))
		where += fmt.Sprintf(` AND queued_at >= $%d AND queued_at < $%d`, len(args)-1, len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM queue_entry`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx,
		`SELECT `+entryCols+` FROM queue_entry`+where+
			fmt.Sprintf(` ORDER BY queue_number LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*QueueEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}

func (r *repoPG) FindMostRecentActiveByPatient(ctx context.Context, scope db.Scope, patientID uuid.UUID) (*QueueEntry, error) {
	args := []interface{}{patientID, StatusWaiting, StatusInProgress}
	cond := scope.Cond("tenant_id", &args)
	return scanEntry(r.pool.QueryRow(ctx,
		`SELECT `+entryCols+` FROM queue_entry
		 WHERE patient_id = $1 AND status IN ($2, $3)`+cond+`
		 ORDER BY queued_at DESC LIMIT 1`, args...))
}

func (r *repoPG) FindActiveByAppointment(ctx context.Context, scope db.Scope, appointmentID uuid.UUID) (*QueueEntry, error) {
	args := []interface{}{appointmentID, StatusWaiting, StatusInProgress}
	cond := scope.Cond("tenant_id", &args)
	return scanEntry(r.pool.QueryRow(ctx,
		`SELECT `+entryCols+` FROM queue_entry
		 WHERE appointment_id = $1 AND status IN ($2, $3)`+cond+`
		 ORDER BY queued_at DESC LIMIT 1`, args...))
}

func (r *repoPG) CloseOpenEntries(ctx context.Context, scope db.Scope, dayStart, dayEnd time.Time, status, notes string, now time.Time) (CloseResult, error) {
	var res CloseResult

	args := []interface{}{StatusWaiting, StatusInProgress, dayStart, dayEnd}
	cond := scope.Cond("tenant_id", &args)
	window := ` WHERE status IN ($1, $2) AND queued_at >= $3 AND queued_at < $4` + cond

	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM queue_entry`+window, args...).Scan(&res.Matched); err != nil {
		return res, fmt.Errorf("count open queue entries: %w", err)
	}
	if res.Matched == 0 {
		return res, nil
	}

	args = append(args, status, now, notes)
	tag, err := r.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE queue_entry SET status = $%d, completed_at = $%d, completion_notes = $%d, updated_at = NOW()`,
			len(args)-2, len(args)-1, len(args))+window, args...)
	if err != nil {
		return res, fmt.Errorf("close open queue entries: %w", err)
	}
	res.Updated = tag.RowsAffected()
	return res, nil
}
