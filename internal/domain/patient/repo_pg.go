package patient

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/clinicdesk/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const patientCols = `id, tenant_id, first_name, last_name, phone, email,
	portal_user_id, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.TenantID, &p.FirstName, &p.LastName, &p.Phone, &p.Email,
		&p.PortalUserID, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patient (id, tenant_id, first_name, last_name, phone, email, portal_user_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.TenantID, p.FirstName, p.LastName, p.Phone, p.Email, p.PortalUserID)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, scope db.Scope, id uuid.UUID) (*Patient, error) {
	args := []interface{}{id}
	cond := scope.Cond("tenant_id", &args)
	return scanPatient(r.pool.QueryRow(ctx,
		`SELECT `+patientCols+` FROM patient WHERE id = $1`+cond, args...))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE patient SET first_name=$2, last_name=$3, phone=$4, email=$5,
			portal_user_id=$6, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.Phone, p.Email, p.PortalUserID)
	return err
}

func (r *repoPG) List(ctx context.Context, scope db.Scope, search string, limit, offset int) ([]*Patient, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	where += scope.Cond("tenant_id", &args)

	if search != "" {
		args = append(args, "%"+search+"%")
		where += fmt.Sprintf(` AND (first_name ILIKE $%d OR last_name ILIKE $%d)`, len(args), len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM patient`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx,
		`SELECT `+patientCols+` FROM patient`+where+
			fmt.Sprintf(` ORDER BY last_name, first_name LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}
