package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patient table. PortalUserID links the record to a
// patient-portal account and is what in-app notifications are addressed to.
type Patient struct {
	ID           uuid.UUID `db:"id" json:"id"`
	TenantID     *string   `db:"tenant_id" json:"tenant_id,omitempty"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	Phone        *string   `db:"phone" json:"phone,omitempty"`
	Email        *string   `db:"email" json:"email,omitempty"`
	PortalUserID *string   `db:"portal_user_id" json:"portal_user_id,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// FullName returns the patient's display name.
func (p *Patient) FullName() string {
	if p.FirstName == "" {
		return p.LastName
	}
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}
