package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/platform/db"
	"github.com/clinicdesk/clinicdesk/internal/platform/websocket"
)

// Propagator mirrors an appointment status change onto the linked queue
// entry. The synchronizer implements it.
type Propagator interface {
	AppointmentStatusChanged(ctx context.Context, a *Appointment) error
}

type Service struct {
	repo       Repository
	propagator Propagator
	events     websocket.EventPublisher
	logger     zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) SetPropagator(p Propagator) { s.propagator = p }

func (s *Service) SetEventPublisher(pub websocket.EventPublisher) { s.events = pub }

func (s *Service) Create(ctx context.Context, a *Appointment) error {
	if a.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	if !IsValidStatus(a.Status) {
		return fmt.Errorf("invalid appointment status: %s", a.Status)
	}
	if a.When() == nil {
		return fmt.Errorf("scheduled_at or appointment_date is required")
	}
	a.TenantID = db.ScopeFromContext(ctx).TenantValue()

	if err := s.repo.Create(ctx, a); err != nil {
		return err
	}
	s.publish(ctx, "appointment.created", a)
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, db.ScopeFromContext(ctx), id)
}

func (s *Service) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Appointment, int, error) {
	return s.repo.List(ctx, db.ScopeFromContext(ctx), filter, limit, offset)
}

// UpdateStatus moves an appointment to a new status. Semantics match the
// queue side: same-status updates are no-ops, suppressed updates are not
// mirrored back onto the queue.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string, suppressSync bool) (*Appointment, error) {
	if !IsValidStatus(status) {
		return nil, fmt.Errorf("invalid appointment status: %s", status)
	}

	a, err := s.repo.GetByID(ctx, db.ScopeFromContext(ctx), id)
	if err != nil {
		return nil, err
	}

	if !a.ApplyStatus(status, time.Now()) {
		return a, nil
	}
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}

	if !suppressSync {
		s.propagate(ctx, a)
	}
	s.publish(ctx, "appointment.updated", a)
	return a, nil
}

func (s *Service) propagate(ctx context.Context, a *Appointment) {
	if s.propagator == nil {
		return
	}
	if err := s.propagator.AppointmentStatusChanged(ctx, a); err != nil {
		s.logger.Warn().Err(err).
			Str("appointment_id", a.ID.String()).
			Str("status", a.Status).
			Msg("appointment to queue propagation failed")
	}
}

func (s *Service) publish(ctx context.Context, eventType string, a *Appointment) {
	if s.events == nil {
		return
	}
	tenantID := ""
	if a.TenantID != nil {
		tenantID = *a.TenantID
	}
	_ = s.events.Publish(ctx, websocket.Event{
		Type:      eventType,
		Topic:     websocket.AppointmentTopic(tenantID),
		Entity:    "appointment",
		EntityID:  a.ID.String(),
		Timestamp: time.Now().UTC(),
	})
}
