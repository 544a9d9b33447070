package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/platform/db"
	"github.com/clinicdesk/clinicdesk/internal/platform/websocket"
)

// Propagator mirrors a queue status change onto the linked appointment. The
// synchronizer implements it; the interface lives here so the service does
// not import the sync package.
type Propagator interface {
	QueueStatusChanged(ctx context.Context, e *QueueEntry) error
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

// SetPropagator wires the cross-entity synchronizer. Called once at startup;
// optional so the service works standalone in tests.
func (s *Service) SetPropagator(p Propagator) { s.propagator = p }

// SetEventPublisher wires the live-update hub.
func (s *Service) SetEventPublisher(pub websocket.EventPublisher) { s.events = pub }

func (s *Service) Create(ctx context.Context, e *QueueEntry) error {
	if e.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if e.Status == "" {
		e.Status = StatusWaiting
	}
	if !IsValidStatus(e.Status) {
		return fmt.Errorf("invalid queue status: %s", e.Status)
	}
	e.TenantID = db.ScopeFromContext(ctx).TenantValue()

	if err := s.repo.Create(ctx, e); err != nil {
		return err
	}
	s.publish(ctx, "queue.created", e)
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*QueueEntry, error) {
	return s.repo.GetByID(ctx, db.ScopeFromContext(ctx), id)
}

func (s *Service) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*QueueEntry, int, error) {
	return s.repo.List(ctx, db.ScopeFromContext(ctx), filter, limit, offset)
}

// UpdateStatus moves an entry to a new status. Re-applying the current status
// is a no-op: no write, no timestamps, no propagation. When suppressSync is
// set the change is not mirrored onto the linked appointment; the
// synchronizer tags its own writes this way to stop mutual re-triggering.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string, suppressSync bool) (*QueueEntry, error) {
	if !IsValidStatus(status) {
		return nil, fmt.Errorf("invalid queue status: %s", status)
	}

	e, err := s.repo.GetByID(ctx, db.ScopeFromContext(ctx), id)
	if err != nil {
		return nil, err
	}

	if !e.ApplyStatus(status, time.Now()) {
		return e, nil
	}
	if err := s.repo.Update(ctx, e); err != nil {
		return nil, err
	}

	if !suppressSync {
		s.propagate(ctx, e)
	}
	s.publish(ctx, "queue.updated", e)
	return e, nil
}

// CheckIn records the patient's one-time check-in. A repeat check-in leaves
// the original timestamp and method untouched.
func (s *Service) CheckIn(ctx context.Context, id uuid.UUID, method string) (*QueueEntry, error) {
	e, err := s.repo.GetByID(ctx, db.ScopeFromContext(ctx), id)
	if err != nil {
		return nil, err
	}

	if !e.MarkCheckedIn(method, time.Now()) {
		return e, nil
	}
	if err := s.repo.Update(ctx, e); err != nil {
		return nil, err
	}
	s.publish(ctx, "queue.updated", e)
	return e, nil
}

// propagate mirrors the status change onto the linked appointment.
// Failures are logged and swallowed: staff actions never fail because of a
// secondary bookkeeping write.
func (s *Service) propagate(ctx context.Context, e *QueueEntry) {
	if s.propagator == nil {
		return
	}
	if err := s.propagator.QueueStatusChanged(ctx, e); err != nil {
		s.logger.Warn().Err(err).
			Str("queue_entry_id", e.ID.String()).
			Str("status", e.Status).
			Msg("queue to appointment propagation failed")
	}
}

func (s *Service) publish(ctx context.Context, eventType string, e *QueueEntry) {
	if s.events == nil {
		return
	}
	tenantID := ""
	if e.TenantID != nil {
		tenantID = *e.TenantID
	}
	_ = s.events.Publish(ctx, websocket.Event{
		Type:      eventType,
		Topic:     websocket.QueueTopic(tenantID),
		Entity:    "queue_entry",
		EntityID:  e.ID.String(),
		Timestamp: time.Now().UTC(),
	})
}
