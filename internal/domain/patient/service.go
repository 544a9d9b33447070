package patient

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinicdesk/internal/platform/db"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, p *Patient) error {
	if p.FirstName == "" && p.LastName == "" {
		return fmt.Errorf("patient name is required")
	}
	p.TenantID = db.ScopeFromContext(ctx).TenantValue()
	return s.repo.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, db.ScopeFromContext(ctx), id)
}

func (s *Service) Update(ctx context.Context, p *Patient) error {
	if _, err := s.repo.GetByID(ctx, db.ScopeFromContext(ctx), p.ID); err != nil {
		return fmt.Errorf("patient %s: %w", p.ID, err)
	}
	return s.repo.Update(ctx, p)
}

func (s *Service) List(ctx context.Context, search string, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, db.ScopeFromContext(ctx), search, limit, offset)
}
