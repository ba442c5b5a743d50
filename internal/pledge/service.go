package pledge

import (
	"context"

	"github.com/google/uuid"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=pledge
type Repository interface {
	GetPledge(ctx context.Context, id uuid.UUID) (*Pledge, error)
	ListPledges(ctx context.Context, filter ListFilter) ([]*Pledge, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

type ListFilter struct {
	Status     *Status
	CustomerID string
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Pledge, error) {
	return s.repo.GetPledge(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Pledge, error) {
	return s.repo.ListPledges(ctx, filter)
}
