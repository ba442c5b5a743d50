package transaction

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=transaction
type Repository interface {
	GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)
	ListTransactions(ctx context.Context, filter ListFilter) ([]*Transaction, error)
	ListRefunds(ctx context.Context, transactionID uuid.UUID) ([]*Refund, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

type ListFilter struct {
	Status    *Status
	PledgeID  *uuid.UUID
	StartDate *time.Time
	EndDate   *time.Time
}

// Detail is a transaction together with the refunds recorded against it.
type Detail struct {
	Transaction *Transaction
	Refunds     []*Refund
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	return s.repo.GetTransaction(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Transaction, error) {
	return s.repo.ListTransactions(ctx, filter)
}

func (s *Service) GetDetail(ctx context.Context, id uuid.UUID) (*Detail, error) {
	tx, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}

	refunds, err := s.repo.ListRefunds(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("listing refunds: %w", err)
	}

	return &Detail{Transaction: tx, Refunds: refunds}, nil
}
