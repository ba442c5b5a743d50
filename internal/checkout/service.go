package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/donorledger/internal/pledge"
	"github.com/MrJamesThe3rd/donorledger/internal/transaction"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=checkout
type Repository interface {
	BeginAttempt(ctx context.Context, attemptID string) (AttemptTx, error)
}

// AttemptTx is serialised per attempt id, against other attempts and against
// webhook processing for the same attempt.
type AttemptTx interface {
	PledgeByAttempt(ctx context.Context, attemptID string) (*pledge.Pledge, error)
	TransactionByAttempt(ctx context.Context, attemptID string) (*transaction.Transaction, error)
	CreatePledge(ctx context.Context, p *pledge.Pledge) error
	CreateTransaction(ctx context.Context, t *transaction.Transaction) error
	Commit() error
	Rollback() error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Begin creates the pending placeholder rows for a checkout attempt. It is
// idempotent per attempt id: calling it again returns the rows created first.
func (s *Service) Begin(ctx context.Context, params Params) (*Attempt, error) {
	atx, err := s.repo.BeginAttempt(ctx, params.AttemptID)
	if err != nil {
		return nil, fmt.Errorf("begin attempt: %w", err)
	}
	defer atx.Rollback()

	existing, err := atx.TransactionByAttempt(ctx, params.AttemptID)
	if err != nil {
		return nil, fmt.Errorf("find transaction: %w", err)
	}

	if existing != nil {
		if existing.Amount != params.Amount || (existing.PledgeID != nil) != (params.Kind == KindRecurring) {
			return nil, ErrAttemptMismatch
		}

		attempt := &Attempt{Transaction: existing, Existing: true}

		if params.Kind == KindRecurring {
			if attempt.Pledge, err = atx.PledgeByAttempt(ctx, params.AttemptID); err != nil {
				return nil, fmt.Errorf("find pledge: %w", err)
			}
		}

		return attempt, nil
	}

	now := time.Now().UTC()
	attempt := &Attempt{}

	tx := &transaction.Transaction{
		ID:         uuid.New(),
		UserID:     params.UserID,
		AttemptID:  params.AttemptID,
		Type:       transaction.TypeOneTime,
		Status:     transaction.StatusPending,
		Amount:     params.Amount,
		Currency:   params.Currency,
		PayerEmail: params.DonorEmail,
		PayerName:  params.DonorName,
		Source:     "checkout",
		CreatedAt:  now,
	}

	if params.Kind == KindRecurring {
		p := &pledge.Pledge{
			ID:         uuid.New(),
			UserID:     params.UserID,
			AttemptID:  params.AttemptID,
			Amount:     params.Amount,
			Currency:   params.Currency,
			Interval:   params.Interval,
			Status:     pledge.StatusIncomplete,
			DonorEmail: params.DonorEmail,
			DonorName:  params.DonorName,
			CreatedAt:  now,
		}

		if err := atx.CreatePledge(ctx, p); err != nil {
			return nil, fmt.Errorf("create pledge: %w", err)
		}

		tx.PledgeID = &p.ID
		tx.Type = transaction.TypeSubscriptionInitial
		attempt.Pledge = p
	}

	if err := atx.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	if err := atx.Commit(); err != nil {
		return nil, fmt.Errorf("commit attempt: %w", err)
	}

	attempt.Transaction = tx

	slog.Info("checkout attempt started", "attempt_id", params.AttemptID, "kind", params.Kind, "transaction_id", tx.ID)

	return attempt, nil
}
