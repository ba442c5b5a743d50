package store

import (
	"context"

	"github.com/MrJamesThe3rd/donorledger/internal/checkout"
	"github.com/MrJamesThe3rd/donorledger/internal/pledge"
	"github.com/MrJamesThe3rd/donorledger/internal/transaction"
)

// AttemptLockKey is the lock name shared by checkout and webhook processing
// for one checkout attempt.
func AttemptLockKey(attemptID string) string {
	return "attempt:" + attemptID
}

type attemptTx struct {
	unitTx
}

// BeginAttempt serialises work on one checkout attempt.
func (s *Store) BeginAttempt(ctx context.Context, attemptID string) (checkout.AttemptTx, error) {
	dbTx, err := s.begin(ctx, []string{AttemptLockKey(attemptID)})
	if err != nil {
		return nil, err
	}

	return &attemptTx{unitTx{tx: dbTx}}, nil
}

func (a *attemptTx) TransactionByAttempt(ctx context.Context, attemptID string) (*transaction.Transaction, error) {
	return a.transactionWhere(ctx, "attempt_id = $1 ORDER BY created_at, id LIMIT 1", attemptID)
}

func (a *attemptTx) CreatePledge(ctx context.Context, p *pledge.Pledge) error {
	return insertPledge(ctx, a.tx, p)
}

