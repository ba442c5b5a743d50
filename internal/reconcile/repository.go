package reconcile

import (
	"context"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/donorledger/internal/pledge"
	"github.com/MrJamesThe3rd/donorledger/internal/transaction"
)

// Repository opens units of work against the ledger.
type Repository interface {
	// Begin starts an atomic unit and serialises it against every other unit
	// naming any of keys.
	Begin(ctx context.Context, keys []string) (Tx, error)
}

// Tx is one atomic unit of ledger work. Lookups lock the rows they return
// and return (nil, nil) when nothing matches.
type Tx interface {
	PledgeBySubscription(ctx context.Context, subscriptionID string) (*pledge.Pledge, error)
	PledgeByAttempt(ctx context.Context, attemptID string) (*pledge.Pledge, error)
	LatestPledgeByCustomer(ctx context.Context, customerID string) (*pledge.Pledge, error)
	UpdatePledge(ctx context.Context, p *pledge.Pledge) error

	TransactionByInvoice(ctx context.Context, pledgeID uuid.UUID, invoiceID string) (*transaction.Transaction, error)
	TransactionByPaymentIntent(ctx context.Context, paymentIntentID string) (*transaction.Transaction, error)
	TransactionByCharge(ctx context.Context, chargeID string) (*transaction.Transaction, error)
	Placeholders(ctx context.Context, filter PlaceholderFilter) ([]*transaction.Transaction, error)
	CreateTransaction(ctx context.Context, t *transaction.Transaction) error
	UpdateTransaction(ctx context.Context, t *transaction.Transaction) error
	// DeleteTransaction removes a pending placeholder absorbed by another row.
	DeleteTransaction(ctx context.Context, id uuid.UUID) error

	RefundByExternalID(ctx context.Context, externalID string) (*transaction.Refund, error)
	RefundsByCharge(ctx context.Context, chargeID string) ([]*transaction.Refund, error)
	UpsertRefund(ctx context.Context, r *transaction.Refund) error

	Commit() error
	Rollback() error
}

// PlaceholderFilter selects pending transactions matching any of the set
// fields. An empty filter matches nothing.
type PlaceholderFilter struct {
	PledgeID       *uuid.UUID
	SubscriptionID string
	AttemptID      string
}

func (f PlaceholderFilter) Empty() bool {
	return f.PledgeID == nil && f.SubscriptionID == "" && f.AttemptID == ""
}

// Lookup retrieves data the event payload left out from the processor API.
type Lookup interface {
	ChargeForPaymentIntent(ctx context.Context, paymentIntentID string) (string, error)
}
