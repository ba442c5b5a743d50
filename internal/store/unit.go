package store

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/donorledger/internal/pledge"
	"github.com/MrJamesThe3rd/donorledger/internal/reconcile"
	"github.com/MrJamesThe3rd/donorledger/internal/transaction"
)

// lockKey maps an external id key such as "charge:ch_1" onto the advisory
// lock space. Collisions only serialise unrelated work.
func lockKey(key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))

	return int64(h.Sum64())
}

// begin opens a database transaction holding a transaction-scoped advisory
// lock on every key. keys must be sorted so that concurrent units acquire
// shared locks in the same order.
func (s *Store) begin(ctx context.Context, keys []string) (*sql.Tx, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning tx: %w", err)
	}

	for _, key := range keys {
		if _, err := dbTx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", lockKey(key)); err != nil {
			dbTx.Rollback()
			return nil, fmt.Errorf("acquiring lock %s: %w", key, err)
		}
	}

	return dbTx, nil
}

type unitTx struct {
	tx *sql.Tx
}

// Begin starts a unit of reconciliation work.
func (s *Store) Begin(ctx context.Context, keys []string) (reconcile.Tx, error) {
	dbTx, err := s.begin(ctx, keys)
	if err != nil {
		return nil, err
	}

	return &unitTx{tx: dbTx}, nil
}

func (u *unitTx) Commit() error { return u.tx.Commit() }

// Rollback is a no-op after Commit.
func (u *unitTx) Rollback() error {
	if err := u.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return err
	}

	return nil
}

func (u *unitTx) pledgeWhere(ctx context.Context, where string, args ...any) (*pledge.Pledge, error) {
	query := `SELECT ` + pledgeColumns + ` FROM pledges WHERE ` + where + ` FOR UPDATE`

	p, err := queryOne(u.tx.QueryRowContext(ctx, query, args...), scanPledge)
	if err != nil {
		return nil, fmt.Errorf("finding pledge: %w", err)
	}

	return p, nil
}

func (u *unitTx) PledgeBySubscription(ctx context.Context, subscriptionID string) (*pledge.Pledge, error) {
	return u.pledgeWhere(ctx, "subscription_id = $1", subscriptionID)
}

func (u *unitTx) PledgeByAttempt(ctx context.Context, attemptID string) (*pledge.Pledge, error) {
	return u.pledgeWhere(ctx, "attempt_id = $1", attemptID)
}

func (u *unitTx) LatestPledgeByCustomer(ctx context.Context, customerID string) (*pledge.Pledge, error) {
	return u.pledgeWhere(ctx, "customer_id = $1 ORDER BY created_at DESC, id LIMIT 1", customerID)
}

func (u *unitTx) UpdatePledge(ctx context.Context, p *pledge.Pledge) error {
	query := `
		UPDATE pledges
		SET amount = $1, currency = $2, interval = $3, status = $4, customer_id = $5, subscription_id = $6,
			price_id = $7, setup_intent_id = $8, latest_invoice_id = $9, latest_payment_intent_id = $10,
			current_period_start = $11, current_period_end = $12, last_pledge_at = $13, last_failed_at = $14,
			next_pledge_at = $15, cancel_at_period_end = $16, canceled_at = $17, subscription_synced_at = $18,
			donor_email = $19, donor_name = $20, updated_at = NOW()
		WHERE id = $21
	`

	_, err := u.tx.ExecContext(ctx, query,
		p.Amount, p.Currency, p.Interval, p.Status, nullable(p.CustomerID), nullable(p.SubscriptionID),
		nullable(p.PriceID), nullable(p.SetupIntentID), nullable(p.LatestInvoiceID), nullable(p.LatestPaymentIntentID),
		p.CurrentPeriodStart, p.CurrentPeriodEnd, p.LastPledgeAt, p.LastFailedAt,
		p.NextPledgeAt, p.CancelAtPeriodEnd, p.CanceledAt, p.SubscriptionSyncedAt, nullable(p.DonorEmail), nullable(p.DonorName),
		p.ID,
	)
	if err != nil {
		return writeErr("updating pledge", err)
	}

	return nil
}

func (u *unitTx) transactionWhere(ctx context.Context, where string, args ...any) (*transaction.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` + where + ` FOR UPDATE`

	t, err := queryOne(u.tx.QueryRowContext(ctx, query, args...), scanTransaction)
	if err != nil {
		return nil, fmt.Errorf("finding transaction: %w", err)
	}

	return t, nil
}

func (u *unitTx) TransactionByInvoice(ctx context.Context, pledgeID uuid.UUID, invoiceID string) (*transaction.Transaction, error) {
	return u.transactionWhere(ctx, "pledge_id = $1 AND invoice_id = $2", pledgeID, invoiceID)
}

func (u *unitTx) TransactionByPaymentIntent(ctx context.Context, paymentIntentID string) (*transaction.Transaction, error) {
	return u.transactionWhere(ctx, "payment_intent_id = $1", paymentIntentID)
}

func (u *unitTx) TransactionByCharge(ctx context.Context, chargeID string) (*transaction.Transaction, error) {
	return u.transactionWhere(ctx, "charge_id = $1", chargeID)
}

func (u *unitTx) Placeholders(ctx context.Context, filter reconcile.PlaceholderFilter) ([]*transaction.Transaction, error) {
	if filter.Empty() {
		return nil, nil
	}

	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = 'pending'
			AND (payment_intent_id IS NULL OR charge_id IS NULL)
			AND (pledge_id = $1 OR subscription_id = $2 OR attempt_id = $3)
		ORDER BY created_at DESC, id
		FOR UPDATE`

	return queryTransactions(ctx, u.tx, query, filter.PledgeID, nullable(filter.SubscriptionID), nullable(filter.AttemptID))
}

func (u *unitTx) CreateTransaction(ctx context.Context, t *transaction.Transaction) error {
	return insertTransaction(ctx, u.tx, t)
}

func (u *unitTx) UpdateTransaction(ctx context.Context, t *transaction.Transaction) error {
	metadata, err := encodeMetadata(t.Metadata)
	if err != nil {
		return err
	}

	query := `
		UPDATE transactions
		SET pledge_id = $1, user_id = $2, attempt_id = $3, type = $4, status = $5, amount = $6, currency = $7,
			payment_intent_id = $8, charge_id = $9, invoice_id = $10, subscription_id = $11, customer_id = $12,
			payment_method_id = $13, receipt_url = $14, payer_email = $15, payer_name = $16, metadata = $17,
			paid_at = $18, source = $19, updated_at = NOW()
		WHERE id = $20
	`

	_, err = u.tx.ExecContext(ctx, query,
		t.PledgeID, t.UserID, nullable(t.AttemptID), t.Type, t.Status, t.Amount, t.Currency,
		nullable(t.PaymentIntentID), nullable(t.ChargeID), nullable(t.InvoiceID), nullable(t.SubscriptionID),
		nullable(t.CustomerID), nullable(t.PaymentMethodID), nullable(t.ReceiptURL), nullable(t.PayerEmail),
		nullable(t.PayerName), metadata, t.PaidAt, nullable(t.Source),
		t.ID,
	)
	if err != nil {
		return writeErr("updating transaction", err)
	}

	return nil
}

func (u *unitTx) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	if _, err := u.tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1 AND status = 'pending'`, id); err != nil {
		return writeErr("deleting transaction", err)
	}

	return nil
}

func (u *unitTx) RefundByExternalID(ctx context.Context, externalID string) (*transaction.Refund, error) {
	query := `SELECT ` + refundColumns + ` FROM refunds WHERE external_id = $1 FOR UPDATE`

	r, err := queryOne(u.tx.QueryRowContext(ctx, query, externalID), scanRefund)
	if err != nil {
		return nil, fmt.Errorf("finding refund: %w", err)
	}

	return r, nil
}

func (u *unitTx) RefundsByCharge(ctx context.Context, chargeID string) ([]*transaction.Refund, error) {
	query := `SELECT ` + refundColumns + ` FROM refunds WHERE charge_id = $1 ORDER BY created_at, id FOR UPDATE`

	return queryRefunds(ctx, u.tx, query, chargeID)
}

func (u *unitTx) UpsertRefund(ctx context.Context, r *transaction.Refund) error {
	query := `
		INSERT INTO refunds (` + refundColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULL)
		ON CONFLICT (external_id) DO UPDATE
		SET transaction_id = EXCLUDED.transaction_id,
			charge_id = EXCLUDED.charge_id,
			payment_intent_id = EXCLUDED.payment_intent_id,
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			status = EXCLUDED.status,
			reason = EXCLUDED.reason,
			updated_at = NOW()
	`

	_, err := u.tx.ExecContext(ctx, query,
		r.ID, r.ExternalID, r.TransactionID, nullable(r.ChargeID), nullable(r.PaymentIntentID),
		r.Amount, r.Currency, r.Status, nullable(r.Reason), r.CreatedAt,
	)
	if err != nil {
		return writeErr("upserting refund", err)
	}

	return nil
}
