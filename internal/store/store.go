package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrJamesThe3rd/donorledger/internal/pledge"
	"github.com/MrJamesThe3rd/donorledger/internal/transaction"
)

const uniqueViolation = "23505"

// Store is the PostgreSQL ledger.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// nullable stores empty strings as NULL so that unique indexes ignore them.
func nullable(s string) any {
	if s == "" {
		return nil
	}

	return s
}

// writeErr maps unique violations to transaction.ErrDuplicate so callers can
// re-resolve the owner of the key.
func writeErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w: %w", op, transaction.ErrDuplicate, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

const pledgeColumns = `
	id, user_id, attempt_id, amount, currency, interval, status, customer_id, subscription_id,
	price_id, setup_intent_id, latest_invoice_id, latest_payment_intent_id,
	current_period_start, current_period_end, last_pledge_at, last_failed_at, next_pledge_at,
	cancel_at_period_end, canceled_at, subscription_synced_at, donor_email, donor_name, created_at, updated_at
`

// scanPledge reads a pledge row in pledgeColumns order.
func scanPledge(s scanner) (*pledge.Pledge, error) {
	var p pledge.Pledge

	var interval, status string

	var attemptID, customerID, subscriptionID, priceID, setupIntentID sql.NullString

	var latestInvoiceID, latestPaymentIntentID, donorEmail, donorName sql.NullString

	if err := s.Scan(
		&p.ID, &p.UserID, &attemptID, &p.Amount, &p.Currency, &interval, &status, &customerID, &subscriptionID,
		&priceID, &setupIntentID, &latestInvoiceID, &latestPaymentIntentID,
		&p.CurrentPeriodStart, &p.CurrentPeriodEnd, &p.LastPledgeAt, &p.LastFailedAt, &p.NextPledgeAt,
		&p.CancelAtPeriodEnd, &p.CanceledAt, &p.SubscriptionSyncedAt, &donorEmail, &donorName, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}

	p.Interval = pledge.Interval(interval)
	p.Status = pledge.Status(status)
	p.AttemptID = attemptID.String
	p.CustomerID = customerID.String
	p.SubscriptionID = subscriptionID.String
	p.PriceID = priceID.String
	p.SetupIntentID = setupIntentID.String
	p.LatestInvoiceID = latestInvoiceID.String
	p.LatestPaymentIntentID = latestPaymentIntentID.String
	p.DonorEmail = donorEmail.String
	p.DonorName = donorName.String

	return &p, nil
}

const transactionColumns = `
	id, pledge_id, user_id, attempt_id, type, status, amount, currency,
	payment_intent_id, charge_id, invoice_id, subscription_id, customer_id, payment_method_id,
	receipt_url, payer_email, payer_name, metadata, paid_at, source, created_at, updated_at
`

// scanTransaction reads a transaction row in transactionColumns order.
func scanTransaction(s scanner) (*transaction.Transaction, error) {
	var t transaction.Transaction

	var typ, status string

	var attemptID, paymentIntentID, chargeID, invoiceID, subscriptionID, customerID sql.NullString

	var paymentMethodID, receiptURL, payerEmail, payerName, source sql.NullString

	var metadata []byte

	if err := s.Scan(
		&t.ID, &t.PledgeID, &t.UserID, &attemptID, &typ, &status, &t.Amount, &t.Currency,
		&paymentIntentID, &chargeID, &invoiceID, &subscriptionID, &customerID, &paymentMethodID,
		&receiptURL, &payerEmail, &payerName, &metadata, &t.PaidAt, &source, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}

	t.Type = transaction.Type(typ)
	t.Status = transaction.Status(status)
	t.AttemptID = attemptID.String
	t.PaymentIntentID = paymentIntentID.String
	t.ChargeID = chargeID.String
	t.InvoiceID = invoiceID.String
	t.SubscriptionID = subscriptionID.String
	t.CustomerID = customerID.String
	t.PaymentMethodID = paymentMethodID.String
	t.ReceiptURL = receiptURL.String
	t.PayerEmail = payerEmail.String
	t.PayerName = payerName.String
	t.Source = source.String

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata: %w", err)
		}
	}

	return &t, nil
}

func encodeMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}

	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encoding metadata: %w", err)
	}

	return string(b), nil
}

const refundColumns = `
	id, external_id, transaction_id, charge_id, payment_intent_id, amount, currency, status, reason,
	created_at, updated_at
`

func scanRefund(s scanner) (*transaction.Refund, error) {
	var r transaction.Refund

	var status string

	var chargeID, paymentIntentID, reason sql.NullString

	if err := s.Scan(
		&r.ID, &r.ExternalID, &r.TransactionID, &chargeID, &paymentIntentID, &r.Amount, &r.Currency, &status, &reason,
		&r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}

	r.Status = transaction.RefundStatus(status)
	r.ChargeID = chargeID.String
	r.PaymentIntentID = paymentIntentID.String
	r.Reason = reason.String

	return &r, nil
}

func (s *Store) GetPledge(ctx context.Context, id uuid.UUID) (*pledge.Pledge, error) {
	query := `SELECT ` + pledgeColumns + ` FROM pledges WHERE id = $1`

	p, err := scanPledge(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, pledge.ErrNotFound
		}

		return nil, fmt.Errorf("getting pledge: %w", err)
	}

	return p, nil
}

func (s *Store) ListPledges(ctx context.Context, filter pledge.ListFilter) ([]*pledge.Pledge, error) {
	query := `SELECT ` + pledgeColumns + ` FROM pledges WHERE TRUE`

	var args []any

	argIdx := 1

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)

		args = append(args, *filter.Status)
		argIdx++
	}

	if filter.CustomerID != "" {
		query += fmt.Sprintf(" AND customer_id = $%d", argIdx)

		args = append(args, filter.CustomerID)
	}

	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing pledges: %w", err)
	}
	defer rows.Close()

	var pledges []*pledge.Pledge

	for rows.Next() {
		p, err := scanPledge(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning pledge: %w", err)
		}

		pledges = append(pledges, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pledges: %w", err)
	}

	return pledges, nil
}

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	t, err := scanTransaction(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, transaction.ErrNotFound
		}

		return nil, fmt.Errorf("getting transaction: %w", err)
	}

	return t, nil
}

func (s *Store) ListTransactions(ctx context.Context, filter transaction.ListFilter) ([]*transaction.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE TRUE`

	var args []any

	argIdx := 1

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)

		args = append(args, *filter.Status)
		argIdx++
	}

	if filter.PledgeID != nil {
		query += fmt.Sprintf(" AND pledge_id = $%d", argIdx)

		args = append(args, *filter.PledgeID)
		argIdx++
	}

	if filter.StartDate != nil {
		query += fmt.Sprintf(" AND COALESCE(paid_at, created_at) >= $%d", argIdx)

		args = append(args, *filter.StartDate)
		argIdx++
	}

	if filter.EndDate != nil {
		query += fmt.Sprintf(" AND COALESCE(paid_at, created_at) <= $%d", argIdx)

		args = append(args, *filter.EndDate)
	}

	query += " ORDER BY COALESCE(paid_at, created_at) ASC, id"

	return queryTransactions(ctx, s.db, query, args...)
}

func (s *Store) ListRefunds(ctx context.Context, transactionID uuid.UUID) ([]*transaction.Refund, error) {
	query := `SELECT ` + refundColumns + ` FROM refunds WHERE transaction_id = $1 ORDER BY created_at`

	return queryRefunds(ctx, s.db, query, transactionID)
}

func queryTransactions(ctx context.Context, q querier, query string, args ...any) ([]*transaction.Transaction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	var txs []*transaction.Transaction

	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}

		txs = append(txs, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transactions: %w", err)
	}

	return txs, nil
}

func queryRefunds(ctx context.Context, q querier, query string, args ...any) ([]*transaction.Refund, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying refunds: %w", err)
	}
	defer rows.Close()

	var refunds []*transaction.Refund

	for rows.Next() {
		r, err := scanRefund(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning refund: %w", err)
		}

		refunds = append(refunds, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating refunds: %w", err)
	}

	return refunds, nil
}

// queryOne returns nil without error when the query matches no row.
func queryOne[T any](row *sql.Row, scan func(scanner) (*T, error)) (*T, error) {
	v, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	return v, err
}

func insertPledge(ctx context.Context, q querier, p *pledge.Pledge) error {
	query := `
		INSERT INTO pledges (` + pledgeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, NULL)
	`

	_, err := q.ExecContext(ctx, query,
		p.ID, p.UserID, nullable(p.AttemptID), p.Amount, p.Currency, p.Interval, p.Status,
		nullable(p.CustomerID), nullable(p.SubscriptionID), nullable(p.PriceID), nullable(p.SetupIntentID),
		nullable(p.LatestInvoiceID), nullable(p.LatestPaymentIntentID),
		p.CurrentPeriodStart, p.CurrentPeriodEnd, p.LastPledgeAt, p.LastFailedAt, p.NextPledgeAt,
		p.CancelAtPeriodEnd, p.CanceledAt, p.SubscriptionSyncedAt, nullable(p.DonorEmail), nullable(p.DonorName), p.CreatedAt,
	)
	if err != nil {
		return writeErr("creating pledge", err)
	}

	return nil
}

func insertTransaction(ctx context.Context, q querier, t *transaction.Transaction) error {
	metadata, err := encodeMetadata(t.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, NULL)
	`

	_, err = q.ExecContext(ctx, query,
		t.ID, t.PledgeID, t.UserID, nullable(t.AttemptID), t.Type, t.Status, t.Amount, t.Currency,
		nullable(t.PaymentIntentID), nullable(t.ChargeID), nullable(t.InvoiceID), nullable(t.SubscriptionID),
		nullable(t.CustomerID), nullable(t.PaymentMethodID), nullable(t.ReceiptURL),
		nullable(t.PayerEmail), nullable(t.PayerName), metadata, t.PaidAt, nullable(t.Source), t.CreatedAt,
	)
	if err != nil {
		return writeErr("creating transaction", err)
	}

	return nil
}
