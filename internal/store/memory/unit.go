package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"

	"github.com/MrJamesThe3rd/donorledger/internal/pledge"
	"github.com/MrJamesThe3rd/donorledger/internal/reconcile"
	"github.com/MrJamesThe3rd/donorledger/internal/transaction"
)

type unit struct {
	txn  *memdb.Txn
	done bool
}

func (u *unit) Commit() error {
	if u.done {
		return fmt.Errorf("commit: unit already finished")
	}

	u.done = true
	u.txn.Commit()

	return nil
}

// Rollback discards the unit's changes. It is a no-op after Commit.
func (u *unit) Rollback() error {
	if !u.done {
		u.done = true
		u.txn.Abort()
	}

	return nil
}

func (u *unit) list(tbl, index, arg string) (memdb.ResultIterator, error) {
	it, err := u.txn.Get(tbl, index, arg)
	if err != nil {
		return nil, fmt.Errorf("reading %s by %s: %w", tbl, index, err)
	}

	return it, nil
}

// newestPledge returns the most recently created pledge at index, breaking
// ties by id.
func (u *unit) newestPledge(index, arg string) (*pledge.Pledge, error) {
	it, err := u.list(tablePledges, index, arg)
	if err != nil {
		return nil, err
	}

	found := collect(it, copyPledge)
	if len(found) == 0 {
		return nil, nil
	}

	return slices.MinFunc(found, func(a, b *pledge.Pledge) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), strings.Compare(a.ID.String(), b.ID.String()))
	}), nil
}

func (u *unit) PledgeBySubscription(_ context.Context, subscriptionID string) (*pledge.Pledge, error) {
	return u.newestPledge("subscription", subscriptionID)
}

func (u *unit) PledgeByAttempt(_ context.Context, attemptID string) (*pledge.Pledge, error) {
	return u.newestPledge("attempt", attemptID)
}

func (u *unit) LatestPledgeByCustomer(_ context.Context, customerID string) (*pledge.Pledge, error) {
	return u.newestPledge("customer", customerID)
}

// taken reports whether another object than id holds key at index.
func (u *unit) taken(tbl, index, key string, id func(any) string, self string) (bool, error) {
	if key == "" {
		return false, nil
	}

	it, err := u.list(tbl, index, key)
	if err != nil {
		return false, err
	}

	for obj := it.Next(); obj != nil; obj = it.Next() {
		if id(obj) != self {
			return true, nil
		}
	}

	return false, nil
}

func pledgeID(obj any) string      { return obj.(*pledge.Pledge).ID.String() }
func transactionID(obj any) string { return obj.(*transaction.Transaction).ID.String() }

func (u *unit) checkPledge(p *pledge.Pledge) error {
	self := p.ID.String()

	for _, c := range []struct{ index, key string }{
		{"subscription", p.SubscriptionID},
		{"attempt", p.AttemptID},
	} {
		dup, err := u.taken(tablePledges, c.index, c.key, pledgeID, self)
		if err != nil {
			return err
		}

		if dup {
			return fmt.Errorf("%s %s: %w", c.index, c.key, transaction.ErrDuplicate)
		}
	}

	return nil
}

func (u *unit) CreatePledge(_ context.Context, p *pledge.Pledge) error {
	existing, err := u.txn.First(tablePledges, "id", p.ID.String())
	if err != nil {
		return fmt.Errorf("reading pledge: %w", err)
	}

	if existing != nil {
		return fmt.Errorf("pledge %s: %w", p.ID, transaction.ErrDuplicate)
	}

	if err := u.checkPledge(p); err != nil {
		return err
	}

	if err := u.txn.Insert(tablePledges, copyPledge(p)); err != nil {
		return fmt.Errorf("inserting pledge: %w", err)
	}

	return nil
}

func (u *unit) UpdatePledge(_ context.Context, p *pledge.Pledge) error {
	existing, err := u.txn.First(tablePledges, "id", p.ID.String())
	if err != nil {
		return fmt.Errorf("reading pledge: %w", err)
	}

	if existing == nil {
		return pledge.ErrNotFound
	}

	if err := u.checkPledge(p); err != nil {
		return err
	}

	c := copyPledge(p)
	c.UpdatedAt = new(time.Now().UTC())

	if err := u.txn.Insert(tablePledges, c); err != nil {
		return fmt.Errorf("updating pledge: %w", err)
	}

	return nil
}

func (u *unit) TransactionByInvoice(_ context.Context, pledgeID uuid.UUID, invoiceID string) (*transaction.Transaction, error) {
	return first(u.txn, tableTransactions, "pledge_invoice", pledgeID.String()+"/"+invoiceID, copyTransaction)
}

func (u *unit) TransactionByPaymentIntent(_ context.Context, paymentIntentID string) (*transaction.Transaction, error) {
	return first(u.txn, tableTransactions, "payment_intent", paymentIntentID, copyTransaction)
}

func (u *unit) TransactionByCharge(_ context.Context, chargeID string) (*transaction.Transaction, error) {
	return first(u.txn, tableTransactions, "charge", chargeID, copyTransaction)
}

// TransactionByAttempt returns the earliest transaction of the attempt.
func (u *unit) TransactionByAttempt(_ context.Context, attemptID string) (*transaction.Transaction, error) {
	it, err := u.list(tableTransactions, "attempt", attemptID)
	if err != nil {
		return nil, err
	}

	found := collect(it, copyTransaction)
	if len(found) == 0 {
		return nil, nil
	}

	return slices.MinFunc(found, func(a, b *transaction.Transaction) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), strings.Compare(a.ID.String(), b.ID.String()))
	}), nil
}

func (u *unit) Placeholders(_ context.Context, filter reconcile.PlaceholderFilter) ([]*transaction.Transaction, error) {
	if filter.Empty() {
		return nil, nil
	}

	seen := map[uuid.UUID]bool{}

	var out []*transaction.Transaction

	for _, c := range []struct{ index, key string }{
		{"pledge", optionalID(filter.PledgeID)},
		{"subscription", filter.SubscriptionID},
		{"attempt", filter.AttemptID},
	} {
		if c.key == "" {
			continue
		}

		it, err := u.list(tableTransactions, c.index, c.key)
		if err != nil {
			return nil, err
		}

		for _, t := range collect(it, copyTransaction) {
			if seen[t.ID] || t.Status != transaction.StatusPending || (t.PaymentIntentID != "" && t.ChargeID != "") {
				continue
			}

			seen[t.ID] = true
			out = append(out, t)
		}
	}

	slices.SortFunc(out, func(a, b *transaction.Transaction) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), strings.Compare(a.ID.String(), b.ID.String()))
	})

	return out, nil
}

func (u *unit) checkTransaction(t *transaction.Transaction) error {
	self := t.ID.String()

	for _, c := range []struct{ index, key, label string }{
		{"payment_intent", t.PaymentIntentID, "payment intent " + t.PaymentIntentID},
		{"charge", t.ChargeID, "charge " + t.ChargeID},
		{"pledge_invoice", pledgeInvoice(t), "invoice " + t.InvoiceID},
	} {
		dup, err := u.taken(tableTransactions, c.index, c.key, transactionID, self)
		if err != nil {
			return err
		}

		if dup {
			return fmt.Errorf("%s: %w", c.label, transaction.ErrDuplicate)
		}
	}

	return nil
}

func (u *unit) CreateTransaction(_ context.Context, t *transaction.Transaction) error {
	existing, err := u.txn.First(tableTransactions, "id", t.ID.String())
	if err != nil {
		return fmt.Errorf("reading transaction: %w", err)
	}

	if existing != nil {
		return fmt.Errorf("transaction %s: %w", t.ID, transaction.ErrDuplicate)
	}

	if err := u.checkTransaction(t); err != nil {
		return err
	}

	if err := u.txn.Insert(tableTransactions, copyTransaction(t)); err != nil {
		return fmt.Errorf("inserting transaction: %w", err)
	}

	return nil
}

func (u *unit) UpdateTransaction(_ context.Context, t *transaction.Transaction) error {
	existing, err := u.txn.First(tableTransactions, "id", t.ID.String())
	if err != nil {
		return fmt.Errorf("reading transaction: %w", err)
	}

	if existing == nil {
		return transaction.ErrNotFound
	}

	if err := u.checkTransaction(t); err != nil {
		return err
	}

	c := copyTransaction(t)
	c.UpdatedAt = new(time.Now().UTC())

	if err := u.txn.Insert(tableTransactions, c); err != nil {
		return fmt.Errorf("updating transaction: %w", err)
	}

	return nil
}

// DeleteTransaction removes a pending transaction. Rows in any other status
// are kept.
func (u *unit) DeleteTransaction(_ context.Context, id uuid.UUID) error {
	existing, err := u.txn.First(tableTransactions, "id", id.String())
	if err != nil {
		return fmt.Errorf("reading transaction: %w", err)
	}

	if existing == nil || existing.(*transaction.Transaction).Status != transaction.StatusPending {
		return nil
	}

	if err := u.txn.Delete(tableTransactions, existing); err != nil {
		return fmt.Errorf("deleting transaction: %w", err)
	}

	return nil
}

func (u *unit) RefundByExternalID(_ context.Context, externalID string) (*transaction.Refund, error) {
	return first(u.txn, tableRefunds, "id", externalID, copyRefund)
}

func (u *unit) RefundsByCharge(_ context.Context, chargeID string) ([]*transaction.Refund, error) {
	it, err := u.list(tableRefunds, "charge", chargeID)
	if err != nil {
		return nil, err
	}

	out := collect(it, copyRefund)
	sortRefunds(out)

	return out, nil
}

func (u *unit) UpsertRefund(_ context.Context, r *transaction.Refund) error {
	existing, err := first(u.txn, tableRefunds, "id", r.ExternalID, copyRefund)
	if err != nil {
		return err
	}

	c := copyRefund(r)

	if existing != nil {
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
		c.UpdatedAt = new(time.Now().UTC())
	}

	if err := u.txn.Insert(tableRefunds, c); err != nil {
		return fmt.Errorf("upserting refund: %w", err)
	}

	return nil
}
