package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/donorledger/internal/pledge"
	"github.com/MrJamesThe3rd/donorledger/internal/transaction"
)

// findPledge resolves the pledge the unit's event concerns, or nil.
func (u *unit) findPledge(ctx context.Context, attemptID string, allowCustomer bool) (*pledge.Pledge, error) {
	var (
		c   PledgeCandidates
		err error
	)

	if u.ids.SubscriptionID != "" {
		if c.BySubscription, err = u.tx.PledgeBySubscription(ctx, u.ids.SubscriptionID); err != nil {
			return nil, fmt.Errorf("finding pledge by subscription: %w", err)
		}
	}

	if c.BySubscription == nil && attemptID != "" {
		if c.ByAttempt, err = u.tx.PledgeByAttempt(ctx, attemptID); err != nil {
			return nil, fmt.Errorf("finding pledge by attempt: %w", err)
		}
	}

	if c.BySubscription == nil && allowCustomer && u.ids.CustomerID != "" {
		if c.ByCustomer, err = u.tx.LatestPledgeByCustomer(ctx, u.ids.CustomerID); err != nil {
			return nil, fmt.Errorf("finding pledge by customer: %w", err)
		}
	}

	pl, strategy := ResolvePledge(u.ids, c)
	if pl != nil {
		u.log.Debug("resolved pledge", "pledge_id", pl.ID, "strategy", strategy)
	}

	return pl, nil
}

func (u *unit) transactionCandidates(ctx context.Context, pl *pledge.Pledge, attemptID string) (Candidates, error) {
	var (
		c   Candidates
		err error
	)

	if pl != nil && u.ids.InvoiceID != "" {
		if c.ByInvoice, err = u.tx.TransactionByInvoice(ctx, pl.ID, u.ids.InvoiceID); err != nil {
			return c, fmt.Errorf("finding transaction by invoice: %w", err)
		}
	}

	if u.ids.PaymentIntentID != "" {
		if c.ByPaymentIntent, err = u.tx.TransactionByPaymentIntent(ctx, u.ids.PaymentIntentID); err != nil {
			return c, fmt.Errorf("finding transaction by payment intent: %w", err)
		}
	}

	if u.ids.ChargeID != "" {
		if c.ByCharge, err = u.tx.TransactionByCharge(ctx, u.ids.ChargeID); err != nil {
			return c, fmt.Errorf("finding transaction by charge: %w", err)
		}
	}

	// Without a pledge only the checkout attempt ties a placeholder to the event.
	filter := PlaceholderFilter{AttemptID: attemptID}
	if pl != nil {
		filter.PledgeID = &pl.ID
		filter.SubscriptionID = u.ids.SubscriptionID
	}

	if !filter.Empty() {
		if c.Placeholders, err = u.tx.Placeholders(ctx, filter); err != nil {
			return c, fmt.Errorf("finding placeholders: %w", err)
		}
	}

	return c, nil
}

// reconcileTransaction locates or creates the transaction for the unit's
// event and applies patch to it. Weak events only settle one-time gifts
// started from a checkout attempt; invoice events are canonical for
// everything else.
func (u *unit) reconcileTransaction(ctx context.Context, pl *pledge.Pledge, patch TransactionPatch, weak bool) (*transaction.Transaction, error) {
	cands, err := u.transactionCandidates(ctx, pl, patch.AttemptID)
	if err != nil {
		return nil, err
	}

	// An invoice states its amount even when it is zero.
	_, stated := u.evt.Object.Int("amount_paid", "amount_due", "total")

	hint := Hint{
		Amount:      patch.Amount,
		ExactAmount: stated && u.evt.Object.Kind() == "invoice",
		AttemptID:   patch.AttemptID,
		Type:        patch.Type,
	}

	res := ResolveTransaction(u.ids, hint, cands)

	var t *transaction.Transaction

	switch res.Strategy {
	case StrategyNone:
		return nil, absent("transaction", u.evt.Object.ID("id"))
	case StrategyCreate:
		// An invoice payment is keyed by its pledge; the invoice event creates it.
		if weak && pl == nil && u.ids.InvoiceID != "" {
			return nil, absent("pledge", u.ids.InvoiceID)
		}

		t = u.newTransaction(pl, patch)
	default:
		t = res.Transaction
	}

	created := res.Strategy == StrategyCreate
	before := *t
	absorbed := false

	if !created && res.Strategy != StrategyPlaceholder {
		if p := AbsorbablePlaceholder(t, u.ids, hint, cands.Placeholders); p != nil {
			if err := u.tx.DeleteTransaction(ctx, p.ID); err != nil {
				return nil, fmt.Errorf("retiring placeholder: %w", err)
			}

			AbsorbPlaceholder(t, p)
			absorbed = true

			u.log.Info("absorbed checkout placeholder", "transaction_id", t.ID, "placeholder_id", p.ID, "attempt_id", p.AttemptID)
		}
	}

	if pl != nil && t.PledgeID == nil {
		t.PledgeID = &pl.ID
	}

	if pl != nil && t.UserID == nil {
		t.UserID = pl.UserID
	}

	for _, c := range []struct {
		field Field
		value string
	}{
		{FieldInvoice, u.ids.InvoiceID},
		{FieldPaymentIntent, u.ids.PaymentIntentID},
		{FieldCharge, u.ids.ChargeID},
	} {
		if _, err := u.guard.claim(ctx, t, c.field, c.value); err != nil {
			return nil, err
		}
	}

	if weak && !oneTimeGift(t, patch) {
		patch.Status = ""
		patch.PaidAt = nil
	}

	merged := MergeTransaction(t, patch)
	if merged.Refused == transaction.StatusSucceeded && t.Status == transaction.StatusFailed {
		u.log.Warn("success reported for a failed transaction, keeping failed",
			"transaction_id", t.ID, "payment_intent_id", t.PaymentIntentID, "charge_id", t.ChargeID)
	}

	if created {
		if err := u.tx.CreateTransaction(ctx, t); err != nil {
			return nil, fmt.Errorf("creating transaction: %w", err)
		}
	}

	refunded, err := u.applyRefunds(ctx, t, 0)
	if err != nil {
		return nil, err
	}

	dirty := absorbed || refunded || merged.Changed || keysChanged(&before, t)
	if (!created && dirty) || (created && refunded) {
		if err := u.tx.UpdateTransaction(ctx, t); err != nil {
			return nil, fmt.Errorf("updating transaction: %w", err)
		}
	}

	u.log.Info("reconciled transaction",
		"transaction_id", t.ID,
		"strategy", res.Strategy,
		"status", t.Status,
		"invoice_id", t.InvoiceID,
		"payment_intent_id", t.PaymentIntentID,
		"charge_id", t.ChargeID,
	)

	return t, nil
}

func (u *unit) newTransaction(pl *pledge.Pledge, patch TransactionPatch) *transaction.Transaction {
	t := &transaction.Transaction{
		ID:        uuid.New(),
		Status:    transaction.StatusPending,
		Type:      patch.Type,
		CreatedAt: time.Now().UTC(),
	}

	if t.Type == "" {
		t.Type = transaction.TypeOneTime
		if pl != nil || u.ids.InvoiceID != "" {
			t.Type = transaction.TypeSubscriptionRecurring
		}
	}

	return t
}

// applyRefunds links refunds recorded against t's charge to t and moves a
// settled t to the refund status their total implies. floor is a refunded
// amount known from the event itself.
func (u *unit) applyRefunds(ctx context.Context, t *transaction.Transaction, floor int64) (bool, error) {
	if t.ChargeID == "" {
		return false, nil
	}

	refunds, err := u.tx.RefundsByCharge(ctx, t.ChargeID)
	if err != nil {
		return false, fmt.Errorf("listing refunds: %w", err)
	}

	for _, r := range refunds {
		if r.TransactionID != nil {
			continue
		}

		r.TransactionID = &t.ID
		if err := u.tx.UpsertRefund(ctx, r); err != nil {
			return false, fmt.Errorf("linking refund %s: %w", r.ExternalID, err)
		}
	}

	if !t.Status.Settled() {
		return false, nil
	}

	next := transaction.ClassifyRefund(t.Amount, max(transaction.RefundedTotal(refunds), floor))
	if next == "" || next == t.Status || !t.Status.CanTransition(next) {
		return false, nil
	}

	u.log.Info("refund applied", "transaction_id", t.ID, "from", t.Status, "to", next)
	t.Status = next

	return true, nil
}

func pledgeLinked(t *transaction.Transaction) bool {
	return t.PledgeID != nil || t.InvoiceID != "" || t.SubscriptionID != "" || t.Type.Recurring()
}

// oneTimeGift reports whether t, once patch is applied, is a gift from a
// one-time checkout attempt.
func oneTimeGift(t *transaction.Transaction, patch TransactionPatch) bool {
	if pledgeLinked(t) || patch.SubscriptionID != "" || patch.Type.Recurring() {
		return false
	}

	return t.AttemptID != "" || patch.AttemptID != ""
}

func keysChanged(a, b *transaction.Transaction) bool {
	return a.InvoiceID != b.InvoiceID ||
		a.PaymentIntentID != b.PaymentIntentID ||
		a.ChargeID != b.ChargeID ||
		a.PledgeID != b.PledgeID ||
		a.UserID != b.UserID
}
