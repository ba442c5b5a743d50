package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/donorledger/internal/transaction"
)

// refundRank orders refund statuses so that a late, less advanced update is a
// no-op. A succeeded refund can still fail afterwards, never the reverse.
var refundRank = map[transaction.RefundStatus]int{
	transaction.RefundPending:        1,
	transaction.RefundRequiresAction: 2,
	transaction.RefundSucceeded:      3,
	transaction.RefundFailed:         4,
	transaction.RefundCanceled:       4,
}

func refundFromPayload(obj Payload, chargeID, paymentIntentID string) *transaction.Refund {
	amount, _ := obj.Int("amount")

	r := &transaction.Refund{
		ExternalID:      obj.ID("id"),
		ChargeID:        obj.ID("charge"),
		PaymentIntentID: obj.ID("payment_intent"),
		Amount:          amount,
		Currency:        obj.String("currency"),
		Status:          transaction.RefundStatus(obj.String("status")),
		Reason:          obj.String("reason"),
	}

	if r.ChargeID == "" {
		r.ChargeID = chargeID
	}

	if r.PaymentIntentID == "" {
		r.PaymentIntentID = paymentIntentID
	}

	if r.Status == "" {
		r.Status = transaction.RefundPending
	}

	return r
}

// upsertRefund records r keyed by its external id. Amounts and status only
// move forward; everything else is filled in when missing.
func (u *unit) upsertRefund(ctx context.Context, r *transaction.Refund) error {
	if r.ExternalID == "" {
		return nil
	}

	existing, err := u.tx.RefundByExternalID(ctx, r.ExternalID)
	if err != nil {
		return fmt.Errorf("finding refund: %w", err)
	}

	if existing == nil {
		r.ID = uuid.New()
		r.CreatedAt = time.Now().UTC()

		if err := u.tx.UpsertRefund(ctx, r); err != nil {
			return fmt.Errorf("recording refund: %w", err)
		}

		u.log.Info("refund recorded", "refund_id", r.ExternalID, "charge_id", r.ChargeID, "status", r.Status, "amount", r.Amount)

		return nil
	}

	changed := false

	if refundRank[r.Status] > refundRank[existing.Status] {
		existing.Status = r.Status
		changed = true
	}

	if existing.Amount == 0 && r.Amount > 0 {
		existing.Amount = r.Amount
		changed = true
	}

	changed = fill(&existing.ChargeID, r.ChargeID) || changed
	changed = fill(&existing.PaymentIntentID, r.PaymentIntentID) || changed
	changed = fill(&existing.Currency, r.Currency) || changed
	changed = enrich(&existing.Reason, r.Reason) || changed

	if existing.TransactionID == nil && r.TransactionID != nil {
		existing.TransactionID = r.TransactionID
		changed = true
	}

	if !changed {
		return nil
	}

	if err := u.tx.UpsertRefund(ctx, existing); err != nil {
		return fmt.Errorf("updating refund: %w", err)
	}

	return nil
}

// refundTarget finds the transaction a refund reverses, or nil when that
// payment has not been seen yet.
func (u *unit) refundTarget(ctx context.Context, chargeID, paymentIntentID string) (*transaction.Transaction, error) {
	if chargeID != "" {
		t, err := u.tx.TransactionByCharge(ctx, chargeID)
		if err != nil || t != nil {
			return t, err
		}
	}

	if paymentIntentID != "" {
		return u.tx.TransactionByPaymentIntent(ctx, paymentIntentID)
	}

	return nil, nil
}

func (u *unit) settleRefunds(ctx context.Context, chargeID, paymentIntentID string, floor int64) error {
	t, err := u.refundTarget(ctx, chargeID, paymentIntentID)
	if err != nil {
		return fmt.Errorf("finding refunded transaction: %w", err)
	}

	if t == nil {
		u.log.Info("refund stored ahead of its transaction", "charge_id", chargeID, "payment_intent_id", paymentIntentID)
		return nil
	}

	// A transaction known only by payment intent learns its charge here.
	claimed, err := u.guard.claim(ctx, t, FieldCharge, chargeID)
	if err != nil {
		return err
	}

	changed, err := u.applyRefunds(ctx, t, floor)
	if err != nil {
		return err
	}

	if !changed && !claimed {
		return nil
	}

	if err := u.tx.UpdateTransaction(ctx, t); err != nil {
		return fmt.Errorf("updating transaction: %w", err)
	}

	return nil
}

func handleChargeRefunded(ctx context.Context, u *unit) error {
	obj := u.evt.Object
	chargeID := u.ids.ChargeID

	for _, item := range obj.Objects("refunds") {
		if err := u.upsertRefund(ctx, refundFromPayload(item, chargeID, u.ids.PaymentIntentID)); err != nil {
			return err
		}
	}

	// Newer API versions omit the refund list; the charge still carries the total.
	refunded, _ := obj.Int("amount_refunded")

	return u.settleRefunds(ctx, chargeID, u.ids.PaymentIntentID, refunded)
}

func handleRefund(ctx context.Context, u *unit) error {
	r := refundFromPayload(u.evt.Object, "", "")
	if r.ExternalID == "" {
		return absent("refund", "")
	}

	if err := u.upsertRefund(ctx, r); err != nil {
		return err
	}

	return u.settleRefunds(ctx, r.ChargeID, r.PaymentIntentID, 0)
}
