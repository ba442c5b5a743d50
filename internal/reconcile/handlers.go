package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/MrJamesThe3rd/donorledger/internal/pledge"
	"github.com/MrJamesThe3rd/donorledger/internal/transaction"
)

const sourcePrefix = "stripe_webhook:"

func (d *Dispatcher) routes() map[string]handlerFunc {
	return map[string]handlerFunc{
		"checkout.session.completed":    handleCheckoutCompleted,
		"payment_intent.succeeded":      handlePaymentIntent(transaction.StatusSucceeded),
		"payment_intent.payment_failed": handlePaymentIntent(transaction.StatusFailed),
		"charge.succeeded":              handleCharge(transaction.StatusSucceeded),
		"charge.failed":                 handleCharge(transaction.StatusFailed),
		"charge.refunded":               handleChargeRefunded,
		"charge.refund.updated":         handleRefund,
		"refund.created":                handleRefund,
		"refund.updated":                handleRefund,
		"refund.failed":                 handleRefund,
		"invoice.paid":                  handleInvoicePaid,
		"invoice.payment_succeeded":     handleInvoicePaid,
		"invoice.payment_failed":        handleInvoiceFailed,
		"customer.subscription.created": handleSubscription,
		"customer.subscription.updated": handleSubscription,
		"customer.subscription.deleted": handleSubscriptionDeleted,
		"setup_intent.succeeded":        handleSetupIntent,
	}
}

func (u *unit) source() string {
	return sourcePrefix + u.evt.Type
}

// occurredAt is the time the object itself records for the event, falling
// back to the delivery time.
func (u *unit) occurredAt(paths ...string) *time.Time {
	if t := u.evt.Object.Time(paths...); t != nil {
		return t
	}

	if u.evt.Created.IsZero() {
		return nil
	}

	t := u.evt.Created

	return &t
}

func handleCheckoutCompleted(ctx context.Context, u *unit) error {
	obj := u.evt.Object
	attemptID := attemptOf(obj)

	switch obj.String("mode") {
	case "subscription":
		return checkoutSubscription(ctx, u, attemptID)
	case "payment":
		return checkoutPayment(ctx, u, attemptID)
	case "setup":
		return handleSetupIntent(ctx, u)
	}

	u.log.Debug("ignoring checkout session mode", "mode", obj.String("mode"))

	return nil
}

func checkoutSubscription(ctx context.Context, u *unit, attemptID string) error {
	obj := u.evt.Object

	pl, err := u.findPledge(ctx, attemptID, false)
	if err != nil {
		return err
	}

	if pl == nil {
		return absent("pledge", attemptID)
	}

	changed, err := u.guard.claimSubscription(ctx, pl, u.ids.SubscriptionID)
	if err != nil {
		return err
	}

	amount, _ := obj.Int("amount_total")

	changed = MergePledge(pl, PledgePatch{
		Amount:     amount,
		Currency:   obj.String("currency"),
		CustomerID: u.ids.CustomerID,
		InvoiceID:  u.ids.InvoiceID,
		DonorEmail: obj.String("customer_details.email", "customer_email"),
		DonorName:  obj.String("customer_details.name"),
	}) || changed

	if changed {
		if err := u.tx.UpdatePledge(ctx, pl); err != nil {
			return fmt.Errorf("updating pledge: %w", err)
		}
	}

	// Completing checkout does not settle the first invoice; the row only
	// learns its processor ids here.
	_, err = u.reconcileTransaction(ctx, pl, TransactionPatch{
		Type:           transaction.TypeSubscriptionInitial,
		Currency:       obj.String("currency"),
		AttemptID:      attemptID,
		SubscriptionID: u.ids.SubscriptionID,
		CustomerID:     u.ids.CustomerID,
		Metadata:       obj.Metadata("metadata"),
		Source:         u.source(),
	}, true)
	if IsAbsent(err) {
		return nil
	}

	return err
}

func checkoutPayment(ctx context.Context, u *unit, attemptID string) error {
	obj := u.evt.Object
	amount, _ := obj.Int("amount_total")

	patch := TransactionPatch{
		Type:       transaction.TypeOneTime,
		Amount:     amount,
		Currency:   obj.String("currency"),
		AttemptID:  attemptID,
		CustomerID: u.ids.CustomerID,
		Metadata:   obj.Metadata("metadata"),
		Source:     u.source(),
	}

	if obj.String("payment_status") == "paid" {
		patch.Status = transaction.StatusSucceeded
		patch.PaidAt = u.occurredAt()
	}

	_, err := u.reconcileTransaction(ctx, nil, patch, true)

	return err
}

func handlePaymentIntent(status transaction.Status) handlerFunc {
	return func(ctx context.Context, u *unit) error {
		obj := u.evt.Object
		amount, ok := obj.Int("amount_received")
		if !ok || amount == 0 {
			amount, _ = obj.Int("amount")
		}

		// Receipt and payer details are only present when the charge is expanded.
		return weakPayment(ctx, u, status, TransactionPatch{
			Amount:          amount,
			Currency:        obj.String("currency"),
			ChargeID:        u.ids.ChargeID,
			PaymentMethodID: obj.ID("latest_charge.payment_method"),
			ReceiptURL:      obj.String("latest_charge.receipt_url"),
			PayerEmail:      obj.String("latest_charge.billing_details.email", "latest_charge.receipt_email"),
			PayerName:       obj.String("latest_charge.billing_details.name"),
			Metadata:        obj.Metadata("metadata"),
		})
	}
}

func handleCharge(status transaction.Status) handlerFunc {
	return func(ctx context.Context, u *unit) error {
		obj := u.evt.Object
		amount, _ := obj.Int("amount")

		return weakPayment(ctx, u, status, TransactionPatch{
			Amount:          amount,
			Currency:        obj.String("currency"),
			ChargeID:        u.ids.ChargeID,
			PaymentMethodID: obj.ID("payment_method"),
			ReceiptURL:      obj.String("receipt_url"),
			PayerEmail:      obj.String("billing_details.email", "receipt_email"),
			PayerName:       obj.String("billing_details.name"),
			Metadata:        obj.Metadata("metadata"),
		})
	}
}

// weakPayment applies a payment-intent or charge confirmation. Such events
// only settle one-time gifts.
func weakPayment(ctx context.Context, u *unit, status transaction.Status, patch TransactionPatch) error {
	attemptID := attemptOf(u.evt.Object)

	// A one-time checkout attempt places the payment outside any pledge.
	// Without one the customer's pledge is the best owner, since newer API
	// versions drop the invoice link from payments.
	pl, err := u.findPledge(ctx, attemptID, u.ids.InvoiceID != "" || attemptID == "")
	if err != nil {
		return err
	}

	patch.Status = status
	patch.AttemptID = attemptID
	patch.CustomerID = u.ids.CustomerID
	patch.SubscriptionID = u.ids.SubscriptionID
	patch.Source = u.source()

	if pl == nil && u.ids.InvoiceID == "" {
		patch.Type = transaction.TypeOneTime
	}

	if status == transaction.StatusSucceeded {
		patch.PaidAt = u.occurredAt("created")
	}

	_, err = u.reconcileTransaction(ctx, pl, patch, true)

	return err
}

func invoiceTransactionType(obj Payload) transaction.Type {
	if obj.String("billing_reason") == "subscription_create" {
		return transaction.TypeSubscriptionInitial
	}

	return transaction.TypeSubscriptionRecurring
}

func handleInvoicePaid(ctx context.Context, u *unit) error {
	obj := u.evt.Object
	attemptID := attemptOf(obj)

	pl, err := u.findPledge(ctx, attemptID, true)
	if err != nil {
		return err
	}

	if pl == nil {
		return absent("pledge", u.ids.SubscriptionID)
	}

	paidAt := u.occurredAt("status_transitions.paid_at", "created")
	amount, _ := obj.Int("amount_paid", "total")

	if _, err := u.reconcileTransaction(ctx, pl, TransactionPatch{
		Type:           invoiceTransactionType(obj),
		Status:         transaction.StatusSucceeded,
		Amount:         amount,
		Currency:       obj.String("currency"),
		AttemptID:      attemptID,
		SubscriptionID: u.ids.SubscriptionID,
		CustomerID:     u.ids.CustomerID,
		Metadata:       obj.Metadata("metadata"),
		PaidAt:         paidAt,
		Source:         u.source(),
	}, false); err != nil {
		return err
	}

	changed, err := u.guard.claimSubscription(ctx, pl, u.ids.SubscriptionID)
	if err != nil {
		return err
	}

	periodEnd := obj.Time("lines.data.0.period.end", "period_end")

	changed = MergePledge(pl, PledgePatch{
		Currency:           obj.String("currency"),
		CustomerID:         u.ids.CustomerID,
		InvoiceID:          u.ids.InvoiceID,
		PaymentIntentID:    u.ids.PaymentIntentID,
		CurrentPeriodStart: obj.Time("lines.data.0.period.start", "period_start"),
		CurrentPeriodEnd:   periodEnd,
		PaidAt:             paidAt,
		NextPledgeAt:       periodEnd,
	}) || changed

	if settlePledge(pl) {
		u.log.Info("pledge status changed", "pledge_id", pl.ID, "status", pl.Status)
		changed = true
	}

	if !changed {
		return nil
	}

	if err := u.tx.UpdatePledge(ctx, pl); err != nil {
		return fmt.Errorf("updating pledge: %w", err)
	}

	return nil
}

func handleInvoiceFailed(ctx context.Context, u *unit) error {
	obj := u.evt.Object
	attemptID := attemptOf(obj)

	pl, err := u.findPledge(ctx, attemptID, true)
	if err != nil {
		return err
	}

	if pl == nil {
		return absent("pledge", u.ids.SubscriptionID)
	}

	amount, _ := obj.Int("amount_due", "total")

	if _, err := u.reconcileTransaction(ctx, pl, TransactionPatch{
		Type:           invoiceTransactionType(obj),
		Status:         transaction.StatusFailed,
		Amount:         amount,
		Currency:       obj.String("currency"),
		AttemptID:      attemptID,
		SubscriptionID: u.ids.SubscriptionID,
		CustomerID:     u.ids.CustomerID,
		Metadata:       obj.Metadata("metadata"),
		Source:         u.source(),
	}, false); err != nil && !IsAbsent(err) {
		return err
	}

	failedAt := u.occurredAt("created")

	changed := MergePledge(pl, PledgePatch{
		CustomerID:      u.ids.CustomerID,
		InvoiceID:       u.ids.InvoiceID,
		PaymentIntentID: u.ids.PaymentIntentID,
	})
	changed = advance(&pl.LastFailedAt, failedAt) || changed

	if settlePledge(pl) {
		u.log.Warn("pledge status changed", "pledge_id", pl.ID, "status", pl.Status, "invoice_id", u.ids.InvoiceID)
		changed = true
	}

	if !changed {
		return nil
	}

	if err := u.tx.UpdatePledge(ctx, pl); err != nil {
		return fmt.Errorf("updating pledge: %w", err)
	}

	return nil
}

// settlePledge moves a pledge that has been paid at least once to the status
// its most recent payment outcome implies: past_due when the latest failure
// is newer than the latest success, active otherwise. The result does not
// depend on the order invoices arrive in.
func settlePledge(pl *pledge.Pledge) bool {
	if pl.LastPledgeAt == nil {
		return false
	}

	target := pledge.StatusActive
	if pl.LastFailedAt != nil && pl.LastFailedAt.After(*pl.LastPledgeAt) {
		target = pledge.StatusPastDue
	}

	if pl.Status == target {
		return false
	}

	changed := pl.Transition(pledge.StatusActive)
	if target == pledge.StatusPastDue {
		changed = pl.Transition(pledge.StatusPastDue) || changed
	}

	return changed
}

// subscriptionPatch reads the subscription snapshot. at is the event time,
// which orders snapshots against each other.
func subscriptionPatch(obj Payload, at time.Time) PledgePatch {
	unitAmount, _ := obj.Int("items.data.0.price.unit_amount", "plan.amount")
	quantity, ok := obj.Int("items.data.0.quantity", "quantity")
	if !ok || quantity <= 0 {
		quantity = 1
	}

	periodEnd := obj.Time("current_period_end", "items.data.0.current_period_end")

	p := PledgePatch{
		Amount:             unitAmount * quantity,
		Currency:           obj.String("currency", "items.data.0.price.currency", "plan.currency"),
		Interval:           pledge.Interval(obj.String("items.data.0.price.recurring.interval", "plan.interval")),
		CustomerID:         obj.ID("customer"),
		PriceID:            obj.ID("items.data.0.price", "plan"),
		InvoiceID:          obj.ID("latest_invoice"),
		CurrentPeriodStart: obj.Time("current_period_start", "items.data.0.current_period_start"),
		CurrentPeriodEnd:   periodEnd,
		NextPledgeAt:       periodEnd,
		CanceledAt:         obj.Time("canceled_at"),
	}

	if !at.IsZero() {
		p.SnapshotAt = &at
	}

	if v, ok := obj.Bool("cancel_at_period_end"); ok {
		p.CancelAtPeriodEnd = &v
	}

	return p
}

// handleSubscription keeps the pledge's schedule in step with the
// subscription. Status only follows it into canceled; activity is driven by
// invoices.
func handleSubscription(ctx context.Context, u *unit) error {
	obj := u.evt.Object

	pl, err := u.findPledge(ctx, attemptOf(obj), true)
	if err != nil {
		return err
	}

	if pl == nil {
		return absent("pledge", u.ids.SubscriptionID)
	}

	changed, err := u.guard.claimSubscription(ctx, pl, u.ids.SubscriptionID)
	if err != nil {
		return err
	}

	changed = MergePledge(pl, subscriptionPatch(obj, u.evt.Created)) || changed

	if obj.String("status") == "canceled" && pl.Transition(pledge.StatusCanceled) {
		changed = true
	}

	if !changed {
		return nil
	}

	if err := u.tx.UpdatePledge(ctx, pl); err != nil {
		return fmt.Errorf("updating pledge: %w", err)
	}

	return nil
}

func handleSubscriptionDeleted(ctx context.Context, u *unit) error {
	obj := u.evt.Object

	pl, err := u.findPledge(ctx, attemptOf(obj), false)
	if err != nil {
		return err
	}

	if pl == nil {
		return absent("pledge", u.ids.SubscriptionID)
	}

	patch := subscriptionPatch(obj, u.evt.Created)
	if patch.CanceledAt == nil {
		patch.CanceledAt = u.occurredAt("ended_at")
	}

	changed := MergePledge(pl, patch)

	if pl.Transition(pledge.StatusCanceled) {
		u.log.Info("pledge canceled", "pledge_id", pl.ID, "subscription_id", u.ids.SubscriptionID)
		changed = true
	}

	if !changed {
		return nil
	}

	if err := u.tx.UpdatePledge(ctx, pl); err != nil {
		return fmt.Errorf("updating pledge: %w", err)
	}

	return nil
}

func handleSetupIntent(ctx context.Context, u *unit) error {
	obj := u.evt.Object
	attemptID := attemptOf(obj)

	pl, err := u.findPledge(ctx, attemptID, false)
	if err != nil {
		return err
	}

	if pl == nil {
		return absent("pledge", attemptID)
	}

	setupIntentID := obj.ID("setup_intent")
	if obj.Kind() == "setup_intent" {
		setupIntentID = obj.ID("id")
	}

	if !MergePledge(pl, PledgePatch{SetupIntentID: setupIntentID, CustomerID: u.ids.CustomerID}) {
		return nil
	}

	if err := u.tx.UpdatePledge(ctx, pl); err != nil {
		return fmt.Errorf("updating pledge: %w", err)
	}

	return nil
}
