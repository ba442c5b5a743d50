package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrJamesThe3rd/donorledger/internal/pledge"
	"github.com/MrJamesThe3rd/donorledger/internal/transaction"
)

// Field is a uniquely owned external id column on a transaction.
type Field string

const (
	FieldInvoice       Field = "invoice_id"
	FieldPaymentIntent Field = "payment_intent_id"
	FieldCharge        Field = "charge_id"
)

func (f Field) ptr(t *transaction.Transaction) *string {
	switch f {
	case FieldInvoice:
		return &t.InvoiceID
	case FieldPaymentIntent:
		return &t.PaymentIntentID
	case FieldCharge:
		return &t.ChargeID
	}

	panic(fmt.Sprintf("reconcile: unknown field %q", string(f)))
}

// guard makes sure at most one ledger row owns any external id. It runs
// inside a unit whose lookups lock the rows they return, so the check and the
// write cannot be separated by a concurrent writer.
type guard struct {
	tx  Tx
	log *slog.Logger
}

// claim sets field to value on t unless another row already owns value.
// It reports whether t holds value afterwards. A refused claim is logged and
// is not an error: losing an enrichment is acceptable, sharing a key is not.
func (g *guard) claim(ctx context.Context, t *transaction.Transaction, field Field, value string) (bool, error) {
	if value == "" {
		return false, nil
	}

	dst := field.ptr(t)

	if *dst == value {
		return true, nil
	}

	if *dst != "" {
		g.log.Warn("refusing to reassign strong key",
			"transaction_id", t.ID, "field", field, "current", *dst, "candidate", value)

		return false, nil
	}

	owner, err := g.owner(ctx, t, field, value)
	if err != nil {
		return false, fmt.Errorf("looking up %s owner: %w", field, err)
	}

	if owner == nil || owner.ID == t.ID {
		*dst = value
		return true, nil
	}

	if !strayOf(owner, t) {
		g.log.Warn("ownership conflict, leaving field unset",
			"transaction_id", t.ID, "owner_id", owner.ID, "field", field, "value", value)

		return false, nil
	}

	*field.ptr(owner) = ""
	if err := g.tx.UpdateTransaction(ctx, owner); err != nil {
		return false, fmt.Errorf("releasing %s from stray transaction: %w", field, err)
	}

	*dst = value

	g.log.Info("transferred key from stray transaction",
		"transaction_id", t.ID, "stray_id", owner.ID, "field", field, "value", value)

	return true, nil
}

func (g *guard) owner(ctx context.Context, t *transaction.Transaction, field Field, value string) (*transaction.Transaction, error) {
	switch field {
	case FieldPaymentIntent:
		return g.tx.TransactionByPaymentIntent(ctx, value)
	case FieldCharge:
		return g.tx.TransactionByCharge(ctx, value)
	case FieldInvoice:
		// Invoice ids are unique per pledge only.
		if t.PledgeID == nil {
			return nil, nil
		}

		return g.tx.TransactionByInvoice(ctx, *t.PledgeID, value)
	}

	return nil, fmt.Errorf("unknown field %q", string(field))
}

// strayOf reports whether owner is a duplicate row created for the same
// pledge before the invoice was known, which canonical may take keys from.
func strayOf(owner, canonical *transaction.Transaction) bool {
	return owner.PledgeID != nil &&
		canonical.PledgeID != nil &&
		*owner.PledgeID == *canonical.PledgeID &&
		owner.InvoiceID == "" &&
		canonical.InvoiceID != ""
}

// claimSubscription attaches subscriptionID to p unless another pledge owns it.
func (g *guard) claimSubscription(ctx context.Context, p *pledge.Pledge, subscriptionID string) (bool, error) {
	if subscriptionID == "" || p.SubscriptionID == subscriptionID {
		return false, nil
	}

	if p.SubscriptionID != "" {
		g.log.Warn("refusing to reassign pledge subscription",
			"pledge_id", p.ID, "current", p.SubscriptionID, "candidate", subscriptionID)

		return false, nil
	}

	owner, err := g.tx.PledgeBySubscription(ctx, subscriptionID)
	if err != nil {
		return false, fmt.Errorf("looking up subscription owner: %w", err)
	}

	if owner != nil && owner.ID != p.ID {
		g.log.Warn("subscription already owned by another pledge",
			"pledge_id", p.ID, "owner_id", owner.ID, "subscription_id", subscriptionID)

		return false, nil
	}

	p.SubscriptionID = subscriptionID

	return true, nil
}
