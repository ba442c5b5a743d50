package reconcile

import (
	"slices"
	"strings"

	"github.com/MrJamesThe3rd/donorledger/internal/pledge"
	"github.com/MrJamesThe3rd/donorledger/internal/transaction"
)

// Strategy names how a row was resolved.
type Strategy string

const (
	StrategyNone          Strategy = ""
	StrategySubscription  Strategy = "subscription"
	StrategyAttempt       Strategy = "attempt"
	StrategyCustomer      Strategy = "customer"
	StrategyInvoice       Strategy = "invoice"
	StrategyPaymentIntent Strategy = "payment_intent"
	StrategyCharge        Strategy = "charge"
	StrategyPlaceholder   Strategy = "placeholder"
	StrategyCreate        Strategy = "create"
)

// PledgeCandidates are the rows found for each pledge lookup.
type PledgeCandidates struct {
	BySubscription *pledge.Pledge
	ByAttempt      *pledge.Pledge
	ByCustomer     *pledge.Pledge
}

// ResolvePledge picks the pledge an event concerns. Invoice ids are never used
// on their own: an invoice can be replayed against a stale pledge.
func ResolvePledge(ids Identifiers, c PledgeCandidates) (*pledge.Pledge, Strategy) {
	if c.BySubscription != nil {
		return c.BySubscription, StrategySubscription
	}

	if c.ByAttempt != nil && subscriptionCompatible(c.ByAttempt, ids) {
		return c.ByAttempt, StrategyAttempt
	}

	if c.ByCustomer != nil && subscriptionCompatible(c.ByCustomer, ids) {
		return c.ByCustomer, StrategyCustomer
	}

	return nil, StrategyNone
}

func subscriptionCompatible(p *pledge.Pledge, ids Identifiers) bool {
	return p.SubscriptionID == "" || ids.SubscriptionID == "" || p.SubscriptionID == ids.SubscriptionID
}

// Candidates are the rows found for each transaction lookup.
type Candidates struct {
	ByInvoice       *transaction.Transaction
	ByPaymentIntent *transaction.Transaction
	ByCharge        *transaction.Transaction
	Placeholders    []*transaction.Transaction
}

// Hint carries weak context used only to narrow placeholder matches.
type Hint struct {
	Amount int64
	// ExactAmount means Amount is stated by the event even when it is zero,
	// as on a free trial invoice.
	ExactAmount bool
	AttemptID   string
	// Type is the kind of payment the event describes, when it knows.
	Type transaction.Type
}

// Resolution is the outcome of ResolveTransaction. Transaction is nil for
// StrategyCreate and StrategyNone.
type Resolution struct {
	Transaction *transaction.Transaction
	Strategy    Strategy
}

// ResolveTransaction picks the row an event's payment belongs to.
//
// Strong keys always win: the claimed (pledge, invoice) pair, then the
// payment-intent id, then the charge id. Only when none of them is owned yet
// may a pending placeholder be adopted. When nothing matches a new row is
// created, keyed by whatever ids the event carries; with no ids at all there
// is nothing to reconcile.
func ResolveTransaction(ids Identifiers, hint Hint, c Candidates) Resolution {
	switch {
	case c.ByInvoice != nil:
		return Resolution{Transaction: c.ByInvoice, Strategy: StrategyInvoice}
	case c.ByPaymentIntent != nil:
		return Resolution{Transaction: c.ByPaymentIntent, Strategy: StrategyPaymentIntent}
	case c.ByCharge != nil:
		return Resolution{Transaction: c.ByCharge, Strategy: StrategyCharge}
	}

	if p := pickPlaceholder(ids, hint, c.Placeholders); p != nil {
		return Resolution{Transaction: p, Strategy: StrategyPlaceholder}
	}

	if !ids.Empty() {
		return Resolution{Strategy: StrategyCreate}
	}

	return Resolution{Strategy: StrategyNone}
}

func pickPlaceholder(ids Identifiers, hint Hint, candidates []*transaction.Transaction) *transaction.Transaction {
	eligible := make([]*transaction.Transaction, 0, len(candidates))

	for _, t := range candidates {
		if placeholderEligible(t, ids, hint) {
			eligible = append(eligible, t)
		}
	}

	if len(eligible) == 0 {
		return nil
	}

	// Exact attempt matches first, then newest, then id for a stable order.
	slices.SortFunc(eligible, func(a, b *transaction.Transaction) int {
		am := hint.AttemptID != "" && a.AttemptID == hint.AttemptID
		bm := hint.AttemptID != "" && b.AttemptID == hint.AttemptID

		switch {
		case am && !bm:
			return -1
		case bm && !am:
			return 1
		}

		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}

		return strings.Compare(a.ID.String(), b.ID.String())
	})

	return eligible[0]
}

func placeholderEligible(t *transaction.Transaction, ids Identifiers, hint Hint) bool {
	if !t.Placeholder() {
		return false
	}

	if t.InvoiceID != "" && t.InvoiceID != ids.InvoiceID {
		return false
	}

	if conflicts(t.PaymentIntentID, ids.PaymentIntentID) || conflicts(t.ChargeID, ids.ChargeID) {
		return false
	}

	if conflicts(t.AttemptID, hint.AttemptID) {
		return false
	}

	if (hint.Amount > 0 || hint.ExactAmount) && t.Amount > 0 && hint.Amount != t.Amount {
		return false
	}

	return true
}

// AbsorbablePlaceholder returns the checkout placeholder that stands for the
// same payment as r, a row the event's processor keys resolved to, or nil.
// It picks the placeholder the event would have adopted had r not existed:
// one without processor keys of its own and of the event's kind of payment.
// A one-time placeholder must also share the event's attempt.
func AbsorbablePlaceholder(r *transaction.Transaction, ids Identifiers, hint Hint, candidates []*transaction.Transaction) *transaction.Transaction {
	if hint.Type == "" || (r.Type != "" && r.Type != transaction.TypeOneTime && !sameKind(r.Type, hint.Type)) {
		return nil
	}

	absorbable := make([]*transaction.Transaction, 0, len(candidates))

	for _, p := range candidates {
		switch {
		case p.ID == r.ID, !sameKind(p.Type, hint.Type):
			continue
		case p.InvoiceID != "" || p.PaymentIntentID != "" || p.ChargeID != "":
			continue
		case r.PledgeID != nil && (p.PledgeID == nil || *p.PledgeID != *r.PledgeID):
			continue
		case conflicts(r.AttemptID, p.AttemptID):
			continue
		case p.PledgeID == nil && (hint.AttemptID == "" || p.AttemptID != hint.AttemptID):
			continue
		}

		absorbable = append(absorbable, p)
	}

	return pickPlaceholder(ids, hint, absorbable)
}

// sameKind reports whether a and b are both one-time or both pledge payments.
func sameKind(a, b transaction.Type) bool {
	return a == b || (a.Recurring() && b.Recurring())
}

func conflicts(have, want string) bool {
	return have != "" && want != "" && have != want
}
