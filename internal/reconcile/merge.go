package reconcile

import (
	"time"

	"github.com/MrJamesThe3rd/donorledger/internal/pledge"
	"github.com/MrJamesThe3rd/donorledger/internal/transaction"
)

// sourceOrder ranks the subsystems that write transactions, lowest first.
// A row's Source names the highest-ranked writer it has seen.
var sourceOrder = []string{
	"checkout",
	sourcePrefix + "checkout.session.completed",
	sourcePrefix + "payment_intent.payment_failed",
	sourcePrefix + "payment_intent.succeeded",
	sourcePrefix + "charge.failed",
	sourcePrefix + "charge.succeeded",
	sourcePrefix + "invoice.payment_failed",
	sourcePrefix + "invoice.payment_succeeded",
	sourcePrefix + "invoice.paid",
}

// sourceRank is 0 for unknown sources.
func sourceRank(source string) int {
	for i, s := range sourceOrder {
		if s == source {
			return i + 1
		}
	}

	return 0
}

// TransactionPatch is the enrichment an event offers a transaction. Zero
// values mean "not supplied". Strong keys are not part of the patch: they
// only change hands through the ownership guard.
type TransactionPatch struct {
	Type           transaction.Type
	Status         transaction.Status
	Amount         int64
	Currency       string
	AttemptID      string
	SubscriptionID string
	CustomerID     string
	Metadata       map[string]string
	PaidAt         *time.Time
	Source         string

	// ChargeID is the charge the payment method, receipt and payer fields
	// were read from. They only land on the row that owns that charge.
	ChargeID        string
	PaymentMethodID string
	ReceiptURL      string
	PayerEmail      string
	PayerName       string
}

// MergeResult reports what MergeTransaction did.
type MergeResult struct {
	Changed bool
	// Refused holds a status the patch asked for but the state machine did not allow.
	Refused transaction.Status
}

// MergeTransaction applies p to t without ever clearing a field, regressing
// the status or moving a timestamp backwards.
func MergeTransaction(t *transaction.Transaction, p TransactionPatch) MergeResult {
	var res MergeResult

	if p.Status != "" && p.Status != t.Status {
		if t.Status.CanTransition(p.Status) {
			t.Status = p.Status
			res.Changed = true
		} else {
			res.Refused = p.Status
		}
	}

	res.Changed = mergeType(&t.Type, p.Type) || res.Changed

	if t.Amount == 0 && p.Amount > 0 {
		t.Amount = p.Amount
		res.Changed = true
	}

	res.Changed = fill(&t.Currency, p.Currency) || res.Changed
	res.Changed = fill(&t.AttemptID, p.AttemptID) || res.Changed
	res.Changed = fill(&t.SubscriptionID, p.SubscriptionID) || res.Changed
	res.Changed = fill(&t.CustomerID, p.CustomerID) || res.Changed

	if p.ChargeID != "" && p.ChargeID == t.ChargeID {
		res.Changed = fill(&t.PaymentMethodID, p.PaymentMethodID) || res.Changed
		res.Changed = fill(&t.ReceiptURL, p.ReceiptURL) || res.Changed
		res.Changed = fill(&t.PayerEmail, p.PayerEmail) || res.Changed
		res.Changed = fill(&t.PayerName, p.PayerName) || res.Changed
	}

	res.Changed = mergeSource(&t.Source, p.Source) || res.Changed
	// A failed payment never settled, whatever a later event claims.
	if t.Status != transaction.StatusFailed {
		res.Changed = advance(&t.PaidAt, p.PaidAt) || res.Changed
	}
	res.Changed = mergeMetadata(&t.Metadata, p.Metadata) || res.Changed

	return res
}

// AbsorbPlaceholder folds the checkout placeholder p into t, the row the
// processor's keys resolved to, so that t reads as if it had adopted p. The
// checkout values on p win over what t learned from events, because an
// adopted placeholder keeps them too.
func AbsorbPlaceholder(t, p *transaction.Transaction) {
	if t.PledgeID == nil {
		t.PledgeID = p.PledgeID
	}

	if t.UserID == nil {
		t.UserID = p.UserID
	}

	if p.CreatedAt.Before(t.CreatedAt) {
		t.CreatedAt = p.CreatedAt
	}

	if p.Amount > 0 {
		t.Amount = p.Amount
	}

	override(&t.Currency, p.Currency)
	override(&t.AttemptID, p.AttemptID)
	override(&t.PayerEmail, p.PayerEmail)
	override(&t.PayerName, p.PayerName)
	fill(&t.SubscriptionID, p.SubscriptionID)
	fill(&t.CustomerID, p.CustomerID)
	fill(&t.PaymentMethodID, p.PaymentMethodID)
	fill(&t.ReceiptURL, p.ReceiptURL)
	mergeType(&t.Type, p.Type)
	mergeSource(&t.Source, p.Source)
	mergeMetadata(&t.Metadata, p.Metadata)
}

// PledgePatch is the enrichment an event offers a pledge.
type PledgePatch struct {
	Amount             int64
	Currency           string
	Interval           pledge.Interval
	CustomerID         string
	PriceID            string
	SetupIntentID      string
	InvoiceID          string
	PaymentIntentID    string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	// PaidAt is the settlement time of InvoiceID when it was paid.
	PaidAt            *time.Time
	NextPledgeAt      *time.Time
	CancelAtPeriodEnd *bool
	CanceledAt        *time.Time
	DonorEmail        string
	DonorName         string

	// SnapshotAt marks the patch as the subscription's own view of the
	// schedule, taken at that time. Amount, Interval, PriceID and
	// CancelAtPeriodEnd follow the newest snapshot; other patches only fill
	// them in.
	SnapshotAt *time.Time
}

// MergePledge applies p to pl. Status is not touched; it moves through
// pledge.Transition only.
func MergePledge(pl *pledge.Pledge, p PledgePatch) bool {
	changed := false

	switch {
	case p.SnapshotAt != nil:
		if pl.SubscriptionSyncedAt != nil && p.SnapshotAt.Before(*pl.SubscriptionSyncedAt) {
			break
		}

		if p.Amount > 0 && pl.Amount != p.Amount {
			pl.Amount = p.Amount
			changed = true
		}

		if p.Interval != "" && pl.Interval != p.Interval {
			pl.Interval = p.Interval
			changed = true
		}

		changed = enrich(&pl.PriceID, p.PriceID) || changed

		if p.CancelAtPeriodEnd != nil && pl.CancelAtPeriodEnd != *p.CancelAtPeriodEnd {
			pl.CancelAtPeriodEnd = *p.CancelAtPeriodEnd
			changed = true
		}

		changed = advance(&pl.SubscriptionSyncedAt, p.SnapshotAt) || changed
	default:
		if pl.Amount == 0 && p.Amount > 0 {
			pl.Amount = p.Amount
			changed = true
		}

		if pl.Interval == "" && p.Interval != "" {
			pl.Interval = p.Interval
			changed = true
		}

		changed = fill(&pl.PriceID, p.PriceID) || changed
	}

	changed = fill(&pl.Currency, p.Currency) || changed
	changed = fill(&pl.CustomerID, p.CustomerID) || changed
	changed = fill(&pl.SetupIntentID, p.SetupIntentID) || changed
	changed = fill(&pl.DonorEmail, p.DonorEmail) || changed
	changed = fill(&pl.DonorName, p.DonorName) || changed

	// The latest invoice follows the most recent settlement, so an older
	// invoice arriving late cannot take its place.
	newest := p.PaidAt != nil && (pl.LastPledgeAt == nil || !p.PaidAt.Before(*pl.LastPledgeAt))
	if newest {
		changed = enrich(&pl.LatestInvoiceID, p.InvoiceID) || changed
		changed = enrich(&pl.LatestPaymentIntentID, p.PaymentIntentID) || changed
	} else {
		changed = fill(&pl.LatestInvoiceID, p.InvoiceID) || changed
		changed = fill(&pl.LatestPaymentIntentID, p.PaymentIntentID) || changed
	}

	changed = advance(&pl.LastPledgeAt, p.PaidAt) || changed
	changed = advance(&pl.CurrentPeriodStart, p.CurrentPeriodStart) || changed
	changed = advance(&pl.CurrentPeriodEnd, p.CurrentPeriodEnd) || changed
	changed = advance(&pl.NextPledgeAt, p.NextPledgeAt) || changed
	changed = fillTime(&pl.CanceledAt, p.CanceledAt) || changed

	return changed
}

// mergeType upgrades a one-time row once an invoice shows it belongs to a
// pledge.
func mergeType(dst *transaction.Type, src transaction.Type) bool {
	if src == "" || *dst == src || (*dst != "" && !src.Recurring()) {
		return false
	}

	*dst = src

	return true
}

func mergeSource(dst *string, src string) bool {
	if src == "" || *dst == src || (*dst != "" && sourceRank(src) <= sourceRank(*dst)) {
		return false
	}

	*dst = src

	return true
}

// fill sets dst only when it is still empty.
func fill(dst *string, src string) bool {
	if src == "" || *dst != "" {
		return false
	}

	*dst = src

	return true
}

// enrich replaces dst with any non-empty src.
func enrich(dst *string, src string) bool {
	if src == "" || *dst == src {
		return false
	}

	*dst = src

	return true
}

func override(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// advance moves dst forward to src, never backwards.
func advance(dst **time.Time, src *time.Time) bool {
	if src == nil {
		return false
	}

	if *dst != nil && !src.After(**dst) {
		return false
	}

	t := *src
	*dst = &t

	return true
}

func fillTime(dst **time.Time, src *time.Time) bool {
	if src == nil || *dst != nil {
		return false
	}

	t := *src
	*dst = &t

	return true
}

func mergeMetadata(dst *map[string]string, src map[string]string) bool {
	changed := false

	for k, v := range src {
		if cur, ok := (*dst)[k]; ok && cur == v {
			continue
		}

		if *dst == nil {
			*dst = make(map[string]string, len(src))
		}

		(*dst)[k] = v
		changed = true
	}

	return changed
}
