package reconcile

import (
	"slices"
)

// Identifiers are the external ids an event refers to. Any of them may be empty.
type Identifiers struct {
	InvoiceID       string
	SubscriptionID  string
	PaymentIntentID string
	ChargeID        string
	CustomerID      string
	PaymentMethodID string
}

// Paths are tried in order; the first present, non-empty id wins. They cover
// the shapes the processor has used across API versions.
var (
	invoicePaths = []string{
		"invoice",
		"invoice_details.invoice",
		"parent.invoice_details.invoice",
	}
	subscriptionPaths = []string{
		"subscription",
		"parent.subscription_details.subscription",
		"subscription_details.subscription",
		"lines.data.0.subscription",
		"lines.data.0.subscription_details.subscription",
		"lines.data.0.parent.subscription_item_details.subscription",
		"lines.data.0.parent.invoice_item_details.subscription",
	}
	paymentIntentPaths = []string{
		"payment_intent",
		"payments.data.0.payment.payment_intent",
		"latest_charge.payment_intent",
	}
	chargePaths = []string{
		"charge",
		"latest_charge",
		"payment_intent.latest_charge",
		"charges.data.0",
		"payments.data.0.payment.charge",
	}
	customerPaths = []string{
		"customer",
		"customer_details.customer",
	}
	paymentMethodPaths = []string{
		"payment_method",
		"default_payment_method",
		"payment_intent.payment_method",
		"latest_charge.payment_method",
	}
)

// Extract pulls the canonical external ids out of an event object. An
// object's own id is used for the field matching its kind.
func Extract(obj Payload) Identifiers {
	own := obj.ID("id")

	ids := Identifiers{
		InvoiceID:       obj.ID(invoicePaths...),
		SubscriptionID:  obj.ID(subscriptionPaths...),
		PaymentIntentID: obj.ID(paymentIntentPaths...),
		ChargeID:        obj.ID(chargePaths...),
		CustomerID:      obj.ID(customerPaths...),
		PaymentMethodID: obj.ID(paymentMethodPaths...),
	}

	switch obj.Kind() {
	case "invoice":
		ids.InvoiceID = own
	case "subscription":
		ids.SubscriptionID = own
	case "payment_intent":
		ids.PaymentIntentID = own
	case "charge":
		ids.ChargeID = own
	case "customer":
		ids.CustomerID = own
	}

	return ids
}

// Strong reports whether the ids carry a key that identifies exactly one payment.
func (ids Identifiers) Strong() bool {
	return ids.PaymentIntentID != "" || ids.ChargeID != ""
}

// Empty reports whether no transaction-level key is present.
func (ids Identifiers) Empty() bool {
	return ids.InvoiceID == "" && !ids.Strong()
}

func (ids Identifiers) lockKeys(extra ...string) []string {
	keys := make([]string, 0, 8)

	add := func(prefix, v string) {
		if v != "" {
			keys = append(keys, prefix+":"+v)
		}
	}

	add("invoice", ids.InvoiceID)
	add("subscription", ids.SubscriptionID)
	add("payment_intent", ids.PaymentIntentID)
	add("charge", ids.ChargeID)
	add("customer", ids.CustomerID)

	for _, e := range extra {
		if e != "" {
			keys = append(keys, e)
		}
	}

	slices.Sort(keys)

	return slices.Compact(keys)
}
