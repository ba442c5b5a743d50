package transaction

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("transaction not found")

	// ErrDuplicate is returned by stores when a write would break one of the
	// uniqueness constraints on external identifiers.
	ErrDuplicate = errors.New("duplicate external identifier")
)

// Type represents what kind of gift a transaction settles.
type Type string

const (
	TypeOneTime               Type = "one_time"
	TypeSubscriptionInitial   Type = "subscription_initial"
	TypeSubscriptionRecurring Type = "subscription_recurring"
)

// Recurring reports whether the transaction belongs to a pledge billing cycle.
func (t Type) Recurring() bool {
	return t == TypeSubscriptionInitial || t == TypeSubscriptionRecurring
}

// Status represents the lifecycle state of a payment attempt.
type Status string

const (
	StatusPending           Status = "pending"
	StatusSucceeded         Status = "succeeded"
	StatusFailed            Status = "failed"
	StatusPartiallyRefunded Status = "partially_refunded"
	StatusRefunded          Status = "refunded"
)

var transitions = map[Status][]Status{
	StatusPending:           {StatusSucceeded, StatusFailed},
	StatusSucceeded:         {StatusPartiallyRefunded, StatusRefunded},
	StatusPartiallyRefunded: {StatusRefunded},
	StatusFailed:            nil,
	StatusRefunded:          nil,
}

// CanTransition reports whether a transaction in status s may move to next.
func (s Status) CanTransition(next Status) bool {
	if s == next || s == "" {
		return true
	}

	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// Settled reports whether money has moved for the transaction.
func (s Status) Settled() bool {
	return s == StatusSucceeded || s == StatusPartiallyRefunded || s == StatusRefunded
}

// Transaction represents a single payment attempt: a one-time gift or one
// billing cycle of a pledge.
type Transaction struct {
	ID              uuid.UUID
	PledgeID        *uuid.UUID
	UserID          *uuid.UUID
	AttemptID       string
	Type            Type
	Status          Status
	Amount          int64 // Amount in minor currency units
	Currency        string
	PaymentIntentID string
	ChargeID        string
	InvoiceID       string
	SubscriptionID  string
	CustomerID      string
	PaymentMethodID string
	ReceiptURL      string
	PayerEmail      string
	PayerName       string
	Metadata        map[string]string
	PaidAt          *time.Time
	Source          string
	CreatedAt       time.Time
	UpdatedAt       *time.Time
}

// Placeholder reports whether the transaction is a checkout-created row that
// has not yet been confirmed by the processor.
func (t *Transaction) Placeholder() bool {
	return t.Status == StatusPending && (t.PaymentIntentID == "" || t.ChargeID == "")
}

// RefundStatus is the processor-side state of a refund.
type RefundStatus string

const (
	RefundPending        RefundStatus = "pending"
	RefundRequiresAction RefundStatus = "requires_action"
	RefundSucceeded      RefundStatus = "succeeded"
	RefundFailed         RefundStatus = "failed"
	RefundCanceled       RefundStatus = "canceled"
)

// Final reports whether the refund has reached a processor-side outcome.
func (s RefundStatus) Final() bool {
	return s == RefundSucceeded || s == RefundFailed || s == RefundCanceled
}

// Refund is a reversal against a charge, keyed by its external refund id.
type Refund struct {
	ID              uuid.UUID
	ExternalID      string
	TransactionID   *uuid.UUID
	ChargeID        string
	PaymentIntentID string
	Amount          int64
	Currency        string
	Status          RefundStatus
	Reason          string
	CreatedAt       time.Time
	UpdatedAt       *time.Time
}

// RefundedTotal sums the amounts of refunds that actually moved money back.
func RefundedTotal(refunds []*Refund) int64 {
	var total int64

	for _, r := range refunds {
		if r.Status == RefundSucceeded {
			total += r.Amount
		}
	}

	return total
}

// ClassifyRefund returns the status a settled transaction of the given amount
// should carry once refunded has been returned to the donor. An empty status
// means no refund applies.
func ClassifyRefund(amount, refunded int64) Status {
	switch {
	case refunded <= 0:
		return ""
	case refunded >= amount:
		return StatusRefunded
	default:
		return StatusPartiallyRefunded
	}
}
