package pledge

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("pledge not found")

// Status represents the lifecycle state of a recurring giving schedule.
type Status string

const (
	StatusIncomplete Status = "incomplete"
	StatusPending    Status = "pending"
	StatusActive     Status = "active"
	StatusPastDue    Status = "past_due"
	StatusCanceled   Status = "canceled"
)

// Interval is the billing cadence of a pledge.
type Interval string

const (
	IntervalDay   Interval = "day"
	IntervalWeek  Interval = "week"
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

var transitions = map[Status][]Status{
	StatusIncomplete: {StatusActive, StatusCanceled},
	StatusPending:    {StatusActive, StatusCanceled},
	StatusActive:     {StatusPastDue, StatusCanceled},
	StatusPastDue:    {StatusActive, StatusCanceled},
	StatusCanceled:   nil,
}

// CanTransition reports whether a pledge in status s may move to next.
// Moving to the current status is always allowed and is a no-op.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}

	if s == "" {
		return true
	}

	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCanceled
}

// Pledge represents a donor's recurring giving commitment.
type Pledge struct {
	ID                    uuid.UUID
	UserID                *uuid.UUID
	AttemptID             string
	Amount                int64 // Amount in minor currency units
	Currency              string
	Interval              Interval
	Status                Status
	CustomerID            string
	SubscriptionID        string
	PriceID               string
	SetupIntentID         string
	LatestInvoiceID       string
	LatestPaymentIntentID string
	CurrentPeriodStart    *time.Time
	CurrentPeriodEnd      *time.Time
	LastPledgeAt          *time.Time
	LastFailedAt          *time.Time // most recent failed invoice, gates past_due recovery
	NextPledgeAt          *time.Time
	CancelAtPeriodEnd     bool
	CanceledAt            *time.Time
	SubscriptionSyncedAt  *time.Time // event time of the subscription snapshot last applied
	DonorEmail            string
	DonorName             string
	CreatedAt             time.Time
	UpdatedAt             *time.Time
}

// Transition moves the pledge to next when the state machine allows it.
// It returns false, leaving the pledge untouched, when the move is not allowed.
func (p *Pledge) Transition(next Status) bool {
	if next == "" || p.Status == next {
		return false
	}

	if !p.Status.CanTransition(next) {
		return false
	}

	p.Status = next

	return true
}
