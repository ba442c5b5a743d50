package checkout

import (
	"errors"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/donorledger/internal/pledge"
	"github.com/MrJamesThe3rd/donorledger/internal/transaction"
)

var ErrAttemptMismatch = errors.New("attempt already started with different parameters")

// Kind is the kind of gift a donor starts at checkout.
type Kind string

const (
	KindOneTime   Kind = "one_time"
	KindRecurring Kind = "recurring"
)

// Params describes a checkout attempt. AttemptID is the opaque id the donor
// widget generates and passes to the processor as client reference.
type Params struct {
	AttemptID  string
	Kind       Kind
	Amount     int64 // Amount in minor currency units
	Currency   string
	Interval   pledge.Interval
	UserID     *uuid.UUID
	DonorEmail string
	DonorName  string
}

// Attempt holds the placeholder rows for one checkout attempt. Pledge is nil
// for one-time gifts. Existing is set when the attempt had already been started.
type Attempt struct {
	Transaction *transaction.Transaction
	Pledge      *pledge.Pledge
	Existing    bool
}
