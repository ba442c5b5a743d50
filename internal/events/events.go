package events

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("event not found")

// Record is a verified processor event as received, with the outcome of the
// latest attempt to apply it to the ledger.
type Record struct {
	ID          string
	Type        string
	Payload     []byte
	Attempts    int
	ReceivedAt  time.Time
	ProcessedAt *time.Time
	LastError   string
}

// Failed reports whether the latest attempt to apply the event failed.
func (r *Record) Failed() bool {
	return r.LastError != ""
}
