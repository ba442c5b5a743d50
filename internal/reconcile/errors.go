package reconcile

import (
	"errors"
	"fmt"
)

// ErrMalformedEvent marks input that must be rejected before it reaches any
// ledger logic.
var ErrMalformedEvent = errors.New("malformed event")

// AbsentError reports that an event refers to something the ledger does not
// know (yet). Out-of-order delivery makes this routine, so it is acknowledged
// rather than retried.
type AbsentError struct {
	Entity string
	Key    string
}

func (e *AbsentError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("no matching %s", e.Entity)
	}

	return fmt.Sprintf("no matching %s for %s", e.Entity, e.Key)
}

func absent(entity, key string) error {
	return &AbsentError{Entity: entity, Key: key}
}

// IsAbsent reports whether err is a routine "nothing to reconcile" condition.
func IsAbsent(err error) bool {
	var a *AbsentError
	return errors.As(err, &a)
}
