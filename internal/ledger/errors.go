package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAmount rejects non-positive amounts before any I/O.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrPaidExpiry rejects expiry dates on paid-class credits.
	ErrPaidExpiry = errors.New("paid credits cannot carry an expiry")
	// ErrNotFound means the balance row does not exist.
	ErrNotFound = errors.New("balance not found")
	// ErrConflict is a concurrent-write conflict; the store retries it a
	// bounded number of times before giving up.
	ErrConflict = errors.New("storage conflict")
)

// InsufficientCreditsError is an expected business outcome, returned as a typed
// value so callers can render the exact shortfall.
type InsufficientCreditsError struct {
	Have int
	Need int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: you have %d credits but need %d", e.Have, e.Need)
}

func IsInsufficientCredits(err error) bool {
	var target *InsufficientCreditsError
	return errors.As(err, &target)
}
