package phone

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrBelowMinimum      = errors.New("amount below template minimum")
	ErrAboveMaximum      = errors.New("amount above template maximum")
	ErrMissingField      = errors.New("required field missing")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrSelfTrade         = errors.New("cannot buy your own listing")
	ErrAlreadyOwned      = errors.New("business already owned")
	ErrUnknownTemplate   = errors.New("unknown template")
	ErrNotSignedIn       = errors.New("not signed in")
)

// ValidationError rejects a user action before any remote call is made.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v (%s)", e.Field, e.Err, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func reject(field string, err error, format string, args ...any) error {
	return &ValidationError{Field: field, Err: err, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err was a client-side rejection.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
