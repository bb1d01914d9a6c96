// Package uierr carries fatal, user-facing failures. These are the only
// errors an improvement run returns to its caller; everything else is
// reported as a diagnostic.
package uierr

import (
	"errors"
	"fmt"
)

// UserError is a failure the user can act on, with an optional remediation
// hint printed under the message.
type UserError struct {
	Message string
	Hint    string
	Err     error
}

func New(message, hint string) *UserError {
	return &UserError{Message: message, Hint: hint}
}

func Wrap(err error, message, hint string) *UserError {
	return &UserError{Message: message, Hint: hint, Err: err}
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// HintOf returns the hint of the first UserError in err's chain.
func HintOf(err error) string {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue.Hint
	}
	return ""
}

// IsUserError reports whether err's chain contains a UserError.
func IsUserError(err error) bool {
	var ue *UserError
	return errors.As(err, &ue)
}
