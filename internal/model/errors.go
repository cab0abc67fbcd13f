package model

import (
	"fmt"
	"strings"
)

// Reason classifies a failed redemption engine operation
type Reason string

const (
	ReasonNotFound           Reason = "NOT_FOUND"
	ReasonAlreadyUsed        Reason = "ALREADY_USED"
	ReasonExhausted          Reason = "EXHAUSTED"
	ReasonExpired            Reason = "EXPIRED"
	ReasonInactive           Reason = "INACTIVE"
	ReasonValidationFailed   Reason = "VALIDATION_FAILED"
	ReasonCompensationFailed Reason = "COMPENSATION_FAILED"
	ReasonNotRedeemed        Reason = "NOT_REDEEMED"
	ReasonInternal           Reason = "INTERNAL"
)

// FieldError describes one rejected input field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is a classified engine error
type Error struct {
	Reason  Reason
	Msg     string
	Details []FieldError
	Err     error
}

// Sentinels for errors.Is; matching is by reason only.
var (
	ErrNotFound           = &Error{Reason: ReasonNotFound, Msg: "not found"}
	ErrAlreadyUsed        = &Error{Reason: ReasonAlreadyUsed, Msg: "already used"}
	ErrExhausted          = &Error{Reason: ReasonExhausted, Msg: "campaign budget exhausted"}
	ErrExpired            = &Error{Reason: ReasonExpired, Msg: "expired"}
	ErrInactive           = &Error{Reason: ReasonInactive, Msg: "campaign not active"}
	ErrValidationFailed   = &Error{Reason: ReasonValidationFailed, Msg: "validation failed"}
	ErrCompensationFailed = &Error{Reason: ReasonCompensationFailed, Msg: "compensation failed"}
	ErrNotRedeemed        = &Error{Reason: ReasonNotRedeemed, Msg: "not redeemed"}
)

// NewError creates a classified error
func NewError(reason Reason, msg string) *Error {
	return &Error{Reason: reason, Msg: msg}
}

// WrapError creates a classified error around a cause
func WrapError(reason Reason, msg string, err error) *Error {
	return &Error{Reason: reason, Msg: msg, Err: err}
}

// ValidationError creates a ValidationFailed error with field details
func ValidationError(details ...FieldError) *Error {
	fields := make([]string, 0, len(details))
	for _, d := range details {
		fields = append(fields, d.Field)
	}
	return &Error{
		Reason:  ReasonValidationFailed,
		Msg:     fmt.Sprintf("invalid fields: %s", strings.Join(fields, ", ")),
		Details: details,
	}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Reason, e.Msg, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Reason, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same reason
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Reason == e.Reason
}

// ReasonOf returns the reason of the first classified error in err's chain.
// Joined errors are followed through their first member only, so the reason
// of the original failure wins over anything appended after it.
func ReasonOf(err error) Reason {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Reason
		}
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			errs := u.Unwrap()
			if len(errs) == 0 {
				return ReasonInternal
			}
			err = errs[0]
		case interface{ Unwrap() error }:
			err = u.Unwrap()
		default:
			return ReasonInternal
		}
	}
	return ReasonInternal
}
