package service

import (
	"context"
	"errors"

	"connectrpc.com/connect"

	"github.com/kkkkikiki/redemption/internal/model"
)

const (
	// ReasonHeader carries the model.Reason of a failed call
	ReasonHeader = "Redemption-Reason"
	// CompensationFailedHeader is set to true when undoing a failed attempt
	// also failed and the ledger may have drifted
	CompensationFailedHeader = "Redemption-Compensation-Failed"
)

// ToConnectError maps an engine error onto a Connect error code and attaches
// its reason as metadata
func ToConnectError(err error) error {
	if err == nil {
		return nil
	}
	var ce *connect.Error
	if errors.As(err, &ce) {
		return ce
	}

	reason := model.ReasonOf(err)
	ce = connect.NewError(codeOf(err, reason), err)
	ce.Meta().Set(ReasonHeader, string(reason))
	if errors.Is(err, model.ErrCompensationFailed) {
		ce.Meta().Set(CompensationFailedHeader, "true")
	}
	return ce
}

func codeOf(err error, reason model.Reason) connect.Code {
	switch reason {
	case model.ReasonNotFound:
		return connect.CodeNotFound
	case model.ReasonAlreadyUsed:
		return connect.CodeAlreadyExists
	case model.ReasonExhausted:
		return connect.CodeResourceExhausted
	case model.ReasonExpired, model.ReasonInactive, model.ReasonNotRedeemed:
		return connect.CodeFailedPrecondition
	case model.ReasonValidationFailed:
		return connect.CodeInvalidArgument
	}

	switch {
	case errors.Is(err, context.Canceled):
		return connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return connect.CodeUnavailable
	default:
		return connect.CodeInternal
	}
}
