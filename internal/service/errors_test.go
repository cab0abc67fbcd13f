package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/redemption/internal/model"
)

func TestToConnectError(t *testing.T) {
	testCases := []struct {
		name   string
		err    error
		code   connect.Code
		reason string
	}{
		{"not found", model.NewError(model.ReasonNotFound, "code X not found"), connect.CodeNotFound, "NOT_FOUND"},
		{"already used", fmt.Errorf("claim: %w", model.NewError(model.ReasonAlreadyUsed, "used")), connect.CodeAlreadyExists, "ALREADY_USED"},
		{"exhausted", model.NewError(model.ReasonExhausted, "no uses"), connect.CodeResourceExhausted, "EXHAUSTED"},
		{"expired", model.NewError(model.ReasonExpired, "expired"), connect.CodeFailedPrecondition, "EXPIRED"},
		{"inactive", model.NewError(model.ReasonInactive, "inactive"), connect.CodeFailedPrecondition, "INACTIVE"},
		{"not redeemed", model.NewError(model.ReasonNotRedeemed, "unused"), connect.CodeFailedPrecondition, "NOT_REDEEMED"},
		{"validation", model.ValidationError(model.FieldError{Field: "email", Message: "invalid"}), connect.CodeInvalidArgument, "VALIDATION_FAILED"},
		{"storage failure", errors.New("connection reset"), connect.CodeInternal, "INTERNAL"},
		{"deadline", fmt.Errorf("failed to claim: %w", context.DeadlineExceeded), connect.CodeUnavailable, "INTERNAL"},
		{"canceled", context.Canceled, connect.CodeCanceled, "INTERNAL"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var ce *connect.Error
			require.ErrorAs(t, ToConnectError(tc.err), &ce)
			assert.Equal(t, tc.code, ce.Code())
			assert.Equal(t, tc.reason, ce.Meta().Get(ReasonHeader))
			assert.Empty(t, ce.Meta().Get(CompensationFailedHeader))
		})
	}
}

func TestToConnectErrorCompensationFailed(t *testing.T) {
	err := errors.Join(
		model.NewError(model.ReasonAlreadyUsed, "code taken"),
		model.WrapError(model.ReasonCompensationFailed, "state may have drifted", errors.New("undo reserve: timeout")),
	)

	var ce *connect.Error
	require.ErrorAs(t, ToConnectError(err), &ce)
	assert.Equal(t, connect.CodeAlreadyExists, ce.Code(), "the original failure decides the code")
	assert.Equal(t, "ALREADY_USED", ce.Meta().Get(ReasonHeader))
	assert.Equal(t, "true", ce.Meta().Get(CompensationFailedHeader))
}

func TestToConnectErrorPassesConnectErrors(t *testing.T) {
	in := connect.NewError(connect.CodeUnauthenticated, errors.New("no token"))
	assert.Same(t, in, ToConnectError(in))
	assert.NoError(t, ToConnectError(nil))
}
