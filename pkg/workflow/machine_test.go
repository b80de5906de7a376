package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextLegalEdges(t *testing.T) {
	cases := []struct {
		from State
		ev   Event
		want State
	}{
		{StateDispatch, EventStageCompleted, StateRoute},
		{StateDispatch, EventStageFailed, StateErrorHandler},
		{StateDispatch, EventApprovalRequired, StateHumanVerification},

		{StateRoute, EventStageCompleted, StateInventory},
		{StateRoute, EventStageFailed, StateErrorHandler},
		{StateRoute, EventApprovalRequired, StateHumanVerification},

		{StateInventory, EventStoreRunNeeded, StateHardwareStore},
		{StateInventory, EventStageCompleted, StateComplete},
		{StateInventory, EventStageFailed, StateErrorHandler},
		{StateInventory, EventApprovalRequired, StateHumanVerification},

		{StateHardwareStore, EventStageCompleted, StateComplete},
		{StateHardwareStore, EventStageFailed, StateErrorHandler},
		{StateHardwareStore, EventApprovalRequired, StateHumanVerification},

		{StateHumanVerification, EventApproved, StateComplete},
		{StateHumanVerification, EventRejected, StateCancelled},
		{StateHumanVerification, EventStageFailed, StateErrorHandler},

		{StateErrorHandler, EventRetry, StateDispatch},
		{StateErrorHandler, EventGiveUp, StateFailed},
	}

	for _, tc := range cases {
		got, err := Next(tc.from, tc.ev)
		require.NoError(t, err, "%s + %s", tc.from, tc.ev)
		assert.Equal(t, tc.want, got, "%s + %s", tc.from, tc.ev)
	}
}

func TestNextRejectsUndefinedEdges(t *testing.T) {
	cases := []struct {
		from State
		ev   Event
	}{
		{StateDispatch, EventStoreRunNeeded},
		{StateDispatch, EventApproved},
		{StateRoute, EventRetry},
		{StateInventory, EventGiveUp},
		{StateHumanVerification, EventStageCompleted},
		{StateErrorHandler, EventStageCompleted},
		{StateComplete, EventStageCompleted},
		{StateFailed, EventRetry},
		{StateCancelled, EventApproved},
	}

	for _, tc := range cases {
		got, err := Next(tc.from, tc.ev)
		require.Error(t, err, "%s + %s", tc.from, tc.ev)

		var invalid *ErrInvalidTransition
		require.True(t, errors.As(err, &invalid))
		assert.Equal(t, tc.from, invalid.From)
		assert.Equal(t, tc.ev, invalid.Event)
		assert.Equal(t, tc.from, got, "state must not move on an undefined edge")
	}
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, StateComplete.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.True(t, StateCancelled.Terminal())

	for _, s := range []State{
		StateDispatch, StateRoute, StateInventory,
		StateHardwareStore, StateHumanVerification, StateErrorHandler,
	} {
		assert.False(t, s.Terminal(), string(s))
	}
}

func TestApprovalStepFor(t *testing.T) {
	assert.Equal(t, ApprovalStepDispatch, ApprovalStepFor(StateRoute))
	assert.Equal(t, ApprovalStepRoute, ApprovalStepFor(StateInventory))
	assert.Equal(t, ApprovalStepInventory, ApprovalStepFor(StateComplete))
	assert.Equal(t, ApprovalStepNone, ApprovalStepFor(StateDispatch))
	assert.Equal(t, ApprovalStepNone, ApprovalStepFor(StateErrorHandler))
}
