package sales

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		kind Kind
		from Status
		to   Status
		hook Hook
		ok   bool
	}{
		{KindOrder, StatusPending, StatusProcessing, HookReserve, true},
		{KindOrder, StatusProcessing, StatusShipped, HookNone, true},
		{KindOrder, StatusShipped, StatusDelivered, HookNone, true},
		{KindOrder, StatusPending, StatusCancelled, HookRelease, true},
		{KindOrder, StatusProcessing, StatusCancelled, HookRelease, true},
		{KindOrder, StatusDelivered, StatusReturned, HookNone, true},
		{KindSale, StatusDraft, StatusCompleted, HookDeduct, true},
		{KindSale, StatusCompleted, StatusReturned, HookNone, true},

		{KindOrder, StatusDelivered, StatusProcessing, HookNone, false},
		{KindOrder, StatusShipped, StatusCancelled, HookNone, false},
		{KindOrder, StatusCancelled, StatusPending, HookNone, false},
		{KindSale, StatusCompleted, StatusDraft, HookNone, false},
		{KindSale, StatusDraft, StatusReturned, HookNone, false},
		// Kinds do not share each other's states.
		{KindSale, StatusPending, StatusProcessing, HookNone, false},
		{KindOrder, StatusDraft, StatusCompleted, HookNone, false},
	}
	for _, tc := range cases {
		hook, err := Plan(tc.kind, tc.from, tc.to)
		if tc.ok {
			require.NoError(t, err, "%s %s -> %s", tc.kind, tc.from, tc.to)
			require.Equal(t, tc.hook, hook)
		} else {
			require.ErrorIs(t, err, ErrIllegalTransition, "%s %s -> %s", tc.kind, tc.from, tc.to)
		}
	}
}

func TestInitialStatus(t *testing.T) {
	require.Equal(t, StatusPending, InitialStatus(KindOrder))
	require.Equal(t, StatusDraft, InitialStatus(KindSale))
}

func TestHookMovement(t *testing.T) {
	_, ok := HookNone.Movement()
	require.False(t, ok)
	for _, h := range []Hook{HookReserve, HookRelease, HookDeduct} {
		_, ok := h.Movement()
		require.True(t, ok)
	}
}
