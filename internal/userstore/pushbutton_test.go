package userstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPushButtonRequestThenCancel(t *testing.T) {
	p := NewPushButtonAuth()
	require.Equal(t, PushButtonIdle, p.State())

	txn, _, preempted := p.Request("kitchen-switch")
	require.False(t, preempted)
	require.Equal(t, PushButtonPending, p.State())

	require.NoError(t, p.Cancel(txn))
	require.Equal(t, PushButtonIdle, p.State())
}

func TestPushButtonNewRequestPreemptsPending(t *testing.T) {
	p := NewPushButtonAuth()
	first, _, firstPreempted := p.Request("device-a")
	require.False(t, firstPreempted)
	second, preemptedTxn, preempted := p.Request("device-b")
	require.NotEqual(t, first, second)
	require.True(t, preempted)
	require.Equal(t, first, preemptedTxn)
	require.Error(t, p.Cancel(first))
	require.NoError(t, p.Cancel(second))
}

func TestPushButtonPressedWithNoPendingTransactionFails(t *testing.T) {
	p := NewPushButtonAuth()
	_, _, err := p.Pressed(context.Background(), nil)
	require.Error(t, err)
}
