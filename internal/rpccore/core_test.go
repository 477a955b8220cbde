package rpccore

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"automationd/internal/ids"
)

type fakeNotifier struct {
	unicasts   [][]byte
	broadcasts [][]byte
}

func (f *fakeNotifier) Unicast(_ ids.ClientId, payload []byte) { f.unicasts = append(f.unicasts, payload) }
func (f *fakeNotifier) Broadcast(payload []byte, _ bool)       { f.broadcasts = append(f.broadcasts, payload) }

type echoHandler struct{}

func (echoHandler) Name() string { return "Echo" }
func (echoHandler) Methods() map[string]MethodSpec {
	return map[string]MethodSpec{
		"Open":       {AuthExempt: true},
		"Restricted": {},
	}
}
func (echoHandler) Notifications() map[string]SchemaSpec { return nil }
func (echoHandler) Invoke(_ *InvocationContext, method string, params map[string]any) (Reply, error) {
	return Immediate(map[string]any{"method": method, "params": params}), nil
}

func newTestCore(t *testing.T) (*Core, ids.ClientId) {
	t.Helper()
	core := NewCore("test-server", &fakeNotifier{}, zap.NewNop())
	core.RegisterHandler(echoHandler{})
	clientId := ids.NewClientId()
	core.ClientConnected(clientId)
	return core, clientId
}

func dispatchJSON(t *testing.T, core *Core, clientId ids.ClientId, req map[string]any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(req)
	require.NoError(t, err)
	resp := core.Dispatch(context.Background(), clientId, raw)
	var out map[string]any
	require.NoError(t, json.Unmarshal(resp, &out))
	return out
}

func TestDispatchAuthExemptMethodSucceedsWithoutAuth(t *testing.T) {
	core, clientId := newTestCore(t)
	resp := dispatchJSON(t, core, clientId, map[string]any{"id": 1, "method": "Echo.Open"})
	require.Equal(t, "success", resp["status"])
}

func TestDispatchGatedMethodRejectsWithoutAuth(t *testing.T) {
	core, clientId := newTestCore(t)
	resp := dispatchJSON(t, core, clientId, map[string]any{"id": 2, "method": "Echo.Restricted"})
	require.Equal(t, "unauthorized", resp["status"])
}

func TestDispatchGatedMethodSucceedsAfterAuth(t *testing.T) {
	core, clientId := newTestCore(t)
	core.MarkAuthenticated(clientId, "alice")
	resp := dispatchJSON(t, core, clientId, map[string]any{"id": 3, "method": "Echo.Restricted"})
	require.Equal(t, "success", resp["status"])
}

func TestDispatchUnknownMethodErrors(t *testing.T) {
	core, clientId := newTestCore(t)
	resp := dispatchJSON(t, core, clientId, map[string]any{"id": 4, "method": "Echo.Nope"})
	require.Equal(t, "error", resp["status"])
}

func TestIntrospectionDocumentListsRegisteredMethods(t *testing.T) {
	core, _ := newTestCore(t)
	doc := core.IntrospectionDocument()
	methods := doc["methods"].(map[string]any)
	require.Contains(t, methods, "Echo.Open")
	require.Contains(t, methods, "Echo.Restricted")
}

func TestClientDisconnectedCancelsBoundPushButtonTransaction(t *testing.T) {
	core, clientId := newTestCore(t)
	core.BindPushButtonTransaction("txn-1", clientId)
	core.ClientDisconnected(clientId)
	core.mu.RLock()
	_, stillBound := core.pushButtonBypass["txn-1"]
	core.mu.RUnlock()
	require.False(t, stillBound)
}

type fakeTransactionCanceller struct {
	cancelled []ids.PairingTransactionId
}

func (f *fakeTransactionCanceller) Cancel(transactionId ids.PairingTransactionId) error {
	f.cancelled = append(f.cancelled, transactionId)
	return nil
}

func TestClientDisconnectedCancelsPushButtonStateMachine(t *testing.T) {
	core, clientId := newTestCore(t)
	canceller := &fakeTransactionCanceller{}
	core.SetPushButtonCanceller(canceller)

	txn := ids.NewPairingTransactionId()
	core.BindPushButtonTransaction(txn.String(), clientId)
	core.ClientDisconnected(clientId)

	require.Equal(t, []ids.PairingTransactionId{txn}, canceller.cancelled)
}

func TestTakePreemptedPushButtonClientRemovesBinding(t *testing.T) {
	core, clientId := newTestCore(t)
	core.BindPushButtonTransaction("txn-2", clientId)

	client, ok := core.TakePreemptedPushButtonClient("txn-2")
	require.True(t, ok)
	require.Equal(t, clientId, client)

	_, ok = core.TakePreemptedPushButtonClient("txn-2")
	require.False(t, ok)
}
