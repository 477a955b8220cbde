package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"automationd/internal/ids"
)

// fakeTransport is an in-memory Transport double driven directly by
// tests, standing in for a real TCP/WebSocket connection.
type fakeTransport struct {
	authRequired   bool
	onConnected    func(ids.ClientId)
	onDisconnected func(ids.ClientId)
	onData         func(ids.ClientId, []byte)
	sent           map[ids.ClientId][][]byte
}

func newFakeTransport(authRequired bool) *fakeTransport {
	return &fakeTransport{authRequired: authRequired, sent: make(map[ids.ClientId][][]byte)}
}

func (f *fakeTransport) Open() error  { return nil }
func (f *fakeTransport) Close() error { return nil }
func (f *fakeTransport) AuthRequired() bool { return f.authRequired }
func (f *fakeTransport) SetCallbacks(onConnected func(ids.ClientId), onDisconnected func(ids.ClientId), onData func(ids.ClientId, []byte)) {
	f.onConnected = onConnected
	f.onDisconnected = onDisconnected
	f.onData = onData
}
func (f *fakeTransport) SendData(client ids.ClientId, payload []byte) error {
	f.sent[client] = append(f.sent[client], payload)
	return nil
}

type fakeDispatcher struct {
	connected    []ids.ClientId
	disconnected []ids.ClientId
	dispatchResp []byte
}

func (d *fakeDispatcher) Dispatch(_ context.Context, _ ids.ClientId, _ []byte) []byte {
	return d.dispatchResp
}
func (d *fakeDispatcher) WelcomeMessage(_ ids.ClientId, _ bool) []byte { return []byte(`{"welcome":true}`) }
func (d *fakeDispatcher) ClientConnected(id ids.ClientId)              { d.connected = append(d.connected, id) }
func (d *fakeDispatcher) ClientDisconnected(id ids.ClientId)           { d.disconnected = append(d.disconnected, id) }

func TestMultiplexerSendsWelcomeOnConnect(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	mux := NewMultiplexer(dispatcher, zap.NewNop())
	tr := newFakeTransport(true)
	mux.Add(tr)

	clientId := ids.NewClientId()
	tr.onConnected(clientId)

	require.Contains(t, dispatcher.connected, clientId)
	require.Len(t, tr.sent[clientId], 1)
	require.Equal(t, []byte(`{"welcome":true}`), tr.sent[clientId][0])
}

func TestMultiplexerRoutesDataThroughOwningTransport(t *testing.T) {
	dispatcher := &fakeDispatcher{dispatchResp: []byte(`{"status":"success"}`)}
	mux := NewMultiplexer(dispatcher, zap.NewNop())
	trA := newFakeTransport(false)
	trB := newFakeTransport(false)
	mux.Add(trA)
	mux.Add(trB)

	clientA := ids.NewClientId()
	trA.onConnected(clientA)
	trB.onData(clientA, []byte(`{"method":"JSONRPC.Hello"}`))

	require.Len(t, trA.sent[clientA], 2) // welcome + response
	require.Len(t, trB.sent[clientA], 0)
	require.Equal(t, []byte(`{"status":"success"}`), trA.sent[clientA][1])
}

func TestMultiplexerDisconnectRemovesBinding(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	mux := NewMultiplexer(dispatcher, zap.NewNop())
	tr := newFakeTransport(false)
	mux.Add(tr)

	clientId := ids.NewClientId()
	tr.onConnected(clientId)
	tr.onDisconnected(clientId)

	require.Contains(t, dispatcher.disconnected, clientId)
	mux.Unicast(clientId, []byte("ignored"))
	require.Len(t, tr.sent[clientId], 1) // only the welcome message
}

func TestMultiplexerBroadcastRespectsEnabledFlag(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	mux := NewMultiplexer(dispatcher, zap.NewNop())
	tr := newFakeTransport(false)
	mux.Add(tr)

	enabledClient := ids.NewClientId()
	disabledClient := ids.NewClientId()
	tr.onConnected(enabledClient)
	tr.onConnected(disabledClient)
	mux.SetNotificationsEnabled(enabledClient, true)

	mux.Broadcast([]byte("notice"), true)

	require.Len(t, tr.sent[enabledClient], 2) // welcome + notice
	require.Len(t, tr.sent[disabledClient], 1) // welcome only
}
