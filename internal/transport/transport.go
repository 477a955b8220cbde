// Package transport implements the polymorphic Transport boundary and
// three concrete transports (newline-framed TCP, WebSocket, and a
// cloud-relayed channel), grounded on the original's TransportInterface
// signal set and the teacher's internet_bridge/remote_server relay.
package transport

import "automationd/internal/ids"

// Transport is implemented by every concrete connection medium. The
// multiplexer owns the client table and routes Core.Dispatch output back
// through SendData.
type Transport interface {
	Open() error
	Close() error
	AuthRequired() bool
	// SetCallbacks wires the multiplexer's handlers; called once before
	// Open.
	SetCallbacks(onConnected func(ids.ClientId), onDisconnected func(ids.ClientId), onData func(ids.ClientId, []byte))
	SendData(client ids.ClientId, payload []byte) error
}
