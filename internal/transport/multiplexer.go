package transport

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"automationd/internal/ids"
)

// Dispatcher is the subset of rpccore.Core the multiplexer needs,
// narrowed to avoid an import cycle between transport and rpccore (the
// multiplexer implements rpccore.Notifier; rpccore does not import
// transport).
type Dispatcher interface {
	Dispatch(ctx context.Context, clientId ids.ClientId, raw []byte) []byte
	WelcomeMessage(clientId ids.ClientId, authRequired bool) []byte
	ClientConnected(ids.ClientId)
	ClientDisconnected(ids.ClientId)
}

// Multiplexer owns every registered Transport and the client->transport
// map needed to route Core.Dispatch results back to the originating
// connection. It also implements rpccore.Notifier so the core's
// notification bus can reach any connected client regardless of which
// transport it arrived on.
type Multiplexer struct {
	core       Dispatcher
	log        *zap.Logger
	transports []Transport

	mu      sync.RWMutex
	clients map[ids.ClientId]Transport
	enabled map[ids.ClientId]bool
}

func NewMultiplexer(core Dispatcher, log *zap.Logger) *Multiplexer {
	return &Multiplexer{
		core:    core,
		log:     log,
		clients: make(map[ids.ClientId]Transport),
		enabled: make(map[ids.ClientId]bool),
	}
}

// SetCore binds the dispatcher after construction, letting the
// multiplexer (an rpccore.Notifier) and the core (which needs a
// Notifier at construction) be wired despite the cyclic dependency
// between them.
func (m *Multiplexer) SetCore(core Dispatcher) {
	m.core = core
}

func (m *Multiplexer) Add(t Transport) {
	t.SetCallbacks(m.clientConnected(t), m.clientDisconnected, m.dataAvailable(t))
	m.transports = append(m.transports, t)
}

func (m *Multiplexer) StartAll() error {
	for _, t := range m.transports {
		if err := t.Open(); err != nil {
			return err
		}
	}
	return nil
}

func (m *Multiplexer) StopAll() {
	for _, t := range m.transports {
		if err := t.Close(); err != nil {
			m.log.Warn("transport close failed", zap.Error(err))
		}
	}
}

func (m *Multiplexer) clientConnected(t Transport) func(ids.ClientId) {
	return func(clientId ids.ClientId) {
		m.mu.Lock()
		m.clients[clientId] = t
		m.mu.Unlock()
		m.core.ClientConnected(clientId)
		if welcome := m.core.WelcomeMessage(clientId, t.AuthRequired()); welcome != nil {
			_ = t.SendData(clientId, welcome)
		}
	}
}

func (m *Multiplexer) clientDisconnected(clientId ids.ClientId) {
	m.mu.Lock()
	delete(m.clients, clientId)
	delete(m.enabled, clientId)
	m.mu.Unlock()
	m.core.ClientDisconnected(clientId)
}

func (m *Multiplexer) dataAvailable(t Transport) func(ids.ClientId, []byte) {
	return func(clientId ids.ClientId, payload []byte) {
		resp := m.core.Dispatch(context.Background(), clientId, payload)
		if resp != nil {
			m.mu.RLock()
			owner, ok := m.clients[clientId]
			m.mu.RUnlock()
			if !ok {
				owner = t
			}
			if err := owner.SendData(clientId, resp); err != nil {
				m.log.Warn("send response failed", zap.Error(err))
			}
		}
	}
}

// SetNotificationsEnabled records whether Broadcast(payload, true)
// includes clientId; rpccore.Core.SetNotificationsEnabled forwards each
// change here.
func (m *Multiplexer) SetNotificationsEnabled(clientId ids.ClientId, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled[clientId] = enabled
}

func (m *Multiplexer) Unicast(client ids.ClientId, payload []byte) {
	m.mu.RLock()
	t, ok := m.clients[client]
	m.mu.RUnlock()
	if !ok {
		return
	}
	if err := t.SendData(client, payload); err != nil {
		m.log.Warn("unicast failed", zap.Error(err))
	}
}

func (m *Multiplexer) Broadcast(payload []byte, enabledOnly bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for clientId, t := range m.clients {
		if enabledOnly && !m.enabled[clientId] {
			continue
		}
		if err := t.SendData(clientId, payload); err != nil {
			m.log.Warn("broadcast to client failed", zap.String("clientId", clientId.String()), zap.Error(err))
		}
	}
}
