// Package rpccore implements the JSON-RPC dispatch core: handler
// registry, introspection document, request/response/notification
// envelopes, async reply handling, and the authentication gate. Grounded
// line-by-line on jsonrpcserver.cpp's processData lifecycle.
package rpccore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"automationd/internal/ids"
)

var ErrAsyncReplyTimeout = errors.New("rpccore: async reply timed out")

const DefaultAsyncReplyTimeout = 30 * time.Second

// ClientState tracks per-connection bookkeeping the core needs: whether
// the client has authenticated, and whether it wants notifications.
type ClientState struct {
	Authenticated        bool
	NotificationsEnabled bool
	Username             string
}

// Notifier abstracts the concrete transport fan-out so Core stays
// transport-agnostic; the multiplexer implements this.
type Notifier interface {
	Unicast(client ids.ClientId, payload []byte)
	Broadcast(payload []byte, enabledOnly bool)
}

type Core struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	clients  map[ids.ClientId]*ClientState
	methods  map[string]methodEntry // "Namespace.Method" -> handler+spec

	notifier       Notifier
	validate       *validator.Validate
	log            *zap.Logger
	asyncTimeout   time.Duration
	serverName     string

	// pushButtonBypass, set per in-flight push-button transaction, lets
	// the notifier unicast the PushButtonAuthFinished notification to the
	// requesting client even though that client has not yet authenticated
	// and would otherwise be excluded from broadcast, matching
	// onPushButtonAuthFinished's bypass-flag logic.
	pushButtonBypass map[string]ids.ClientId

	// pushButtonCanceller aborts a disconnecting client's pending
	// transaction in userstore.PushButtonAuth's own state machine, not
	// just this bookkeeping map, so it doesn't stay stuck Pending after
	// its requester has left.
	pushButtonCanceller PendingTransactionCanceller
}

// PendingTransactionCanceller lets Core reach into userstore.PushButtonAuth
// without importing it directly (which would create an import cycle).
type PendingTransactionCanceller interface {
	Cancel(transactionId ids.PairingTransactionId) error
}

type methodEntry struct {
	handler Handler
	spec    MethodSpec
}

func NewCore(serverName string, notifier Notifier, log *zap.Logger) *Core {
	return &Core{
		handlers:         make(map[string]Handler),
		clients:          make(map[ids.ClientId]*ClientState),
		methods:          make(map[string]methodEntry),
		notifier:         notifier,
		validate:         validator.New(),
		log:              log,
		asyncTimeout:     DefaultAsyncReplyTimeout,
		serverName:       serverName,
		pushButtonBypass: make(map[string]ids.ClientId),
	}
}

// RegisterHandler adds a namespace's methods to the dispatch table and
// introspection document. Each handler declares its own method table
// explicitly (no reflection), matching setDescription/setParams/
// setReturns calls in the original's constructor.
func (c *Core) RegisterHandler(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[h.Name()] = h
	for name, spec := range h.Methods() {
		c.methods[h.Name()+"."+name] = methodEntry{handler: h, spec: spec}
	}
}

// IntrospectionDocument builds the combined methods/notifications
// document returned by JSONRPC.Introspect, assembled fresh from every
// registered handler rather than cached, since handlers only register at
// startup.
func (c *Core) IntrospectionDocument() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	methods := make(map[string]any)
	notifications := make(map[string]any)
	for qualified, entry := range c.methods {
		methods[qualified] = map[string]any{
			"description": entry.spec.Description,
			"params":      entry.spec.Params,
			"returns":     entry.spec.Returns,
		}
	}
	for _, h := range c.handlers {
		for name, spec := range h.Notifications() {
			notifications[h.Name()+"."+name] = map[string]any{
				"description": spec.Description,
				"params":      spec.Params,
			}
		}
	}
	return map[string]any{"methods": methods, "notifications": notifications}
}

func (c *Core) ClientConnected(id ids.ClientId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients[id] = &ClientState{}
}

// ClientDisconnected drops the client's state and cancels any pending
// push-button transaction bound to it, matching the original's
// clientDisconnected cancelling an in-flight pairing transaction: both the
// routing entry here and the PushButtonAuth state machine itself, so a
// later button press can't complete a transaction for a client that
// already left.
func (c *Core) ClientDisconnected(id ids.ClientId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.clients, id)
	for txn, cid := range c.pushButtonBypass {
		if cid != id {
			continue
		}
		delete(c.pushButtonBypass, txn)
		if c.pushButtonCanceller == nil {
			continue
		}
		transactionId, err := ids.ParsePairingTransactionId(txn)
		if err != nil {
			continue
		}
		if err := c.pushButtonCanceller.Cancel(transactionId); err != nil {
			c.log.Warn("cancel push-button transaction on disconnect", zap.String("transactionId", txn), zap.Error(err))
		}
	}
}

// SetPushButtonCanceller wires the PushButtonAuth state machine so
// ClientDisconnected can cancel a disconnecting client's pending
// transaction, not just forget its routing entry.
func (c *Core) SetPushButtonCanceller(canceller PendingTransactionCanceller) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pushButtonCanceller = canceller
}

func (c *Core) BindPushButtonTransaction(transactionId string, client ids.ClientId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pushButtonBypass[transactionId] = client
}

// TakePreemptedPushButtonClient removes and returns the client bound to a
// pre-empted transaction, so the handler can notify it directly once, and
// doesn't leave a stale routing entry around for a transaction that will
// never finish.
func (c *Core) TakePreemptedPushButtonClient(transactionId string) (ids.ClientId, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	client, ok := c.pushButtonBypass[transactionId]
	if ok {
		delete(c.pushButtonBypass, transactionId)
	}
	return client, ok
}

// request is the wire envelope a client sends.
type request struct {
	Id     int64          `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
	Token  string         `json:"token,omitempty"`
}

// WelcomeMessage is sent once, immediately after a transport accepts a
// new connection, before any request is processed — matching
// createWelcomeMessage.
func (c *Core) WelcomeMessage(clientId ids.ClientId, authRequired bool) []byte {
	msg := map[string]any{
		"id":     0,
		"status": "success",
		"server": c.serverName,
		"params": map[string]any{
			"authenticationRequired": authRequired,
			"protocol version":       "1.0",
		},
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("encode welcome message", zap.Error(err))
		return nil
	}
	return payload
}

// Dispatch runs the request lifecycle: decode, look up method,
// authentication gate, invoke, await async reply if needed, encode
// response envelope. Params are handed to the handler without being
// checked against MethodSpec.Params. The gate checks only the method's
// AuthExempt flag and the client's Authenticated bit; the request's token
// field is not consulted.
func (c *Core) Dispatch(ctx context.Context, clientId ids.ClientId, raw []byte) []byte {
	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		return c.errorEnvelope(0, fmt.Sprintf("invalid request: %v", err))
	}

	c.mu.RLock()
	entry, found := c.methods[req.Method]
	client := c.clients[clientId]
	c.mu.RUnlock()

	if !found {
		return c.errorEnvelope(req.Id, fmt.Sprintf("unknown method %q", req.Method))
	}
	if client == nil {
		return c.errorEnvelope(req.Id, "unknown client")
	}

	if !entry.spec.AuthExempt && !client.Authenticated {
		return c.unauthorizedEnvelope(req.Id)
	}

	invocationCtx := &InvocationContext{Ctx: ctx, ClientId: clientId, Core: c}
	reply, err := entry.handler.Invoke(invocationCtx, req.Method, req.Params)
	if err != nil {
		return c.errorEnvelope(req.Id, err.Error())
	}

	result := reply.Result
	if reply.Async != nil {
		result, err = reply.Async.Wait(ctx, c.asyncTimeout)
		if err != nil {
			return c.errorEnvelope(req.Id, err.Error())
		}
	}
	return c.successEnvelope(req.Id, result)
}

func (c *Core) successEnvelope(id int64, result any) []byte {
	payload, err := json.Marshal(map[string]any{"id": id, "status": "success", "params": result})
	if err != nil {
		c.log.Error("encode success envelope", zap.Error(err))
		return nil
	}
	return payload
}

func (c *Core) errorEnvelope(id int64, message string) []byte {
	payload, _ := json.Marshal(map[string]any{"id": id, "status": "error", "error": message})
	return payload
}

func (c *Core) unauthorizedEnvelope(id int64) []byte {
	payload, _ := json.Marshal(map[string]any{"id": id, "status": "unauthorized"})
	return payload
}

// MarkAuthenticated flips a client's gate after Users.Authenticate
// succeeds.
func (c *Core) MarkAuthenticated(clientId ids.ClientId, username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.clients[clientId]; ok {
		st.Authenticated = true
		st.Username = username
	}
}

func (c *Core) SetNotificationsEnabled(clientId ids.ClientId, enabled bool) {
	c.mu.Lock()
	if st, ok := c.clients[clientId]; ok {
		st.NotificationsEnabled = enabled
	}
	notifier := c.notifier
	c.mu.Unlock()
	if n, ok := notifier.(interface {
		SetNotificationsEnabled(ids.ClientId, bool)
	}); ok {
		n.SetNotificationsEnabled(clientId, enabled)
	}
}

// InvocationContext is passed to every Handler.Invoke call so handlers
// can reach back into Core (e.g. to mark a client authenticated).
type InvocationContext struct {
	Ctx      context.Context
	ClientId ids.ClientId
	Core     *Core
}
