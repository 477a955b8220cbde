// Package handlers implements the concrete RPC namespaces: JSONRPC
// (introspection/handshake), Rules (rule CRUD), and Users (authentication
// and pairing), each declaring its method table explicitly rather than
// through reflection, matching jsonrpcserver.cpp's setup().
package handlers

import (
	"fmt"

	"automationd/internal/rpccore"
)

// JSONRPCHandler implements the bootstrap namespace every client needs
// before and immediately after the welcome message: Hello and
// Introspect. Both are authentication-exempt.
type JSONRPCHandler struct {
	core *rpccore.Core
}

func NewJSONRPCHandler(core *rpccore.Core) *JSONRPCHandler {
	return &JSONRPCHandler{core: core}
}

func (h *JSONRPCHandler) Name() string { return "JSONRPC" }

func (h *JSONRPCHandler) Methods() map[string]rpccore.MethodSpec {
	return map[string]rpccore.MethodSpec{
		"Hello": {
			Description: "Returns {\"message\": \"welcome\"}; it does not repeat the connection's welcome message.",
			AuthExempt:  true,
		},
		"Introspect": {
			Description: "Returns the full methods/notifications document.",
			AuthExempt:  true,
		},
		"Version": {
			Description: "Returns the server's protocol version.",
			AuthExempt:  true,
		},
	}
}

func (h *JSONRPCHandler) Notifications() map[string]rpccore.SchemaSpec { return nil }

func (h *JSONRPCHandler) Invoke(ctx *rpccore.InvocationContext, method string, _ map[string]any) (rpccore.Reply, error) {
	switch method {
	case "Hello":
		return rpccore.Immediate(map[string]any{"message": "welcome"}), nil
	case "Introspect":
		return rpccore.Immediate(h.core.IntrospectionDocument()), nil
	case "Version":
		return rpccore.Immediate(map[string]any{"protocol version": "1.0"}), nil
	default:
		return rpccore.Reply{}, fmt.Errorf("jsonrpc: unknown method %q", method)
	}
}
