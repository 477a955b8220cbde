package handlers

import (
	"fmt"

	"automationd/internal/ids"
	"automationd/internal/rpccore"
	"automationd/internal/userstore"
)

// UsersHandler exposes authentication, registration, token management,
// and push-button pairing over RPC.
type UsersHandler struct {
	store      *userstore.Store
	pushButton *userstore.PushButtonAuth
	bus        PushButtonNotifier
}

// PushButtonNotifier lets UsersHandler fire the bypass-unicast
// notification without importing the rpccore.Bus concrete type (which
// would create an import cycle back into this package).
type PushButtonNotifier interface {
	PublishPushButtonFinished(transactionId, token string, client ids.ClientId)
}

func NewUsersHandler(store *userstore.Store, pushButton *userstore.PushButtonAuth, bus PushButtonNotifier) *UsersHandler {
	return &UsersHandler{store: store, pushButton: pushButton, bus: bus}
}

func (h *UsersHandler) Name() string { return "Users" }

func (h *UsersHandler) Methods() map[string]rpccore.MethodSpec {
	return map[string]rpccore.MethodSpec{
		"CreateUser":           {Description: "Registers a new user.", Params: map[string]string{"username": "string", "password": "string"}, AuthExempt: true},
		"Authenticate":         {Description: "Authenticates with username/password and returns a token.", Params: map[string]string{"username": "string", "password": "string", "deviceName": "string"}, AuthExempt: true},
		"RemoveUser":           {Description: "Removes a user."},
		"Tokens":               {Description: "Lists the tokens of the user named by username.", Params: map[string]string{"username": "string"}},
		"RemoveToken":          {Description: "Revokes a token.", Params: map[string]string{"tokenId": "TokenId"}},
		"RequestPushButtonAuth": {Description: "Starts a push-button pairing transaction.", Params: map[string]string{"deviceName": "string"}, AuthExempt: true},
		"CancelPushButtonAuth": {Description: "Cancels a pending push-button pairing transaction.", Params: map[string]string{"transactionId": "string"}, AuthExempt: true},
	}
}

func (h *UsersHandler) Notifications() map[string]rpccore.SchemaSpec {
	return map[string]rpccore.SchemaSpec{
		"PushButtonAuthFinished": {Description: "A push-button pairing transaction completed."},
	}
}

func (h *UsersHandler) Invoke(ctx *rpccore.InvocationContext, method string, params map[string]any) (rpccore.Reply, error) {
	switch method {
	case "CreateUser":
		username, err := decodeParam[string](params, "username")
		if err != nil {
			return rpccore.Reply{}, err
		}
		password, err := decodeParam[string](params, "password")
		if err != nil {
			return rpccore.Reply{}, err
		}
		if err := h.store.CreateUser(ctx.Ctx, username, password); err != nil {
			return rpccore.Reply{}, err
		}
		return rpccore.Immediate(map[string]any{}), nil

	case "Authenticate":
		username, err := decodeParam[string](params, "username")
		if err != nil {
			return rpccore.Reply{}, err
		}
		password, err := decodeParam[string](params, "password")
		if err != nil {
			return rpccore.Reply{}, err
		}
		deviceName, _ := decodeParam[string](params, "deviceName")
		token, err := h.store.Authenticate(ctx.Ctx, username, password, deviceName)
		if err != nil {
			return rpccore.Reply{}, err
		}
		ctx.Core.MarkAuthenticated(ctx.ClientId, username)
		return rpccore.Immediate(map[string]any{"token": token}), nil

	case "RemoveUser":
		username, err := decodeParam[string](params, "username")
		if err != nil {
			return rpccore.Reply{}, err
		}
		if err := h.store.RemoveUser(ctx.Ctx, username); err != nil {
			return rpccore.Reply{}, err
		}
		return rpccore.Immediate(map[string]any{}), nil

	case "Tokens":
		username, err := decodeParam[string](params, "username")
		if err != nil {
			return rpccore.Reply{}, err
		}
		tokens, err := h.store.Tokens(ctx.Ctx, username)
		if err != nil {
			return rpccore.Reply{}, err
		}
		return rpccore.Immediate(map[string]any{"tokens": tokens}), nil

	case "RemoveToken":
		tokenIdStr, err := decodeParam[string](params, "tokenId")
		if err != nil {
			return rpccore.Reply{}, err
		}
		tokenId, err := ids.ParseTokenId(tokenIdStr)
		if err != nil {
			return rpccore.Reply{}, err
		}
		if err := h.store.RemoveToken(ctx.Ctx, tokenId); err != nil {
			return rpccore.Reply{}, err
		}
		return rpccore.Immediate(map[string]any{}), nil

	case "RequestPushButtonAuth":
		deviceName, _ := decodeParam[string](params, "deviceName")
		txn, preemptedTxn, preempted := h.pushButton.Request(deviceName)
		if preempted {
			if client, ok := ctx.Core.TakePreemptedPushButtonClient(preemptedTxn.String()); ok {
				h.bus.PublishPushButtonFinished(preemptedTxn.String(), "", client)
			}
		}
		ctx.Core.BindPushButtonTransaction(txn.String(), ctx.ClientId)
		return rpccore.Immediate(map[string]any{"transactionId": txn.String()}), nil

	case "CancelPushButtonAuth":
		txnStr, err := decodeParam[string](params, "transactionId")
		if err != nil {
			return rpccore.Reply{}, err
		}
		txn, err := ids.ParsePairingTransactionId(txnStr)
		if err != nil {
			return rpccore.Reply{}, err
		}
		if err := h.pushButton.Cancel(txn); err != nil {
			return rpccore.Reply{}, err
		}
		return rpccore.Immediate(map[string]any{}), nil

	default:
		return rpccore.Reply{}, fmt.Errorf("users: unknown method %q", method)
	}
}

// PushButtonPressed is called by the hardware-button event source (not
// over RPC) to complete the pending transaction and notify the bound
// client, bypassing the notification-enabled flag.
func (h *UsersHandler) PushButtonPressed(ctx *rpccore.InvocationContext, client ids.ClientId) error {
	txn, token, err := h.pushButton.Pressed(ctx.Ctx, h.store)
	if err != nil {
		return err
	}
	h.bus.PublishPushButtonFinished(txn.String(), token, client)
	return nil
}
