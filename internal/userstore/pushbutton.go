package userstore

import (
	"context"
	"sync"

	"automationd/internal/ids"
	"automationd/internal/ruleerr"
)

type PushButtonState int

const (
	PushButtonIdle PushButtonState = iota
	PushButtonPending
	PushButtonFinished
)

// PushButtonAuth tracks the single in-flight pairing transaction. Only
// one transaction may be pending at a time; a new request pre-empts and
// replaces any prior pending transaction, matching
// UserManager::requestPushButtonAuth's "only one at a time" behavior.
type PushButtonAuth struct {
	mu            sync.Mutex
	state         PushButtonState
	transactionId ids.PairingTransactionId
	deviceName    string
}

func NewPushButtonAuth() *PushButtonAuth {
	return &PushButtonAuth{state: PushButtonIdle}
}

// Request starts a pairing transaction, returning its id. If a
// transaction was already Pending, it is pre-empted: preempted is its id
// and ok is true, so the caller can notify the pre-empted requester with
// a failure, matching UserManager::requestPushButtonAuth finishing the
// first transaction with success=false before starting the second.
func (p *PushButtonAuth) Request(deviceName string) (txn ids.PairingTransactionId, preempted ids.PairingTransactionId, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == PushButtonPending {
		preempted, ok = p.transactionId, true
	}
	p.transactionId = ids.NewPairingTransactionId()
	p.deviceName = deviceName
	p.state = PushButtonPending
	return p.transactionId, preempted, ok
}

// Cancel aborts the named transaction if it is still the pending one.
func (p *PushButtonAuth) Cancel(transactionId ids.PairingTransactionId) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != PushButtonPending || p.transactionId != transactionId {
		return ruleerr.UserErrorPushButtonAuthNotAvailable
	}
	p.state = PushButtonIdle
	return nil
}

// Pressed completes the pending transaction (if any) by minting a token
// for it. The device name recorded at Request time becomes the token's
// device name; there is no username requirement for push-button pairing,
// matching the original's empty-username token issuance.
func (p *PushButtonAuth) Pressed(ctx context.Context, store *Store) (ids.PairingTransactionId, string, error) {
	p.mu.Lock()
	if p.state != PushButtonPending {
		p.mu.Unlock()
		return ids.PairingTransactionId{}, "", ruleerr.UserErrorPushButtonAuthNotAvailable
	}
	transactionId := p.transactionId
	deviceName := p.deviceName
	p.state = PushButtonFinished
	p.mu.Unlock()

	token, err := store.issueToken(ctx, "", deviceName)
	if err != nil {
		return ids.PairingTransactionId{}, "", err
	}
	return transactionId, token, nil
}

func (p *PushButtonAuth) State() PushButtonState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}
