// Package devices defines the DeviceRegistry boundary the rule engine and
// state evaluator read against, plus a reference in-memory implementation
// and an MQTT-backed bridge.
package devices

import (
	"context"

	"automationd/internal/ids"
	"automationd/internal/ruleerr"
	"automationd/internal/values"
)

// DeviceRegistry is the collaborator the rule engine consults for device
// existence, current state, and type catalog membership, and through
// which it dispatches actions. Implementations must be safe for
// concurrent use; the rule engine itself is single-threaded but the
// registry may be shared with HTTP/API readers.
type DeviceRegistry interface {
	DeviceExists(id ids.DeviceId) bool
	StateValue(ctx context.Context, device ids.DeviceId, state ids.StateTypeId) (values.Value, bool)
	EventTypeExists(device ids.DeviceId, event ids.EventTypeId) bool
	ActionTypeExists(device ids.DeviceId, action ids.ActionTypeId) bool
	StateTypeExists(device ids.DeviceId, state ids.StateTypeId) bool
	Dispatch(ctx context.Context, device ids.DeviceId, action ids.ActionTypeId, params map[ids.ParamTypeId]values.Value) error
}

// Memory is a reference DeviceRegistry used by tests and by deployments
// with no external device plugin wired in.
type Memory struct {
	devices map[ids.DeviceId]*memDevice
}

type memDevice struct {
	states  map[ids.StateTypeId]values.Value
	events  map[ids.EventTypeId]struct{}
	actions map[ids.ActionTypeId]struct{}
}

func NewMemory() *Memory {
	return &Memory{devices: make(map[ids.DeviceId]*memDevice)}
}

func (m *Memory) AddDevice(id ids.DeviceId) {
	if _, ok := m.devices[id]; !ok {
		m.devices[id] = &memDevice{
			states:  make(map[ids.StateTypeId]values.Value),
			events:  make(map[ids.EventTypeId]struct{}),
			actions: make(map[ids.ActionTypeId]struct{}),
		}
	}
}

func (m *Memory) RegisterEventType(device ids.DeviceId, event ids.EventTypeId) {
	m.AddDevice(device)
	m.devices[device].events[event] = struct{}{}
}

func (m *Memory) RegisterActionType(device ids.DeviceId, action ids.ActionTypeId) {
	m.AddDevice(device)
	m.devices[device].actions[action] = struct{}{}
}

func (m *Memory) SetState(device ids.DeviceId, state ids.StateTypeId, v values.Value) {
	m.AddDevice(device)
	m.devices[device].states[state] = v
}

func (m *Memory) DeviceExists(id ids.DeviceId) bool {
	_, ok := m.devices[id]
	return ok
}

func (m *Memory) StateValue(_ context.Context, device ids.DeviceId, state ids.StateTypeId) (values.Value, bool) {
	d, ok := m.devices[device]
	if !ok {
		return values.Value{}, false
	}
	v, ok := d.states[state]
	return v, ok
}

func (m *Memory) EventTypeExists(device ids.DeviceId, event ids.EventTypeId) bool {
	d, ok := m.devices[device]
	if !ok {
		return false
	}
	_, ok = d.events[event]
	return ok
}

func (m *Memory) ActionTypeExists(device ids.DeviceId, action ids.ActionTypeId) bool {
	d, ok := m.devices[device]
	if !ok {
		return false
	}
	_, ok = d.actions[action]
	return ok
}

func (m *Memory) StateTypeExists(device ids.DeviceId, state ids.StateTypeId) bool {
	d, ok := m.devices[device]
	if !ok {
		return false
	}
	_, ok = d.states[state]
	return ok
}

func (m *Memory) Dispatch(_ context.Context, device ids.DeviceId, action ids.ActionTypeId, _ map[ids.ParamTypeId]values.Value) error {
	d, ok := m.devices[device]
	if !ok {
		return ruleerr.DeviceErrorDeviceNotFound
	}
	if _, ok := d.actions[action]; !ok {
		return ruleerr.DeviceErrorActionTypeNotFound
	}
	return nil
}
