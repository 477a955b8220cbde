// Package rule defines the Rule aggregate: its state condition, time
// condition, trigger event, and entry/exit actions, plus the consistency
// invariants enforced before a rule is accepted into the store.
package rule

import (
	"fmt"

	"automationd/internal/descriptor"
	"automationd/internal/devices"
	"automationd/internal/ids"
	"automationd/internal/stateeval"
	"automationd/internal/timedesc"
)

type RuleActionParam struct {
	ParamTypeId      ids.ParamTypeId  `json:"paramTypeId"`
	Value            *string          `json:"value,omitempty"` // literal value, mutually exclusive with EventParamTypeId
	EventTypeId      ids.EventTypeId  `json:"eventTypeId,omitempty"`
	EventParamTypeId *ids.ParamTypeId `json:"eventParamTypeId,omitempty"` // when set, value is taken from the triggering event's matching param
}

type RuleAction struct {
	ActionTypeId ids.ActionTypeId  `json:"actionTypeId"`
	DeviceId     ids.DeviceId      `json:"deviceId"`
	Params       []RuleActionParam `json:"params,omitempty"`
}

// IsEventBased reports whether any param of this action is bound to the
// triggering event rather than a literal value.
func (a RuleAction) IsEventBased() bool {
	for _, p := range a.Params {
		if p.EventParamTypeId != nil {
			return true
		}
	}
	return false
}

type EventDescriptor struct {
	EventTypeId      ids.EventTypeId              `json:"eventTypeId"`
	DeviceId         ids.DeviceId                 `json:"deviceId"`
	ParamDescriptors []descriptor.ParamDescriptor `json:"paramDescriptors,omitempty"`
}

type Rule struct {
	Id               ids.RuleId               `json:"id"`
	Name             string                   `json:"name"`
	Enabled          bool                     `json:"enabled"`
	Executable       bool                     `json:"executable"`
	EventDescriptors []EventDescriptor        `json:"eventDescriptors,omitempty"`
	StateEvaluator   stateeval.StateEvaluator `json:"stateEvaluator,omitempty"`
	TimeDescriptor   timedesc.TimeDescriptor  `json:"timeDescriptor,omitempty"`
	Actions          []RuleAction             `json:"ruleActions,omitempty"`
	ExitActions      []RuleAction             `json:"ruleExitActions,omitempty"`

	// StatesActive, TimeActive, and Active mirror the engine's cached
	// activation bits; they are not authoritative input, only the last
	// computed output, and are not required to persist accurately.
	StatesActive bool `json:"-"`
	TimeActive   bool `json:"-"`
	Active       bool `json:"-"`
}

// IsConsistent enforces the structural invariants every stored rule must
// satisfy: it must have a name, at least one of {event descriptors, state
// evaluator, time descriptor} to ever activate, exit actions are only
// meaningful alongside a state evaluator or a calendar-only time
// descriptor (since an event-triggered rule, or one fed by TimeEventItem
// pulses, has no "became false" transition to dispatch them on), and
// every action referencing the triggering event must only do so when the
// rule is itself event-triggered.
func (r Rule) IsConsistent() error {
	if r.Name == "" {
		return fmt.Errorf("rule: name must not be empty")
	}
	hasEvents := len(r.EventDescriptors) > 0
	hasState := !r.StateEvaluator.IsEmpty()
	hasTime := !r.TimeDescriptor.IsEmpty()
	firesOneShot := hasEvents || len(r.TimeDescriptor.TimeEventItems) > 0
	if !hasEvents && !hasState && !hasTime {
		return fmt.Errorf("rule: must have at least one event descriptor, state evaluator, or time descriptor")
	}
	if len(r.ExitActions) > 0 && firesOneShot {
		return fmt.Errorf("rule: exit actions are unreachable on an event-triggered or time-event rule")
	}
	if len(r.ExitActions) > 0 && !hasState && !hasTime {
		return fmt.Errorf("rule: exit actions require a state evaluator or time descriptor")
	}
	if !hasEvents {
		for _, a := range r.Actions {
			if a.IsEventBased() {
				return fmt.Errorf("rule: action %s references the triggering event but rule has no event descriptors", a.ActionTypeId)
			}
		}
	}
	return nil
}

// IsValidAgainst additionally validates every device/event/action/state
// reference against the live device registry.
func (r Rule) IsValidAgainst(reg devices.DeviceRegistry) error {
	if err := r.IsConsistent(); err != nil {
		return err
	}
	for _, ed := range r.EventDescriptors {
		if !reg.DeviceExists(ed.DeviceId) {
			return fmt.Errorf("rule: device %s does not exist", ed.DeviceId)
		}
		if !reg.EventTypeExists(ed.DeviceId, ed.EventTypeId) {
			return fmt.Errorf("rule: event type %s not valid for device %s", ed.EventTypeId, ed.DeviceId)
		}
	}
	if err := r.StateEvaluator.IsValid(reg); err != nil {
		return err
	}
	for _, a := range append(append([]RuleAction{}, r.Actions...), r.ExitActions...) {
		if !reg.DeviceExists(a.DeviceId) {
			return fmt.Errorf("rule: device %s does not exist", a.DeviceId)
		}
		if !reg.ActionTypeExists(a.DeviceId, a.ActionTypeId) {
			return fmt.Errorf("rule: action type %s not valid for device %s", a.ActionTypeId, a.DeviceId)
		}
	}
	return nil
}

// ContainsDevice reports whether any part of the rule references device.
func (r Rule) ContainsDevice(device ids.DeviceId) bool {
	for _, ed := range r.EventDescriptors {
		if ed.DeviceId == device {
			return true
		}
	}
	if r.StateEvaluator.ContainsDevice(device) {
		return true
	}
	for _, a := range r.Actions {
		if a.DeviceId == device {
			return true
		}
	}
	for _, a := range r.ExitActions {
		if a.DeviceId == device {
			return true
		}
	}
	return false
}

// WithoutDevice returns a copy of the rule with every reference to device
// pruned: matching event descriptors and actions removed, and the state
// evaluator pruned. Every other field — including Enabled, Executable,
// and TimeDescriptor — is copied unchanged.
func (r Rule) WithoutDevice(device ids.DeviceId) Rule {
	pruned := r
	pruned.EventDescriptors = nil
	for _, ed := range r.EventDescriptors {
		if ed.DeviceId != device {
			pruned.EventDescriptors = append(pruned.EventDescriptors, ed)
		}
	}
	pruned.StateEvaluator = r.StateEvaluator.RemoveDevice(device)
	pruned.Actions = nil
	for _, a := range r.Actions {
		if a.DeviceId != device {
			pruned.Actions = append(pruned.Actions, a)
		}
	}
	pruned.ExitActions = nil
	for _, a := range r.ExitActions {
		if a.DeviceId != device {
			pruned.ExitActions = append(pruned.ExitActions, a)
		}
	}
	return pruned
}
