// Package stateeval implements the boolean StateEvaluator tree: leaves are
// StateDescriptors comparing a device's current state to a configured
// value, and non-leaves combine child evaluators with AND/OR.
package stateeval

import (
	"context"
	"fmt"

	"automationd/internal/descriptor"
	"automationd/internal/devices"
	"automationd/internal/ids"
)

type BoolOperator string

const (
	OperatorAnd BoolOperator = "AND"
	OperatorOr  BoolOperator = "OR"
)

// StateEvaluator is either a leaf (StateDescriptor set, Children empty) or
// an interior node (Operator set, Children non-empty). A zero-value
// StateEvaluator with no descriptor and no children is the "always true"
// empty evaluator used by rules with no state condition.
type StateEvaluator struct {
	StateDescriptor *descriptor.StateDescriptor `json:"stateDescriptor,omitempty"`
	Operator        BoolOperator                `json:"operator,omitempty"`
	Children        []StateEvaluator            `json:"children,omitempty"`
}

func Leaf(d descriptor.StateDescriptor) StateEvaluator {
	return StateEvaluator{StateDescriptor: &d}
}

func And(children ...StateEvaluator) StateEvaluator {
	return StateEvaluator{Operator: OperatorAnd, Children: children}
}

func Or(children ...StateEvaluator) StateEvaluator {
	return StateEvaluator{Operator: OperatorOr, Children: children}
}

func (e StateEvaluator) isLeaf() bool { return e.StateDescriptor != nil }

// IsEmpty reports whether this is the no-condition evaluator.
func (e StateEvaluator) IsEmpty() bool {
	return e.StateDescriptor == nil && len(e.Children) == 0
}

// Evaluate reads current device state through reg and reduces the tree. An
// empty evaluator is vacuously true, matching rules that have no state
// condition (event-triggered or time-triggered rules).
func (e StateEvaluator) Evaluate(ctx context.Context, reg devices.DeviceRegistry) bool {
	if e.IsEmpty() {
		return true
	}
	if e.isLeaf() {
		d := *e.StateDescriptor
		v, ok := reg.StateValue(ctx, d.DeviceId, d.StateTypeId)
		if !ok {
			return false
		}
		match, err := d.Matches(v)
		if err != nil {
			return false
		}
		return match
	}
	switch e.Operator {
	case OperatorAnd:
		for _, c := range e.Children {
			if !c.Evaluate(ctx, reg) {
				return false
			}
		}
		return true
	case OperatorOr:
		for _, c := range e.Children {
			if c.Evaluate(ctx, reg) {
				return true
			}
		}
		return len(e.Children) == 0
	default:
		return false
	}
}

// ContainsDevice reports whether any leaf in the tree references device.
func (e StateEvaluator) ContainsDevice(device ids.DeviceId) bool {
	if e.isLeaf() {
		return e.StateDescriptor.DeviceId == device
	}
	for _, c := range e.Children {
		if c.ContainsDevice(device) {
			return true
		}
	}
	return false
}

// ContainsState reports whether any leaf references the given device and
// state type.
func (e StateEvaluator) ContainsState(device ids.DeviceId, state ids.StateTypeId) bool {
	if e.isLeaf() {
		return e.StateDescriptor.DeviceId == device && e.StateDescriptor.StateTypeId == state
	}
	for _, c := range e.Children {
		if c.ContainsState(device, state) {
			return true
		}
	}
	return false
}

// RemoveDevice returns a copy of the tree with every leaf referencing
// device pruned out. Interior nodes left with zero children collapse to
// the empty evaluator rather than an operator with no operands, and a node
// left with a single child collapses to that child.
func (e StateEvaluator) RemoveDevice(device ids.DeviceId) StateEvaluator {
	if e.isLeaf() {
		if e.StateDescriptor.DeviceId == device {
			return StateEvaluator{}
		}
		return e
	}
	pruned := make([]StateEvaluator, 0, len(e.Children))
	for _, c := range e.Children {
		np := c.RemoveDevice(device)
		if !np.IsEmpty() {
			pruned = append(pruned, np)
		}
	}
	if len(pruned) == 0 {
		return StateEvaluator{}
	}
	if len(pruned) == 1 {
		return pruned[0]
	}
	return StateEvaluator{Operator: e.Operator, Children: pruned}
}

// IsValid checks that every leaf refers to a device/state pair that
// actually exists in reg, and that every interior node's operator is
// recognized.
func (e StateEvaluator) IsValid(reg devices.DeviceRegistry) error {
	if e.IsEmpty() {
		return nil
	}
	if e.isLeaf() {
		d := *e.StateDescriptor
		if !reg.DeviceExists(d.DeviceId) {
			return fmt.Errorf("stateeval: device %s does not exist", d.DeviceId)
		}
		if !reg.StateTypeExists(d.DeviceId, d.StateTypeId) {
			return fmt.Errorf("stateeval: state type %s not valid for device %s", d.StateTypeId, d.DeviceId)
		}
		return nil
	}
	if e.Operator != OperatorAnd && e.Operator != OperatorOr {
		return fmt.Errorf("stateeval: unknown operator %q", e.Operator)
	}
	for _, c := range e.Children {
		if err := c.IsValid(reg); err != nil {
			return err
		}
	}
	return nil
}
