// Package descriptor holds the two leaf shapes matched by the rule
// engine: ParamDescriptor (action/event parameter comparisons) and
// StateDescriptor (device state comparisons).
package descriptor

import (
	"automationd/internal/ids"
	"automationd/internal/values"
)

type ParamDescriptor struct {
	ParamTypeId ids.ParamTypeId `json:"paramTypeId"`
	Operator    values.Operator `json:"operator"`
	Value       values.Value    `json:"value"`
}

type StateDescriptor struct {
	StateTypeId ids.StateTypeId `json:"stateTypeId"`
	DeviceId    ids.DeviceId    `json:"deviceId"`
	Operator    values.Operator `json:"operator"`
	Value       values.Value    `json:"value"`
}

// Matches evaluates whether the candidate value satisfies this
// descriptor's operator against its configured value.
func (d StateDescriptor) Matches(candidate values.Value) (bool, error) {
	return values.Compare(candidate, d.Value, d.Operator)
}

func (d ParamDescriptor) Matches(candidate values.Value) (bool, error) {
	return values.Compare(candidate, d.Value, d.Operator)
}
