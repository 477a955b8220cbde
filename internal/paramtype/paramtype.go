// Package paramtype describes the metadata catalog entries for action,
// event, and state parameters: name, type, bounds, and allowed values.
package paramtype

import (
	"fmt"

	"automationd/internal/ids"
	"automationd/internal/values"
)

type ParamType struct {
	Id             ids.ParamTypeId
	Name           string
	DisplayName    string
	Index          int
	Type           values.Kind
	DefaultValue   *values.Value
	Min            *values.Value
	Max            *values.Value
	AllowedValues  []values.Value
	InputType      string
	Unit           string
	ReadOnly       bool
}

// Validate checks that v satisfies this ParamType's kind, bounds, and
// allowed-value set. A kind mismatch or out-of-range value is reported
// as a plain error; callers map it onto ruleerr.RuleErrorInvalidParameter.
func (pt ParamType) Validate(v values.Value) error {
	if v.Kind() != pt.Type {
		return fmt.Errorf("paramtype: %s expects kind %v, got %v", pt.Name, pt.Type, v.Kind())
	}
	if pt.Min != nil {
		ok, err := values.Compare(v, *pt.Min, values.OpGreaterEqual)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("paramtype: %s value below minimum", pt.Name)
		}
	}
	if pt.Max != nil {
		ok, err := values.Compare(v, *pt.Max, values.OpLessEqual)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("paramtype: %s value above maximum", pt.Name)
		}
	}
	if len(pt.AllowedValues) > 0 {
		found := false
		for _, allowed := range pt.AllowedValues {
			if ok, err := values.Compare(v, allowed, values.OpEquals); err == nil && ok {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("paramtype: %s value not in allowed set", pt.Name)
		}
	}
	return nil
}
