// Package ids defines the distinct identifier types used throughout the
// automation server. Each kind wraps a uuid.UUID but is a separate Go type,
// so a RuleId can never be passed where a DeviceId is expected without an
// explicit conversion.
package ids

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type RuleId uuid.UUID
type DeviceId uuid.UUID
type EventTypeId uuid.UUID
type ActionTypeId uuid.UUID
type StateTypeId uuid.UUID
type ParamTypeId uuid.UUID
type TokenId uuid.UUID
type PairingTransactionId uuid.UUID
type ClientId uuid.UUID

func NewRuleId() RuleId                             { return RuleId(uuid.New()) }
func NewDeviceId() DeviceId                         { return DeviceId(uuid.New()) }
func NewEventTypeId() EventTypeId                   { return EventTypeId(uuid.New()) }
func NewActionTypeId() ActionTypeId                 { return ActionTypeId(uuid.New()) }
func NewStateTypeId() StateTypeId                   { return StateTypeId(uuid.New()) }
func NewParamTypeId() ParamTypeId                   { return ParamTypeId(uuid.New()) }
func NewTokenId() TokenId                           { return TokenId(uuid.New()) }
func NewPairingTransactionId() PairingTransactionId { return PairingTransactionId(uuid.New()) }
func NewClientId() ClientId                         { return ClientId(uuid.New()) }

func ParseRuleId(s string) (RuleId, error) {
	u, err := uuid.Parse(s)
	return RuleId(u), err
}

func ParseDeviceId(s string) (DeviceId, error) {
	u, err := uuid.Parse(s)
	return DeviceId(u), err
}

func ParseEventTypeId(s string) (EventTypeId, error) {
	u, err := uuid.Parse(s)
	return EventTypeId(u), err
}

func ParseActionTypeId(s string) (ActionTypeId, error) {
	u, err := uuid.Parse(s)
	return ActionTypeId(u), err
}

func ParseStateTypeId(s string) (StateTypeId, error) {
	u, err := uuid.Parse(s)
	return StateTypeId(u), err
}

func ParseParamTypeId(s string) (ParamTypeId, error) {
	u, err := uuid.Parse(s)
	return ParamTypeId(u), err
}

func ParseTokenId(s string) (TokenId, error) {
	u, err := uuid.Parse(s)
	return TokenId(u), err
}

func ParsePairingTransactionId(s string) (PairingTransactionId, error) {
	u, err := uuid.Parse(s)
	return PairingTransactionId(u), err
}

func (id RuleId) String() string                 { return uuid.UUID(id).String() }
func (id DeviceId) String() string                { return uuid.UUID(id).String() }
func (id EventTypeId) String() string             { return uuid.UUID(id).String() }
func (id ActionTypeId) String() string            { return uuid.UUID(id).String() }
func (id StateTypeId) String() string             { return uuid.UUID(id).String() }
func (id ParamTypeId) String() string             { return uuid.UUID(id).String() }
func (id TokenId) String() string                 { return uuid.UUID(id).String() }
func (id PairingTransactionId) String() string    { return uuid.UUID(id).String() }
func (id ClientId) String() string                { return uuid.UUID(id).String() }

func (id RuleId) IsNull() bool              { return uuid.UUID(id) == uuid.Nil }
func (id DeviceId) IsNull() bool            { return uuid.UUID(id) == uuid.Nil }
func (id EventTypeId) IsNull() bool         { return uuid.UUID(id) == uuid.Nil }
func (id ActionTypeId) IsNull() bool        { return uuid.UUID(id) == uuid.Nil }
func (id StateTypeId) IsNull() bool         { return uuid.UUID(id) == uuid.Nil }
func (id ParamTypeId) IsNull() bool         { return uuid.UUID(id) == uuid.Nil }
func (id TokenId) IsNull() bool             { return uuid.UUID(id) == uuid.Nil }
func (id PairingTransactionId) IsNull() bool { return uuid.UUID(id) == uuid.Nil }

func (id RuleId) MarshalJSON() ([]byte, error) { return json.Marshal(id.String()) }
func (id *RuleId) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*id = RuleId{}
		return nil
	}
	parsed, err := ParseRuleId(s)
	if err != nil {
		return fmt.Errorf("ids: invalid RuleId %q: %w", s, err)
	}
	*id = parsed
	return nil
}

func (id DeviceId) MarshalJSON() ([]byte, error) { return json.Marshal(id.String()) }
func (id *DeviceId) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*id = DeviceId{}
		return nil
	}
	parsed, err := ParseDeviceId(s)
	if err != nil {
		return fmt.Errorf("ids: invalid DeviceId %q: %w", s, err)
	}
	*id = parsed
	return nil
}

func (id EventTypeId) MarshalJSON() ([]byte, error) { return json.Marshal(id.String()) }
func (id *EventTypeId) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*id = EventTypeId{}
		return nil
	}
	parsed, err := ParseEventTypeId(s)
	if err != nil {
		return fmt.Errorf("ids: invalid EventTypeId %q: %w", s, err)
	}
	*id = parsed
	return nil
}

func (id ActionTypeId) MarshalJSON() ([]byte, error) { return json.Marshal(id.String()) }
func (id *ActionTypeId) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*id = ActionTypeId{}
		return nil
	}
	parsed, err := ParseActionTypeId(s)
	if err != nil {
		return fmt.Errorf("ids: invalid ActionTypeId %q: %w", s, err)
	}
	*id = parsed
	return nil
}

func (id StateTypeId) MarshalJSON() ([]byte, error) { return json.Marshal(id.String()) }
func (id *StateTypeId) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*id = StateTypeId{}
		return nil
	}
	parsed, err := ParseStateTypeId(s)
	if err != nil {
		return fmt.Errorf("ids: invalid StateTypeId %q: %w", s, err)
	}
	*id = parsed
	return nil
}

func (id ParamTypeId) MarshalJSON() ([]byte, error) { return json.Marshal(id.String()) }
func (id *ParamTypeId) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*id = ParamTypeId{}
		return nil
	}
	parsed, err := ParseParamTypeId(s)
	if err != nil {
		return fmt.Errorf("ids: invalid ParamTypeId %q: %w", s, err)
	}
	*id = parsed
	return nil
}
