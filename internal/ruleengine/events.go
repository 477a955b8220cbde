package ruleengine

import "automationd/internal/ids"

// EventKind enumerates the notifications the RPC core subscribes to in
// order to push Rules.* notifications out to clients.
type EventKind string

const (
	EventRuleAdded               EventKind = "RuleAdded"
	EventRuleRemoved             EventKind = "RuleRemoved"
	EventRuleConfigurationChanged EventKind = "RuleConfigurationChanged"
	EventRuleActiveChanged       EventKind = "RuleActiveChanged"
)

type Event struct {
	Kind   EventKind
	RuleId ids.RuleId
	Active bool
}

// EventBus is the narrow publish interface the engine depends on; the RPC
// core's notifier implements it to turn engine activity into client
// notifications without the engine importing the RPC package.
type EventBus interface {
	Publish(Event)
}

// NullBus discards every event; used by tests that don't care about
// notification delivery.
type NullBus struct{}

func (NullBus) Publish(Event) {}
