package ruleengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"automationd/internal/descriptor"
	"automationd/internal/devices"
	"automationd/internal/ids"
	"automationd/internal/rule"
	"automationd/internal/rulestore"
	"automationd/internal/stateeval"
	"automationd/internal/values"
)

type fakeDispatcher struct {
	calls []ids.ActionTypeId
}

func (f *fakeDispatcher) Dispatch(_ context.Context, _ ids.DeviceId, action ids.ActionTypeId, _ map[ids.ParamTypeId]values.Value) error {
	f.calls = append(f.calls, action)
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *devices.Memory, *fakeDispatcher) {
	t.Helper()
	store, err := rulestore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	reg := devices.NewMemory()
	dispatcher := &fakeDispatcher{}
	e := New(store, reg, dispatcher, NullBus{}, zap.NewNop())
	return e, reg, dispatcher
}

func TestAddRuleRejectsUnknownDevice(t *testing.T) {
	e, _, _ := newTestEngine(t)
	_, err := e.AddRule(context.Background(), rule.Rule{
		Name:             "bad",
		EventDescriptors: []rule.EventDescriptor{{DeviceId: ids.NewDeviceId(), EventTypeId: ids.NewEventTypeId()}},
	})
	require.Error(t, err)
}

func TestAddAndFindRule(t *testing.T) {
	e, reg, _ := newTestEngine(t)
	dev := ids.NewDeviceId()
	evType := ids.NewEventTypeId()
	actionType := ids.NewActionTypeId()
	reg.AddDevice(dev)
	reg.RegisterEventType(dev, evType)
	reg.RegisterActionType(dev, actionType)

	id, err := e.AddRule(context.Background(), rule.Rule{
		Name:             "turn on light",
		EventDescriptors: []rule.EventDescriptor{{DeviceId: dev, EventTypeId: evType}},
		Actions:          []rule.RuleAction{{DeviceId: dev, ActionTypeId: actionType}},
	})
	require.NoError(t, err)

	found, ok := e.FindRule(id)
	require.True(t, ok)
	require.Equal(t, "turn on light", found.Name)
}

func TestEditRuleLeavesStoreUntouchedOnFailure(t *testing.T) {
	e, reg, _ := newTestEngine(t)
	dev := ids.NewDeviceId()
	evType := ids.NewEventTypeId()
	reg.AddDevice(dev)
	reg.RegisterEventType(dev, evType)

	id, err := e.AddRule(context.Background(), rule.Rule{
		Name:             "original",
		EventDescriptors: []rule.EventDescriptor{{DeviceId: dev, EventTypeId: evType}},
	})
	require.NoError(t, err)

	before, _ := e.store.LoadAll(context.Background())

	broken := rule.Rule{Id: id, Name: "original", EventDescriptors: []rule.EventDescriptor{{DeviceId: ids.NewDeviceId(), EventTypeId: evType}}}
	err = e.EditRule(context.Background(), broken)
	require.Error(t, err)

	after, _ := e.store.LoadAll(context.Background())
	require.Equal(t, before, after)

	found, _ := e.FindRule(id)
	require.Equal(t, dev, found.EventDescriptors[0].DeviceId)
}

func TestEvaluateEventFiresActionsOnMatch(t *testing.T) {
	e, reg, dispatcher := newTestEngine(t)
	dev := ids.NewDeviceId()
	evType := ids.NewEventTypeId()
	actionType := ids.NewActionTypeId()
	reg.AddDevice(dev)
	reg.RegisterEventType(dev, evType)
	reg.RegisterActionType(dev, actionType)

	_, err := e.AddRule(context.Background(), rule.Rule{
		Name:             "on motion",
		Enabled:          true,
		EventDescriptors: []rule.EventDescriptor{{DeviceId: dev, EventTypeId: evType}},
		Actions:          []rule.RuleAction{{DeviceId: dev, ActionTypeId: actionType}},
	})
	require.NoError(t, err)

	e.EvaluateEvent(context.Background(), DeviceEvent{DeviceId: dev, EventTypeId: evType})
	require.Len(t, dispatcher.calls, 1)
	require.Equal(t, actionType, dispatcher.calls[0])
}

func TestEvaluateEventSkipsDisabledRules(t *testing.T) {
	e, reg, dispatcher := newTestEngine(t)
	dev := ids.NewDeviceId()
	evType := ids.NewEventTypeId()
	actionType := ids.NewActionTypeId()
	reg.AddDevice(dev)
	reg.RegisterEventType(dev, evType)
	reg.RegisterActionType(dev, actionType)

	id, err := e.AddRule(context.Background(), rule.Rule{
		Name:             "on motion",
		Enabled:          false,
		EventDescriptors: []rule.EventDescriptor{{DeviceId: dev, EventTypeId: evType}},
		Actions:          []rule.RuleAction{{DeviceId: dev, ActionTypeId: actionType}},
	})
	require.NoError(t, err)
	require.NoError(t, e.DisableRule(context.Background(), id))

	e.EvaluateEvent(context.Background(), DeviceEvent{DeviceId: dev, EventTypeId: evType})
	require.Empty(t, dispatcher.calls)
}

func TestRemoveRuleDeletesFromStoreAndOrder(t *testing.T) {
	e, reg, _ := newTestEngine(t)
	dev := ids.NewDeviceId()
	stateType := ids.NewStateTypeId()
	reg.AddDevice(dev)
	reg.SetState(dev, stateType, values.Bool(true))

	id, err := e.AddRule(context.Background(), rule.Rule{
		Name:           "state rule",
		StateEvaluator: stateeval.Leaf(descriptor.StateDescriptor{DeviceId: dev, StateTypeId: stateType, Operator: values.OpEquals, Value: values.Bool(true)}),
	})
	require.NoError(t, err)

	require.NoError(t, e.RemoveRule(context.Background(), id))
	_, ok := e.FindRule(id)
	require.False(t, ok)
	require.Empty(t, e.Rules())

	persisted, err := e.store.LoadAll(context.Background())
	require.NoError(t, err)
	require.Empty(t, persisted)
}

func TestPruneDevicePreservesOtherRuleFields(t *testing.T) {
	e, reg, _ := newTestEngine(t)
	dev1, dev2 := ids.NewDeviceId(), ids.NewDeviceId()
	evType := ids.NewEventTypeId()
	reg.AddDevice(dev1)
	reg.AddDevice(dev2)
	reg.RegisterEventType(dev1, evType)
	reg.RegisterEventType(dev2, evType)

	id, err := e.AddRule(context.Background(), rule.Rule{
		Name:    "two devices",
		Enabled: true,
		EventDescriptors: []rule.EventDescriptor{
			{DeviceId: dev1, EventTypeId: evType},
			{DeviceId: dev2, EventTypeId: evType},
		},
	})
	require.NoError(t, err)

	require.NoError(t, e.PruneDevice(context.Background(), dev2))
	found, _ := e.FindRule(id)
	require.True(t, found.Enabled)
	require.Len(t, found.EventDescriptors, 1)
	require.Equal(t, dev1, found.EventDescriptors[0].DeviceId)
}
