package stateeval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"automationd/internal/descriptor"
	"automationd/internal/devices"
	"automationd/internal/ids"
	"automationd/internal/values"
)

func TestEvaluateLeaf(t *testing.T) {
	reg := devices.NewMemory()
	dev := ids.NewDeviceId()
	state := ids.NewStateTypeId()
	reg.SetState(dev, state, values.Int(21))

	ev := Leaf(descriptor.StateDescriptor{
		DeviceId:    dev,
		StateTypeId: state,
		Operator:    values.OpGreater,
		Value:       values.Int(20),
	})
	require.True(t, ev.Evaluate(context.Background(), reg))

	ev2 := Leaf(descriptor.StateDescriptor{
		DeviceId:    dev,
		StateTypeId: state,
		Operator:    values.OpGreater,
		Value:       values.Int(25),
	})
	require.False(t, ev2.Evaluate(context.Background(), reg))
}

func TestEvaluateAndOr(t *testing.T) {
	reg := devices.NewMemory()
	dev := ids.NewDeviceId()
	s1, s2 := ids.NewStateTypeId(), ids.NewStateTypeId()
	reg.SetState(dev, s1, values.Bool(true))
	reg.SetState(dev, s2, values.Bool(false))

	leaf1 := Leaf(descriptor.StateDescriptor{DeviceId: dev, StateTypeId: s1, Operator: values.OpEquals, Value: values.Bool(true)})
	leaf2 := Leaf(descriptor.StateDescriptor{DeviceId: dev, StateTypeId: s2, Operator: values.OpEquals, Value: values.Bool(true)})

	require.False(t, And(leaf1, leaf2).Evaluate(context.Background(), reg))
	require.True(t, Or(leaf1, leaf2).Evaluate(context.Background(), reg))
}

func TestEmptyEvaluatorIsVacuouslyTrue(t *testing.T) {
	reg := devices.NewMemory()
	require.True(t, StateEvaluator{}.Evaluate(context.Background(), reg))
}

func TestRemoveDeviceCollapsesEmptyBranches(t *testing.T) {
	dev1, dev2 := ids.NewDeviceId(), ids.NewDeviceId()
	s1 := ids.NewStateTypeId()
	leaf1 := Leaf(descriptor.StateDescriptor{DeviceId: dev1, StateTypeId: s1, Operator: values.OpEquals, Value: values.Bool(true)})
	leaf2 := Leaf(descriptor.StateDescriptor{DeviceId: dev2, StateTypeId: s1, Operator: values.OpEquals, Value: values.Bool(true)})

	tree := And(leaf1, leaf2)
	pruned := tree.RemoveDevice(dev2)
	require.False(t, pruned.ContainsDevice(dev2))
	require.True(t, pruned.isLeaf())

	allGone := Leaf(descriptor.StateDescriptor{DeviceId: dev1, StateTypeId: s1}).RemoveDevice(dev1)
	require.True(t, allGone.IsEmpty())
}

func TestIsValidRejectsUnknownDevice(t *testing.T) {
	reg := devices.NewMemory()
	leaf := Leaf(descriptor.StateDescriptor{DeviceId: ids.NewDeviceId(), StateTypeId: ids.NewStateTypeId()})
	require.Error(t, leaf.IsValid(reg))
}
