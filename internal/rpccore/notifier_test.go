package rpccore

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"automationd/internal/ids"
	"automationd/internal/ruleengine"
)

func newTestRedisSequencer(t *testing.T) *RedisSequencer {
	t.Helper()
	srv, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	return NewRedisSequencer(client)
}

func TestRedisSequencerAssignsIncreasingIds(t *testing.T) {
	seq := newTestRedisSequencer(t)

	first, err := seq.Next(context.Background())
	require.NoError(t, err)
	second, err := seq.Next(context.Background())
	require.NoError(t, err)

	require.Equal(t, int64(1), first)
	require.Equal(t, int64(2), second)
}

type fakeBusNotifier struct {
	unicast   []ids.ClientId
	broadcast [][]byte
	enabledOnly []bool
}

func (f *fakeBusNotifier) Unicast(client ids.ClientId, payload []byte) {
	f.unicast = append(f.unicast, client)
}
func (f *fakeBusNotifier) Broadcast(payload []byte, enabledOnly bool) {
	f.broadcast = append(f.broadcast, payload)
	f.enabledOnly = append(f.enabledOnly, enabledOnly)
}

func TestBusPublishBroadcastsRuleEvent(t *testing.T) {
	notifier := &fakeBusNotifier{}
	core := NewCore("test-server", notifier, zap.NewNop())
	seq := newTestRedisSequencer(t)
	bus := NewBus(core, seq, zap.NewNop())

	ruleId := ids.NewRuleId()
	bus.Publish(ruleengine.Event{Kind: ruleengine.EventRuleActiveChanged, RuleId: ruleId, Active: true})

	require.Len(t, notifier.broadcast, 1)
	require.True(t, notifier.enabledOnly[0])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(notifier.broadcast[0], &decoded))
	require.Equal(t, "Rules.RuleActiveChanged", decoded["notification"])
}

func TestBusPublishPushButtonFinishedUnicasts(t *testing.T) {
	notifier := &fakeBusNotifier{}
	core := NewCore("test-server", notifier, zap.NewNop())
	seq := newTestRedisSequencer(t)
	bus := NewBus(core, seq, zap.NewNop())

	client := ids.NewClientId()
	bus.PublishPushButtonFinished("txn-1", "token-abc", client)

	require.Equal(t, []ids.ClientId{client}, notifier.unicast)
}
