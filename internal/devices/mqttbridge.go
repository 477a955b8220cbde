package devices

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"automationd/internal/ids"
	"automationd/internal/ruleerr"
	"automationd/internal/values"
)

// wireState is the payload shape published on "devices/<id>/state/<stateTypeId>".
type wireState struct {
	Value json.RawMessage `json:"value"`
}

// MQTTBridge is a DeviceRegistry backed by an MQTT broker: state reported
// by devices arrives as retained messages and is debounced through a
// Redis stream before being applied, exactly as the teacher's
// engine.onDeviceUpdate/processStreams pair does for its device state
// updates; commands are published rather than dispatched in-process.
type MQTTBridge struct {
	*Memory

	client      mqtt.Client
	redisClient *redis.Client
	log         *zap.Logger

	debounce    time.Duration
	onStateSet  func(ctx context.Context, device ids.DeviceId)
	stopStreams chan struct{}
}

type MQTTBridgeOptions struct {
	Broker        string
	ClientID      string
	RedisAddr     string
	DebounceEvery time.Duration
	// OnStateSet is invoked after a debounced state update is applied,
	// letting the caller re-run rule evaluation for the affected device
	// (see ruleengine.Engine.RecheckStates).
	OnStateSet func(ctx context.Context, device ids.DeviceId)
}

func NewMQTTBridge(opts MQTTBridgeOptions, log *zap.Logger) (*MQTTBridge, error) {
	if opts.DebounceEvery <= 0 {
		opts.DebounceEvery = 200 * time.Millisecond
	}

	b := &MQTTBridge{
		Memory:      NewMemory(),
		log:         log,
		debounce:    opts.DebounceEvery,
		onStateSet:  opts.OnStateSet,
		stopStreams: make(chan struct{}),
	}

	clientOpts := mqtt.NewClientOptions().AddBroker(opts.Broker).SetClientID(opts.ClientID)
	b.client = mqtt.NewClient(clientOpts)
	if token := b.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	b.redisClient = redis.NewClient(&redis.Options{Addr: opts.RedisAddr})

	return b, nil
}

// Start subscribes to device state topics and begins debounced stream
// processing. Grounded on engine.Start's Subscribe + go processStreams
// pairing.
func (b *MQTTBridge) Start() error {
	b.log.Info("subscribing to device state topic", zap.String("topic", "devices/+/state/+"))
	if token := b.client.Subscribe("devices/+/state/+", 1, b.onDeviceUpdate); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	go b.processStreams()
	return nil
}

func (b *MQTTBridge) Stop() {
	close(b.stopStreams)
	b.client.Disconnect(250)
}

// onDeviceUpdate is the MQTT callback; it only appends to a per-device
// Redis stream, deferring the actual state mutation (and any rule
// re-evaluation it triggers) to the debounced processStreams loop.
func (b *MQTTBridge) onDeviceUpdate(_ mqtt.Client, msg mqtt.Message) {
	deviceID, stateTypeID, ok := parseStateTopic(msg.Topic())
	if !ok {
		b.log.Warn("unparseable device state topic", zap.String("topic", msg.Topic()))
		return
	}

	streamKey := fmt.Sprintf("stream:device:%s:%s", deviceID, stateTypeID)
	ctx := context.Background()
	if err := b.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		MaxLen: 100,
		Values: map[string]any{"payload": string(msg.Payload())},
	}).Err(); err != nil {
		b.log.Warn("xadd device stream failed", zap.Error(err))
	}
}

func (b *MQTTBridge) processStreams() {
	ticker := time.NewTicker(b.debounce)
	defer ticker.Stop()
	for {
		select {
		case <-b.stopStreams:
			return
		case <-ticker.C:
			b.drainStreams()
		}
	}
}

func (b *MQTTBridge) drainStreams() {
	ctx := context.Background()
	keys, err := b.redisClient.Keys(ctx, "stream:device:*").Result()
	if err != nil {
		b.log.Warn("list device streams failed", zap.Error(err))
		return
	}
	for _, key := range keys {
		lastIDKey := "last_read:" + key
		lastID, err := b.redisClient.Get(ctx, lastIDKey).Result()
		if err == redis.Nil {
			lastID = "0"
		} else if err != nil {
			b.log.Warn("get last read id failed", zap.Error(err))
			continue
		}
		entries, err := b.redisClient.XRange(ctx, key, "("+lastID, "+").Result()
		if err != nil || len(entries) == 0 {
			continue
		}
		latest := entries[len(entries)-1]
		b.applyStreamEntry(ctx, key, latest)
		b.redisClient.Set(ctx, lastIDKey, latest.ID, time.Hour)
	}
}

func (b *MQTTBridge) applyStreamEntry(ctx context.Context, streamKey string, entry redis.XMessage) {
	deviceID, stateTypeID, ok := parseStreamKey(streamKey)
	if !ok {
		return
	}
	raw, ok := entry.Values["payload"].(string)
	if !ok {
		return
	}
	var ws wireState
	if err := json.Unmarshal([]byte(raw), &ws); err != nil {
		b.log.Warn("decode device state payload failed", zap.Error(err))
		return
	}
	var v values.Value
	if err := json.Unmarshal(ws.Value, &v); err != nil {
		b.log.Warn("decode device state value failed", zap.Error(err))
		return
	}

	b.Memory.SetState(deviceID, stateTypeID, v)
	if b.onStateSet != nil {
		b.onStateSet(ctx, deviceID)
	}
}

// Dispatch publishes an action command to the device's command topic
// rather than mutating in-memory state directly; actual state change
// arrives later as a retained report on the state topic.
func (b *MQTTBridge) Dispatch(ctx context.Context, device ids.DeviceId, action ids.ActionTypeId, params map[ids.ParamTypeId]values.Value) error {
	if !b.Memory.ActionTypeExists(device, action) {
		return ruleerr.DeviceErrorActionTypeNotFound
	}
	payload := make(map[string]string, len(params))
	for k, v := range params {
		payload[k.String()] = v.GoString()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	topic := fmt.Sprintf("devices/%s/actions/%s", device.String(), action.String())
	token := b.client.Publish(topic, 1, false, body)
	token.Wait()
	return token.Error()
}

func parseStateTopic(topic string) (ids.DeviceId, ids.StateTypeId, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "devices" || parts[2] != "state" {
		return ids.DeviceId{}, ids.StateTypeId{}, false
	}
	device, err := ids.ParseDeviceId(parts[1])
	if err != nil {
		return ids.DeviceId{}, ids.StateTypeId{}, false
	}
	stateType, err := ids.ParseStateTypeId(parts[3])
	if err != nil {
		return ids.DeviceId{}, ids.StateTypeId{}, false
	}
	return device, stateType, true
}

func parseStreamKey(key string) (ids.DeviceId, ids.StateTypeId, bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 4 {
		return ids.DeviceId{}, ids.StateTypeId{}, false
	}
	device, err := ids.ParseDeviceId(parts[2])
	if err != nil {
		return ids.DeviceId{}, ids.StateTypeId{}, false
	}
	stateType, err := ids.ParseStateTypeId(parts[3])
	if err != nil {
		return ids.DeviceId{}, ids.StateTypeId{}, false
	}
	return device, stateType, true
}
