package ruleengine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"automationd/internal/devices"
	"automationd/internal/ids"
	"automationd/internal/values"
)

const taskTypeDispatchAction = "ruleengine:dispatch_action"

// actionTaskPayload is the wire shape enqueued for asynq, mirroring the
// teacher's EvaluationTaskPayload naming and JSON-by-value approach.
type actionTaskPayload struct {
	DeviceId     string                 `json:"deviceId"`
	ActionTypeId string                 `json:"actionTypeId"`
	Params       map[string]json.RawMessage `json:"params"`
}

// AsyncDispatcher enqueues action dispatch onto an asynq queue instead of
// calling the device registry inline, so a slow or unreachable device
// can't block rule evaluation on the core goroutine.
type AsyncDispatcher struct {
	client *asynq.Client
	log    *zap.Logger
}

func NewAsyncDispatcher(redisAddr string, log *zap.Logger) *AsyncDispatcher {
	return &AsyncDispatcher{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}),
		log:    log,
	}
}

func (d *AsyncDispatcher) Close() error { return d.client.Close() }

func (d *AsyncDispatcher) Dispatch(_ context.Context, device ids.DeviceId, action ids.ActionTypeId, params map[ids.ParamTypeId]values.Value) error {
	wireParams := make(map[string]json.RawMessage, len(params))
	for pid, v := range params {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("ruleengine: encode param %s: %w", pid, err)
		}
		wireParams[pid.String()] = raw
	}
	payload, err := json.Marshal(actionTaskPayload{
		DeviceId:     device.String(),
		ActionTypeId: action.String(),
		Params:       wireParams,
	})
	if err != nil {
		return fmt.Errorf("ruleengine: encode action task: %w", err)
	}
	task := asynq.NewTask(taskTypeDispatchAction, payload)
	info, err := d.client.Enqueue(task, asynq.MaxRetry(3), asynq.Timeout(10*time.Second))
	if err != nil {
		return fmt.Errorf("ruleengine: enqueue action task: %w", err)
	}
	d.log.Debug("action dispatch enqueued", zap.String("taskId", info.ID), zap.String("deviceId", device.String()))
	return nil
}

// DispatchWorker processes actionTaskPayload tasks by calling into a live
// DeviceRegistry, run from an asynq.Server the way the teacher's
// taskqueue.worker consumes "evaluate_rule" tasks.
type DispatchWorker struct {
	registry devices.DeviceRegistry
	log      *zap.Logger
}

func NewDispatchWorker(registry devices.DeviceRegistry, log *zap.Logger) *DispatchWorker {
	return &DispatchWorker{registry: registry, log: log}
}

func (w *DispatchWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload actionTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("ruleengine: decode action task: %w", err)
	}
	deviceId, err := ids.ParseDeviceId(payload.DeviceId)
	if err != nil {
		return fmt.Errorf("ruleengine: invalid device id in task: %w", err)
	}
	actionId, err := ids.ParseActionTypeId(payload.ActionTypeId)
	if err != nil {
		return fmt.Errorf("ruleengine: invalid action type id in task: %w", err)
	}
	params := make(map[ids.ParamTypeId]values.Value, len(payload.Params))
	for k, raw := range payload.Params {
		pid, err := ids.ParseParamTypeId(k)
		if err != nil {
			continue
		}
		var v values.Value
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		params[pid] = v
	}
	if err := w.registry.Dispatch(ctx, deviceId, actionId, params); err != nil {
		w.log.Warn("device dispatch failed", zap.String("deviceId", deviceId.String()), zap.Error(err))
		return err
	}
	return nil
}

// NewMux wires ProcessTask into an asynq.ServeMux under its task type.
func (w *DispatchWorker) NewMux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(taskTypeDispatchAction, w.ProcessTask)
	return mux
}
