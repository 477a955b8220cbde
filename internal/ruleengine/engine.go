// Package ruleengine implements the Engine component: rule CRUD with
// persistence, state/time/event evaluation, and action dispatch, grounded
// line-by-line on the original RuleEngine.
package ruleengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"automationd/internal/descriptor"
	"automationd/internal/devices"
	"automationd/internal/ids"
	"automationd/internal/rule"
	"automationd/internal/ruleerr"
	"automationd/internal/rulestore"
	"automationd/internal/values"
)

// ActionDispatcher delivers resolved rule actions to devices, typically by
// enqueuing a background job rather than calling the registry inline, so
// a slow or failing device can't stall rule evaluation.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, device ids.DeviceId, action ids.ActionTypeId, params map[ids.ParamTypeId]values.Value) error
}

// DeviceEvent is an incoming device event to be matched against every
// rule's event descriptors. Distinct from Event (events.go), which is the
// engine's own outward notification shape published on EventBus.
type DeviceEvent struct {
	DeviceId    ids.DeviceId
	EventTypeId ids.EventTypeId
	Params      map[ids.ParamTypeId]values.Value
}

// Engine owns every rule, the evaluation cursor, and the active-set cache.
// All exported methods run on the caller's goroutine. Engine guards its
// rule table and rule order with mu, so read-only callers such as
// FindRule and Rules may run outside the core goroutine.
type Engine struct {
	mu   sync.RWMutex // guards rules/order only, for read-mostly API callers (HTTP introspection) outside the core goroutine
	rules     map[ids.RuleId]rule.Rule
	ruleOrder []ids.RuleId

	store      rulestore.Store
	registry   devices.DeviceRegistry
	dispatcher ActionDispatcher
	bus        EventBus
	log        *zap.Logger

	lastEvalTime time.Time
}

func New(store rulestore.Store, registry devices.DeviceRegistry, dispatcher ActionDispatcher, bus EventBus, log *zap.Logger) *Engine {
	if bus == nil {
		bus = NullBus{}
	}
	return &Engine{
		rules:        make(map[ids.RuleId]rule.Rule),
		store:        store,
		registry:     registry,
		dispatcher:   dispatcher,
		bus:          bus,
		log:          log,
		lastEvalTime: time.Now().Add(-time.Second),
	}
}

// Load restores every persisted rule, recomputing each rule's active-set
// bits against current device state exactly as the constructor of the
// original engine does on startup.
func (e *Engine) Load(ctx context.Context) error {
	rules, err := e.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("ruleengine: load rules: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range rules {
		r.StatesActive = r.StateEvaluator.Evaluate(ctx, e.registry)
		r.Active = r.StatesActive
		e.rules[r.Id] = r
		e.ruleOrder = append(e.ruleOrder, r.Id)
	}
	e.log.Info("loaded rules", zap.Int("count", len(rules)))
	return nil
}

func (e *Engine) FindRule(id ids.RuleId) (rule.Rule, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.rules[id]
	return r, ok
}

// Rules returns every rule in insertion order. Iteration must never use
// map order directly — ruleOrder is authoritative, matching the original
// engine's QList<RuleId> m_ruleIds alongside its QHash<RuleId, Rule>.
func (e *Engine) Rules() []rule.Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]rule.Rule, 0, len(e.ruleOrder))
	for _, id := range e.ruleOrder {
		out = append(out, e.rules[id])
	}
	return out
}

// AddRule validates r against the live device registry, assigns it a new
// Id if none is set, persists it, and adds it to the active rule set.
func (e *Engine) AddRule(ctx context.Context, r rule.Rule) (ids.RuleId, error) {
	if r.Id.IsNull() {
		r.Id = ids.NewRuleId()
	}
	if err := r.IsValidAgainst(e.registry); err != nil {
		e.log.Warn("rejected rule", zap.String("rule", r.Name), zap.Error(err))
		return ids.RuleId{}, fmt.Errorf("%w: %v", ruleerr.RuleErrorInvalidRuleFormat, err)
	}
	r.StatesActive = r.StateEvaluator.Evaluate(ctx, e.registry)
	r.Active = r.StatesActive

	if err := e.store.SaveRule(ctx, r); err != nil {
		return ids.RuleId{}, fmt.Errorf("ruleengine: persist rule: %w", err)
	}

	e.mu.Lock()
	e.rules[r.Id] = r
	e.ruleOrder = append(e.ruleOrder, r.Id)
	e.mu.Unlock()

	e.log.Info("rule added", zap.String("ruleId", r.Id.String()), zap.String("name", r.Name))
	e.bus.Publish(Event{Kind: EventRuleAdded, RuleId: r.Id})
	return r.Id, nil
}

// EditRule replaces the stored rule with updated, validating BEFORE any
// mutation to the store so a failed edit leaves persisted state
// byte-identical to before the call — the original engine's editRule
// deletes the old persisted group first and only restores the in-memory
// copy on failure, which can desynchronize store and memory; this
// ordering makes that impossible.
func (e *Engine) EditRule(ctx context.Context, updated rule.Rule) error {
	e.mu.RLock()
	_, exists := e.rules[updated.Id]
	e.mu.RUnlock()
	if !exists {
		return ruleerr.RuleErrorRuleNotFound
	}
	if err := updated.IsValidAgainst(e.registry); err != nil {
		return fmt.Errorf("%w: %v", ruleerr.RuleErrorInvalidRuleFormat, err)
	}
	updated.StatesActive = updated.StateEvaluator.Evaluate(ctx, e.registry)
	updated.Active = updated.StatesActive

	if err := e.store.SaveRule(ctx, updated); err != nil {
		return fmt.Errorf("ruleengine: persist edited rule: %w", err)
	}

	e.mu.Lock()
	e.rules[updated.Id] = updated
	e.mu.Unlock()

	e.log.Info("rule edited", zap.String("ruleId", updated.Id.String()))
	e.bus.Publish(Event{Kind: EventRuleConfigurationChanged, RuleId: updated.Id})
	return nil
}

func (e *Engine) RemoveRule(ctx context.Context, id ids.RuleId) error {
	e.mu.Lock()
	_, exists := e.rules[id]
	if !exists {
		e.mu.Unlock()
		return ruleerr.RuleErrorRuleNotFound
	}
	delete(e.rules, id)
	for i, rid := range e.ruleOrder {
		if rid == id {
			e.ruleOrder = append(e.ruleOrder[:i], e.ruleOrder[i+1:]...)
			break
		}
	}
	e.mu.Unlock()

	if err := e.store.DeleteRule(ctx, id); err != nil {
		return fmt.Errorf("ruleengine: delete persisted rule: %w", err)
	}
	e.log.Info("rule removed", zap.String("ruleId", id.String()))
	e.bus.Publish(Event{Kind: EventRuleRemoved, RuleId: id})
	return nil
}

func (e *Engine) setEnabled(ctx context.Context, id ids.RuleId, enabled bool) error {
	e.mu.Lock()
	r, exists := e.rules[id]
	if !exists {
		e.mu.Unlock()
		return ruleerr.RuleErrorRuleNotFound
	}
	r.Enabled = enabled
	e.rules[id] = r
	e.mu.Unlock()

	if err := e.store.SaveRule(ctx, r); err != nil {
		return fmt.Errorf("ruleengine: persist enabled flag: %w", err)
	}
	e.log.Info("rule enabled flag changed", zap.String("ruleId", id.String()), zap.Bool("enabled", enabled))
	e.bus.Publish(Event{Kind: EventRuleConfigurationChanged, RuleId: id})
	return nil
}

func (e *Engine) EnableRule(ctx context.Context, id ids.RuleId) error  { return e.setEnabled(ctx, id, true) }
func (e *Engine) DisableRule(ctx context.Context, id ids.RuleId) error { return e.setEnabled(ctx, id, false) }

// PruneDevice removes every reference to device from every rule, saving
// each modified rule. Rules left with no trigger at all are still kept
// (they simply never activate) per the "dangling references until
// explicit remove/edit" semantic; the caller may separately decide to
// surface a warning.
func (e *Engine) PruneDevice(ctx context.Context, device ids.DeviceId) error {
	e.mu.Lock()
	var toSave []rule.Rule
	for id, r := range e.rules {
		if r.ContainsDevice(device) {
			pruned := r.WithoutDevice(device)
			e.rules[id] = pruned
			toSave = append(toSave, pruned)
		}
	}
	e.mu.Unlock()

	for _, r := range toSave {
		if err := e.store.SaveRule(ctx, r); err != nil {
			return fmt.Errorf("ruleengine: persist pruned rule %s: %w", r.Id, err)
		}
		e.bus.Publish(Event{Kind: EventRuleConfigurationChanged, RuleId: r.Id})
	}
	return nil
}

// EvaluateEvent recomputes statesActive for every enabled rule
// unconditionally, regardless of whether ev matches anything of that
// rule's own, then branches per §4.F's event evaluation algorithm: a
// state/time-only rule (no event descriptors) transitions its active flag
// purely from states+time; an event-triggered rule fires its actions
// one-shot, without tracking an active flag, only when ev matches one of
// its event descriptors and statesActive and timeActive both hold.
func (e *Engine) EvaluateEvent(ctx context.Context, ev DeviceEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range e.ruleOrder {
		r := e.rules[id]
		if !r.Enabled {
			continue
		}

		statesActive := r.StateEvaluator.Evaluate(ctx, e.registry)
		wasActive := r.Active
		r.StatesActive = statesActive

		if len(r.EventDescriptors) == 0 {
			r.Active = statesActive && (r.TimeDescriptor.IsEmpty() || r.TimeActive)
			e.rules[id] = r
			if r.Active && !wasActive {
				e.executeActionsLocked(ctx, r, nil)
				e.bus.Publish(Event{Kind: EventRuleActiveChanged, RuleId: id, Active: true})
			} else if !r.Active && wasActive {
				e.executeExitActionsLocked(ctx, r)
				e.bus.Publish(Event{Kind: EventRuleActiveChanged, RuleId: id, Active: false})
			}
			continue
		}

		e.rules[id] = r
		if e.containsEvent(r, ev) && statesActive && (r.TimeDescriptor.IsEmpty() || r.TimeActive) {
			e.executeActionsLocked(ctx, r, &ev)
		}
	}
}

func (e *Engine) containsEvent(r rule.Rule, ev DeviceEvent) bool {
	for _, ed := range r.EventDescriptors {
		if ed.DeviceId != ev.DeviceId || ed.EventTypeId != ev.EventTypeId {
			continue
		}
		matched := true
		for _, pd := range ed.ParamDescriptors {
			v, ok := ev.Params[pd.ParamTypeId]
			if !ok {
				matched = false
				break
			}
			if ok2, err := pd.Matches(v); err != nil || !ok2 {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

// EvaluateTime advances the evaluation cursor to now. A rule whose
// TimeDescriptor carries only calendarItems tracks a level — timeActive
// holds for the whole window, and actions/exitActions dispatch only on the
// inactive<->active transition, mirroring the state/time-only branch of
// EvaluateEvent. A rule with timeEventItems fires one-shot on each instant
// that falls in (lastEvalTime, now]; its activity flag is not tracked, so
// no exit actions ever run for it, matching §4.F's time evaluation
// algorithm.
func (e *Engine) EvaluateTime(ctx context.Context, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	last := e.lastEvalTime
	for _, id := range e.ruleOrder {
		r := e.rules[id]
		if !r.Enabled || r.TimeDescriptor.IsEmpty() {
			continue
		}
		statesOK := r.StateEvaluator.IsEmpty() || r.StatesActive

		if len(r.TimeDescriptor.TimeEventItems) == 0 {
			timeActive := r.TimeDescriptor.CalendarActive(now)
			wasActive := r.Active
			r.TimeActive = timeActive
			r.Active = timeActive && statesOK
			e.rules[id] = r

			if r.Active && !wasActive {
				e.executeActionsLocked(ctx, r, nil)
				e.bus.Publish(Event{Kind: EventRuleActiveChanged, RuleId: id, Active: true})
			} else if !r.Active && wasActive {
				e.executeExitActionsLocked(ctx, r)
				e.bus.Publish(Event{Kind: EventRuleActiveChanged, RuleId: id, Active: false})
			}
			continue
		}

		r.TimeActive = r.TimeDescriptor.CalendarActive(now)
		e.rules[id] = r
		if r.TimeDescriptor.EventsFired(last, now) && statesOK && r.TimeActive {
			e.executeActionsLocked(ctx, r, nil)
		}
	}
	e.lastEvalTime = now
}

// RecheckStates re-evaluates every rule whose StateEvaluator references
// device, without requiring a matching EventDescriptor or time window.
// Device plugins (e.g. the MQTT bridge) call this after a debounced state
// update so state-only rules with no accompanying discrete event still
// transition their active flag.
func (e *Engine) RecheckStates(ctx context.Context, device ids.DeviceId) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range e.ruleOrder {
		r := e.rules[id]
		if !r.Enabled || r.StateEvaluator.IsEmpty() || !r.StateEvaluator.ContainsDevice(device) {
			continue
		}
		statesActive := r.StateEvaluator.Evaluate(ctx, e.registry)
		wasActive := r.Active
		r.StatesActive = statesActive
		r.Active = statesActive && (r.TimeDescriptor.IsEmpty() || r.TimeActive)
		e.rules[id] = r

		if r.Active && !wasActive {
			e.executeActionsLocked(ctx, r, nil)
			e.bus.Publish(Event{Kind: EventRuleActiveChanged, RuleId: id, Active: true})
		} else if !r.Active && wasActive {
			e.executeExitActionsLocked(ctx, r)
			e.bus.Publish(Event{Kind: EventRuleActiveChanged, RuleId: id, Active: false})
		}
	}
}

func (e *Engine) executeActionsLocked(ctx context.Context, r rule.Rule, triggeringEvent *DeviceEvent) {
	for _, a := range r.Actions {
		e.dispatchAction(ctx, r, a, triggeringEvent)
	}
}

func (e *Engine) executeExitActionsLocked(ctx context.Context, r rule.Rule) {
	for _, a := range r.ExitActions {
		e.dispatchAction(ctx, r, a, nil)
	}
}

func (e *Engine) dispatchAction(ctx context.Context, r rule.Rule, a rule.RuleAction, triggeringEvent *DeviceEvent) {
	params := make(map[ids.ParamTypeId]values.Value, len(a.Params))
	for _, p := range a.Params {
		if p.EventParamTypeId != nil {
			if triggeringEvent == nil {
				e.log.Warn("event-bound action fired with no triggering event", zap.String("ruleId", r.Id.String()))
				return
			}
			v, ok := triggeringEvent.Params[*p.EventParamTypeId]
			if !ok {
				e.log.Warn("event-bound action missing param", zap.String("ruleId", r.Id.String()))
				return
			}
			params[p.ParamTypeId] = v
			continue
		}
		if p.Value != nil {
			params[p.ParamTypeId] = values.String(*p.Value)
		}
	}
	if err := e.dispatcher.Dispatch(ctx, a.DeviceId, a.ActionTypeId, params); err != nil {
		e.log.Warn("action dispatch failed",
			zap.String("ruleId", r.Id.String()),
			zap.String("deviceId", a.DeviceId.String()),
			zap.Error(err))
	}
}

// NewEventFromDescriptor builds a DeviceEvent from a single matched
// descriptor, used by transports translating a raw device notification
// into the engine's input shape.
func NewEventFromDescriptor(d descriptor.ParamDescriptor, device ids.DeviceId, eventType ids.EventTypeId) DeviceEvent {
	return DeviceEvent{
		DeviceId:    device,
		EventTypeId: eventType,
		Params:      map[ids.ParamTypeId]values.Value{d.ParamTypeId: d.Value},
	}
}
