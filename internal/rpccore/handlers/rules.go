package handlers

import (
	"encoding/json"
	"fmt"

	"automationd/internal/ids"
	"automationd/internal/rpccore"
	"automationd/internal/rule"
	"automationd/internal/ruleengine"
)

// RulesHandler exposes rule CRUD over RPC, delegating to a
// *ruleengine.Engine. Param decoding goes through JSON round-tripping
// since params arrive as a generic map[string]any — the wire codec is the
// one deliberately-stdlib piece of the core (see DESIGN.md).
type RulesHandler struct {
	engine *ruleengine.Engine
}

func NewRulesHandler(engine *ruleengine.Engine) *RulesHandler {
	return &RulesHandler{engine: engine}
}

func (h *RulesHandler) Name() string { return "Rules" }

func (h *RulesHandler) Methods() map[string]rpccore.MethodSpec {
	return map[string]rpccore.MethodSpec{
		"GetRules":    {Description: "Returns every rule, in insertion order."},
		"GetRule":     {Description: "Returns a single rule by id.", Params: map[string]string{"ruleId": "RuleId"}},
		"AddRule":     {Description: "Adds a new rule.", Params: map[string]string{"rule": "Rule"}},
		"EditRule":    {Description: "Replaces an existing rule.", Params: map[string]string{"rule": "Rule"}},
		"RemoveRule":  {Description: "Removes a rule by id.", Params: map[string]string{"ruleId": "RuleId"}},
		"EnableRule":  {Description: "Enables a rule.", Params: map[string]string{"ruleId": "RuleId"}},
		"DisableRule": {Description: "Disables a rule.", Params: map[string]string{"ruleId": "RuleId"}},
	}
}

func (h *RulesHandler) Notifications() map[string]rpccore.SchemaSpec {
	return map[string]rpccore.SchemaSpec{
		"RuleAdded":               {Description: "A rule was added."},
		"RuleRemoved":             {Description: "A rule was removed."},
		"RuleConfigurationChanged": {Description: "A rule's configuration changed."},
		"RuleActiveChanged":       {Description: "A rule's active state changed."},
	}
}

func decodeParam[T any](params map[string]any, key string) (T, error) {
	var zero T
	raw, ok := params[key]
	if !ok {
		return zero, fmt.Errorf("missing param %q", key)
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return zero, err
	}
	var out T
	if err := json.Unmarshal(encoded, &out); err != nil {
		return zero, err
	}
	return out, nil
}

func (h *RulesHandler) Invoke(ctx *rpccore.InvocationContext, method string, params map[string]any) (rpccore.Reply, error) {
	switch method {
	case "GetRules":
		return rpccore.Immediate(map[string]any{"rules": h.engine.Rules()}), nil
	case "GetRule":
		ruleIdStr, err := decodeParam[string](params, "ruleId")
		if err != nil {
			return rpccore.Reply{}, err
		}
		ruleId, err := ids.ParseRuleId(ruleIdStr)
		if err != nil {
			return rpccore.Reply{}, err
		}
		r, ok := h.engine.FindRule(ruleId)
		if !ok {
			return rpccore.Reply{}, fmt.Errorf("rule not found")
		}
		return rpccore.Immediate(r), nil
	case "AddRule":
		r, err := decodeParam[rule.Rule](params, "rule")
		if err != nil {
			return rpccore.Reply{}, err
		}
		id, err := h.engine.AddRule(ctx.Ctx, r)
		if err != nil {
			return rpccore.Reply{}, err
		}
		return rpccore.Immediate(map[string]any{"ruleId": id.String()}), nil
	case "EditRule":
		r, err := decodeParam[rule.Rule](params, "rule")
		if err != nil {
			return rpccore.Reply{}, err
		}
		if err := h.engine.EditRule(ctx.Ctx, r); err != nil {
			return rpccore.Reply{}, err
		}
		return rpccore.Immediate(map[string]any{}), nil
	case "RemoveRule":
		ruleId, err := paramRuleId(params)
		if err != nil {
			return rpccore.Reply{}, err
		}
		if err := h.engine.RemoveRule(ctx.Ctx, ruleId); err != nil {
			return rpccore.Reply{}, err
		}
		return rpccore.Immediate(map[string]any{}), nil
	case "EnableRule":
		ruleId, err := paramRuleId(params)
		if err != nil {
			return rpccore.Reply{}, err
		}
		if err := h.engine.EnableRule(ctx.Ctx, ruleId); err != nil {
			return rpccore.Reply{}, err
		}
		return rpccore.Immediate(map[string]any{}), nil
	case "DisableRule":
		ruleId, err := paramRuleId(params)
		if err != nil {
			return rpccore.Reply{}, err
		}
		if err := h.engine.DisableRule(ctx.Ctx, ruleId); err != nil {
			return rpccore.Reply{}, err
		}
		return rpccore.Immediate(map[string]any{}), nil
	default:
		return rpccore.Reply{}, fmt.Errorf("rules: unknown method %q", method)
	}
}

func paramRuleId(params map[string]any) (ids.RuleId, error) {
	s, err := decodeParam[string](params, "ruleId")
	if err != nil {
		return ids.RuleId{}, err
	}
	return ids.ParseRuleId(s)
}
