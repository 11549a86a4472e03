package automation

import (
	"encoding/json"
	"fmt"

	"mcpruntime/eventbus"
	"mcpruntime/value"
)

// wireRuleDef mirrors the automation rule wire document (spec §6
// "Automation rule").
type wireRuleDef struct {
	ID          string            `json:"id,omitempty"`
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	Enabled     *bool             `json:"enabled,omitempty"`
	Persistent  bool              `json:"persistent,omitempty"`
	Triggers    []wireTrigger     `json:"triggers"`
	Actions     []wireAction      `json:"actions"`
}

type wireTrigger struct {
	Type string `json:"type"`

	// condition
	Sensor         string          `json:"sensor,omitempty"`
	Operator       string          `json:"operator,omitempty"`
	Expected       json.RawMessage `json:"expected,omitempty"`
	PollIntervalMs int64           `json:"pollIntervalMs,omitempty"`

	// event
	EventType string `json:"eventType,omitempty"`
	Source    string `json:"source,omitempty"`

	// schedule
	IntervalMs int64 `json:"intervalMs,omitempty"`
}

type wireAction struct {
	Type string `json:"type"`

	// actuator
	TargetID string          `json:"targetId,omitempty"`
	Command  string          `json:"command,omitempty"`
	Params   json.RawMessage `json:"params,omitempty"`

	// tool
	Tool string `json:"tool,omitempty"`

	// notification
	Message     string `json:"message,omitempty"`
	Level       string `json:"level,omitempty"`
	Destination string `json:"destination,omitempty"`

	// custom
	Handler string `json:"handler,omitempty"`
}

func eventTypeFromWire(s string) eventbus.Type {
	switch s {
	case "sensor":
		return eventbus.TypeSensor
	case "actuator":
		return eventbus.TypeActuator
	case "timer":
		return eventbus.TypeTimer
	case "protocol":
		return eventbus.TypeProtocol
	case "system":
		return eventbus.TypeSystem
	default:
		return eventbus.TypeAll
	}
}

func eventTypeToWire(t eventbus.Type) string {
	switch t {
	case eventbus.TypeSensor:
		return "sensor"
	case eventbus.TypeActuator:
		return "actuator"
	case eventbus.TypeTimer:
		return "timer"
	case eventbus.TypeProtocol:
		return "protocol"
	case eventbus.TypeSystem:
		return "system"
	default:
		return "all"
	}
}

func rawToValue(raw json.RawMessage) value.Value {
	if len(raw) == 0 {
		return value.Null()
	}
	var x any
	if err := json.Unmarshal(raw, &x); err != nil {
		return value.Null()
	}
	return anyToValue(x)
}

func anyToValue(x any) value.Value {
	switch v := x.(type) {
	case nil:
		return value.Null()
	case bool:
		return value.Bool(v)
	case float64:
		return value.Float(float32(v))
	case string:
		return value.String(v)
	case []any:
		elems := make([]value.Value, len(v))
		for i, e := range v {
			elems[i] = anyToValue(e)
		}
		return value.Array(elems)
	default:
		return value.Null()
	}
}

// parseRule parses a rule wire document into a Rule. Both Triggers and
// Actions must be present and non-empty (spec §4.3 "validates that both
// triggers and actions arrays are present and non-empty").
func parseRule(defJSON string) (*Rule, error) {
	var w wireRuleDef
	if err := json.Unmarshal([]byte(defJSON), &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if len(w.Triggers) == 0 || len(w.Actions) == 0 {
		return nil, fmt.Errorf("%w: triggers and actions must both be non-empty", ErrInvalidArgument)
	}

	r := &Rule{
		ID:          w.ID,
		Name:        w.Name,
		Description: w.Description,
		Persistent:  w.Persistent,
		Enabled:     true,
	}
	if w.Enabled != nil {
		r.Enabled = *w.Enabled
	}

	for _, wt := range w.Triggers {
		t, err := parseTrigger(wt)
		if err != nil {
			return nil, err
		}
		r.Triggers = append(r.Triggers, t)
	}
	for _, wa := range w.Actions {
		a, err := parseAction(wa)
		if err != nil {
			return nil, err
		}
		r.Actions = append(r.Actions, a)
	}
	return r, nil
}

func parseTrigger(w wireTrigger) (Trigger, error) {
	switch w.Type {
	case "condition":
		if w.Sensor == "" || w.Operator == "" {
			return Trigger{}, fmt.Errorf("%w: condition trigger requires sensor and operator", ErrInvalidArgument)
		}
		return Trigger{
			Kind:           TriggerCondition,
			Sensor:         w.Sensor,
			Operator:       w.Operator,
			Expected:       rawToValue(w.Expected),
			PollIntervalMs: w.PollIntervalMs,
		}, nil
	case "event":
		return Trigger{
			Kind:      TriggerEvent,
			EventType: eventTypeFromWire(w.EventType),
			Source:    w.Source,
		}, nil
	case "schedule":
		if w.IntervalMs <= 0 {
			return Trigger{}, fmt.Errorf("%w: schedule trigger requires a positive intervalMs", ErrInvalidArgument)
		}
		return Trigger{Kind: TriggerSchedule, IntervalMs: w.IntervalMs}, nil
	case "manual":
		return Trigger{Kind: TriggerManual}, nil
	default:
		return Trigger{}, fmt.Errorf("%w: unknown trigger type %q", ErrInvalidArgument, w.Type)
	}
}

func parseAction(w wireAction) (Action, error) {
	switch w.Type {
	case "actuator":
		if w.TargetID == "" || w.Command == "" {
			return Action{}, fmt.Errorf("%w: actuator action requires targetId and command", ErrInvalidArgument)
		}
		return Action{Kind: ActionActuator, TargetID: w.TargetID, Command: w.Command, ParamsJSON: rawOrEmptyObject(w.Params)}, nil
	case "tool":
		if w.Tool == "" {
			return Action{}, fmt.Errorf("%w: tool action requires tool", ErrInvalidArgument)
		}
		return Action{Kind: ActionTool, ToolName: w.Tool, ParamsJSON: rawOrEmptyObject(w.Params)}, nil
	case "notification":
		if w.Message == "" {
			return Action{}, fmt.Errorf("%w: notification action requires message", ErrInvalidArgument)
		}
		return Action{Kind: ActionNotification, Message: w.Message, Level: w.Level, Destination: w.Destination}, nil
	case "custom":
		if w.Handler == "" {
			return Action{}, fmt.Errorf("%w: custom action requires handler", ErrInvalidArgument)
		}
		return Action{Kind: ActionCustom, HandlerName: w.Handler, ParamsJSON: rawOrEmptyObject(w.Params)}, nil
	default:
		return Action{}, fmt.Errorf("%w: unknown action type %q", ErrInvalidArgument, w.Type)
	}
}

func rawOrEmptyObject(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

// exportRule renders a Rule back into its wire document shape, used by
// ExportAll and by the persistence snapshot written under the "rule."
// key prefix.
func exportRule(r *Rule) wireRuleDef {
	enabled := r.Enabled
	w := wireRuleDef{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Enabled:     &enabled,
		Persistent:  r.Persistent,
	}
	for _, t := range r.Triggers {
		wt := wireTrigger{}
		switch t.Kind {
		case TriggerCondition:
			wt.Type = "condition"
			wt.Sensor = t.Sensor
			wt.Operator = t.Operator
			wt.PollIntervalMs = t.PollIntervalMs
			if b, err := json.Marshal(valueToAny(t.Expected)); err == nil {
				wt.Expected = b
			}
		case TriggerEvent:
			wt.Type = "event"
			wt.EventType = eventTypeToWire(t.EventType)
			wt.Source = t.Source
		case TriggerSchedule:
			wt.Type = "schedule"
			wt.IntervalMs = t.IntervalMs
		case TriggerManual:
			wt.Type = "manual"
		}
		w.Triggers = append(w.Triggers, wt)
	}
	for _, a := range r.Actions {
		wa := wireAction{}
		switch a.Kind {
		case ActionActuator:
			wa.Type = "actuator"
			wa.TargetID = a.TargetID
			wa.Command = a.Command
			wa.Params = json.RawMessage(a.ParamsJSON)
		case ActionTool:
			wa.Type = "tool"
			wa.Tool = a.ToolName
			wa.Params = json.RawMessage(a.ParamsJSON)
		case ActionNotification:
			wa.Type = "notification"
			wa.Message = a.Message
			wa.Level = a.Level
			wa.Destination = a.Destination
		case ActionCustom:
			wa.Type = "custom"
			wa.Handler = a.HandlerName
			wa.Params = json.RawMessage(a.ParamsJSON)
		}
		w.Actions = append(w.Actions, wa)
	}
	return w
}

func valueToAny(v value.Value) any {
	switch v.Kind() {
	case value.KindNull:
		return nil
	case value.KindBool:
		b, _ := v.AsBool()
		return b
	case value.KindString:
		s, _ := v.AsString()
		return s
	case value.KindArray:
		elems, _ := v.AsArray()
		out := make([]any, len(elems))
		for i, e := range elems {
			out[i] = valueToAny(e)
		}
		return out
	default:
		n, _ := v.Number()
		return n
	}
}
