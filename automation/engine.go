package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"mcpruntime/corelog"
	"mcpruntime/eventbus"
	"mcpruntime/hal"
	"mcpruntime/kvstore"
	"mcpruntime/ruleexpr"
	"mcpruntime/tools"
	"mcpruntime/value"
)

const rulePrefix = "rule."

// CustomHandler is the signature registered handlers for "custom" actions
// must implement (spec §4.3 "custom → look up handler by name in a
// registration table").
type CustomHandler func(ctx context.Context, paramsJSON string) tools.Result

// RunResult reports the outcome of evaluating and firing one rule (spec
// §4.3 "Runtime action failures are logged and reflected in the returned
// count but never disable the rule automatically").
type RunResult struct {
	RuleID       string
	Fired        bool
	ActionsRun   int
	ActionsFailed int
}

// Engine owns the rule set and evaluates it once per Process call plus
// on demand via Trigger and HandleEvent (spec §4.3).
type Engine struct {
	mu       sync.Mutex
	maxRules int
	rules    map[string]*Rule
	order    []string
	nextID   int

	tools   *tools.Registry
	sam     hal.SensorActuatorManager
	kv      *kvstore.Store
	log     corelog.Logger
	custom  map[string]CustomHandler
}

// New constructs an Engine with the given rule capacity and collaborators.
// kv may be nil if no rule is ever created persistent; sam may be nil if no
// rule ever names a condition trigger or actuator action (with a nil sam,
// condition triggers never fire and actuator actions fail with a logged
// error, rather than a nil-pointer panic).
func New(maxRules int, reg *tools.Registry, sam hal.SensorActuatorManager, kv *kvstore.Store, log corelog.Logger) *Engine {
	if log == nil {
		log = corelog.NewNopLogger()
	}
	return &Engine{
		maxRules: maxRules,
		rules:    make(map[string]*Rule),
		tools:    reg,
		sam:      sam,
		kv:       kv,
		log:      log,
		custom:   make(map[string]CustomHandler),
	}
}

// RegisterCustomHandler installs the handler invoked for custom actions
// naming handlerName.
func (e *Engine) RegisterCustomHandler(handlerName string, fn CustomHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.custom[handlerName] = fn
}

// Create parses, validates and stores a rule (spec §4.3 "Rule lifecycle").
// A missing id is minted as rule_<n>, monotonically.
func (e *Engine) Create(defJSON string) (string, error) {
	r, err := parseRule(defJSON)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if r.ID == "" {
		for {
			e.nextID++
			candidate := fmt.Sprintf("rule_%d", e.nextID)
			if _, exists := e.rules[candidate]; !exists {
				r.ID = candidate
				break
			}
		}
	} else if _, exists := e.rules[r.ID]; exists {
		return "", ErrAlreadyRegistered
	}

	if len(e.rules) >= e.maxRules {
		return "", ErrCapacityExhausted
	}

	e.rules[r.ID] = r
	e.order = append(e.order, r.ID)

	if r.Persistent {
		if err := e.persistLocked(r); err != nil {
			delete(e.rules, r.ID)
			e.order = e.order[:len(e.order)-1]
			return "", err
		}
	}
	return r.ID, nil
}

func (e *Engine) persistLocked(r *Rule) error {
	if e.kv == nil {
		return fmt.Errorf("%w: no persistent store configured", ErrPersistFailed)
	}
	b, err := json.Marshal(exportRule(r))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}
	if err := e.kv.Write(rulePrefix+r.ID, b); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}
	return nil
}

// SetEnabled toggles a rule's enabled flag.
func (e *Engine) SetEnabled(id string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rules[id]
	if !ok {
		return ErrNotFound
	}
	r.Enabled = enabled
	return nil
}

// Delete removes a rule, including any persisted snapshot.
func (e *Engine) Delete(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rules[id]; !ok {
		return ErrNotFound
	}
	delete(e.rules, id)
	for i, rid := range e.order {
		if rid == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	if e.kv != nil && e.kv.Exists(rulePrefix+id) {
		_ = e.kv.Delete(rulePrefix + id)
	}
	return nil
}

// Trigger manually fires a rule's actions regardless of its trigger set
// (spec §4.3 "manual: never fires during a tick; only via explicit
// trigger").
func (e *Engine) Trigger(ctx context.Context, id string) (RunResult, error) {
	e.mu.Lock()
	r, ok := e.rules[id]
	e.mu.Unlock()
	if !ok {
		return RunResult{}, ErrNotFound
	}
	return e.runActions(ctx, r), nil
}

// ExportAll renders every rule back to its wire document shape.
func (e *Engine) ExportAll() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	docs := make([]wireRuleDef, 0, len(e.order))
	for _, id := range e.order {
		docs = append(docs, exportRule(e.rules[id]))
	}
	b, _ := json.Marshal(docs)
	return b
}

// Import parses a JSON array of rule documents and creates each, stopping
// at the first parse failure. It returns the ids of rules created before
// the failure, if any.
func (e *Engine) Import(docJSON string) ([]string, error) {
	var docs []json.RawMessage
	if err := json.Unmarshal([]byte(docJSON), &docs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	var created []string
	for _, d := range docs {
		id, err := e.Create(string(d))
		if err != nil {
			return created, err
		}
		created = append(created, id)
	}
	return created, nil
}

// Process evaluates every enabled rule's schedule and condition triggers
// against nowMs, firing any rule whose triggers fire OR'd together (spec
// §4.3 "Tick").
func (e *Engine) Process(ctx context.Context, nowMs int64) []RunResult {
	e.mu.Lock()
	ids := make([]string, len(e.order))
	copy(ids, e.order)
	e.mu.Unlock()

	var results []RunResult
	for _, id := range ids {
		e.mu.Lock()
		r, ok := e.rules[id]
		e.mu.Unlock()
		if !ok || !r.Enabled {
			continue
		}
		if e.evaluateTickTriggers(r, nowMs) {
			results = append(results, e.runActions(ctx, r))
		}
	}
	return results
}

// evaluateTickTriggers evaluates the schedule and condition triggers of r,
// mutating their last-fired/last-check bookkeeping, and returns true if any
// fired.
func (e *Engine) evaluateTickTriggers(r *Rule, nowMs int64) bool {
	fired := false
	for i := range r.Triggers {
		t := &r.Triggers[i]
		switch t.Kind {
		case TriggerSchedule:
			if nowMs-t.LastFiredMs >= t.IntervalMs {
				t.LastFiredMs = nowMs
				fired = true
			}
		case TriggerCondition:
			if nowMs-t.LastPollMs < t.PollIntervalMs {
				continue
			}
			t.LastPollMs = nowMs
			if e.sam == nil {
				continue
			}
			sv, err := e.sam.ReadSensor(context.Background(), t.Sensor)
			if err != nil {
				continue
			}
			if truthyResult(ruleexpr.EvalOperator(t.Operator, sensorValueToValue(sv), t.Expected)) {
				fired = true
			}
		}
		// event and manual triggers never fire during a tick.
	}
	return fired
}

// HandleEvent is the event-bus hook (spec §4.6, §4.3 "event: never fires
// during a tick; fires only via the event-bus hook"). Wire it up with
// bus.Subscribe(eventbus.TypeAll, eventbus.SourceAll, engine.HandleEvent, nil).
func (e *Engine) HandleEvent(ctx context.Context, evt eventbus.Event, userData any) {
	e.mu.Lock()
	ids := make([]string, len(e.order))
	copy(ids, e.order)
	e.mu.Unlock()

	for _, id := range ids {
		e.mu.Lock()
		r, ok := e.rules[id]
		e.mu.Unlock()
		if !ok || !r.Enabled {
			continue
		}
		if ruleMatchesEvent(r, evt) {
			e.runActions(ctx, r)
		}
	}
}

func ruleMatchesEvent(r *Rule, evt eventbus.Event) bool {
	for _, t := range r.Triggers {
		if t.Kind != TriggerEvent {
			continue
		}
		if t.EventType != eventbus.TypeAll && t.EventType != evt.Type {
			continue
		}
		if t.Source != "" && t.Source != evt.Source {
			continue
		}
		return true
	}
	return false
}

// runActions executes a rule's action list in order (spec §4.3 "Action
// dispatch"). A failing action does not stop subsequent actions, but marks
// the overall run as failed.
func (e *Engine) runActions(ctx context.Context, r *Rule) RunResult {
	res := RunResult{RuleID: r.ID, Fired: true}
	for _, a := range r.Actions {
		ok := e.runAction(ctx, a)
		res.ActionsRun++
		if !ok {
			res.ActionsFailed++
		}
	}
	if res.ActionsFailed > 0 {
		e.log.Warn(ctx, "automation: rule execution had failing actions", "rule", r.ID, "failed", res.ActionsFailed)
	}
	return res
}

func (e *Engine) runAction(ctx context.Context, a Action) bool {
	switch a.Kind {
	case ActionTool:
		if e.tools == nil {
			e.log.Error(ctx, ErrInvalidArgument, "automation: tool action with no registry configured", "tool", a.ToolName)
			return false
		}
		inv := fmt.Sprintf(`{"tool":%q,"params":%s}`, a.ToolName, a.ParamsJSON)
		result := e.tools.Execute(inv)
		if !result.IsSuccess() {
			e.log.Warn(ctx, "automation: tool action failed", "tool", a.ToolName, "status", result.Status.String())
			return false
		}
		return true
	case ActionActuator:
		if e.sam == nil {
			e.log.Error(ctx, ErrInvalidArgument, "automation: actuator action with no sensor/actuator manager configured", "target", a.TargetID)
			return false
		}
		_, err := e.sam.Actuate(ctx, a.TargetID, a.Command, a.ParamsJSON)
		if err != nil {
			e.log.Warn(ctx, "automation: actuator action failed", "target", a.TargetID, "error", err.Error())
			return false
		}
		return true
	case ActionNotification:
		e.log.Info(ctx, a.Message, "level", a.Level, "destination", a.Destination)
		return true
	case ActionCustom:
		e.mu.Lock()
		fn, ok := e.custom[a.HandlerName]
		e.mu.Unlock()
		if !ok {
			e.log.Error(ctx, ErrNotFound, "automation: unknown custom handler", "handler", a.HandlerName)
			return false
		}
		result := fn(ctx, a.ParamsJSON)
		if !result.IsSuccess() {
			e.log.Warn(ctx, "automation: custom action failed", "handler", a.HandlerName, "status", result.Status.String())
			return false
		}
		return true
	default:
		return false
	}
}

func sensorValueToValue(sv hal.SensorValue) value.Value {
	switch sv.Kind {
	case hal.KindBool:
		return value.Bool(sv.Bool)
	case hal.KindString:
		return value.String(sv.Str)
	default:
		return value.Float(float32(sv.Number))
	}
}

func truthyResult(v value.Value) bool {
	b, ok := v.AsBool()
	return ok && b
}
