// Package automation implements the automation engine (spec §4.3): a set of
// named rules, each pairing one or more triggers with an ordered action
// list, evaluated once per main-tick call.
//
// Rules parse from the same wire-document-to-struct shape as the tool
// registry's dynamic tools. A persistent rule is written to the kvstore
// under a "rule." key prefix when it is created; the engine has no path
// that loads those snapshots back.
package automation

import (
	"errors"

	"mcpruntime/eventbus"
	"mcpruntime/value"
)

// TriggerKind discriminates a Trigger's payload.
type TriggerKind int

const (
	TriggerCondition TriggerKind = iota
	TriggerEvent
	TriggerSchedule
	TriggerManual
)

// Trigger is one of the four trigger variants (spec §3 "Automation Rule").
// Only the fields relevant to Kind are meaningful; the rest are zero.
type Trigger struct {
	Kind TriggerKind

	// condition
	Sensor         string
	Operator       string
	Expected       value.Value
	PollIntervalMs int64
	LastPollMs     int64

	// event
	EventType eventbus.Type
	Source    string

	// schedule
	IntervalMs int64
	LastFiredMs int64
}

// ActionKind discriminates an Action's payload.
type ActionKind int

const (
	ActionActuator ActionKind = iota
	ActionTool
	ActionNotification
	ActionCustom
)

// Action is one of the four action variants (spec §3 "Automation Rule").
type Action struct {
	Kind ActionKind

	// actuator
	TargetID   string
	Command    string
	ParamsJSON string

	// tool
	ToolName string
	// ParamsJSON shared with actuator/custom

	// notification
	Message     string
	Level       string
	Destination string

	// custom
	HandlerName string
	// ParamsJSON shared with actuator/tool
}

// Rule pairs a trigger set with an action list (spec §3 "Automation Rule").
type Rule struct {
	ID          string
	Name        string
	Description string
	Triggers    []Trigger
	Actions     []Action
	Enabled     bool
	Persistent  bool
}

var (
	// ErrInvalidArgument is returned when a rule document fails to parse
	// or omits a required field (spec §4.3 "rule parsing errors reject
	// creation").
	ErrInvalidArgument = errors.New("automation: invalid argument")
	// ErrNotFound is returned when an operation names an unknown rule id.
	ErrNotFound = errors.New("automation: rule not found")
	// ErrAlreadyRegistered is returned when Create names an id already in
	// use.
	ErrAlreadyRegistered = errors.New("automation: rule already registered")
	// ErrCapacityExhausted is returned when the engine is already holding
	// its configured maximum number of rules.
	ErrCapacityExhausted = errors.New("automation: rule capacity exhausted")
	// ErrPersistFailed wraps a persistence-layer error encountered while
	// snapshotting a persistent rule.
	ErrPersistFailed = errors.New("automation: persist failed")
)
