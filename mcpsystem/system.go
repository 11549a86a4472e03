// Package mcpsystem wires every runtime package into the top-level
// lifecycle and dispatch surface external callers see (spec §6
// "Collaborators exposed by the core"): MCP_SystemInit/Process/Deinit,
// MCP_ServerStart, session/operation management, tool registration and
// execution, and automation rule management.
//
// Every collaborator is constructed once, in dependency order, by Init;
// there is no long-running listener here, only the single-threaded
// main-tick loop driven by repeated calls to Process.
package mcpsystem

import (
	"context"
	"errors"

	"mcpruntime/automation"
	"mcpruntime/bytecode/governor"
	"mcpruntime/config"
	"mcpruntime/corelog"
	"mcpruntime/eventbus"
	"mcpruntime/hal"
	"mcpruntime/kvstore"
	"mcpruntime/memregion"
	"mcpruntime/scheduler"
	"mcpruntime/session"
	"mcpruntime/tools"
)

// Config is the MCP_SystemInit(config) parameter: the capacity and
// collaborator wiring a concrete deployment supplies (spec §2 overview
// table names each capacity; the spec leaves the exact init-config shape
// to the implementation).
type Config struct {
	MaxTools            int
	MaxRules            int
	MaxSessions         int
	MaxEventHandlers    int
	EventQueueSize      int
	MaxSchedulerTasks   int
	SessionIdleLimitMs  int64
	PlatformAvailBytes  int
	RegionSizes         map[memregion.Tag]int
	// Board, if non-empty, names a preset in bytecode/governor/presets.yaml
	// to seed the governor's configuration from (governor.LoadPreset).
	// GovernorConfig, if also set, still takes precedence.
	Board               string
	GovernorConfig      *governor.Config
	KV                  *kvstore.Store
	HAL                 hal.HAL
	SensorActuator      hal.SensorActuatorManager
	Debug               bool
}

var (
	// ErrNotInitialized is returned by any operation invoked before Init
	// or after Deinit.
	ErrNotInitialized = errors.New("mcpsystem: not initialized")
	// ErrAlreadyInitialized is returned by a second Init call.
	ErrAlreadyInitialized = errors.New("mcpsystem: already initialized")
)

// System is the assembled runtime: every leaf and dependent package wired
// together behind the exposed MCP_* surface.
type System struct {
	initialized bool

	log       corelog.Logger
	allocator *memregion.Allocator
	sched     *scheduler.Scheduler
	bus       *eventbus.Bus
	cfgStore  *config.Store
	kv        *kvstore.Store
	gov       *governor.Governor
	toolsReg  *tools.Registry
	automationEng *automation.Engine
	sessions  *session.Table

	idleLimitMs int64
}

// New constructs an uninitialized System. Call Init before use.
func New() *System {
	return &System{log: corelog.NewNopLogger()}
}

// Init implements MCP_SystemInit(config): builds every collaborator in
// dependency order (leaves first, per spec §2's control-flow summary) and
// registers the automation engine's event-bus hook. It installs clue/log's
// format and debug context once, here, and returns the derived context;
// callers should use the returned context (not their original one) for
// every subsequent call that takes one, so the logging configuration
// established by cfg.Debug stays attached.
func (s *System) Init(ctx context.Context, cfg Config) (context.Context, error) {
	if s.initialized {
		return ctx, ErrAlreadyInitialized
	}

	ctx = corelog.Init(ctx, cfg.Debug)
	s.log = corelog.NewClueLogger()

	regionSizes := cfg.RegionSizes
	if regionSizes == nil {
		regionSizes = map[memregion.Tag]int{
			memregion.TagStatic:   1 << 16,
			memregion.TagDynamic:  1 << 16,
			memregion.TagTool:     1 << 16,
			memregion.TagResource: 1 << 15,
			memregion.TagSystem:   1 << 15,
		}
	}
	s.allocator = memregion.NewAllocator(regionSizes)

	maxSchedulerTasks := cfg.MaxSchedulerTasks
	if maxSchedulerTasks == 0 {
		maxSchedulerTasks = 32
	}
	s.sched = scheduler.New(maxSchedulerTasks)

	maxHandlers := cfg.MaxEventHandlers
	if maxHandlers == 0 {
		maxHandlers = 32
	}
	queueSize := cfg.EventQueueSize
	if queueSize == 0 {
		queueSize = 256
	}
	s.bus = eventbus.New(maxHandlers, queueSize, s.log)

	s.cfgStore = config.New()

	s.kv = cfg.KV
	if s.kv == nil {
		backend := kvstore.NewMemBackend(1 << 20)
		kv, err := kvstore.Open(backend, kvstore.Options{MaxKeys: 256, Compression: true})
		if err != nil {
			return ctx, err
		}
		s.kv = kv
	}

	// Governor config precedence: an explicit GovernorConfig always wins;
	// otherwise a named Board's preset (bytecode/governor/presets.yaml) is
	// loaded; otherwise fall back to the platform-derived default (spec
	// §4.7 "a default/recommended configuration derived from
	// platform-reported memory figures").
	govCfg := governor.DefaultConfig(cfg.PlatformAvailBytes)
	if cfg.Board != "" {
		preset, err := governor.LoadPreset(cfg.Board)
		if err != nil {
			return ctx, err
		}
		govCfg = preset
	}
	if cfg.GovernorConfig != nil {
		govCfg = *cfg.GovernorConfig
	}
	s.gov = governor.New(govCfg, cfg.PlatformAvailBytes)

	maxTools := cfg.MaxTools
	if maxTools == 0 {
		maxTools = 64
	}
	reg, err := tools.Init(maxTools, s.kv, s.log)
	if err != nil {
		return ctx, err
	}
	reg.SetGovernor(s.gov)
	s.toolsReg = reg

	maxRules := cfg.MaxRules
	if maxRules == 0 {
		maxRules = 32
	}
	s.automationEng = automation.New(maxRules, s.toolsReg, cfg.SensorActuator, s.kv, s.log)
	if _, err := s.bus.Subscribe(eventbus.TypeAll, eventbus.SourceAll, s.automationEng.HandleEvent, nil); err != nil {
		return ctx, err
	}

	maxSessions := cfg.MaxSessions
	if maxSessions == 0 {
		maxSessions = 16
	}
	s.sessions = session.New(maxSessions)

	s.idleLimitMs = cfg.SessionIdleLimitMs
	if s.idleLimitMs == 0 {
		s.idleLimitMs = 300000
	}

	s.initialized = true
	return ctx, nil
}

// Deinit releases the system. There is nothing to explicitly free beyond
// letting collaborators fall out of scope (spec §9 "model it as a
// process-wide configured collaborator with init/teardown").
func (s *System) Deinit() error {
	if !s.initialized {
		return ErrNotInitialized
	}
	s.initialized = false
	return nil
}

// Process implements MCP_SystemProcess(timeout_ms): drives one main-tick
// iteration across the scheduler, event bus, and automation engine (spec
// §5 "Scheduling model"). maxEvents bounds how many pending events are
// drained (0 = drain all), mirroring the event bus's max_events contract.
func (s *System) Process(ctx context.Context, nowMs int64, maxEvents int) ([]automation.RunResult, error) {
	if !s.initialized {
		return nil, ErrNotInitialized
	}
	s.sched.Process(nowMs)
	s.bus.Process(ctx, maxEvents)
	results := s.automationEng.Process(ctx, nowMs)
	s.sessions.ProcessTimeouts(nowMs, s.idleLimitMs)
	return results, nil
}

// ServerStart implements MCP_ServerStart(): a no-op placement hook in this
// single-process runtime (there is no listener socket to bind — transports
// are owned entirely by the caller, spec §6 HAL/driver boundary), kept so
// callers have a symmetric start call matching SystemInit/Deinit.
func (s *System) ServerStart() error {
	if !s.initialized {
		return ErrNotInitialized
	}
	return nil
}

// Tools returns the underlying registry for direct access by transports
// that need GetSchema/List beyond the MCP_Tool* surface below.
func (s *System) Tools() *tools.Registry { return s.toolsReg }

// Automation returns the underlying automation engine.
func (s *System) Automation() *automation.Engine { return s.automationEng }

// Sessions returns the underlying session table.
func (s *System) Sessions() *session.Table { return s.sessions }

// EventBus returns the underlying event bus, so HAL producers can publish
// sensor/actuator/timer events into the core.
func (s *System) EventBus() *eventbus.Bus { return s.bus }

// ConfigStore returns the underlying config store.
func (s *System) ConfigStore() *config.Store { return s.cfgStore }

// KVStore returns the underlying persistent store.
func (s *System) KVStore() *kvstore.Store { return s.kv }

// Allocator returns the underlying memory-region allocator.
func (s *System) Allocator() *memregion.Allocator { return s.allocator }

// Scheduler returns the underlying task scheduler.
func (s *System) Scheduler() *scheduler.Scheduler { return s.sched }

// Governor returns the underlying bytecode memory governor.
func (s *System) Governor() *governor.Governor { return s.gov }

// ToolRegister implements MCP_ToolRegister: install a dynamic tool from its
// wire document.
func (s *System) ToolRegister(defJSON string) error {
	if !s.initialized {
		return ErrNotInitialized
	}
	return s.toolsReg.RegisterDynamic(defJSON)
}

// ToolExecute implements MCP_ToolExecute: dispatch a tool invocation.
func (s *System) ToolExecute(invocationJSON string) tools.Result {
	if !s.initialized {
		return tools.Fail(tools.StatusExecutionError, ErrNotInitialized.Error())
	}
	return s.toolsReg.Execute(invocationJSON)
}

// ToolGetList implements MCP_ToolGetList.
func (s *System) ToolGetList() []*tools.Tool {
	if !s.initialized {
		return nil
	}
	return s.toolsReg.List()
}

// AutomationCreateRule implements MCP_AutomationCreateRule.
func (s *System) AutomationCreateRule(defJSON string) (string, error) {
	if !s.initialized {
		return "", ErrNotInitialized
	}
	return s.automationEng.Create(defJSON)
}

// AutomationProcess implements MCP_AutomationProcess(now).
func (s *System) AutomationProcess(ctx context.Context, nowMs int64) ([]automation.RunResult, error) {
	if !s.initialized {
		return nil, ErrNotInitialized
	}
	return s.automationEng.Process(ctx, nowMs), nil
}

// AutomationTriggerRule implements MCP_AutomationTriggerRule.
func (s *System) AutomationTriggerRule(ctx context.Context, id string) (automation.RunResult, error) {
	if !s.initialized {
		return automation.RunResult{}, ErrNotInitialized
	}
	return s.automationEng.Trigger(ctx, id)
}

// SessionCreate, SessionClose, SessionFind implement the session half of
// MCP_ServerStart's surface (spec §6 "session create/close/find").
func (s *System) SessionCreate(nowMs int64, transportRef string) (string, error) {
	if !s.initialized {
		return "", ErrNotInitialized
	}
	return s.sessions.CreateSession(nowMs, transportRef)
}

func (s *System) SessionClose(id string) error {
	if !s.initialized {
		return ErrNotInitialized
	}
	return s.sessions.CloseSession(id)
}

func (s *System) SessionFind(id string) (session.Session, bool) {
	if !s.initialized {
		return session.Session{}, false
	}
	return s.sessions.FindSession(id)
}

// OperationCreate, OperationComplete, OperationCancel implement the
// operation half of MCP_ServerStart's surface (spec §6 "operation
// create/complete/cancel").
func (s *System) OperationCreate(sessionID string, nowMs int64, typ session.OpType) (string, error) {
	if !s.initialized {
		return "", ErrNotInitialized
	}
	return s.sessions.CreateOperation(sessionID, nowMs, typ)
}

func (s *System) OperationComplete(id string, failed bool) error {
	if !s.initialized {
		return ErrNotInitialized
	}
	return s.sessions.CompleteOperation(id, failed)
}

func (s *System) OperationCancel(id string) error {
	if !s.initialized {
		return ErrNotInitialized
	}
	return s.sessions.CancelOperation(id)
}
