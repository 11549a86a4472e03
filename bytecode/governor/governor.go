// Package governor enforces the per-program and global memory quotas
// that keep untrusted bytecode bounded (spec §4.7). It accounts bytes,
// not bytecode semantics, so it has no dependency on package bytecode;
// callers in bytecode/vm request capacities here first and only then
// build the actual bytecode.Program/Context with the granted sizes.
//
// Every allocation follows a check-then-track-then-release discipline:
// CanAllocate gates the request, TrackAlloc/TrackFree update the running
// total, and the AllocProgram/AllocContext/FreeProgram/FreeContext pairs
// below compose those primitives into whole-struct transactions.
package governor

import "fmt"

// Per-field absolute ceilings the spec names explicitly (§4.7
// "Determinism"): writing a config validates against these regardless of
// what the caller requests.
const (
	absoluteMaxStackSize      = 10000
	absoluteMaxStringPoolSize = 100000
)

// Byte-accounting estimates for each table slot. The real platform would
// use sizeof(); here each constant stands in for one slot's footprint so
// the governor's running total tracks something concrete.
const (
	instrSlotBytes  = 8
	stringSlotBytes = 32
	varSlotBytes    = 16
	propSlotBytes   = 16
	fnSlotBytes     = 16
	stackSlotBytes  = 16
)

// Config is the governor's quota configuration (spec §4.7 "State").
type Config struct {
	MaxBytecodeSize          int
	MaxStackSize             int
	MaxStringPoolSize        int
	MaxVariableCount         int
	MaxFunctionCount         int
	MaxExecutionTimeMs       int
	DynamicAllocationAllowed bool
	TotalMemoryLimit         int
}

// DefaultConfig returns the recommended configuration for a board with
// the given total available memory, a reasonable starting point before
// any board-specific override is applied.
func DefaultConfig(platformAvailableBytes int) Config {
	return Config{
		MaxBytecodeSize:          platformAvailableBytes / 4,
		MaxStackSize:             256,
		MaxStringPoolSize:        1024,
		MaxVariableCount:         64,
		MaxFunctionCount:         32,
		MaxExecutionTimeMs:       50,
		DynamicAllocationAllowed: true,
		TotalMemoryLimit:         platformAvailableBytes / 2,
	}
}

// ErrRejected is returned whenever a requested capacity or allocation
// would exceed a configured quota.
type ErrRejected struct {
	Reason string
}

func (e *ErrRejected) Error() string { return fmt.Sprintf("governor: %s", e.Reason) }

// ProgramAlloc is a granted set of capacities for one program, along with
// the bytes accounted against the governor's running total. Free it with
// FreeProgram when the program is destroyed.
type ProgramAlloc struct {
	InstrCap, StrCap, VarCap, PropCap, FnCap int
	bytes                                    int
}

// ContextAlloc is a granted stack capacity for one execution context.
type ContextAlloc struct {
	StackCap int
	bytes    int
}

// Governor tracks a live running total against Config.TotalMemoryLimit.
// It is not safe for concurrent use; all bytecode-owning operations run
// from the single main tick (spec §5).
type Governor struct {
	cfg            Config
	platformAvail  int
	runningTotal   int
}

// New creates a Governor with the given configuration.
func New(cfg Config, platformAvailableBytes int) *Governor {
	return &Governor{cfg: cfg, platformAvail: platformAvailableBytes}
}

// Config returns the current configuration. Reading is free (spec §4.7).
func (g *Governor) Config() Config { return g.cfg }

// SetConfig validates and caps individual fields against both the
// absolute ceilings and the total memory limit, returning the names of
// any fields that were capped so the caller can report them.
func (g *Governor) SetConfig(cfg Config) (applied Config, capped []string) {
	if cfg.MaxBytecodeSize > cfg.TotalMemoryLimit {
		cfg.MaxBytecodeSize = cfg.TotalMemoryLimit
		capped = append(capped, "max_bytecode_size")
	}
	if cfg.MaxStackSize > absoluteMaxStackSize {
		cfg.MaxStackSize = absoluteMaxStackSize
		capped = append(capped, "max_stack_size")
	}
	if cfg.MaxStringPoolSize > absoluteMaxStringPoolSize {
		cfg.MaxStringPoolSize = absoluteMaxStringPoolSize
		capped = append(capped, "max_string_pool_size")
	}
	g.cfg = cfg
	return cfg, capped
}

// TotalAllocated reports the governor's current running total, used by
// tests asserting balanced alloc/free accounting (spec §8).
func (g *Governor) TotalAllocated() int { return g.runningTotal }

// CanAllocate reports whether size bytes may be allocated under the
// current quota: the running total plus size must not exceed
// TotalMemoryLimit, and a single large request may not claim more than
// half of platform-available memory.
func (g *Governor) CanAllocate(size int) bool {
	if g.runningTotal+size > g.cfg.TotalMemoryLimit {
		return false
	}
	if g.platformAvail > 0 && size > g.platformAvail/2 {
		return false
	}
	return true
}

// TrackAlloc records size bytes as allocated.
func (g *Governor) TrackAlloc(size int) {
	g.runningTotal += size
}

// TrackFree records size bytes as released, clamping at zero.
func (g *Governor) TrackFree(size int) {
	g.runningTotal -= size
	if g.runningTotal < 0 {
		g.runningTotal = 0
	}
}

// AllocProgram requests capacities for one program's tables. Each
// capacity is checked against its per-field ceiling; the whole request
// is treated as one logical transaction: if any sub-check fails, nothing
// is tracked, matching the spec's "on any sub-allocation failure, all
// prior sub-allocations for that program are freed" contract (there is
// nothing to unwind here because we validate before tracking anything).
func (g *Governor) AllocProgram(instrCap, strCap, varCap, propCap, fnCap int) (*ProgramAlloc, error) {
	if varCap > g.cfg.MaxVariableCount {
		return nil, &ErrRejected{Reason: "variable capacity exceeds max_variable_count"}
	}
	if fnCap > g.cfg.MaxFunctionCount {
		return nil, &ErrRejected{Reason: "function capacity exceeds max_function_count"}
	}
	if strCap > g.cfg.MaxStringPoolSize {
		return nil, &ErrRejected{Reason: "string pool capacity exceeds max_string_pool_size"}
	}

	bytes := instrCap*instrSlotBytes + strCap*stringSlotBytes + varCap*varSlotBytes + propCap*propSlotBytes + fnCap*fnSlotBytes
	if bytes > g.cfg.MaxBytecodeSize {
		return nil, &ErrRejected{Reason: "program size exceeds max_bytecode_size"}
	}
	if !g.CanAllocate(bytes) {
		return nil, &ErrRejected{Reason: "insufficient governor memory"}
	}
	g.TrackAlloc(bytes)
	return &ProgramAlloc{InstrCap: instrCap, StrCap: strCap, VarCap: varCap, PropCap: propCap, FnCap: fnCap, bytes: bytes}, nil
}

// FreeProgram releases a ProgramAlloc's accounted bytes.
func (g *Governor) FreeProgram(a *ProgramAlloc) {
	if a == nil {
		return
	}
	g.TrackFree(a.bytes)
	a.bytes = 0
}

// AllocContext requests a stack capacity for one execution context.
func (g *Governor) AllocContext(stackCap int) (*ContextAlloc, error) {
	if stackCap > g.cfg.MaxStackSize {
		return nil, &ErrRejected{Reason: "stack capacity exceeds max_stack_size"}
	}
	bytes := stackCap * stackSlotBytes
	if !g.CanAllocate(bytes) {
		return nil, &ErrRejected{Reason: "insufficient governor memory"}
	}
	g.TrackAlloc(bytes)
	return &ContextAlloc{StackCap: stackCap, bytes: bytes}, nil
}

// FreeContext releases a ContextAlloc's accounted bytes.
func (g *Governor) FreeContext(a *ContextAlloc) {
	if a == nil {
		return
	}
	g.TrackFree(a.bytes)
	a.bytes = 0
}
