package tools

import (
	"encoding/json"
	"time"

	"mcpruntime/bytecode"
	"mcpruntime/bytecode/governor"
	"mcpruntime/bytecode/vm"
	"mcpruntime/value"
)

// SetGovernor installs the memory governor bytecode tools allocate their
// execution contexts through. Without one, bytecode tools fail with
// execution-error rather than silently running unbounded.
func (r *Registry) SetGovernor(g *governor.Governor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gov = g
}

// runBytecode constructs a context for t's program and executes it
// (spec §4.1 "Bytecode → construct a context and delegate to §4.5"). The
// caller's top-level parameter fields are loaded into the program's
// declared variables by name, matching the ones the composite executor
// seeds from params (spec §4.2 step 2 parity).
func (r *Registry) runBytecode(t *Tool, paramsJSON string) Result {
	r.mu.Lock()
	gov := r.gov
	r.mu.Unlock()
	if gov == nil || t.Bytecode == nil {
		return Fail(StatusExecutionError, "bytecode execution is not configured")
	}

	stackCap := gov.Config().MaxStackSize
	if stackCap > 256 {
		stackCap = 256
	}
	alloc, err := gov.AllocContext(stackCap)
	if err != nil {
		return Fail(StatusExecutionError, err.Error())
	}
	ctx := vm.NewContext(t.Bytecode, alloc)
	defer ctx.Release(gov)

	seedVars(ctx, t.Bytecode, paramsJSON)

	status := vm.Run(ctx, t.Bytecode, nil, nowMs, int(gov.Config().MaxExecutionTimeMs))
	switch status {
	case bytecode.StatusOK, bytecode.StatusHalt:
		top, _ := ctx.Top()
		return Ok(valueToAny(top))
	case bytecode.StatusTimeout:
		return Fail(StatusTimeout, "bytecode execution exceeded its time ceiling")
	default:
		return Fail(StatusExecutionError, ctx.ErrMsg)
	}
}

func nowMs() int64 { return time.Now().UnixMilli() }

func seedVars(ctx *vm.Context, prog *bytecode.Program, paramsJSON string) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(paramsJSON), &fields); err != nil {
		return
	}
	for i, name := range prog.Vars {
		if raw, ok := fields[name]; ok {
			ctx.Vars[i] = rawToValue(raw)
		}
	}
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
