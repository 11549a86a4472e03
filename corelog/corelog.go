// Package corelog wraps goa.design/clue/log behind the narrow collaborator
// interface the runtime core depends on (spec §6 "Logging — level-filtered
// structured log emit"; §9 "Logging singleton... model it as a process-wide
// configured collaborator with init/teardown"). It exposes a Logger
// interface plus a clue/log-backed implementation and a no-op one, with no
// metrics/tracing surface, since this spec has no component for either.
package corelog

import (
	"context"

	"goa.design/clue/log"
)

// Logger is the structured, level-filtered logging collaborator the core
// depends on. Implementations must be safe for use from the single main-tick
// goroutine; background HAL goroutines that publish events (spec §5) log
// through the same interface but never touch core tables directly.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, err error, msg string, keyvals ...any)
}

// clueLogger delegates to goa.design/clue/log, reading format/debug settings
// from the context.
type clueLogger struct{}

// NewClueLogger constructs a Logger backed by goa.design/clue/log. Call
// corelog.Init once from the top-level system Init (spec MCP_SystemInit) to
// install the context-level logging configuration clue/log expects.
func NewClueLogger() Logger { return clueLogger{} }

// Init installs clue/log's logging context at process startup, selecting
// a terminal or JSON format depending on the output stream. There is no
// matching teardown call; the installed context simply falls out of scope.
func Init(ctx context.Context, debug bool) context.Context {
	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx = log.Context(ctx, log.WithFormat(format))
	if debug {
		ctx = log.Context(ctx, log.WithDebug())
	}
	return ctx
}

func (clueLogger) Debug(ctx context.Context, msg string, keyvals ...any) {
	log.Debug(ctx, append([]log.Fielder{log.KV{K: "msg", V: msg}}, kvToFielders(keyvals)...)...)
}

func (clueLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	log.Info(ctx, append([]log.Fielder{log.KV{K: "msg", V: msg}}, kvToFielders(keyvals)...)...)
}

func (clueLogger) Warn(ctx context.Context, msg string, keyvals ...any) {
	fielders := []log.Fielder{log.KV{K: "msg", V: msg}, log.KV{K: "severity", V: "warning"}}
	log.Warn(ctx, append(fielders, kvToFielders(keyvals)...)...)
}

func (clueLogger) Error(ctx context.Context, err error, msg string, keyvals ...any) {
	fielders := append([]log.Fielder{log.KV{K: "msg", V: msg}}, kvToFielders(keyvals)...)
	log.Error(ctx, err, fielders...)
}

// kvToFielders converts variadic key-value pairs (k1, v1, k2, v2, ...) into
// clue/log's Fielder slice, pairing a trailing unmatched key with nil.
func kvToFielders(keyvals []any) []log.Fielder {
	var fielders []log.Fielder
	for i := 0; i < len(keyvals); i += 2 {
		k, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		var v any
		if i+1 < len(keyvals) {
			v = keyvals[i+1]
		}
		fielders = append(fielders, log.KV{K: k, V: v})
	}
	return fielders
}

// NopLogger discards everything. Useful for tests and for components
// constructed before a real Logger is wired in.
type NopLogger struct{}

// NewNopLogger constructs a Logger that discards all messages.
func NewNopLogger() Logger { return NopLogger{} }

func (NopLogger) Debug(context.Context, string, ...any)        {}
func (NopLogger) Info(context.Context, string, ...any)         {}
func (NopLogger) Warn(context.Context, string, ...any)         {}
func (NopLogger) Error(context.Context, error, string, ...any) {}
