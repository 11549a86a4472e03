// Package composite provides the variable context and template
// substitution used by a composite tool's step sequence (spec §4.2). The
// step-sequencing loop itself (which must call back into the tool
// registry's dispatcher) lives in package tools; this package only holds
// the pure, dispatcher-free pieces so they can be tested in isolation.
//
// Substitute implements the spec's {{identifier}} grammar directly rather
// than through text/template, since the grammar is a single token form
// with no control flow, conditionals, or user-defined functions to support.
package composite

import (
	"strings"

	"mcpruntime/value"
)

// Step is one entry in a composite tool's body: invoke Tool with
// ParamsTemplate (substituted against the running Context), optionally
// binding the result under Store.
type Step struct {
	Tool           string
	ParamsTemplate string
	Store          string
}

// Context is the per-invocation variable binding set a composite
// execution substitutes templates against (spec §4.2 step 1: "capacity
// ≈ 32").
type Context struct {
	vars map[string]value.Value
}

// NewContext creates an empty Context.
func NewContext() *Context {
	return &Context{vars: make(map[string]value.Value, 32)}
}

// Set binds name to v, overwriting any existing binding.
func (c *Context) Set(name string, v value.Value) {
	c.vars[name] = v
}

// Get returns the binding for name, if any.
func (c *Context) Get(name string) (value.Value, bool) {
	v, ok := c.vars[name]
	return v, ok
}

// Substitute replaces every {{identifier}} token in template with the
// string form of its Context binding, or the empty string if unbound.
// Single-brace tokens are left untouched (spec §9: "single-brace is not
// supported").
func Substitute(template string, ctx *Context) string {
	var sb strings.Builder
	i := 0
	for i < len(template) {
		if i+1 < len(template) && template[i] == '{' && template[i+1] == '{' {
			end := strings.Index(template[i+2:], "}}")
			if end < 0 {
				sb.WriteString(template[i:])
				break
			}
			name := template[i+2 : i+2+end]
			if v, ok := ctx.Get(name); ok {
				sb.WriteString(v.String())
			}
			i = i + 2 + end + 2
			continue
		}
		sb.WriteByte(template[i])
		i++
	}
	return sb.String()
}
