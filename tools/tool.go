package tools

import (
	"mcpruntime/bytecode"
	"mcpruntime/tools/composite"
)

// VariantTag selects a Tool's implementation payload (spec §3: "exactly
// one variant is populated; the variant tag and payload agree").
type VariantTag int

const (
	VariantNative VariantTag = iota
	VariantComposite
	VariantScripted
	VariantBytecode
)

func (t VariantTag) String() string {
	switch t {
	case VariantNative:
		return "native"
	case VariantComposite:
		return "composite"
	case VariantScripted:
		return "script"
	case VariantBytecode:
		return "bytecode"
	default:
		return "unknown"
	}
}

// NativeHandler is the tool-handler contract for a built-in tool: it
// receives the (already schema-validated) parameters as raw JSON and
// returns a Result.
type NativeHandler func(paramsJSON string) Result

// Tool is immutable after registration except for the Active flag (spec
// §3 "Tool"). Exactly one of the variant payload fields is meaningful,
// selected by Variant.
type Tool struct {
	Name        string
	Description string
	SchemaJSON  string // raw JSON schema text, empty means "accept all"

	Variant VariantTag
	Active  bool

	Native         NativeHandler
	CompositeSteps []composite.Step
	ScriptSource   string
	ScriptLanguage string
	Bytecode       *bytecode.Program

	Dynamic      bool
	Persistent   bool
	CreationTime int64
}
