package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"mcpruntime/bytecode"
	"mcpruntime/bytecode/governor"
	"mcpruntime/corelog"
	"mcpruntime/kvstore"
	"mcpruntime/tools/composite"
)

// Sentinel errors surfaced by registry operations (spec §4.1 failure
// modes).
var (
	ErrNotInitialized    = errors.New("tools: registry not initialized")
	ErrAlreadyRegistered = errors.New("tools: already registered")
	ErrCapacityExhausted = errors.New("tools: capacity exhausted")
	ErrInvalidArgument   = errors.New("tools: invalid argument")
	ErrNotFound          = errors.New("tools: not found")
	ErrParseError        = errors.New("tools: parse error")
	ErrMissingField      = errors.New("tools: missing required field")
	ErrUnknownImplType   = errors.New("tools: unknown implementation type")
	ErrPersistFailed     = errors.New("tools: persist failed")
)

const dynamicToolKeyPrefix = "tool."

// maxCompositeDepth caps composite-tool recursion (spec §4.2 "total
// composite recursion depth is capped at 8").
const maxCompositeDepth = 8

// Registry is the fixed-capacity tool table and dispatcher. It is not
// safe for concurrent invocation beyond the mutex's critical sections:
// the runtime is single-threaded cooperative (spec §5), the mutex here
// only guards the registry's own map against HAL-originated registration
// calls arriving off the main tick.
type Registry struct {
	mu       sync.Mutex
	maxTools int
	tools    map[string]*Tool
	order    []string

	kv  *kvstore.Store
	log corelog.Logger
	gov *governor.Governor
}

// Init initializes a fixed-capacity registry, registers the built-in
// system.defineTool, and loads every persisted dynamic tool from kv
// (spec §4.1 "init").
func Init(maxTools int, kv *kvstore.Store, log corelog.Logger) (*Registry, error) {
	if maxTools <= 0 {
		return nil, ErrInvalidArgument
	}
	if log == nil {
		log = corelog.NewNopLogger()
	}
	r := &Registry{
		maxTools: maxTools,
		tools:    make(map[string]*Tool, maxTools),
		kv:       kv,
		log:      log,
	}
	if err := r.RegisterNative("system.defineTool", r.registerDynamicHandler, ""); err != nil {
		return nil, fmt.Errorf("tools: register system.defineTool: %w", err)
	}
	if kv != nil {
		if err := r.LoadAllDynamic(); err != nil {
			return nil, fmt.Errorf("tools: load persisted tools: %w", err)
		}
	}
	return r, nil
}

// RegisterNative installs a native tool (spec §4.1 "register_native").
func (r *Registry) RegisterNative(name string, handler NativeHandler, schemaJSON string) error {
	if name == "" || handler == nil {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return ErrAlreadyRegistered
	}
	if len(r.tools) >= r.maxTools {
		return ErrCapacityExhausted
	}
	t := &Tool{
		Name:         name,
		SchemaJSON:   schemaJSON,
		Variant:      VariantNative,
		Native:       handler,
		Active:       true,
		CreationTime: time.Now().UnixMilli(),
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// wireStep mirrors one composite step in the dynamic-tool-definition
// wire format (spec §6).
type wireStep struct {
	Tool   string `json:"tool"`
	Params string `json:"params"`
	Store  string `json:"store,omitempty"`
}

type wireImplementation struct {
	Steps    []wireStep `json:"steps,omitempty"`
	Script   string     `json:"script,omitempty"`
	Language string     `json:"language,omitempty"`
	Bytecode string     `json:"bytecode,omitempty"`
}

type wireToolDef struct {
	Name               string             `json:"name"`
	Description        string             `json:"description,omitempty"`
	Schema             json.RawMessage    `json:"schema,omitempty"`
	ImplementationType string             `json:"implementationType"`
	Implementation     wireImplementation `json:"implementation"`
	Persistent         bool               `json:"persistent,omitempty"`
	CreationTime       int64              `json:"creationTime,omitempty"`
}

// registerDynamicHandler is the native handler bound to
// system.defineTool (spec §4.1 "register_dynamic").
func (r *Registry) registerDynamicHandler(paramsJSON string) Result {
	if err := r.RegisterDynamic(paramsJSON); err != nil {
		return toResult(err)
	}
	return Ok(map[string]any{"registered": true})
}

// RegisterDynamic parses, validates, and installs a dynamic tool
// definition, persisting it if requested.
func (r *Registry) RegisterDynamic(defJSON string) error {
	var def wireToolDef
	if err := json.Unmarshal([]byte(defJSON), &def); err != nil {
		return fmt.Errorf("%w: %v", ErrParseError, err)
	}
	if def.Name == "" || def.ImplementationType == "" {
		return ErrMissingField
	}

	t := &Tool{
		Name:         def.Name,
		Description:  def.Description,
		Dynamic:      true,
		Persistent:   def.Persistent,
		Active:       true,
		CreationTime: time.Now().UnixMilli(),
	}
	if len(def.Schema) > 0 {
		t.SchemaJSON = string(def.Schema)
	}

	switch def.ImplementationType {
	case "native":
		return ErrUnknownImplType // natives are never wire-defined
	case "composite":
		steps := make([]composite.Step, len(def.Implementation.Steps))
		for i, s := range def.Implementation.Steps {
			steps[i] = composite.Step{Tool: s.Tool, ParamsTemplate: s.Params, Store: s.Store}
		}
		t.Variant = VariantComposite
		t.CompositeSteps = steps
	case "script":
		t.Variant = VariantScripted
		t.ScriptSource = def.Implementation.Script
		t.ScriptLanguage = def.Implementation.Language
	case "bytecode":
		raw, err := base64.StdEncoding.DecodeString(def.Implementation.Bytecode)
		if err != nil {
			return fmt.Errorf("%w: invalid bytecode encoding", ErrParseError)
		}
		prog, err := decodeProgram(raw)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrParseError, err)
		}
		t.Variant = VariantBytecode
		t.Bytecode = prog
	default:
		return ErrUnknownImplType
	}

	r.mu.Lock()
	if _, exists := r.tools[t.Name]; exists {
		r.mu.Unlock()
		return ErrAlreadyRegistered
	}
	if len(r.tools) >= r.maxTools {
		r.mu.Unlock()
		return ErrCapacityExhausted
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
	r.mu.Unlock()

	if t.Persistent {
		if err := r.SaveDynamic(t.Name); err != nil {
			return fmt.Errorf("%w: %v", ErrPersistFailed, err)
		}
	}
	return nil
}

type wireInvocation struct {
	Tool   string          `json:"tool"`
	Params json.RawMessage `json:"params"`
}

// Execute is the top-level dispatch (spec §4.1 "execute").
func (r *Registry) Execute(invocationJSON string) Result {
	return r.execute(invocationJSON, 0, nil)
}

// execute carries the composite recursion depth and the ancestor tool
// names visited so far, so a composite step that (directly or
// transitively) invokes its own name faults instead of recursing forever
// (spec §4.2 "cycle check by name", §9 "explicit depth counter threaded
// through a per-invocation execution frame").
func (r *Registry) execute(invocationJSON string, depth int, ancestry []string) Result {
	var inv wireInvocation
	if err := json.Unmarshal([]byte(invocationJSON), &inv); err != nil || inv.Tool == "" {
		return Fail(StatusInvalidParameters, "malformed invocation")
	}

	r.mu.Lock()
	t, ok := r.tools[inv.Tool]
	r.mu.Unlock()
	if !ok {
		return Fail(StatusNotFound, fmt.Sprintf("tool %q not found", inv.Tool))
	}

	paramsJSON := "{}"
	if len(inv.Params) > 0 {
		paramsJSON = string(inv.Params)
	}
	if err := validateParams(t.SchemaJSON, paramsJSON); err != nil {
		return Fail(StatusInvalidParameters, err.Error())
	}

	switch t.Variant {
	case VariantNative:
		return t.Native(paramsJSON)
	case VariantComposite:
		for _, name := range ancestry {
			if name == t.Name {
				return Fail(StatusExecutionError, fmt.Sprintf("composite cycle detected at %q", t.Name))
			}
		}
		if depth >= maxCompositeDepth {
			return Fail(StatusExecutionError, "composite recursion depth exceeded")
		}
		return r.runComposite(t, paramsJSON, depth+1, append(ancestry, t.Name))
	case VariantScripted:
		return Fail(StatusNotImplemented, "scripted tools are not implemented")
	case VariantBytecode:
		return r.runBytecode(t, paramsJSON)
	default:
		return Fail(StatusExecutionError, "tool has no populated variant")
	}
}

// runComposite implements the step-sequencing algorithm of spec §4.2.
func (r *Registry) runComposite(t *Tool, paramsJSON string, depth int, ancestry []string) Result {
	ctx := composite.NewContext()
	seedFields(ctx, paramsJSON)

	var last Result
	for _, step := range t.CompositeSteps {
		substituted := composite.Substitute(step.ParamsTemplate, ctx)
		invocation := fmt.Sprintf(`{"tool":%q,"params":%s}`, step.Tool, nonEmptyJSON(substituted))
		last = r.execute(invocation, depth, ancestry)
		if !last.IsSuccess() {
			return last
		}
		if step.Store != "" {
			ctx.Set(step.Store, resultToValue(last))
		}
	}
	return last
}

func nonEmptyJSON(s string) string {
	if strings.TrimSpace(s) == "" {
		return "null"
	}
	return s
}

// seedFields copies paramsJSON's top-level fields into ctx so step
// templates can reference the caller's own parameters (spec §4.2 step 2).
func seedFields(ctx *composite.Context, paramsJSON string) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(paramsJSON), &m); err != nil {
		return
	}
	for k, raw := range m {
		ctx.Set(k, rawToValue(raw))
	}
}

// GetDefinition returns the tool registered under name.
func (r *Registry) GetDefinition(name string) (*Tool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered tool in registration order.
func (r *Registry) List() []*Tool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// GetSchema returns the raw JSON schema text registered for name, if any.
func (r *Registry) GetSchema(name string) (string, bool) {
	t, ok := r.GetDefinition(name)
	if !ok {
		return "", false
	}
	return t.SchemaJSON, true
}

// SaveDynamic snapshots the named dynamic tool to the K/V store under
// key "tool.<name>" (spec §4.1 "Persistence encoding").
func (r *Registry) SaveDynamic(name string) error {
	if r.kv == nil {
		return ErrPersistFailed
	}
	t, ok := r.GetDefinition(name)
	if !ok || !t.Dynamic {
		return ErrNotFound
	}
	doc, err := encodeDynamicTool(t)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}
	if err := r.kv.Write(dynamicToolKeyPrefix+name, doc); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}
	return nil
}

// LoadDynamic reads and installs the dynamic tool stored under
// "tool.<name>".
func (r *Registry) LoadDynamic(name string) error {
	if r.kv == nil {
		return ErrNotFound
	}
	doc, err := r.kv.Read(dynamicToolKeyPrefix + name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return r.installFromDoc(doc)
}

// LoadAllDynamic scans the K/V store for every key prefixed "tool." and
// installs each, used at Init and after a restart.
func (r *Registry) LoadAllDynamic() error {
	if r.kv == nil {
		return nil
	}
	for _, key := range r.kv.ListKeys() {
		if !strings.HasPrefix(key, dynamicToolKeyPrefix) {
			continue
		}
		doc, err := r.kv.Read(key)
		if err != nil {
			continue
		}
		if err := r.installFromDoc(doc); err != nil {
			r.log.Warn(context.Background(), "tools: skipping corrupt persisted tool", "key", key, "error", err.Error())
		}
	}
	return nil
}

func (r *Registry) installFromDoc(doc []byte) error {
	var def wireToolDef
	if err := json.Unmarshal(doc, &def); err != nil {
		return fmt.Errorf("%w: %v", ErrParseError, err)
	}
	body, err := json.Marshal(def)
	if err != nil {
		return err
	}
	r.mu.Lock()
	_, exists := r.tools[def.Name]
	r.mu.Unlock()
	if exists {
		return nil
	}
	return r.RegisterDynamic(string(body))
}

func encodeDynamicTool(t *Tool) ([]byte, error) {
	def := wireToolDef{
		Name:               t.Name,
		Description:        t.Description,
		ImplementationType: t.Variant.String(),
		Persistent:         t.Persistent,
		CreationTime:       t.CreationTime,
	}
	if t.SchemaJSON != "" {
		def.Schema = json.RawMessage(t.SchemaJSON)
	}
	switch t.Variant {
	case VariantComposite:
		steps := make([]wireStep, len(t.CompositeSteps))
		for i, s := range t.CompositeSteps {
			steps[i] = wireStep{Tool: s.Tool, Params: s.ParamsTemplate, Store: s.Store}
		}
		def.Implementation.Steps = steps
	case VariantScripted:
		def.Implementation.Script = t.ScriptSource
		def.Implementation.Language = t.ScriptLanguage
	case VariantBytecode:
		def.Implementation.Bytecode = base64.StdEncoding.EncodeToString(encodeProgram(t.Bytecode))
	}
	return json.Marshal(def)
}

// validateParams applies the registry's JSON-schema validation
// collaborator (spec §4.1 "Schema validation"); a blank schema accepts
// everything.
func validateParams(schemaJSON, paramsJSON string) error {
	if strings.TrimSpace(schemaJSON) == "" {
		return nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("tool-schema.json", bytes.NewReader([]byte(schemaJSON))); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	schema, err := compiler.Compile("tool-schema.json")
	if err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	var instance any
	if err := json.Unmarshal([]byte(paramsJSON), &instance); err != nil {
		return fmt.Errorf("malformed parameters: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("schema violation: %w", err)
	}
	return nil
}

func toResult(err error) Result {
	switch {
	case errors.Is(err, ErrParseError):
		return Fail(StatusInvalidParameters, err.Error())
	case errors.Is(err, ErrMissingField):
		return Fail(StatusInvalidParameters, err.Error())
	case errors.Is(err, ErrUnknownImplType):
		return Fail(StatusInvalidParameters, err.Error())
	case errors.Is(err, ErrAlreadyRegistered):
		return Fail(StatusInvalidParameters, err.Error())
	case errors.Is(err, ErrCapacityExhausted):
		return Fail(StatusExecutionError, err.Error())
	case errors.Is(err, ErrPersistFailed):
		return Fail(StatusExecutionError, err.Error())
	default:
		return Fail(StatusExecutionError, err.Error())
	}
}

// encodeProgram/decodeProgram give bytecode tools a stable persisted
// representation. The format is internal to this package: a program is
// rare enough in practice (embedded rule firmware, not a public wire
// contract beyond the base64 string it's wrapped in) that a plain JSON
// document of the Program's fields is simpler than adding a schema.
func encodeProgram(p *bytecode.Program) []byte {
	if p == nil {
		return nil
	}
	doc := struct {
		Instructions []bytecode.Instruction `json:"instructions"`
		Strings      []string                `json:"strings"`
		Vars         []string                `json:"vars"`
		Props        []string                `json:"props"`
		Funcs        []string                `json:"funcs"`
	}{p.Instructions, p.Strings, p.Vars, p.Props, p.Funcs}
	b, _ := json.Marshal(doc)
	return b
}

func decodeProgram(raw []byte) (*bytecode.Program, error) {
	var doc struct {
		Instructions []bytecode.Instruction `json:"instructions"`
		Strings      []string                `json:"strings"`
		Vars         []string                `json:"vars"`
		Props        []string                `json:"props"`
		Funcs        []string                `json:"funcs"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return &bytecode.Program{
		Instructions: doc.Instructions,
		Strings:      doc.Strings,
		Vars:         doc.Vars,
		Props:        doc.Props,
		Funcs:        doc.Funcs,
	}, nil
}
