package governor

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var presetsYAML []byte

type presetEntry struct {
	MaxBytecodeSize          int  `yaml:"max_bytecode_size"`
	MaxStackSize             int  `yaml:"max_stack_size"`
	MaxStringPoolSize        int  `yaml:"max_string_pool_size"`
	MaxVariableCount         int  `yaml:"max_variable_count"`
	MaxFunctionCount         int  `yaml:"max_function_count"`
	MaxExecutionTimeMs       int  `yaml:"max_execution_time_ms"`
	DynamicAllocationAllowed bool `yaml:"dynamic_allocation_allowed"`
	TotalMemoryLimit         int  `yaml:"total_memory_limit"`
}

// LoadPreset returns the named board's default Config, parsed from the
// embedded preset table. Board presets are a convenience starting point;
// SetConfig still validates and caps every field.
func LoadPreset(board string) (Config, error) {
	var presets map[string]presetEntry
	if err := yaml.Unmarshal(presetsYAML, &presets); err != nil {
		return Config{}, fmt.Errorf("governor: parse presets: %w", err)
	}
	p, ok := presets[board]
	if !ok {
		return Config{}, fmt.Errorf("governor: unknown board preset %q", board)
	}
	return Config{
		MaxBytecodeSize:          p.MaxBytecodeSize,
		MaxStackSize:             p.MaxStackSize,
		MaxStringPoolSize:        p.MaxStringPoolSize,
		MaxVariableCount:         p.MaxVariableCount,
		MaxFunctionCount:         p.MaxFunctionCount,
		MaxExecutionTimeMs:       p.MaxExecutionTimeMs,
		DynamicAllocationAllowed: p.DynamicAllocationAllowed,
		TotalMemoryLimit:         p.TotalMemoryLimit,
	}, nil
}

// PresetNames lists the board identifiers available in the embedded table.
func PresetNames() ([]string, error) {
	var presets map[string]presetEntry
	if err := yaml.Unmarshal(presetsYAML, &presets); err != nil {
		return nil, fmt.Errorf("governor: parse presets: %w", err)
	}
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	return names, nil
}
