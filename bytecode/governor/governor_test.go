package governor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpruntime/bytecode/governor"
)

func testConfig() governor.Config {
	return governor.Config{
		MaxBytecodeSize:    1024,
		MaxStackSize:       16,
		MaxStringPoolSize:  64,
		MaxVariableCount:   8,
		MaxFunctionCount:   4,
		MaxExecutionTimeMs: 50,
		TotalMemoryLimit:   4096,
	}
}

func TestAllocProgramRejectsOversizedCapacity(t *testing.T) {
	g := governor.New(testConfig(), 8192)
	_, err := g.AllocProgram(256, 4, 2, 1, 1)
	require.Error(t, err)
	assert.Equal(t, 0, g.TotalAllocated())
}

func TestAllocProgramFreeProgramBalancesAccounting(t *testing.T) {
	g := governor.New(testConfig(), 8192)
	before := g.TotalAllocated()
	alloc, err := g.AllocProgram(8, 4, 2, 1, 1)
	require.NoError(t, err)
	assert.Greater(t, g.TotalAllocated(), before)

	g.FreeProgram(alloc)
	assert.Equal(t, before, g.TotalAllocated())
}

func TestAllocContextRejectsOverStackCeiling(t *testing.T) {
	g := governor.New(testConfig(), 8192)
	_, err := g.AllocContext(1000)
	assert.Error(t, err)
}

func TestSetConfigCapsFieldsAndReportsThem(t *testing.T) {
	g := governor.New(testConfig(), 8192)
	applied, capped := g.SetConfig(governor.Config{
		MaxBytecodeSize:   999999,
		MaxStackSize:      999999,
		MaxStringPoolSize: 999999,
		TotalMemoryLimit:  4096,
	})
	assert.Contains(t, capped, "max_bytecode_size")
	assert.Contains(t, capped, "max_stack_size")
	assert.Contains(t, capped, "max_string_pool_size")
	assert.Equal(t, 4096, applied.MaxBytecodeSize)
	assert.Equal(t, 10000, applied.MaxStackSize)
	assert.Equal(t, 100000, applied.MaxStringPoolSize)
}

func TestLoadPresetKnownBoard(t *testing.T) {
	cfg, err := governor.LoadPreset("esp32")
	require.NoError(t, err)
	assert.Equal(t, 65536, cfg.MaxBytecodeSize)
}

func TestLoadPresetUnknownBoard(t *testing.T) {
	_, err := governor.LoadPreset("does-not-exist")
	assert.Error(t, err)
}
