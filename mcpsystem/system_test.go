package mcpsystem_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpruntime/hal"
	"mcpruntime/mcpsystem"
	"mcpruntime/session"
)

func newSystem(t *testing.T) *mcpsystem.System {
	t.Helper()
	sim := hal.NewHostSim(1 << 12)
	s := mcpsystem.New()
	_, err := s.Init(context.Background(), mcpsystem.Config{
		MaxTools:           8,
		MaxRules:           8,
		MaxSessions:        4,
		PlatformAvailBytes: 1 << 20,
		HAL:                sim,
		SensorActuator:     sim,
	})
	require.NoError(t, err)
	return s
}

func TestInitTwiceFails(t *testing.T) {
	s := newSystem(t)
	sim := hal.NewHostSim(0)
	_, err := s.Init(context.Background(), mcpsystem.Config{HAL: sim})
	assert.ErrorIs(t, err, mcpsystem.ErrAlreadyInitialized)
}

func TestOperationsFailBeforeInit(t *testing.T) {
	s := mcpsystem.New()
	_, err := s.SessionCreate(0, "t")
	assert.ErrorIs(t, err, mcpsystem.ErrNotInitialized)
}

func TestInitLoadsBoardPreset(t *testing.T) {
	sim := hal.NewHostSim(1 << 12)
	s := mcpsystem.New()
	_, err := s.Init(context.Background(), mcpsystem.Config{
		PlatformAvailBytes: 1 << 20,
		Board:              "esp8266",
		HAL:                sim,
		SensorActuator:     sim,
	})
	require.NoError(t, err)
	assert.Equal(t, 16384, s.Governor().Config().MaxBytecodeSize)
}

func TestInitUnknownBoardFails(t *testing.T) {
	sim := hal.NewHostSim(1 << 12)
	s := mcpsystem.New()
	_, err := s.Init(context.Background(), mcpsystem.Config{
		PlatformAvailBytes: 1 << 20,
		Board:              "not-a-real-board",
		HAL:                sim,
		SensorActuator:     sim,
	})
	assert.Error(t, err)
}

func TestInitReturnsContextWithLoggingConfigured(t *testing.T) {
	sim := hal.NewHostSim(1 << 12)
	s := mcpsystem.New()
	ctx, err := s.Init(context.Background(), mcpsystem.Config{
		PlatformAvailBytes: 1 << 20,
		Debug:              true,
		HAL:                sim,
		SensorActuator:     sim,
	})
	require.NoError(t, err)
	assert.NotEqual(t, context.Background(), ctx)
}

func TestToolRegisterAndList(t *testing.T) {
	s := newSystem(t)
	err := s.ToolRegister(`{"name":"echo","implementationType":"composite","implementation":{"steps":[]}}`)
	require.NoError(t, err)

	list := s.ToolGetList()
	found := false
	for _, tl := range list {
		if tl.Name == "echo" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestSessionAndOperationLifecycle(t *testing.T) {
	s := newSystem(t)
	sid, err := s.SessionCreate(0, "transport-1")
	require.NoError(t, err)

	opID, err := s.OperationCreate(sid, 0, session.OpToolCall)
	require.NoError(t, err)

	require.NoError(t, s.OperationComplete(opID, false))
	require.NoError(t, s.SessionClose(sid))

	sess, ok := s.SessionFind(sid)
	require.True(t, ok)
	assert.Equal(t, session.StateClosed, sess.State)
}

func TestAutomationLifecycleThroughSystem(t *testing.T) {
	s := newSystem(t)
	id, err := s.AutomationCreateRule(`{"triggers":[{"type":"manual"}],"actions":[{"type":"notification","message":"hi"}]}`)
	require.NoError(t, err)

	res, err := s.AutomationTriggerRule(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, res.Fired)
}

func TestProcessDrivesSchedulerBusAndAutomation(t *testing.T) {
	s := newSystem(t)
	_, err := s.AutomationCreateRule(`{"triggers":[{"type":"schedule","intervalMs":100}],"actions":[{"type":"notification","message":"tick"}]}`)
	require.NoError(t, err)

	results, err := s.Process(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = s.Process(context.Background(), 100, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
}
