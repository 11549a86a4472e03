package hal_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpruntime/hal"
)

func TestDigitalReadWriteRoundTrips(t *testing.T) {
	sim := hal.NewHostSim(0)
	require.NoError(t, sim.DigitalWrite(3, true))
	v, err := sim.DigitalRead(3)
	require.NoError(t, err)
	assert.True(t, v)
}

func TestAnalogReadWriteRoundTrips(t *testing.T) {
	sim := hal.NewHostSim(0)
	require.NoError(t, sim.AnalogWrite(1, 512))
	v, err := sim.AnalogRead(1)
	require.NoError(t, err)
	assert.Equal(t, 512, v)
}

func TestFlashWriteReadRoundTrips(t *testing.T) {
	sim := hal.NewHostSim(64)
	data := []byte("hello")
	require.NoError(t, sim.FlashWrite(8, data))

	buf := make([]byte, len(data))
	require.NoError(t, sim.FlashRead(8, buf))
	assert.Equal(t, data, buf)
}

func TestFlashEraseFillsWithFF(t *testing.T) {
	sim := hal.NewHostSim(16)
	require.NoError(t, sim.FlashWrite(0, []byte{1, 2, 3}))
	require.NoError(t, sim.FlashErase(0, 3))

	buf := make([]byte, 3)
	require.NoError(t, sim.FlashRead(0, buf))
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF}, buf)
}

func TestFlashOutOfBoundsErrors(t *testing.T) {
	sim := hal.NewHostSim(4)
	err := sim.FlashWrite(2, []byte{1, 2, 3})
	assert.Error(t, err)
}

func TestReadSensorReturnsErrorForUnknownID(t *testing.T) {
	sim := hal.NewHostSim(0)
	_, err := sim.ReadSensor(context.Background(), "missing")
	assert.Error(t, err)
}

func TestReadSensorReturnsInstalledValue(t *testing.T) {
	sim := hal.NewHostSim(0)
	sim.SetSensor("temp", hal.SensorValue{Kind: hal.KindNumber, Number: 21.5})

	v, err := sim.ReadSensor(context.Background(), "temp")
	require.NoError(t, err)
	assert.Equal(t, 21.5, v.Number)
}

func TestActuateDispatchesToRegisteredHandler(t *testing.T) {
	sim := hal.NewHostSim(0)
	sim.RegisterActuator("led", func(ctx context.Context, command, paramsJSON string) (string, error) {
		return `{"ok":true,"command":"` + command + `"}`, nil
	})

	out, err := sim.Actuate(context.Background(), "led", "on", "{}")
	require.NoError(t, err)
	assert.Contains(t, out, `"command":"on"`)
}

func TestActuateReturnsErrorForUnknownID(t *testing.T) {
	sim := hal.NewHostSim(0)
	_, err := sim.Actuate(context.Background(), "missing", "on", "{}")
	assert.Error(t, err)
}
