package hal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// HostSim implements both HAL and SensorActuatorManager entirely in process
// memory, for the host test platform and the cmd/mcpsim demo (spec §5 "On
// platforms with OS threads (the host test platform)..."). It is safe for
// concurrent use: simulated ISR goroutines are allowed to call Publish-like
// methods (here, SetSensor) from outside the main tick, but never mutate
// core state directly (spec §5 "Shared-resource policy").
type HostSim struct {
	mu sync.Mutex

	digital map[int]bool
	analog  map[int]int
	flash   []byte

	sensors   map[string]SensorValue
	actuators map[string]func(ctx context.Context, command, paramsJSON string) (string, error)
}

// NewHostSim creates a HostSim with a flashSize-byte simulated flash region.
func NewHostSim(flashSize int) *HostSim {
	return &HostSim{
		digital:   make(map[int]bool),
		analog:    make(map[int]int),
		flash:     make([]byte, flashSize),
		sensors:   make(map[string]SensorValue),
		actuators: make(map[string]func(ctx context.Context, command, paramsJSON string) (string, error)),
	}
}

// SetSensor installs the current reading for a named sensor, the call a
// simulated producer goroutine or test makes to drive condition/event
// triggers (spec §4.3 condition trigger, §4.6 producers).
func (h *HostSim) SetSensor(id string, v SensorValue) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sensors[id] = v
}

// RegisterActuator installs the handler invoked by Actuate for the named
// actuator.
func (h *HostSim) RegisterActuator(id string, fn func(ctx context.Context, command, paramsJSON string) (string, error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.actuators[id] = fn
}

func (h *HostSim) ReadSensor(ctx context.Context, id string) (SensorValue, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.sensors[id]
	if !ok {
		return SensorValue{}, fmt.Errorf("hal: unknown sensor %q", id)
	}
	return v, nil
}

func (h *HostSim) Actuate(ctx context.Context, id, command string, paramsJSON string) (string, error) {
	h.mu.Lock()
	fn, ok := h.actuators[id]
	h.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("hal: unknown actuator %q", id)
	}
	return fn(ctx, command, paramsJSON)
}

func (h *HostSim) DigitalRead(pin int) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.digital[pin], nil
}

func (h *HostSim) DigitalWrite(pin int, high bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.digital[pin] = high
	return nil
}

func (h *HostSim) AnalogRead(pin int) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.analog[pin], nil
}

func (h *HostSim) AnalogWrite(pin int, value int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.analog[pin] = value
	return nil
}

func (h *HostSim) I2CTransfer(addr int, write []byte, readLen int) ([]byte, error) {
	return make([]byte, readLen), nil
}

func (h *HostSim) SPITransfer(cs int, write []byte) ([]byte, error) {
	return make([]byte, len(write)), nil
}

func (h *HostSim) UARTTransfer(port int, write []byte, readLen int) ([]byte, error) {
	return make([]byte, readLen), nil
}

func (h *HostSim) FlashRead(offset int64, buf []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if offset < 0 || offset+int64(len(buf)) > int64(len(h.flash)) {
		return fmt.Errorf("hal: flash read out of bounds at %d", offset)
	}
	copy(buf, h.flash[offset:offset+int64(len(buf))])
	return nil
}

func (h *HostSim) FlashWrite(offset int64, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if offset < 0 || offset+int64(len(data)) > int64(len(h.flash)) {
		return fmt.Errorf("hal: flash write out of bounds at %d", offset)
	}
	copy(h.flash[offset:offset+int64(len(data))], data)
	return nil
}

func (h *HostSim) FlashErase(offset int64, size int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if offset < 0 || offset+size > int64(len(h.flash)) {
		return fmt.Errorf("hal: flash erase out of bounds at %d", offset)
	}
	for i := offset; i < offset+size; i++ {
		h.flash[i] = 0xFF
	}
	return nil
}

func (h *HostSim) NowMs() int64 { return time.Now().UnixMilli() }

func (h *HostSim) DelayMs(ms int) { time.Sleep(time.Duration(ms) * time.Millisecond) }
