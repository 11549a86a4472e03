// Package hal defines the narrow external-collaborator interfaces the core
// runtime is built against but never implements a hardware body for (spec
// §1 "Deliberately out of scope", §6 "Collaborators consumed by the core").
// GPIO/I2C/SPI/UART shims, sensor/actuator drivers, wire-protocol framing,
// pin-name mapping, and platform config loading are I/O leaves; this
// package only carries their contracts plus a host-simulation
// implementation good enough to drive the core's tests and the
// cmd/mcpsim demo.
package hal

import "context"

// HAL is the byte-level I/O collaborator: digital/analog pins, the three
// common serial buses, raw flash access, and the platform clock (spec §6
// "HAL").
type HAL interface {
	DigitalRead(pin int) (bool, error)
	DigitalWrite(pin int, high bool) error
	AnalogRead(pin int) (int, error)
	AnalogWrite(pin int, value int) error

	I2CTransfer(addr int, write []byte, readLen int) ([]byte, error)
	SPITransfer(cs int, write []byte) ([]byte, error)
	UARTTransfer(port int, write []byte, readLen int) ([]byte, error)

	FlashRead(offset int64, buf []byte) error
	FlashWrite(offset int64, data []byte) error
	FlashErase(offset int64, size int64) error

	NowMs() int64
	DelayMs(ms int)
}

// SensorActuatorManager reads named sensors and commands named actuators
// (spec §6 "Sensor/actuator manager"). Names, not pin numbers, are the
// public contract: board-specific pin mapping lives behind an
// implementation of this interface, never in core code.
type SensorActuatorManager interface {
	// ReadSensor returns the current reading for the named sensor as a
	// dynamic Value (spec §3 "Value (dynamic)... sensor/actuator state").
	ReadSensor(ctx context.Context, id string) (SensorValue, error)
	// Actuate issues command with paramsJSON to the named actuator and
	// returns a JSON result body, mirroring the tool Result shape actions
	// ultimately surface through (spec §4.3 "actuator action dispatch").
	Actuate(ctx context.Context, id, command string, paramsJSON string) (resultJSON string, err error)
}

// SensorValue is a named sensor's last reading, carried as the dynamic
// value domain plus the wall-clock time it was taken.
type SensorValue struct {
	Kind        Kind
	Bool        bool
	Number      float64
	Str         string
	TimestampMs int64
}

// Kind discriminates SensorValue's payload, mirroring the shape of
// value.Kind without importing package value here — hal is meant to be
// importable by board-specific driver packages that have no reason to
// depend on the core's internal Value representation.
type Kind int

const (
	KindBool Kind = iota
	KindNumber
	KindString
)
