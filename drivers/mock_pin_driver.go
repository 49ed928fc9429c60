package drivers

import (
	"context"
	"fmt"
	"io"
)

const mockPinDriverName = "mock_driver"

type PinAction string

const (
	ActionConfigure PinAction = "configure"
	ActionSetLevel  PinAction = "set_level"
	ActionRelease   PinAction = "release"
)

// PinOp is one recorded hardware operation.
type PinOp struct {
	Action PinAction
	Pin    uint16
	Level  Level
}

// MockPinDriver is an in-memory PinDriver recording every operation in
// order. ConfigureOutput failures can be injected per pin, which is how
// the shift register construction rollback gets exercised.
type MockPinDriver struct {
	FailConfigure map[uint16]error

	ops        []PinOp
	configured map[uint16]bool
	levels     map[uint16]Level
	ready      bool

	writeTo          io.Writer
	writeStateChange bool
}

func (md *MockPinDriver) Setup(ctx context.Context) error {
	md.configured = make(map[uint16]bool)
	md.levels = make(map[uint16]Level)
	md.ops = nil
	md.ready = true
	return nil
}

func (md *MockPinDriver) Close() error {
	md.ready = false
	return nil
}

func (md *MockPinDriver) String() string {
	return mockPinDriverName
}

func (md *MockPinDriver) IsReady() bool {
	return md.ready
}

func (md *MockPinDriver) ConfigureOutput(pin uint16) error {
	if err, shouldFail := md.FailConfigure[pin]; shouldFail {
		return err
	}

	md.configured[pin] = true
	md.ops = append(md.ops, PinOp{Action: ActionConfigure, Pin: pin})
	return nil
}

func (md *MockPinDriver) SetLevel(pin uint16, level Level) error {
	if !md.configured[pin] {
		return fmt.Errorf("mock pin %d not configured as output", pin)
	}

	if md.writeStateChange && md.levels[pin] != level {
		fmt.Fprintf(md.writeTo, "[pin %d] level changed to %s\n", pin, level)
	}
	md.levels[pin] = level
	md.ops = append(md.ops, PinOp{Action: ActionSetLevel, Pin: pin, Level: level})
	return nil
}

func (md *MockPinDriver) SetLevels(pins []uint16, level Level) error {
	for _, pin := range pins {
		if err := md.SetLevel(pin, level); err != nil {
			return err
		}
	}
	return nil
}

func (md *MockPinDriver) Release(pin uint16) error {
	if !md.configured[pin] {
		return fmt.Errorf("mock pin %d not configured, nothing to release", pin)
	}

	delete(md.configured, pin)
	md.ops = append(md.ops, PinOp{Action: ActionRelease, Pin: pin})
	return nil
}

// Ops returns every operation recorded since Setup.
func (md *MockPinDriver) Ops() []PinOp {
	return md.ops
}

// OpsFor returns the recorded operations touching one pin.
func (md *MockPinDriver) OpsFor(pin uint16) (ops []PinOp) {
	for _, op := range md.ops {
		if op.Pin == pin {
			ops = append(ops, op)
		}
	}
	return
}

// ConfiguredPins returns the pins currently held as outputs.
func (md *MockPinDriver) ConfiguredPins() (pins []uint16) {
	for pin, on := range md.configured {
		if on {
			pins = append(pins, pin)
		}
	}
	return
}

// ResetOps drops the recorded history, keeping pin state.
func (md *MockPinDriver) ResetOps() {
	md.ops = nil
}

// MonitorStateChanges writes every pin level change to writer.
func (md *MockPinDriver) MonitorStateChanges(writer io.Writer) {
	md.writeTo = writer
	md.writeStateChange = true
}
