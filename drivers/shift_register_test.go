package drivers

import (
	"context"
	"errors"
	"math/big"
	"testing"
)

func assertInts(t testing.TB, got, want int) {
	t.Helper()

	if got != want {
		t.Errorf("got: %d, want: %d", got, want)
	}
}

func assertNoOps(t testing.TB, md *MockPinDriver) {
	t.Helper()

	if len(md.Ops()) != 0 {
		t.Errorf("expected no pin operations, got %d: %v", len(md.Ops()), md.Ops())
	}
}

func testPins() PinSet {
	return PinSet{SerialIn: 2, ShiftClock: 3, LatchClock: 4, Clear: 5}
}

func readyMock(t testing.TB) *MockPinDriver {
	t.Helper()

	md := &MockPinDriver{}
	err := md.Setup(context.Background())
	if err != nil {
		t.Fatalf("mock driver Setup failed: %v", err)
	}
	return md
}

func mustRegister(t testing.TB, md *MockPinDriver, slaves int) *ShiftRegister {
	t.Helper()

	sr, err := NewShiftRegister(md, testPins(), slaves)
	if err != nil {
		t.Fatalf("NewShiftRegister failed: %v", err)
	}
	return sr
}

// countLevelSets counts set_level ops on pin with the given level.
func countLevelSets(ops []PinOp, pin uint16, level Level) (count int) {
	for _, op := range ops {
		if op.Action == ActionSetLevel && op.Pin == pin && op.Level == level {
			count++
		}
	}
	return
}

// serialAtShiftPulses walks the op stream and records the serial-in level
// that was current whenever the shift clock went high.
func serialAtShiftPulses(ops []PinOp, pins PinSet) (levels []Level) {
	serial := Low
	for _, op := range ops {
		if op.Action != ActionSetLevel {
			continue
		}
		if op.Pin == pins.SerialIn {
			serial = op.Level
		}
		if op.Pin == pins.ShiftClock && op.Level == High {
			levels = append(levels, serial)
		}
	}
	return
}

func TestCapacity(t *testing.T) {
	for slaves, want := range map[int]int{0: 8, 1: 16, 2: 24, 7: 64, 10: 88} {
		md := readyMock(t)
		sr := mustRegister(t, md, slaves)

		assertInts(t, sr.Capacity(), want)
	}
}

func TestNewShiftRegisterNegativeSlaves(t *testing.T) {
	md := readyMock(t)

	sr, err := NewShiftRegister(md, testPins(), -1)
	if sr != nil {
		t.Error("got a register from a negative slave count")
	}
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("want ErrInvalidArgument, got: %v", err)
	}

	assertNoOps(t, md)
}

func TestNewShiftRegisterRollback(t *testing.T) {
	pins := testPins()
	injected := errors.New("pin is busy")

	md := readyMock(t)
	md.FailConfigure = map[uint16]error{pins.LatchClock: injected}

	sr, err := NewShiftRegister(md, pins, 0)
	if sr != nil {
		t.Fatal("got a register despite pin setup failure")
	}

	var pse *PinSetupError
	if !errors.As(err, &pse) {
		t.Fatalf("want *PinSetupError, got: %v", err)
	}
	if pse.Pin != pins.LatchClock {
		t.Errorf("PinSetupError names pin %d, want %d", pse.Pin, pins.LatchClock)
	}
	if !errors.Is(err, injected) {
		t.Errorf("PinSetupError should wrap the driver error, got: %v", err)
	}

	want := []PinOp{
		{Action: ActionConfigure, Pin: pins.SerialIn},
		{Action: ActionConfigure, Pin: pins.ShiftClock},
		{Action: ActionRelease, Pin: pins.SerialIn},
		{Action: ActionRelease, Pin: pins.ShiftClock},
	}
	got := md.Ops()
	if len(got) != len(want) {
		t.Fatalf("rollback op count mismatch, got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("op[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if len(md.ConfiguredPins()) != 0 {
		t.Errorf("pins still held after rollback: %v", md.ConfiguredPins())
	}
}

func TestNewShiftRegisterFirstPinFails(t *testing.T) {
	pins := testPins()

	md := readyMock(t)
	md.FailConfigure = map[uint16]error{pins.SerialIn: errors.New("pin is busy")}

	sr, err := NewShiftRegister(md, pins, 0)
	if sr != nil || err == nil {
		t.Fatal("expected construction failure on first pin")
	}

	// nothing was acquired, so nothing to roll back and nothing to tear down
	assertNoOps(t, md)
}

func TestWriteTooWide(t *testing.T) {
	md := readyMock(t)
	sr := mustRegister(t, md, 0)
	md.ResetOps()

	err := sr.Write(big.NewInt(256))
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("want ErrInvalidArgument for 9 bit value on 8 bit register, got: %v", err)
	}

	err = sr.Write(big.NewInt(-1))
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("want ErrInvalidArgument for negative value, got: %v", err)
	}

	assertNoOps(t, md)
}

func TestWriteZero(t *testing.T) {
	pins := testPins()
	md := readyMock(t)
	sr := mustRegister(t, md, 0)
	md.ResetOps()

	err := sr.Write(big.NewInt(0))
	if err != nil {
		t.Fatalf("Write(0) failed: %v", err)
	}

	levels := serialAtShiftPulses(md.Ops(), pins)
	assertInts(t, len(levels), 8)
	for i, level := range levels {
		if level != Low {
			t.Errorf("shift pulse %d saw serial-in high while writing zero", i)
		}
	}

	assertInts(t, countLevelSets(md.Ops(), pins.LatchClock, High), 1)
}

func TestWriteOne(t *testing.T) {
	pins := testPins()
	md := readyMock(t)
	sr := mustRegister(t, md, 0)
	md.ResetOps()

	err := sr.Write(big.NewInt(1))
	if err != nil {
		t.Fatalf("Write(1) failed: %v", err)
	}

	levels := serialAtShiftPulses(md.Ops(), pins)
	assertInts(t, len(levels), 8)
	for i, level := range levels {
		wantHigh := i == 7
		if bool(level) != wantHigh {
			t.Errorf("shift pulse %d: serial-in %s, want high only on the last pulse", i, level)
		}
	}

	assertInts(t, countLevelSets(md.Ops(), pins.LatchClock, High), 1)
}

func TestWriteMsbFirst(t *testing.T) {
	pins := testPins()
	md := readyMock(t)
	sr := mustRegister(t, md, 1)
	md.ResetOps()

	// bit 15 and bit 0 set on a 16 bit chain
	err := sr.Write(big.NewInt(0x8001))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	levels := serialAtShiftPulses(md.Ops(), pins)
	assertInts(t, len(levels), 16)
	for i, level := range levels {
		wantHigh := i == 0 || i == 15
		if bool(level) != wantHigh {
			t.Errorf("shift pulse %d: serial-in %s", i, level)
		}
	}
}

func TestSequentialWritesIndependent(t *testing.T) {
	md := readyMock(t)
	sr := mustRegister(t, md, 0)

	err := sr.Write(big.NewInt(0xA5))
	if err != nil {
		t.Fatalf("first Write failed: %v", err)
	}
	md.ResetOps()

	err = sr.Write(big.NewInt(0x5A))
	if err != nil {
		t.Fatalf("second Write failed: %v", err)
	}
	second := md.Ops()

	// the same value written to a fresh register must produce the exact
	// same op stream: every write starts from a cleared register
	freshMd := readyMock(t)
	fresh := mustRegister(t, freshMd, 0)
	freshMd.ResetOps()

	err = fresh.Write(big.NewInt(0x5A))
	if err != nil {
		t.Fatalf("fresh Write failed: %v", err)
	}
	reference := freshMd.Ops()

	if len(second) != len(reference) {
		t.Fatalf("op count differs: %d vs %d", len(second), len(reference))
	}
	for i := range reference {
		if second[i] != reference[i] {
			t.Errorf("op[%d] = %v, want %v", i, second[i], reference[i])
		}
	}
}

func TestClearEndsHigh(t *testing.T) {
	pins := testPins()
	md := readyMock(t)
	sr := mustRegister(t, md, 0)
	md.ResetOps()

	err := sr.Clear()
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	ops := md.OpsFor(pins.Clear)
	assertInts(t, len(ops), 2)
	if ops[0].Level != Low || ops[1].Level != High {
		t.Errorf("Clear should drive the clear pin low then high, got %v", ops)
	}

	// clearing alone must not touch the latch clock
	assertInts(t, len(md.OpsFor(pins.LatchClock)), 0)
}

func TestClose(t *testing.T) {
	pins := testPins()
	md := readyMock(t)
	sr := mustRegister(t, md, 0)

	if err := sr.Write(big.NewInt(0x3C)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	md.ResetOps()

	if err := sr.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	ops := md.Ops()

	// one clear cycle and one latch pulse to propagate the cleared state
	assertInts(t, countLevelSets(ops, pins.Clear, High), 1)
	assertInts(t, countLevelSets(ops, pins.LatchClock, High), 1)

	for _, pin := range []uint16{pins.SerialIn, pins.ShiftClock, pins.LatchClock, pins.Clear} {
		pinOps := md.OpsFor(pin)
		if len(pinOps) == 0 {
			t.Fatalf("pin %d untouched during teardown", pin)
		}
		last := pinOps[len(pinOps)-1]
		if last.Action != ActionRelease {
			t.Errorf("pin %d: last op %v, want release", pin, last)
		}
		beforeRelease := pinOps[len(pinOps)-2]
		if beforeRelease.Action != ActionSetLevel || beforeRelease.Level != Low {
			t.Errorf("pin %d not driven low before release, got %v", pin, beforeRelease)
		}
	}

	if len(md.ConfiguredPins()) != 0 {
		t.Errorf("pins still held after Close: %v", md.ConfiguredPins())
	}

	if err := sr.Close(); !errors.Is(err, ErrNotReady) {
		t.Errorf("second Close: want ErrNotReady, got: %v", err)
	}
	if err := sr.Write(big.NewInt(1)); !errors.Is(err, ErrNotReady) {
		t.Errorf("Write after Close: want ErrNotReady, got: %v", err)
	}
	if err := sr.Clear(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Clear after Close: want ErrNotReady, got: %v", err)
	}
}
