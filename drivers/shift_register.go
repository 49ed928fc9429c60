package drivers

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

const bitsPerRegister = 8

// settleTime is a conservative margin for electrical settling on typical
// 74xx595 hardware, not something derived from a datasheet timing table.
const settleTime = 10 * time.Millisecond

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotReady        = errors.New("shift register not ready")
)

// PinSetupError reports a pin that could not be configured as output
// while constructing a ShiftRegister. Pins configured before the failing
// one are already released when the caller sees this error.
type PinSetupError struct {
	Pin   uint16
	cause error
}

func (pse *PinSetupError) Error() string {
	return fmt.Sprintf("failed to configure pin %d as output: %v", pse.Pin, pse.cause)
}

func (pse *PinSetupError) Unwrap() error {
	return pse.cause
}

// PinSet names the four control pins of a 74xx595 chain.
type PinSet struct {
	SerialIn   uint16
	ShiftClock uint16
	LatchClock uint16
	Clear      uint16
}

func (ps PinSet) list() []uint16 {
	return []uint16{ps.SerialIn, ps.ShiftClock, ps.LatchClock, ps.Clear}
}

// ShiftRegister drives a chain of serial-in/parallel-out shift registers
// (74HC595 or similar) by bit-banging four output pins of a PinDriver.
// It owns those pins from construction until Close.
//
// All operations block the calling goroutine for their full duration;
// a Write takes roughly capacity * 2 * settleTime. There is no internal
// locking: one register, one owner, one goroutine.
type ShiftRegister struct {
	driver   PinDriver
	pins     PinSet
	capacity int
	ready    bool
	logger   *log.Logger
}

// NewShiftRegister configures the four pins as outputs, in PinSet field
// order, and returns a ready register with capacity (slaves+1)*8 bits.
// If configuring any pin fails, the pins configured so far are released
// before the error is returned; no partially built register ever escapes.
func NewShiftRegister(driver PinDriver, pins PinSet, slaves int) (*ShiftRegister, error) {
	if slaves < 0 {
		return nil, fmt.Errorf("%w: slave count can't be negative, got %d", ErrInvalidArgument, slaves)
	}

	sr := &ShiftRegister{
		driver:   driver,
		pins:     pins,
		capacity: (slaves + 1) * bitsPerRegister,
		logger: log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "ShiftRegister: ",
			Level:  log.GetLevel(),
		}),
	}

	ordered := pins.list()
	for i, pin := range ordered {
		err := driver.ConfigureOutput(pin)
		if err == nil {
			continue
		}

		sr.logger.Debug("pin setup failed, releasing configured pins", "failed", pin, "releasing", ordered[:i])
		for _, configured := range ordered[:i] {
			if releaseErr := driver.Release(configured); releaseErr != nil {
				sr.logger.Warn("rollback release failed", "pin", configured, "err", releaseErr)
			}
		}

		return nil, &PinSetupError{Pin: pin, cause: err}
	}

	sr.ready = true
	return sr, nil
}

// Capacity returns the register chain width in bits.
func (sr *ShiftRegister) Capacity() int {
	return sr.capacity
}

// Clear resets the register's internal storage to zero. The output pins
// keep their previous state until the next latch pulse.
func (sr *ShiftRegister) Clear() error {
	if !sr.ready {
		return ErrNotReady
	}

	return sr.clear()
}

func (sr *ShiftRegister) clear() error {
	if err := sr.driver.SetLevel(sr.pins.Clear, Low); err != nil {
		return err
	}
	time.Sleep(settleTime)
	return sr.driver.SetLevel(sr.pins.Clear, High)
}

// pulse takes the pin low, high and low again, holding settleTime after
// each edge towards high. Ends with the pin low.
func (sr *ShiftRegister) pulse(pin uint16) error {
	if err := sr.driver.SetLevel(pin, Low); err != nil {
		return err
	}
	time.Sleep(settleTime)
	if err := sr.driver.SetLevel(pin, High); err != nil {
		return err
	}
	time.Sleep(settleTime)
	return sr.driver.SetLevel(pin, Low)
}

// Write clears the register and shifts data in, most significant bit
// first, then latches the new contents onto the output pins. data must
// be non-negative and fit in Capacity bits; nothing is written to the
// hardware otherwise.
func (sr *ShiftRegister) Write(data *big.Int) error {
	if !sr.ready {
		return ErrNotReady
	}
	if data == nil || data.Sign() < 0 {
		return fmt.Errorf("%w: data must be a non-negative integer", ErrInvalidArgument)
	}
	if data.BitLen() > sr.capacity {
		return fmt.Errorf("%w: data needs %d bits, register holds %d", ErrInvalidArgument, data.BitLen(), sr.capacity)
	}

	if err := sr.clear(); err != nil {
		return err
	}

	for i := sr.capacity - 1; i >= 0; i-- {
		if err := sr.driver.SetLevel(sr.pins.SerialIn, Level(data.Bit(i) == 1)); err != nil {
			return err
		}
		if err := sr.pulse(sr.pins.ShiftClock); err != nil {
			return err
		}
	}

	return sr.pulse(sr.pins.LatchClock)
}

// Close clears the register, latches the cleared state onto the outputs,
// drives all four pins low and gives them back to the driver. Teardown is
// best effort: a pin that fails to release is logged and skipped, the
// remaining pins are still released. Valid exactly once; later calls and
// any operation after Close return ErrNotReady.
func (sr *ShiftRegister) Close() error {
	if !sr.ready {
		return ErrNotReady
	}
	sr.ready = false

	if err := sr.clear(); err != nil {
		sr.logger.Warn("teardown clear failed", "err", err)
	}
	if err := sr.pulse(sr.pins.LatchClock); err != nil {
		sr.logger.Warn("teardown latch pulse failed", "err", err)
	}
	if err := sr.driver.SetLevels(sr.pins.list(), Low); err != nil {
		sr.logger.Warn("failed to drive pins low on teardown", "err", err)
	}

	for _, pin := range sr.pins.list() {
		if err := sr.driver.Release(pin); err != nil {
			sr.logger.Warn("failed to release pin, continuing teardown", "pin", pin, "err", err)
		}
	}

	return nil
}
