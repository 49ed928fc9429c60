package drivers

import (
	"context"
)

// Level is a digital output level.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (lv Level) String() string {
	if lv {
		return "high"
	}
	return "low"
}

// PinDriver gives access to digital output pins of a single io device
// (SoC gpio header, i2c expander, mock). Pins handed to a ShiftRegister
// are owned by it until released, the driver does not police that.
type PinDriver interface {
	Setup(ctx context.Context) error
	Close() error
	String() string
	IsReady() bool

	ConfigureOutput(pin uint16) error
	SetLevel(pin uint16, level Level) error
	SetLevels(pins []uint16, level Level) error
	Release(pin uint16) error
}

func MapAllPinDrivers() map[string]PinDriver {
	drivers := []PinDriver{
		&GpIO{},
		&McpIO{},
		&MockPinDriver{},
	}

	mapped := make(map[string]PinDriver)
	for _, driver := range drivers {
		mapped[driver.String()] = driver
	}
	return mapped
}
