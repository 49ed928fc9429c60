package drivers

import (
	"context"
	"fmt"

	"github.com/racerxdl/go-mcp23017"
)

const mcpioDriverName = "mcpio"
const mcpioPinCount = 16

// McpIO drives the pins of an mcp23017 i2c port expander. Handy when the
// SoC header is short on free pins: the four register control lines fit
// on one expander bank.
type McpIO struct {
	device *mcp23017.Device

	configured map[uint16]bool
	isReady    bool

	BusNo uint8
	DevNo uint8
}

func (mcp *McpIO) Setup(ctx context.Context) (err error) {
	mcp.device, err = mcp23017.Open(mcp.BusNo, mcp.DevNo)
	if err != nil {
		return
	}

	mcp.configured = make(map[uint16]bool)
	mcp.isReady = true
	return
}

func (mcp *McpIO) String() string {
	return mcpioDriverName
}

func (mcp *McpIO) IsReady() bool {
	return mcp.isReady
}

func (mcp *McpIO) ConfigureOutput(pin uint16) error {
	if pin >= mcpioPinCount {
		return fmt.Errorf("pin %d out of range (mcpio has %d pins)", pin, mcpioPinCount)
	}

	err := mcp.device.PinMode(uint8(pin), mcp23017.OUTPUT)
	if err != nil {
		return err
	}

	mcp.configured[pin] = true
	return nil
}

func (mcp *McpIO) SetLevel(pin uint16, level Level) error {
	if !mcp.configured[pin] {
		return fmt.Errorf("pin %d not configured as output", pin)
	}

	return mcp.device.DigitalWrite(uint8(pin), mcp23017.PinLevel(level))
}

func (mcp *McpIO) SetLevels(pins []uint16, level Level) error {
	for _, pin := range pins {
		if err := mcp.SetLevel(pin, level); err != nil {
			return err
		}
	}
	return nil
}

// Release puts the pin back into input mode.
func (mcp *McpIO) Release(pin uint16) error {
	if !mcp.configured[pin] {
		return fmt.Errorf("pin %d not configured, nothing to release", pin)
	}

	err := mcp.device.PinMode(uint8(pin), mcp23017.INPUT)
	if err != nil {
		return err
	}

	delete(mcp.configured, pin)
	return nil
}

func (mcp *McpIO) Close() error {
	mcp.isReady = false
	for pin := range mcp.configured {
		mcp.device.DigitalWrite(uint8(pin), mcp23017.PinLevel(Low))
	}
	mcp.configured = nil
	return mcp.device.Close()
}
