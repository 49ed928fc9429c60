package drivers

import (
	"context"

	"github.com/pkg/errors"
	"github.com/stianeikeland/go-rpio/v4"
)

const gpioDriverName = "gpio"

// GpIO drives SoC header pins through /dev/gpiomem (go-rpio).
type GpIO struct {
	configured map[uint16]bool
	isReady    bool
}

func (gp *GpIO) Setup(ctx context.Context) error {
	err := rpio.Open()
	if err != nil {
		return errors.Wrap(err, "failed to Setup gpio driver")
	}

	gp.configured = make(map[uint16]bool)
	gp.isReady = true
	return nil
}

func (gp *GpIO) String() string {
	return gpioDriverName
}

func (gp *GpIO) IsReady() bool {
	return gp.isReady
}

func (gp *GpIO) ConfigureOutput(pin uint16) error {
	if pin > 255 {
		return errors.Errorf("pin %d out of range (gpio takes uint8 pin)", pin)
	}

	rpio.Pin(pin).Output()
	gp.configured[pin] = true
	return nil
}

func (gp *GpIO) SetLevel(pin uint16, level Level) error {
	if !gp.configured[pin] {
		return errors.Errorf("pin %d not configured as output", pin)
	}

	if level == High {
		rpio.Pin(pin).High()
	} else {
		rpio.Pin(pin).Low()
	}
	return nil
}

func (gp *GpIO) SetLevels(pins []uint16, level Level) error {
	for _, pin := range pins {
		if err := gp.SetLevel(pin, level); err != nil {
			return err
		}
	}
	return nil
}

// Release puts the pin back into input mode, leaving it floating.
func (gp *GpIO) Release(pin uint16) error {
	if !gp.configured[pin] {
		return errors.Errorf("pin %d not configured, nothing to release", pin)
	}

	rpio.Pin(pin).Input()
	delete(gp.configured, pin)
	return nil
}

func (gp *GpIO) Close() error {
	gp.isReady = false
	for pin := range gp.configured {
		rpio.Pin(pin).Low()
		rpio.Pin(pin).Input()
	}
	gp.configured = nil
	return rpio.Close()
}
