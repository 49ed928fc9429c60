package shiftkit

import (
	"fmt"
	"hash/fnv"

	"github.com/brutella/hap/accessory"
	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"shiftkit/drivers"
)

// OutputSwitch exposes one bit of a register as a HomeKit switch.
type OutputSwitch struct {
	Name           string
	Bit            int
	State          bool
	DisableHomekit bool

	register *Register
	hk       *accessory.Switch
}

func (osw *OutputSwitch) GetUniqueId() uint64 {
	hash := fnv.New64()
	hash.Write([]byte("OutputSwitch_" + osw.register.Name + "_" + osw.Name))
	return hash.Sum64()
}

func (osw *OutputSwitch) Init(reg *Register) error {
	if osw.Bit < 0 || osw.Bit >= reg.Capacity() {
		return errors.Wrapf(drivers.ErrInvalidArgument, "switch %s: bit %d outside of %d bit register", osw.Name, osw.Bit, reg.Capacity())
	}

	osw.register = reg

	if osw.DisableHomekit {
		return nil
	}

	info := accessory.Info{
		Name:         osw.Name,
		SerialNumber: fmt.Sprintf("switch:%s:%02d", reg.Name, osw.Bit),
	}
	osw.hk = accessory.NewSwitch(info)
	osw.hk.Switch.On.OnValueRemoteUpdate(osw.SetValue)

	return nil
}

func (osw *OutputSwitch) SetValue(state bool) {
	osw.State = state
	err := osw.register.SetBit(osw.Bit, state)
	if err != nil {
		log.Warn("failed to set register bit", "switch", osw.Name, "bit", osw.Bit, "err", err)
	}
}

func (osw *OutputSwitch) Toggle() {
	osw.SetValue(!osw.State)
}

// Sync pulls the switch state back from the register value, covering
// writes that came in through http or mqtt.
func (osw *OutputSwitch) Sync() error {
	oldState := osw.State
	osw.State = osw.register.GetBit(osw.Bit)

	if oldState != osw.State && osw.hk != nil {
		osw.hk.Switch.On.SetValue(osw.State)
	}

	return nil
}

func (osw *OutputSwitch) GetHk() *accessory.A {
	if osw.hk == nil {
		return nil
	}
	return osw.hk.A
}
