package shiftkit

import (
	"hash/fnv"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/eclipse/paho.golang/paho"
	"github.com/pkg/errors"

	"shiftkit/drivers"
	"shiftkit/mqtt"
)

// StatsReporter gets told about every completed register write.
type StatsReporter interface {
	ReportWrite(register string, value *big.Int, bits int, took time.Duration) error
}

// Register is one 74xx595 chain: the core driver plus everything the kit
// hangs off it (named bit switches, mqtt topics, stats reporting). The
// exported fields come from the json config.
type Register struct {
	Name       string
	DriverName string

	SerialInPin   uint16
	ShiftClockPin uint16
	LatchClockPin uint16
	ClearPin      uint16
	Slaves        int

	Switches []*OutputSwitch

	device *drivers.ShiftRegister
	driver drivers.PinDriver

	value     *big.Int
	publisher mqtt.Publisher
	stats     StatsReporter

	lock sync.Mutex
}

func (reg *Register) GetDriverName() string {
	return reg.DriverName
}

func (reg *Register) GetUniqueId() uint64 {
	hash := fnv.New64()
	hash.Write([]byte("Register_" + reg.Name))
	return hash.Sum64()
}

func (reg *Register) Init(driver drivers.PinDriver) error {
	if !strings.EqualFold(driver.String(), reg.DriverName) {
		return errors.Errorf("Init failed, mismatched or incorrect driver")
	}

	if !driver.IsReady() {
		return errors.Errorf("Init failed, driver not ready")
	}

	pins := drivers.PinSet{
		SerialIn:   reg.SerialInPin,
		ShiftClock: reg.ShiftClockPin,
		LatchClock: reg.LatchClockPin,
		Clear:      reg.ClearPin,
	}

	device, err := drivers.NewShiftRegister(driver, pins, reg.Slaves)
	if err != nil {
		return errors.Wrapf(err, "failed to init register %s", reg.Name)
	}

	reg.driver = driver
	reg.device = device
	reg.value = big.NewInt(0)

	for _, sw := range reg.Switches {
		err = sw.Init(reg)
		if err != nil {
			return errors.Wrapf(err, "failed to init switch %s of register %s", sw.Name, reg.Name)
		}
	}

	return nil
}

func (reg *Register) Capacity() int {
	if reg.device == nil {
		return 0
	}
	return reg.device.Capacity()
}

// Value returns a copy of the last value written.
func (reg *Register) Value() *big.Int {
	reg.lock.Lock()
	defer reg.lock.Unlock()

	return new(big.Int).Set(reg.value)
}

// Write shifts value out to the hardware and remembers it. Blocks for
// the full duration of the hardware write.
func (reg *Register) Write(value *big.Int) error {
	reg.lock.Lock()
	defer reg.lock.Unlock()

	return reg.write(value)
}

// Clear wipes the register contents and latches zero onto the outputs.
func (reg *Register) Clear() error {
	reg.lock.Lock()
	defer reg.lock.Unlock()

	return reg.write(big.NewInt(0))
}

// SetBit flips a single output bit, rewriting the whole chain.
func (reg *Register) SetBit(bit int, state bool) error {
	reg.lock.Lock()
	defer reg.lock.Unlock()

	if bit < 0 || bit >= reg.device.Capacity() {
		return errors.Wrapf(drivers.ErrInvalidArgument, "bit %d outside of %d bit register", bit, reg.device.Capacity())
	}

	value := new(big.Int).Set(reg.value)
	bitValue := uint(0)
	if state {
		bitValue = 1
	}
	value.SetBit(value, bit, bitValue)

	return reg.write(value)
}

// GetBit reads a single bit of the last written value.
func (reg *Register) GetBit(bit int) bool {
	reg.lock.Lock()
	defer reg.lock.Unlock()

	return reg.value.Bit(bit) == 1
}

func (reg *Register) write(value *big.Int) error {
	started := time.Now()
	err := reg.device.Write(value)
	if err != nil {
		return err
	}
	reg.value.Set(value)

	if reg.stats != nil {
		statsErr := reg.stats.ReportWrite(reg.Name, value, reg.device.Capacity(), time.Since(started))
		if statsErr != nil {
			log.Warn("failed to report register write", "register", reg.Name, "err", statsErr)
		}
	}

	reg.publishState()

	return nil
}

func (reg *Register) Close() error {
	if reg.device == nil {
		return nil
	}
	return reg.device.Close()
}

func (reg *Register) mqttTopic(suffix string) string {
	return "shiftkit/" + reg.Name + "/" + suffix
}

func (reg *Register) MqttSubscribeTopic() string {
	return reg.mqttTopic("set")
}

func (reg *Register) MqttHandle(pub *paho.Publish) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(string(pub.Payload)), 10)
	if !ok {
		log.Warn("ignoring mqtt payload, not a decimal integer", "register", reg.Name, "payload", string(pub.Payload))
		return
	}

	err := reg.Write(value)
	if err != nil {
		log.Warn("mqtt triggered write failed", "register", reg.Name, "err", err)
	}
}

// SetMqtt hooks the register to a broker connection; the handler it
// returns listens on shiftkit/<name>/set.
func (reg *Register) SetMqtt(publisher mqtt.Publisher) []mqtt.MqttHandler {
	reg.publisher = publisher
	return []mqtt.MqttHandler{reg}
}

func (reg *Register) publishState() {
	if reg.publisher == nil {
		return
	}

	err := reg.publisher.Publish(reg.mqttTopic("state"), []byte(reg.value.String()))
	if err != nil {
		log.Warn("failed to publish register state", "register", reg.Name, "err", err)
	}
}
