package shiftkit

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	dnslog "github.com/brutella/dnssd/log"
	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	hklog "github.com/brutella/hap/log"
	"github.com/pkg/errors"

	"shiftkit/drivers"
	"shiftkit/mqtt"
)

const defaultHomeKitDirectory = "./homekit"
const homeKitBridgeName = "shiftkit"
const homeKitBridgeAuthor = "shiftkit"

// ShiftKit wires shift registers to pin drivers and to the outside world
// (HomeKit, mqtt, http, influx). Exported fields come straight from the
// json config file.
type ShiftKit struct {
	Name string

	Registers []*Register

	HkPin       string
	HkDirectory string
	HkAddress   string
	HkDebug     bool

	MqttBroker  string
	HttpAddress string

	Gpio       *drivers.GpIO
	Mcp23017   *drivers.McpIO
	FakeDriver *drivers.MockPinDriver

	Influx *drivers.InfluxStats

	pinDrivers map[string]drivers.PinDriver
	mqttClient *mqtt.MqttClient
	ticker     *time.Ticker
}

type HkThing interface {
	GetHk() *accessory.A
	GetUniqueId() uint64
}

func (sk *ShiftKit) getHkThings() (things []HkThing) {
	for _, reg := range sk.Registers {
		for _, sw := range reg.Switches {
			things = append(things, sw)
		}
	}

	return
}

// InitDrivers sets up every configured pin driver and checks that each
// register names one of them.
func (sk *ShiftKit) InitDrivers(ctx context.Context) error {
	sk.pinDrivers = make(map[string]drivers.PinDriver)

	if sk.Gpio != nil {
		sk.pinDrivers[sk.Gpio.String()] = sk.Gpio
	}

	if sk.Mcp23017 != nil {
		sk.pinDrivers[sk.Mcp23017.String()] = sk.Mcp23017
	}

	if sk.FakeDriver != nil {
		sk.pinDrivers[sk.FakeDriver.String()] = sk.FakeDriver
	}

	for _, driver := range sk.pinDrivers {
		err := driver.Setup(ctx)
		if err != nil {
			return errors.Wrapf(err, "failed to setup %s driver", driver)
		}
	}

	for _, reg := range sk.Registers {
		_, driverFound := sk.pinDrivers[reg.GetDriverName()]
		if !driverFound {
			if _, known := drivers.MapAllPinDrivers()[reg.GetDriverName()]; !known {
				return errors.Errorf("register %s names unknown driver %s", reg.Name, reg.GetDriverName())
			}
			return errors.Errorf("driver %s not set up", reg.GetDriverName())
		}
	}

	if sk.Influx != nil {
		err := sk.Influx.Setup(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to setup influx stats reporter")
		}
	}

	return nil
}

// InitRegisters acquires pins and builds the shift register devices.
func (sk *ShiftKit) InitRegisters() error {
	for _, reg := range sk.Registers {
		err := reg.Init(sk.pinDrivers[reg.GetDriverName()])
		if err != nil {
			return errors.Wrapf(err, "failed to init register")
		}

		if sk.Influx != nil {
			reg.stats = sk.Influx
		}
	}

	return nil
}

func (sk *ShiftKit) findRegister(name string) *Register {
	for _, reg := range sk.Registers {
		if reg.Name == name {
			return reg
		}
	}

	return nil
}

func (sk *ShiftKit) GetHkAccessories(firmwareVersion string) (acc []*accessory.A) {
	acc = []*accessory.A{}

	for _, th := range sk.getHkThings() {
		accessory := th.GetHk()
		if accessory != nil {
			if accessory.Info != nil && accessory.Info.FirmwareRevision != nil {
				accessory.Info.FirmwareRevision.SetValue(firmwareVersion)
			}
			accessory.Id = th.GetUniqueId()
			acc = append(acc, accessory)
		}
	}

	return
}

// StartTicker keeps HomeKit switch states in sync with values written
// through http or mqtt.
func (sk *ShiftKit) StartTicker(interval time.Duration) {

	sk.ticker = time.NewTicker(interval)

	for range sk.ticker.C {
		for _, reg := range sk.Registers {
			for _, sw := range reg.Switches {
				err := sw.Sync()
				if err != nil {
					log.Warn("failed to sync switch", "switch", sw.Name, "err", err)
				}
			}
		}
	}
}

// appendErr keeps the first teardown error and stacks the message of
// every later one on top of it.
func appendErr(err error, closeErr error) error {
	if err == nil {
		return closeErr
	}
	return errors.Wrap(err, closeErr.Error())
}

// Close tears down the registers first (clearing outputs and releasing
// pins), then the drivers underneath them. All parts are closed even if
// some fail; the collected errors are returned.
func (sk *ShiftKit) Close() (err error) {
	for _, reg := range sk.Registers {
		closeErr := reg.Close()
		if closeErr != nil {
			err = appendErr(err, closeErr)
		}
	}

	for _, driver := range sk.pinDrivers {
		if driver != nil {
			closeErr := driver.Close()
			if closeErr != nil {
				err = appendErr(err, closeErr)
			}
		}
	}

	if sk.Influx != nil {
		closeErr := sk.Influx.Close()
		if closeErr != nil {
			err = appendErr(err, closeErr)
		}
	}

	return
}

func (sk *ShiftKit) PrintStatus(writer io.Writer) {
	fmt.Fprintln(writer)
	fmt.Fprintln(writer, "=== registers ===")
	for _, reg := range sk.Registers {
		fmt.Fprintln(writer, "________")
		fmt.Fprintf(writer, "| register: %s (driver: %s)\n", reg.Name, reg.DriverName)
		fmt.Fprintf(writer, "| capacity: %d bits\n", reg.Capacity())
		fmt.Fprintf(writer, "| value: %s\n", reg.Value().String())
		fmt.Fprintf(writer, "| pins: si=%d sck=%d rck=%d sclr=%d\n",
			reg.SerialInPin, reg.ShiftClockPin, reg.LatchClockPin, reg.ClearPin)
		fmt.Fprintln(writer, "--------")
	}
	fmt.Fprintln(writer, "-----------------------------")
	fmt.Fprintln(writer)
}

func (sk *ShiftKit) StartHomeKit(ctx context.Context, firmwareVersion string) error {
	hkName := sk.Name
	if len(hkName) < 1 {
		hkName = homeKitBridgeName
	}
	bridge := accessory.NewBridge(accessory.Info{
		Name:         hkName,
		Manufacturer: homeKitBridgeAuthor,
		Firmware:     firmwareVersion,
	})

	var store hap.Store
	if len(sk.HkDirectory) > 1 {
		store = hap.NewFsStore(sk.HkDirectory)
	} else {
		store = hap.NewFsStore(defaultHomeKitDirectory)
	}
	hkServer, err := hap.NewServer(store, bridge.A, sk.GetHkAccessories(firmwareVersion)...)
	if err != nil {
		return errors.Wrap(err, "failed to create HomeKit server")
	}
	hkServer.Pin = sk.HkPin
	if len(sk.HkAddress) > 0 {
		hkServer.Addr = sk.HkAddress
	}

	if sk.HkDebug {
		hklog.Debug.Enable()
		dnslog.Debug.Enable()
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	signal.Notify(c, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		<-c
		// Stop delivering signals.
		signal.Stop(c)
		// Cancel the context to stop the server.
		cancel()
	}()

	return hkServer.ListenAndServe(ctx)
}

func (sk *ShiftKit) InitMqtt() (err error) {
	if len(sk.MqttBroker) == 0 {
		err = errors.New("mqtt broker not set")
		return
	}

	mc, err := mqtt.NewMqttClient(sk.MqttBroker, sk.Name)
	if err != nil {
		err = errors.Wrap(err, "failed to create mqtt client")
		return
	}

	sk.mqttClient = mc

	mqttHandlers := []mqtt.MqttHandler{}
	for _, reg := range sk.Registers {
		mqttHandlers = append(mqttHandlers, reg.SetMqtt(mc)...)
	}

	err = mc.Connect(mqttHandlers)
	if err != nil {
		err = errors.Wrap(err, "failed to connect to mqtt broker")
	}

	return
}
