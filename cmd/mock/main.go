package main

import (
	"context"
	"log"
	"math/big"
	"os"
	"time"

	"shiftkit"
	"shiftkit/drivers"
)

var (
	Version string
	Build   string
)

func main() {
	var err error

	log.Println("shiftkit started")
	log.Println("mock instance for testing purposes, no hardware needed")

	sk := &shiftkit.ShiftKit{}

	sk.HkPin = "88008800"
	sk.FakeDriver = &drivers.MockPinDriver{}
	sk.Registers = append(sk.Registers, &shiftkit.Register{
		Name:          "demo",
		DriverName:    "mock_driver",
		SerialInPin:   2,
		ShiftClockPin: 3,
		LatchClockPin: 4,
		ClearPin:      5,
		Slaves:        1,
		Switches: []*shiftkit.OutputSwitch{
			{Name: "fake valve", Bit: 0},
			{Name: "fake lamp", Bit: 9},
		},
	})

	log.Println("will init shiftkit drivers...")
	err = sk.InitDrivers(context.Background())
	defer sk.Close()
	if err != nil {
		panic(err)
	}

	log.Println("will init shift registers...")
	err = sk.InitRegisters()
	if err != nil {
		panic(err)
	}

	sk.FakeDriver.MonitorStateChanges(os.Stdout)

	log.Println("writing a demo pattern...")
	err = sk.Registers[0].Write(big.NewInt(0x0201))
	if err != nil {
		panic(err)
	}

	sk.PrintStatus(os.Stdout)

	log.Println("starting mock with HomeKit service")

	go sk.StartTicker(250 * time.Millisecond)

	sk.HkDirectory = "./mock_homekit"
	log.Fatal(sk.StartHomeKit(context.Background(), "mock: "+Version))
}
