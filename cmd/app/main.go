package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log"
	"os"
	"time"

	"github.com/hubertat/servicemaker"

	"shiftkit"
)

const defaultSyncInterval = "750ms"

var (
	Version string
	Build   string

	config       = flag.String("config", "config.json", "path of the configuration file")
	flagInstall  = flag.Bool("install", false, "Install service in os")
	syncInterval = flag.String("sync", defaultSyncInterval, "HomeKit state sync interval (time.Duration)")

	skService = servicemaker.ServiceMaker{
		User:               "shiftkit",
		UserGroups:         []string{"gpio", "i2c"},
		ServicePath:        "/etc/systemd/system/shiftkit.service",
		ServiceDescription: "shiftkit service: shift register output controller with HomeKit, mqtt and http frontends",
		ExecDir:            "/srv/shiftkit",
		ExecName:           "shiftkit",
	}
)

func main() {
	log.Printf("shiftkit %s started\n", Version)
	flag.Parse()

	if *flagInstall {
		err := skService.InstallService()
		if err != nil {
			panic(err)
		} else {
			log.Println("service installed!")
			return
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	syncDuration, err := time.ParseDuration(*syncInterval)
	if err != nil {
		panic(err)
	}

	sk := &shiftkit.ShiftKit{}
	configFile, err := os.Open(*config)
	if err == nil {
		cBuff, err := io.ReadAll(configFile)
		if err != nil {
			log.Fatalf("failed reading config file: %v\n", err)
		}

		err = json.Unmarshal(cBuff, sk)
		if err != nil {
			log.Fatalf("failed unmarshalling json config: %v", err)
		}
	} else {
		log.Fatalf("can't find/open config file (%s), will terminate. Reason: \n%v\n", *config, err)
	}

	log.Println("will init shiftkit drivers...")
	err = sk.InitDrivers(ctx)
	defer sk.Close()
	if err != nil {
		panic(err)
	}

	log.Println("will init shift registers...")
	err = sk.InitRegisters()
	if err != nil {
		panic(err)
	}

	if len(sk.MqttBroker) > 0 {
		log.Println("connecting to mqtt broker...")
		err = sk.InitMqtt()
		if err != nil {
			log.Printf("mqtt init failed: %v\nwill proceed without mqtt", err)
		}
	}

	if len(sk.HttpAddress) > 0 {
		log.Printf("starting http api on %s\n", sk.HttpAddress)
		go func() {
			log.Fatal(sk.StartHTTP())
		}()
	}

	sk.PrintStatus(os.Stdout)

	if len(sk.HkPin) == 8 {
		log.Println("starting HomeKit service")
		go sk.StartTicker(syncDuration)
		log.Fatal(sk.StartHomeKit(ctx, Version))
	} else {
		log.Println("HomeKit not configured (HkPin needs 8 digits), wont start")
		sk.StartTicker(syncDuration)
	}
}
