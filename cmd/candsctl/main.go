// Command candsctl is a small operator CLI for driving digitalservo nodes
// over the Cyphal/CAN-FD transport directly from a terminal, mirroring the
// shape of gocanopen's cmd/canopen tool.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/digitalservo/cands-go/pkg/appconfig"
	"github.com/digitalservo/cands-go/pkg/digitalservo"
	"github.com/digitalservo/cands-go/pkg/facade"
	"github.com/digitalservo/cands-go/pkg/hwconfig"
	"github.com/digitalservo/cands-go/pkg/transaction"
	"github.com/digitalservo/cands-go/pkg/transceiver"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

func main() {
	var (
		backend    = flag.String("backend", "simulator", "transceiver backend: simulator, usbftdi, raspberrypi, socketcan")
		device     = flag.String("device", "", "backend-specific device path (serial port, spi device, socketcan iface)")
		hwconfPath = flag.String("hwconfig", "", "hardware filter profile INI path")
		appconfPath = flag.String("appconfig", "", "application settings YAML path")
		nodeID     = flag.Uint8("node", 1, "destination node id for set/get operations")
		key        = flag.Uint16("key", 0, "parameter key for get-value (or set-value with --write)")
		setValue   = flag.Float64("set", 0, "value to write with --key via set-value (requires --write)")
		write      = flag.Bool("write", false, "perform a set-value instead of a get-value")
		verbose    = flag.Bool("verbose", false, "enable debug logging")
		listOnly   = flag.Bool("list-backends", false, "list registered transceiver backends and exit")
	)
	flag.Parse()

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	entry := logrus.NewEntry(log)

	if *listOnly {
		for _, name := range transceiver.Registered() {
			fmt.Println(name)
		}
		return
	}

	settings := transaction.DefaultSettings()
	var filter transceiver.FilterConfig
	if *appconfPath != "" {
		cfg, err := appconfig.Load(*appconfPath)
		if err != nil {
			log.WithError(err).Fatal("loading appconfig")
		}
		settings, err = cfg.ToTransactionSettings()
		if err != nil {
			log.WithError(err).Fatal("parsing transaction settings")
		}
		if *hwconfPath == "" {
			*hwconfPath = cfg.HWConfig
		}
		if *backend == "simulator" && cfg.Backend != "" {
			*backend = cfg.Backend
		}
	}
	if *hwconfPath != "" {
		profile, err := hwconfig.Load(*hwconfPath)
		if err != nil {
			log.WithError(err).Fatal("loading hwconfig")
		}
		filter = profile.ToFilterConfig()
	}

	options := map[string]string{}
	if *device != "" {
		options["device"] = *device
		options["iface"] = *device
		options["spi"] = *device
	}

	tr, err := transceiver.New(*backend, options)
	if err != nil {
		log.WithError(err).Fatal("opening transceiver backend")
	}
	defer tr.Close()

	iface, err := facade.New(tr, filter, filter.NodeID, settings, entry)
	if err != nil {
		log.WithError(err).Fatal("constructing interface")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if *write {
		dict := digitalservo.Dict{Key: *key, Values: []digitalservo.PrimitiveData{digitalservo.F64(*setValue)}}
		if err := iface.SendDigitalservoSetValue(ctx, *nodeID, dict); err != nil {
			log.WithError(err).Fatal("set-value failed")
		}
		fmt.Printf("ok: node %d key %#x set to %v\n", *nodeID, *key, *setValue)
		return
	}

	dict, err := iface.SendDigitalservoGetValue(ctx, *nodeID, *key)
	if err != nil {
		log.WithError(err).Fatal("get-value failed")
	}
	for _, v := range dict.Values {
		fmt.Printf("node %d key %#x = %v\n", *nodeID, *key, v.AsFloat64())
	}
	os.Exit(0)
}
