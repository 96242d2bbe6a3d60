// Package hardware opens an SPI bus through one of several backends and
// offers the spidev operations on top of it.
package hardware

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/exp/maps"
	"lautenbacher.net/gospi/config"
	"lautenbacher.net/gospi/spidev"
)

type opener func(conf *config.Config) (Bus, error)

var openers = map[string]opener{
	config.BackendSpidev: openSpidev,
	config.BackendPeriph: openPeriph,
	config.BackendRpio:   openRpio,
}

// Backends lists the names accepted by Hardware.Backend.
func Backends() []string {
	names := maps.Keys(openers)
	slices.Sort(names)
	return names
}

// Open returns the bus described by conf using conf.Hardware.Backend.
func Open(conf *config.Config) (Bus, error) {
	name := strings.ToLower(conf.Hardware.Backend)
	if name == "" {
		name = config.BackendSpidev
	}
	open, ok := openers[name]
	if !ok {
		return nil, fmt.Errorf("unknown SPI backend %q (have %s)", conf.Hardware.Backend, strings.Join(Backends(), ", "))
	}
	slog.Debug("Opening SPI bus", "backend", name, "bus", conf.Device.Bus, "cs", conf.Device.ChipSelect)
	return open(conf)
}

func openSpidev(conf *config.Config) (Bus, error) {
	d, err := spidev.Open(conf.SPIConfig())
	if err != nil {
		return nil, err
	}
	return d, nil
}
