package hardware

import (
	"fmt"
	"log/slog"

	"github.com/stianeikeland/go-rpio/v4"
	"lautenbacher.net/gospi/config"
	"lautenbacher.net/gospi/spidev"
)

// rpioBus drives the BCM2835 SPI controller through /dev/gpiomem. The
// controller is programmed directly, so transfers cannot fail once
// SpiBegin succeeded.
type rpioBus struct {
	name  string
	dev   rpio.SpiDev
	open  bool
	pacer spidev.Pacer
}

var rpioDevs = []rpio.SpiDev{rpio.Spi0, rpio.Spi1, rpio.Spi2}

// rpioChipSelects is the number of CE lines the controller drives.
const rpioChipSelects = 3

// rpioDevice maps bus and chip select onto the controller before any
// hardware is touched.
func rpioDevice(sc *spidev.Config) (rpio.SpiDev, error) {
	name := sc.Path()
	if sc.Bus < 0 || sc.Bus >= len(rpioDevs) {
		return 0, fmt.Errorf("%w %s: go-rpio supports buses 0 to %d", spidev.ErrOpen, name, len(rpioDevs)-1)
	}
	if sc.ChipSelect < 0 || sc.ChipSelect >= rpioChipSelects {
		return 0, fmt.Errorf("%w %s: go-rpio supports chip selects 0 to %d", spidev.ErrOpen, name, rpioChipSelects-1)
	}
	return rpioDevs[sc.Bus], nil
}

func openRpio(conf *config.Config) (Bus, error) {
	sc := conf.SPIConfig()
	name := sc.Path()
	dev, err := rpioDevice(sc)
	if err != nil {
		slog.Error("SPI: unsupported device for go-rpio", "device", name, "error", err)
		return nil, err
	}

	if err := rpio.Open(); err != nil {
		slog.Error("SPI: failed to open rpio", "error", err)
		return nil, fmt.Errorf("%w %s: %w", spidev.ErrOpen, name, err)
	}
	if err := rpio.SpiBegin(dev); err != nil {
		rpio.Close()
		slog.Error("SPI: failed to begin spi", "device", name, "error", err)
		return nil, fmt.Errorf("%w %s: %w", spidev.ErrOpen, name, err)
	}
	polarity, phase := rpioMode(sc.Mode)
	rpio.SpiChipSelect(uint8(sc.ChipSelect))
	rpio.SpiSpeed(int(sc.SpeedHz))
	rpio.SpiMode(polarity, phase)

	slog.Info("SPI device opened", "device", name, "backend", config.BackendRpio,
		"polarity", polarity, "phase", phase, "speed", sc.SpeedHz)
	return &rpioBus{name: name, dev: dev, open: true, pacer: sc.Pacer()}, nil
}

func rpioMode(m spidev.Mode) (polarity, phase uint8) {
	if m&spidev.CPOL != 0 {
		polarity = 1
	}
	if m&spidev.CPHA != 0 {
		phase = 1
	}
	return polarity, phase
}

func (r *rpioBus) Name() string {
	return r.name
}

func (r *rpioBus) Transfer(tx, rx []byte) error {
	if !r.open {
		return spidev.ErrClosed
	}
	n, err := txLength(tx, rx)
	if err != nil {
		slog.Error("SPI: transfer length mismatch", "device", r.name, "tx", len(tx), "rx", len(rx))
		return err
	}
	if n == 0 {
		slog.Error("SPI: ioctl error on SPI device", "device", r.name, "ret", 0)
		return fmt.Errorf("%w: 0 bytes transferred", spidev.ErrTransfer)
	}
	buf := make([]byte, n)
	copy(buf, tx)
	rpio.SpiExchange(buf)
	copy(rx, buf)
	return nil
}

func (r *rpioBus) WriteData(buf []byte) error {
	if len(buf) == 0 {
		slog.Error("SPI: write para error", "device", r.name)
		return spidev.ErrInvalidParam
	}
	if !r.open {
		return spidev.ErrClosed
	}
	rpio.SpiTransmit(buf...)
	return nil
}

func (r *rpioBus) ReadData(buf []byte) error {
	if len(buf) == 0 {
		slog.Error("SPI: read para error", "device", r.name)
		return spidev.ErrInvalidParam
	}
	if !r.open {
		return spidev.ErrClosed
	}
	copy(buf, rpio.SpiReceive(len(buf)))
	return nil
}

func (r *rpioBus) SendData(buf []byte) error {
	return r.pacer.Send(r, buf)
}

func (r *rpioBus) Close() error {
	if !r.open {
		return spidev.ErrClosed
	}
	r.open = false
	rpio.SpiEnd(r.dev)
	return rpio.Close()
}
