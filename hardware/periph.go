package hardware

import (
	"fmt"
	"log/slog"

	"lautenbacher.net/gospi/config"
	"lautenbacher.net/gospi/spidev"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// periphBus reaches the device through periph.io's port registry.
type periphBus struct {
	name  string
	port  spi.PortCloser
	conn  spi.Conn
	pacer spidev.Pacer
}

func openPeriph(conf *config.Config) (Bus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to init periph: %w", err)
	}
	sc := conf.SPIConfig()
	name := sc.Path()

	port, err := spireg.Open(name)
	if err != nil {
		slog.Error("SPI: can not open SPI device", "device", name, "error", err)
		return nil, fmt.Errorf("%w %s: %w", spidev.ErrOpen, name, err)
	}
	freq := physic.Frequency(sc.SpeedHz) * physic.Hertz
	conn, err := port.Connect(freq, periphMode(sc.Mode), int(sc.BitsPerWord))
	if err != nil {
		port.Close()
		slog.Error("SPI: failed to connect to SPI device", "device", name, "error", err)
		return nil, fmt.Errorf("%w on %s: %w", spidev.ErrNegotiate, name, err)
	}
	slog.Info("SPI device opened", "device", name, "backend", config.BackendPeriph, "conn", conn.String())
	return &periphBus{name: name, port: port, conn: conn, pacer: sc.Pacer()}, nil
}

// periphMode maps the spidev mode bits onto periph's. CPHA and CPOL share
// the same bit positions.
func periphMode(m spidev.Mode) spi.Mode {
	mode := spi.Mode(m & (spidev.CPHA | spidev.CPOL))
	if m&spidev.NoCS != 0 {
		mode |= spi.NoCS
	}
	if m&spidev.LSBFirst != 0 {
		mode |= spi.LSBFirst
	}
	return mode
}

func (p *periphBus) Name() string {
	return p.name
}

func (p *periphBus) Transfer(tx, rx []byte) error {
	if p.port == nil {
		return spidev.ErrClosed
	}
	n, err := txLength(tx, rx)
	if err != nil {
		slog.Error("SPI: transfer length mismatch", "device", p.name, "tx", len(tx), "rx", len(rx))
		return err
	}
	if n == 0 {
		slog.Error("SPI: ioctl error on SPI device", "device", p.name, "ret", 0)
		return fmt.Errorf("%w: 0 bytes transferred", spidev.ErrTransfer)
	}
	if tx == nil {
		tx = make([]byte, n)
	}
	if err := p.conn.Tx(tx, rx); err != nil {
		slog.Error("SPI: ioctl error on SPI device", "device", p.name, "error", err)
		return fmt.Errorf("%w: %w", spidev.ErrTransfer, err)
	}
	return nil
}

func (p *periphBus) WriteData(buf []byte) error {
	if len(buf) == 0 {
		slog.Error("SPI: write para error", "device", p.name)
		return spidev.ErrInvalidParam
	}
	if p.port == nil {
		return spidev.ErrClosed
	}
	if err := p.conn.Tx(buf, nil); err != nil {
		slog.Error("SPI: write data error", "device", p.name, "error", err)
		return fmt.Errorf("%w: %w", spidev.ErrWrite, err)
	}
	return nil
}

func (p *periphBus) ReadData(buf []byte) error {
	if len(buf) == 0 {
		slog.Error("SPI: read para error", "device", p.name)
		return spidev.ErrInvalidParam
	}
	if p.port == nil {
		return spidev.ErrClosed
	}
	if err := p.conn.Tx(make([]byte, len(buf)), buf); err != nil {
		slog.Error("SPI: read data error", "device", p.name, "error", err)
		return fmt.Errorf("%w: %w", spidev.ErrRead, err)
	}
	return nil
}

func (p *periphBus) SendData(buf []byte) error {
	return p.pacer.Send(p, buf)
}

func (p *periphBus) Close() error {
	if p.port == nil {
		return spidev.ErrClosed
	}
	err := p.port.Close()
	p.port = nil
	return err
}
