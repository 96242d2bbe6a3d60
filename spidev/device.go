package spidev

import (
	"fmt"
	"log/slog"
	"unsafe"
)

// Device is an open spidev handle. It is not safe for concurrent use;
// callers sharing one bus must serialise access themselves.
type Device struct {
	file       deviceFile
	name       string
	config     Config
	negotiated Settings
	pacer      Pacer
}

// Open opens the device named by cfg and negotiates mode, bits per word
// and speed. Each value is written and immediately read back; the first
// failing ioctl closes the descriptor and fails the call.
func Open(cfg *Config) (*Device, error) {
	if cfg == nil {
		slog.Error("SPI: no configuration given")
		return nil, ErrNoConfig
	}
	conf := cfg.withDefaults()
	name := conf.Path()

	file, err := openDevice(name)
	if err != nil {
		slog.Error("SPI: can not open SPI device", "device", name, "error", err)
		return nil, fmt.Errorf("%w %s: %w", ErrOpen, name, err)
	}

	got, err := negotiate(file, conf)
	if err != nil {
		slog.Error("SPI: ioctl error on SPI device", "device", name, "error", err)
		if cerr := file.Close(); cerr != nil {
			slog.Error("SPI: close after failed negotiation", "device", name, "error", cerr)
		}
		return nil, fmt.Errorf("%w on %s: %w", ErrNegotiate, name, err)
	}

	d := &Device{
		file:       file,
		name:       name,
		config:     conf,
		negotiated: got,
		pacer:      conf.Pacer(),
	}
	slog.Info("SPI device opened", "device", name,
		"mode", got.Mode, "bits", got.BitsPerWord, "speed", got.SpeedHz)
	return d, nil
}

func negotiate(file deviceFile, conf Config) (Settings, error) {
	mode := uint8(conf.Mode)
	bits := conf.BitsPerWord
	speed := conf.SpeedHz

	var got Settings
	rdMode := uint8(0)
	rdBits := uint8(0)
	rdSpeed := uint32(0)
	steps := []struct {
		name string
		req  uintptr
		arg  unsafe.Pointer
	}{
		{"SPI_IOC_WR_MODE", iocWrMode, unsafe.Pointer(&mode)},
		{"SPI_IOC_RD_MODE", iocRdMode, unsafe.Pointer(&rdMode)},
		{"SPI_IOC_WR_BITS_PER_WORD", iocWrBitsPerWord, unsafe.Pointer(&bits)},
		{"SPI_IOC_RD_BITS_PER_WORD", iocRdBitsPerWord, unsafe.Pointer(&rdBits)},
		{"SPI_IOC_WR_MAX_SPEED_HZ", iocWrMaxSpeedHz, unsafe.Pointer(&speed)},
		{"SPI_IOC_RD_MAX_SPEED_HZ", iocRdMaxSpeedHz, unsafe.Pointer(&rdSpeed)},
	}
	for _, s := range steps {
		if err := file.ioctl(s.req, s.arg); err != nil {
			return got, fmt.Errorf("%s: %w", s.name, err)
		}
	}
	got.Mode = Mode(rdMode)
	got.BitsPerWord = rdBits
	got.SpeedHz = rdSpeed
	return got, nil
}

// Close releases the descriptor. It is a no-op on a nil Device and
// returns ErrClosed on every call after the first.
func (d *Device) Close() error {
	if d == nil {
		return nil
	}
	if d.file == nil {
		return ErrClosed
	}
	err := d.file.Close()
	d.file = nil
	if err != nil {
		slog.Error("SPI: close failed", "device", d.name, "error", err)
	}
	return err
}

// Name returns the device path, e.g. /dev/spidev0.0.
func (d *Device) Name() string {
	return d.name
}

// Config returns the configuration the device was opened with.
func (d *Device) Config() Config {
	return d.config
}

// Negotiated returns the values the driver reported after configuration.
func (d *Device) Negotiated() Settings {
	return d.negotiated
}

// Transfer clocks one full-duplex message. The length is len(tx), or
// len(rx) when tx is nil. rx is filled with 0xFF beforehand so bytes the
// peripheral never drove are recognisable. Chip select is released after
// the message.
func (d *Device) Transfer(tx, rx []byte) error {
	if d.file == nil {
		return ErrClosed
	}
	n := len(tx)
	if tx == nil {
		n = len(rx)
	} else if rx != nil && len(rx) != len(tx) {
		slog.Error("SPI: transfer length mismatch", "device", d.name, "tx", len(tx), "rx", len(rx))
		return ErrLength
	}
	for i := range rx {
		rx[i] = 0xff
	}

	ret, err := d.file.message(&transfer{
		tx:          tx,
		rx:          rx,
		length:      uint32(n),
		speedHz:     d.config.SpeedHz,
		delayUsecs:  d.config.DelayUsecs,
		bitsPerWord: d.config.BitsPerWord,
		csChange:    false,
	})
	if ret < 1 {
		slog.Error("SPI: ioctl error on SPI device", "device", d.name, "ret", ret, "error", err)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTransfer, err)
		}
		return fmt.Errorf("%w: %d bytes transferred", ErrTransfer, ret)
	}
	return nil
}

// WriteData writes buf with a single write(2). Any positive count counts
// as success unless the device was opened with StrictIO.
func (d *Device) WriteData(buf []byte) error {
	if len(buf) == 0 {
		slog.Error("SPI: write para error", "device", d.name)
		return ErrInvalidParam
	}
	if d.file == nil {
		return ErrClosed
	}
	n, err := d.file.Write(buf)
	if n <= 0 {
		slog.Error("SPI: write data error", "device", d.name, "error", err)
		return wrapIO(ErrWrite, n, err)
	}
	if n < len(buf) {
		if d.config.StrictIO {
			slog.Error("SPI: short write", "device", d.name, "want", len(buf), "got", n)
			return fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, len(buf))
		}
		slog.Warn("SPI: short write accepted", "device", d.name, "want", len(buf), "got", n)
	}
	return nil
}

// ReadData fills buf with a single read(2), with the same short count
// rules as WriteData.
func (d *Device) ReadData(buf []byte) error {
	if len(buf) == 0 {
		slog.Error("SPI: read para error", "device", d.name)
		return ErrInvalidParam
	}
	if d.file == nil {
		return ErrClosed
	}
	n, err := d.file.Read(buf)
	if n <= 0 {
		slog.Error("SPI: read data error", "device", d.name, "error", err)
		return wrapIO(ErrRead, n, err)
	}
	if n < len(buf) {
		if d.config.StrictIO {
			slog.Error("SPI: short read", "device", d.name, "want", len(buf), "got", n)
			return fmt.Errorf("%w: %d of %d bytes", ErrShortRead, n, len(buf))
		}
		slog.Warn("SPI: short read accepted", "device", d.name, "want", len(buf), "got", n)
	}
	return nil
}

// SendData writes buf in small paced bursts, see Pacer.
func (d *Device) SendData(buf []byte) error {
	return d.pacer.Send(d, buf)
}

func wrapIO(sentinel error, n int, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return fmt.Errorf("%w: %d bytes", sentinel, n)
}
