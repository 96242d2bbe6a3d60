// Package spidev drives a Linux SPI character device (/dev/spidevB.C)
// through the spidev ioctl interface. A Device is a plain synchronous
// handle: no locking, no retries, every failure is logged and returned.
package spidev

import (
	"errors"
	"fmt"
	"time"
)

// DevicePathTemplate is formatted with the bus and chip-select numbers.
const DevicePathTemplate = "/dev/spidev%d.%d"

const (
	// DefaultChunkSize is the number of bytes SendData writes per burst.
	DefaultChunkSize = 2
	// DefaultChunkDelay is the pause between two SendData bursts. The
	// receiving controller drops bytes when bursts arrive back to back.
	DefaultChunkDelay = 5 * time.Microsecond
	// DefaultMaxCmdLength bounds the payload accepted by SendData.
	DefaultMaxCmdLength = 1024
	// DefaultBitsPerWord is used when Config.BitsPerWord is zero.
	DefaultBitsPerWord = 8
)

// Mode is the SPI mode flag set (SPI_MODE_* in linux/spi/spidev.h).
type Mode uint8

const (
	CPHA Mode = 1 << iota
	CPOL
	CSHigh
	LSBFirst
	ThreeWire
	Loop
	NoCS
	Ready
)

const (
	Mode0 Mode = 0
	Mode1      = CPHA
	Mode2      = CPOL
	Mode3      = CPOL | CPHA
)

var (
	ErrNoConfig       = errors.New("spi: no configuration")
	ErrOpen           = errors.New("spi: can not open device")
	ErrNegotiate      = errors.New("spi: ioctl error")
	ErrTransfer       = errors.New("spi: transfer error")
	ErrInvalidParam   = errors.New("spi: invalid parameter")
	ErrWrite          = errors.New("spi: write data error")
	ErrRead           = errors.New("spi: read data error")
	ErrShortWrite     = errors.New("spi: short write")
	ErrShortRead      = errors.New("spi: short read")
	ErrCommandTooLong = errors.New("spi: command too long")
	ErrLength         = errors.New("spi: tx and rx length differ")
	ErrClosed         = errors.New("spi: device closed")
)

// Config describes the device to open and how to talk to it.
type Config struct {
	Bus         int
	ChipSelect  int
	Mode        Mode
	BitsPerWord uint8
	SpeedHz     uint32
	// DelayUsecs is passed as delay_usecs with every transfer.
	DelayUsecs uint16

	// ChunkSize, ChunkDelay and MaxCmdLength tune SendData. Zero values
	// select the Default* constants.
	ChunkSize    int
	ChunkDelay   time.Duration
	MaxCmdLength int

	// StrictIO makes WriteData and ReadData fail when fewer bytes than
	// requested were moved. By default any positive count is accepted.
	StrictIO bool
}

// Path returns the device special file for c.
func (c *Config) Path() string {
	return fmt.Sprintf(DevicePathTemplate, c.Bus, c.ChipSelect)
}

func (c Config) withDefaults() Config {
	if c.BitsPerWord == 0 {
		c.BitsPerWord = DefaultBitsPerWord
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.ChunkDelay <= 0 {
		c.ChunkDelay = DefaultChunkDelay
	}
	if c.MaxCmdLength <= 0 {
		c.MaxCmdLength = DefaultMaxCmdLength
	}
	return c
}

// Pacer returns the SendData pacing described by c.
func (c *Config) Pacer() Pacer {
	d := c.withDefaults()
	return Pacer{
		ChunkSize: d.ChunkSize,
		Delay:     d.ChunkDelay,
		MaxLength: d.MaxCmdLength,
	}
}

// Settings holds the mode, word size and clock read back from the driver.
type Settings struct {
	Mode        Mode
	BitsPerWord uint8
	SpeedHz     uint32
}
