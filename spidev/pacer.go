package spidev

import (
	"fmt"
	"log/slog"
	"time"
)

// ChunkWriter is anything that can push one burst to the bus.
type ChunkWriter interface {
	WriteData(buf []byte) error
}

// Pacer splits a command into fixed-size bursts with a pause between
// them, for peripherals that cannot ingest a long transfer at once.
type Pacer struct {
	ChunkSize int
	Delay     time.Duration
	MaxLength int
}

// sleep is replaced in tests.
var sleep = time.Sleep

// Send stages buf in a zero-padded buffer and writes it ChunkSize bytes
// at a time. An odd tail is padded with zeros so every burst has the same
// size. An empty buf writes nothing. The first failing burst aborts.
func (p Pacer) Send(w ChunkWriter, buf []byte) error {
	chunk := p.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	if p.MaxLength > 0 && len(buf) > p.MaxLength {
		slog.Error("SPI: command exceeds maximum length", "len", len(buf), "max", p.MaxLength)
		return fmt.Errorf("%w: %d > %d bytes", ErrCommandTooLong, len(buf), p.MaxLength)
	}
	if len(buf) == 0 {
		return nil
	}

	staged := make([]byte, (len(buf)+chunk-1)/chunk*chunk)
	copy(staged, buf)

	for index := 0; index < len(buf); index += chunk {
		if index > 0 {
			sleep(p.Delay)
		}
		if err := w.WriteData(staged[index : index+chunk]); err != nil {
			return err
		}
	}
	return nil
}
