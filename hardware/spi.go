package hardware

import "lautenbacher.net/gospi/spidev"

// Bus is an open SPI device, whichever library drives it. *spidev.Device
// implements it directly.
type Bus interface {
	spidev.ChunkWriter
	Name() string
	Transfer(tx, rx []byte) error
	ReadData(buf []byte) error
	SendData(buf []byte) error
	Close() error
}

var _ Bus = (*spidev.Device)(nil)

// txLength applies the spidev rules for a full-duplex message: the length
// comes from tx, or from rx when tx is nil, and rx is prefilled with 0xFF.
func txLength(tx, rx []byte) (int, error) {
	n := len(tx)
	if tx == nil {
		n = len(rx)
	} else if rx != nil && len(rx) != len(tx) {
		return 0, spidev.ErrLength
	}
	for i := range rx {
		rx[i] = 0xff
	}
	return n, nil
}
