package spidev

import "unsafe"

// ioctl request numbers from linux/spi/spidev.h, magic 'k'.
const (
	iocWrMode        = 0x40016b01
	iocRdMode        = 0x80016b01
	iocWrBitsPerWord = 0x40016b03
	iocRdBitsPerWord = 0x80016b03
	iocWrMaxSpeedHz  = 0x40046b04
	iocRdMaxSpeedHz  = 0x80046b04
)

// iocTransfer mirrors struct spi_ioc_transfer.
type iocTransfer struct {
	txBuf          uint64
	rxBuf          uint64
	length         uint32
	speedHz        uint32
	delayUsecs     uint16
	bitsPerWord    uint8
	csChange       uint8
	txNBits        uint8
	rxNBits        uint8
	wordDelayUsecs uint8
	pad            uint8
}

// iocMessage is SPI_IOC_MESSAGE(n).
func iocMessage(n int) uintptr {
	const sizeShift = 16
	size := uintptr(n) * unsafe.Sizeof(iocTransfer{})
	return 0x40006b00 | (size << sizeShift)
}

// transfer is one spi_ioc_transfer before the buffers are turned into
// addresses.
type transfer struct {
	tx          []byte
	rx          []byte
	length      uint32
	speedHz     uint32
	delayUsecs  uint16
	bitsPerWord uint8
	csChange    bool
}

// deviceFile is the open descriptor. The linux implementation issues raw
// syscalls; tests substitute a fake.
type deviceFile interface {
	// Read and Write are single read(2)/write(2) calls, short counts are
	// returned as is.
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
	Close() error
	ioctl(req uintptr, arg unsafe.Pointer) error
	message(t *transfer) (int, error)
}

// openDevice is replaced in tests.
var openDevice = openFile
