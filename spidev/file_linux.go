//go:build linux

package spidev

import (
	"os"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

type osFile struct {
	f  *os.File
	fd int
}

func openFile(path string) (deviceFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &osFile{f: f, fd: int(f.Fd())}, nil
}

func (o *osFile) Read(b []byte) (int, error) {
	return unix.Read(o.fd, b)
}

func (o *osFile) Write(b []byte) (int, error) {
	return unix.Write(o.fd, b)
}

func (o *osFile) Close() error {
	return o.f.Close()
}

func (o *osFile) ioctl(req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(o.fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func (o *osFile) message(t *transfer) (int, error) {
	x := iocTransfer{
		length:      t.length,
		speedHz:     t.speedHz,
		delayUsecs:  t.delayUsecs,
		bitsPerWord: t.bitsPerWord,
	}
	if t.csChange {
		x.csChange = 1
	}
	if len(t.tx) > 0 {
		x.txBuf = uint64(uintptr(unsafe.Pointer(&t.tx[0])))
	}
	if len(t.rx) > 0 {
		x.rxBuf = uint64(uintptr(unsafe.Pointer(&t.rx[0])))
	}
	r, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(o.fd), iocMessage(1), uintptr(unsafe.Pointer(&x)))
	runtime.KeepAlive(t.tx)
	runtime.KeepAlive(t.rx)
	if errno != 0 {
		return -1, errno
	}
	return int(r), nil
}
