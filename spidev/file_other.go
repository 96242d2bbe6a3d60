//go:build !linux

package spidev

import "errors"

func openFile(path string) (deviceFile, error) {
	return nil, errors.New("spidev is only available on linux")
}
