package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lautenbacher.net/gospi/config"
	"lautenbacher.net/gospi/hardware"
	"lautenbacher.net/gospi/spidev"
)

const testConfig = `
Device:
  Bus: 0
  ChipSelect: 1
  SpeedHz: 1000000
Logging:
  Level: "ERROR"
Trace:
  History: 8
`

// MockBus stands in for the SPI hardware.
type MockBus struct {
	hardware.Bus
	conf     *config.Config
	sends    [][]byte
	writes   [][]byte
	sendErr  error
	closed   int
	response byte
}

func (m *MockBus) Name() string { return "/dev/spidev0.1" }

func (m *MockBus) Transfer(tx, rx []byte) error {
	for i := range rx {
		rx[i] = tx[i] ^ m.response
	}
	return nil
}

func (m *MockBus) WriteData(buf []byte) error {
	if len(buf) == 0 {
		return spidev.ErrInvalidParam
	}
	m.writes = append(m.writes, append([]byte(nil), buf...))
	return nil
}

func (m *MockBus) ReadData(buf []byte) error {
	for i := range buf {
		buf[i] = m.response
	}
	return nil
}

func (m *MockBus) SendData(buf []byte) error {
	m.sends = append(m.sends, append([]byte(nil), buf...))
	return m.sendErr
}

func (m *MockBus) Close() error {
	m.closed++
	return nil
}

func withMockBus(t *testing.T, m *MockBus) {
	t.Helper()
	old := openBus
	t.Cleanup(func() { openBus = old })
	openBus = func(conf *config.Config) (hardware.Bus, error) {
		m.conf = conf
		return m, nil
	}
}

func writeConfig(t *testing.T) string {
	t.Helper()
	cfile := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(cfile, []byte(testConfig), 0o644))
	return cfile
}

func TestParsePayload(t *testing.T) {
	tests := []struct {
		in   string
		want []byte
	}{
		{"", []byte{}},
		{"a55a", []byte{0xa5, 0x5a}},
		{"0xa5 0x5A", []byte{0xa5, 0x5a}},
		{"de:ad:be:ef", []byte{0xde, 0xad, 0xbe, 0xef}},
		{"01, 02,03", []byte{1, 2, 3}},
	}
	for _, tt := range tests {
		got, err := parsePayload(tt.in)
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := parsePayload("abc")
	assert.Error(t, err, "odd number of digits")
	_, err = parsePayload("zz")
	assert.Error(t, err)
}

func TestRun_Send(t *testing.T) {
	bus := &MockBus{}
	withMockBus(t, bus)

	var out bytes.Buffer
	code := run([]string{"-config", writeConfig(t), "send", "01 02 03"}, strings.NewReader(""), &out)
	assert.Equal(t, 0, code)
	assert.Equal(t, [][]byte{{1, 2, 3}}, bus.sends)
	assert.Equal(t, 1, bus.closed)
	assert.Equal(t, 1, bus.conf.Device.ChipSelect)
}

func TestRun_SendFailure(t *testing.T) {
	bus := &MockBus{sendErr: spidev.ErrWrite}
	withMockBus(t, bus)

	code := run([]string{"-config", writeConfig(t), "-quiet", "send", "0102"}, strings.NewReader(""), &bytes.Buffer{})
	assert.Equal(t, 1, code)
	assert.Equal(t, 1, bus.closed, "the bus is closed on failure too")
}

func TestRun_TransferAndRead(t *testing.T) {
	bus := &MockBus{response: 0xff}
	withMockBus(t, bus)
	cfile := writeConfig(t)

	var out bytes.Buffer
	require.Equal(t, 0, run([]string{"-config", cfile, "transfer", "0f f0"}, strings.NewReader(""), &out))
	assert.Equal(t, "f00f\n", out.String())

	out.Reset()
	require.Equal(t, 0, run([]string{"-config", cfile, "read", "3"}, strings.NewReader(""), &out))
	assert.Equal(t, "ffffff\n", out.String())

	assert.Equal(t, 1, run([]string{"-config", cfile, "read", "x"}, strings.NewReader(""), &out))
}

func TestRun_WriteEmpty(t *testing.T) {
	bus := &MockBus{}
	withMockBus(t, bus)

	code := run([]string{"-config", writeConfig(t), "write"}, strings.NewReader(""), &bytes.Buffer{})
	assert.Equal(t, 1, code)
	assert.Empty(t, bus.writes)
}

func TestRun_StreamWithTrace(t *testing.T) {
	bus := &MockBus{}
	withMockBus(t, bus)

	in := strings.NewReader("# header\n0102\n\n  0304  \n05\n")
	var out bytes.Buffer
	code := run([]string{"-config", writeConfig(t), "-trace", "stream"}, in, &out)
	assert.Equal(t, 0, code)
	assert.Equal(t, [][]byte{{1, 2}, {3, 4}, {5}}, bus.sends)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "send")
	assert.Contains(t, lines[0], "tx=0102 ok")
}

func TestRun_StreamStopsOnError(t *testing.T) {
	bus := &MockBus{sendErr: errors.New("bus gone")}
	withMockBus(t, bus)

	code := run([]string{"-config", writeConfig(t), "stream"}, strings.NewReader("01\n02\n"), &bytes.Buffer{})
	assert.Equal(t, 1, code)
	assert.Len(t, bus.sends, 1)
}

func TestRun_BackendOverride(t *testing.T) {
	bus := &MockBus{}
	withMockBus(t, bus)

	code := run([]string{"-config", writeConfig(t), "-backend", "periph.io", "send", "01"}, strings.NewReader(""), &bytes.Buffer{})
	assert.Equal(t, 0, code)
	assert.Equal(t, config.BackendPeriph, bus.conf.Hardware.Backend)

	code = run([]string{"-config", writeConfig(t), "-backend", "nope", "send", "01"}, strings.NewReader(""), &bytes.Buffer{})
	assert.Equal(t, 1, code)
}

func TestRun_Usage(t *testing.T) {
	assert.Equal(t, 2, run(nil, strings.NewReader(""), &bytes.Buffer{}))

	var out bytes.Buffer
	assert.Equal(t, 0, run([]string{"backends"}, strings.NewReader(""), &out))
	assert.Equal(t, "go-rpio\nperiph.io\nspidev\n", out.String())

	bus := &MockBus{}
	withMockBus(t, bus)
	assert.Equal(t, 1, run([]string{"-config", writeConfig(t), "bogus"}, strings.NewReader(""), &out))
}

func TestSession_ReloadKeepsBusOnOpenFailure(t *testing.T) {
	old := &MockBus{}
	withMockBus(t, old)
	conf := config.Default()
	s := &session{conf: conf, trace: true, stdout: &bytes.Buffer{}}
	require.NoError(t, s.open(conf))

	openBus = func(*config.Config) (hardware.Bus, error) {
		return nil, spidev.ErrOpen
	}
	next := config.Default()
	next.Device.SpeedHz = 2000000
	s.reload(next)

	assert.Equal(t, 0, old.closed)
	assert.Same(t, conf, s.conf)
	require.NoError(t, s.bus.SendData([]byte{0x01}))
	assert.Equal(t, [][]byte{{0x01}}, old.sends)
}

func TestSession_ReloadSwapsBus(t *testing.T) {
	old := &MockBus{}
	withMockBus(t, old)
	conf := config.Default()
	s := &session{conf: conf, trace: true, stdout: &bytes.Buffer{}, backend: "spidev"}
	require.NoError(t, s.open(conf))
	require.NoError(t, s.bus.SendData([]byte{0x01}))

	fresh := &MockBus{}
	withMockBus(t, fresh)
	next := config.Default()
	next.Hardware.Backend = "go-rpio"
	s.reload(next)

	assert.Equal(t, 1, old.closed)
	assert.Same(t, next, s.conf)
	assert.Equal(t, "spidev", fresh.conf.Hardware.Backend)
	require.NoError(t, s.bus.SendData([]byte{0x02}))
	assert.Equal(t, [][]byte{{0x02}}, fresh.sends)
	assert.Len(t, s.rec.Ops(), 2, "trace history survives a reload")
}

func TestSession_StreamInterrupted(t *testing.T) {
	bus := &MockBus{}
	withMockBus(t, bus)
	s := &session{conf: config.Default(), stdout: &bytes.Buffer{}}
	require.NoError(t, s.open(s.conf))

	stdin, w := io.Pipe()
	t.Cleanup(func() { w.Close() })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.stream(ctx, stdin)
	assert.ErrorIs(t, err, errInterrupted)
	assert.Empty(t, bus.sends)
}
