package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"lautenbacher.net/gospi/spidev"
)

const CONFILE = "config.yml"

type Config struct {
	Configfile string         `yaml:"-"`
	Device     DeviceConfig   `yaml:"Device"`
	Send       SendConfig     `yaml:"Send"`
	Hardware   HardwareConfig `yaml:"Hardware"`
	Logging    LoggingConfig  `yaml:"Logging"`
	Trace      TraceConfig    `yaml:"Trace"`
}

type DeviceConfig struct {
	Bus         int    `yaml:"Bus"`
	ChipSelect  int    `yaml:"ChipSelect"`
	Mode        uint8  `yaml:"Mode"`
	BitsPerWord uint8  `yaml:"BitsPerWord"`
	SpeedHz     uint32 `yaml:"SpeedHz"`
	DelayUsecs  uint16 `yaml:"DelayUsecs"`
}

type SendConfig struct {
	ChunkSize    int           `yaml:"ChunkSize"`
	ChunkDelay   time.Duration `yaml:"ChunkDelay"`
	MaxCmdLength int           `yaml:"MaxCmdLength"`
	StrictIO     bool          `yaml:"StrictIO"`
}

// HardwareConfig selects the library used to reach the bus: "spidev",
// "periph.io" or "go-rpio".
type HardwareConfig struct {
	Backend string `yaml:"Backend"`
}

type LoggingConfig struct {
	Level  string `yaml:"Level"`
	Format string `yaml:"Format"`
	File   string `yaml:"File"`
}

// TraceConfig controls how many bus operations are kept for -trace.
type TraceConfig struct {
	History int `yaml:"History"`
}

const (
	BackendSpidev = "spidev"
	BackendPeriph = "periph.io"
	BackendRpio   = "go-rpio"
)

// ReadConfig decodes the YAML file cfile, fills in defaults and validates
// the result.
func ReadConfig(cfile string) (*Config, error) {
	f, err := os.Open(cfile)
	if err != nil {
		return nil, fmt.Errorf("can't find config file %s: %w", cfile, err)
	}
	defer f.Close()

	conf := Default()
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(conf); err != nil {
		return nil, fmt.Errorf("can't decode config file %s: %w", cfile, err)
	}
	conf.Configfile = cfile

	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", cfile, err)
	}
	return conf, nil
}

// Default returns the configuration used for keys missing from the file.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			BitsPerWord: spidev.DefaultBitsPerWord,
			SpeedHz:     1_000_000,
		},
		Send: SendConfig{
			ChunkSize:    spidev.DefaultChunkSize,
			ChunkDelay:   spidev.DefaultChunkDelay,
			MaxCmdLength: spidev.DefaultMaxCmdLength,
		},
		Hardware: HardwareConfig{Backend: BackendSpidev},
		Logging:  LoggingConfig{Level: "INFO", Format: "text"},
		Trace:    TraceConfig{History: 64},
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	d := c.Device
	if d.Bus < 0 || d.ChipSelect < 0 {
		return fmt.Errorf("Device.Bus and Device.ChipSelect must not be negative (got %d.%d)", d.Bus, d.ChipSelect)
	}
	if d.BitsPerWord < 1 || d.BitsPerWord > 32 {
		return fmt.Errorf("Device.BitsPerWord must be between 1 and 32 (got %d)", d.BitsPerWord)
	}
	if d.SpeedHz == 0 {
		return fmt.Errorf("Device.SpeedHz must be greater than 0")
	}

	s := c.Send
	if s.ChunkSize < 1 {
		return fmt.Errorf("Send.ChunkSize must be at least 1 (got %d)", s.ChunkSize)
	}
	if s.ChunkDelay < 0 {
		return fmt.Errorf("Send.ChunkDelay must not be negative (got %v)", s.ChunkDelay)
	}
	if s.MaxCmdLength < s.ChunkSize {
		return fmt.Errorf("Send.MaxCmdLength must be at least Send.ChunkSize (got %d < %d)", s.MaxCmdLength, s.ChunkSize)
	}

	switch strings.ToLower(c.Hardware.Backend) {
	case BackendSpidev, BackendPeriph, BackendRpio:
	default:
		return fmt.Errorf("unknown Hardware.Backend: %q", c.Hardware.Backend)
	}

	switch strings.ToUpper(c.Logging.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("unknown Logging.Level: %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown Logging.Format: %q", c.Logging.Format)
	}

	if c.Trace.History < 0 {
		return fmt.Errorf("Trace.History must not be negative (got %d)", c.Trace.History)
	}
	return nil
}

// SPIConfig converts the device and send sections for spidev.Open.
func (c *Config) SPIConfig() *spidev.Config {
	return &spidev.Config{
		Bus:          c.Device.Bus,
		ChipSelect:   c.Device.ChipSelect,
		Mode:         spidev.Mode(c.Device.Mode),
		BitsPerWord:  c.Device.BitsPerWord,
		SpeedHz:      c.Device.SpeedHz,
		DelayUsecs:   c.Device.DelayUsecs,
		ChunkSize:    c.Send.ChunkSize,
		ChunkDelay:   c.Send.ChunkDelay,
		MaxCmdLength: c.Send.MaxCmdLength,
		StrictIO:     c.Send.StrictIO,
	}
}

// Pacer returns the SendData pacing for backends other than spidev.
func (c *Config) Pacer() spidev.Pacer {
	return c.SPIConfig().Pacer()
}
