package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"lautenbacher.net/gospi/config"
	"lautenbacher.net/gospi/hardware"
	"lautenbacher.net/gospi/logging"
	"lautenbacher.net/gospi/util"
)

const usage = `usage: gospi [flags] <command> [args]

commands:
  send <hex>       paced send in small bursts
  write <hex>      single plain write
  read <n>         read n bytes and print them as hex
  transfer <hex>   full-duplex transfer, prints the received bytes
  stream           send every hex line read from stdin
  backends         list the available SPI backends

flags:
`

// errInterrupted ends a stream stopped by a signal.
var errInterrupted = errors.New("interrupted")

// openBus is replaced in tests.
var openBus = hardware.Open

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout))
}

func run(args []string, stdin io.Reader, stdout io.Writer) int {
	flags := flag.NewFlagSet("gospi", flag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprint(flags.Output(), usage)
		flags.PrintDefaults()
	}
	cfile := flags.String("config", config.CONFILE, "config file, empty for built-in defaults")
	backend := flags.String("backend", "", "override Hardware.Backend ("+strings.Join(hardware.Backends(), ", ")+")")
	trace := flags.Bool("trace", false, "print the recorded bus operations on exit")
	quiet := flags.Bool("quiet", false, "only print log output if the command fails")
	watch := flags.Bool("watch", false, "stream: reopen the bus when the config file changes")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return 2
	}

	command := flags.Arg(0)
	if command == "backends" {
		for _, name := range hardware.Backends() {
			fmt.Fprintln(stdout, name)
		}
		return 0
	}

	conf, err := loadConfig(*cfile, *backend)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := logging.Init(conf.Logging, *quiet); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer logging.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := &session{conf: conf, trace: *trace, stdout: stdout}
	if *watch {
		s.cfile = *cfile
		s.backend = *backend
	}
	if err := s.execute(ctx, command, flags.Args()[1:], stdin); err != nil {
		if errors.Is(err, errInterrupted) {
			slog.Warn("Command interrupted", "command", command)
			return 130
		}
		slog.Error("Command failed", "command", command, "error", err)
		return 1
	}
	logging.Discard()
	return 0
}

func loadConfig(cfile, backend string) (*config.Config, error) {
	conf := config.Default()
	if cfile != "" {
		var err error
		if conf, err = config.ReadConfig(cfile); err != nil {
			return nil, err
		}
	}
	if backend != "" {
		conf.Hardware.Backend = backend
		if err := conf.Validate(); err != nil {
			return nil, err
		}
	}
	return conf, nil
}

// session owns the open bus for one invocation.
type session struct {
	conf    *config.Config
	trace   bool
	stdout  io.Writer
	cfile   string // set when the config file is watched
	backend string

	bus hardware.Bus
	rec *hardware.Recorder
}

func (s *session) open(conf *config.Config) error {
	bus, err := openBus(conf)
	if err != nil {
		return err
	}
	s.install(bus, conf)
	return nil
}

// install makes bus the active bus, behind the recorder when tracing.
func (s *session) install(bus hardware.Bus, conf *config.Config) {
	if s.rec != nil {
		s.rec.Bus = bus
	} else if s.trace {
		s.rec = hardware.NewRecorder(bus, conf.Trace.History)
	}
	s.bus = bus
	if s.rec != nil {
		s.bus = s.rec
	}
}

func (s *session) close() {
	if s.bus == nil {
		return
	}
	if err := s.bus.Close(); err != nil {
		slog.Error("Error closing SPI bus", "error", err)
	}
	s.bus = nil
}

func (s *session) execute(ctx context.Context, command string, args []string, stdin io.Reader) error {
	if err := s.open(s.conf); err != nil {
		return err
	}
	defer func() {
		s.close()
		if s.rec != nil {
			s.rec.Dump(s.stdout)
		}
	}()

	switch command {
	case "send", "write", "transfer":
		payload, err := parsePayload(strings.Join(args, " "))
		if err != nil {
			return err
		}
		switch command {
		case "send":
			return s.bus.SendData(payload)
		case "write":
			return s.bus.WriteData(payload)
		}
		rx := make([]byte, len(payload))
		if err := s.bus.Transfer(payload, rx); err != nil {
			return err
		}
		fmt.Fprintln(s.stdout, hex.EncodeToString(rx))
		return nil
	case "read":
		if len(args) != 1 {
			return errors.New("read needs exactly one length argument")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			return fmt.Errorf("invalid read length %q", args[0])
		}
		buf := make([]byte, n)
		if err := s.bus.ReadData(buf); err != nil {
			return err
		}
		fmt.Fprintln(s.stdout, hex.EncodeToString(buf))
		return nil
	case "stream":
		return s.stream(ctx, stdin)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// stream sends one command per input line until stdin is exhausted.
// Blank lines and lines starting with # are skipped.
func (s *session) stream(ctx context.Context, stdin io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := util.NewAtomicEvent[*config.Config]()
	if s.cfile != "" {
		go func() {
			if err := config.Watch(ctx, s.cfile, updates); err != nil {
				slog.Error("Config watcher stopped", "error", err)
			}
		}()
	}

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		var err error
		defer func() {
			scanErr <- err
			close(lines)
		}()
		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		err = scanner.Err()
	}()

	sent := 0
	for {
		select {
		case <-ctx.Done():
			slog.Info("Stream interrupted", "sent", sent)
			return errInterrupted
		case <-updates.Channel():
			s.reload(updates.Value())
		case line, ok := <-lines:
			if !ok {
				slog.Info("Stream finished", "sent", sent)
				return <-scanErr
			}
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			payload, err := parsePayload(line)
			if err != nil {
				return err
			}
			if err := s.bus.SendData(payload); err != nil {
				return err
			}
			sent++
		}
	}
}

// reload switches to the bus described by conf. If it cannot be opened
// the current bus stays in use.
func (s *session) reload(conf *config.Config) {
	if s.backend != "" {
		conf.Hardware.Backend = s.backend
	}
	slog.Info("Reopening SPI bus with new configuration", "bus", conf.Device.Bus, "cs", conf.Device.ChipSelect)
	bus, err := openBus(conf)
	if err != nil {
		slog.Error("Keeping previous SPI bus", "error", err)
		return
	}
	s.close()
	s.conf = conf
	s.install(bus, conf)
}

// parsePayload decodes hex bytes. Bytes may be separated by spaces,
// commas or colons and carry a 0x prefix.
func parsePayload(s string) ([]byte, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ',' || r == ':'
	})
	var digits strings.Builder
	for _, f := range fields {
		f = strings.TrimPrefix(strings.TrimPrefix(f, "0x"), "0X")
		digits.WriteString(f)
	}
	payload, err := hex.DecodeString(digits.String())
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload %q: %w", s, err)
	}
	return payload, nil
}
