package serial

import (
	"fmt"
	"io"
	"os"

	"go.bug.st/serial"

	"github.com/Taha-404/Autonomous-Car/internal/debug"
)

// Stdio names the pseudo-port that maps to the process's stdin/stdout.
const Stdio = "-"

// Config describes a serial link.
type Config struct {
	Port     string // e.g. /dev/ttyACM0, /dev/ttyAMA0 or "-" for stdio
	BaudRate int
}

// Open opens the port in 8N1 mode. BaudRate defaults to 9600.
func Open(cfg Config) (io.ReadWriteCloser, error) {
	if cfg.Port == Stdio {
		debug.Info("Serial: using stdio")
		return stdio{}, nil
	}
	if cfg.Port == "" {
		return nil, fmt.Errorf("serial: port is required")
	}

	baud := cfg.BaudRate
	if baud <= 0 {
		baud = 9600
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Port, err)
	}
	debug.Info("Serial: opened %s at %d baud", cfg.Port, baud)
	return port, nil
}

// Ports lists the serial ports present on the system.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}

type stdio struct{}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdio) Close() error                { return nil }
