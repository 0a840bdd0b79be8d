package gpio

import (
	"fmt"
	"sync"

	"github.com/Taha-404/Autonomous-Car/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "HIGH"
	}
	return "LOW"
}

// PinMode indicates whether a GPIO is input or output.
type PinMode int

const (
	Input PinMode = iota
	Output
)

// Backend names accepted by NewDriver.
const (
	BackendMock = "mock"
	BackendRPIO = "rpio" // /dev/gpiomem via go-rpio
	BackendCdev = "cdev" // GPIO character device via go-gpiocdev
)

// Driver drives the steering stepper's STEP/DIR/ENABLE lines.
// Pins are BCM numbers.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	Close() error
}

// NewDriver opens the named backend. An empty backend means BackendRPIO.
func NewDriver(backend string) (Driver, error) {
	switch backend {
	case BackendMock:
		debug.Info("Using MOCK GPIO driver (bench mode)")
		return NewMockDriver(), nil
	case BackendRPIO, "":
		d, err := NewRPiRealDriver()
		if err != nil {
			return nil, err
		}
		return d, nil
	case BackendCdev:
		d, err := NewCdevDriver(DefaultChip)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown gpio backend %q", backend)
	}
}

// MockDriver keeps pin levels in memory. Used on a bench PC and in tests.
type MockDriver struct {
	mu     sync.Mutex
	levels map[int]Level
	writes int
}

func NewMockDriver() *MockDriver {
	return &MockDriver{levels: make(map[int]Level)}
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.levels == nil {
		m.levels = make(map[int]Level)
	}
	m.levels[pin] = level
	m.writes++
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin], nil
}

// Writes returns how many WritePin calls were made.
func (m *MockDriver) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}
