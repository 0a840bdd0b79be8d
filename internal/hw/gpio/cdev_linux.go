//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/multierr"

	"github.com/Taha-404/Autonomous-Car/internal/debug"
)

// DefaultChip holds the header GPIOs on Raspberry Pi 1-4 and on Pi 5 kernels
// that renumber the RP1 controller.
const DefaultChip = "gpiochip0"

const consumer = "steerd"

// CdevDriver drives GPIO through the Linux character device. Unlike go-rpio
// it also works on Pi 5 and does not need /dev/gpiomem.
type CdevDriver struct {
	mu    sync.Mutex
	chip  *gpiocdev.Chip
	lines map[int]*gpiocdev.Line
	modes map[int]PinMode
}

// NewCdevDriver opens the named chip (e.g. "gpiochip0" or "/dev/gpiochip4").
func NewCdevDriver(chipName string) (*CdevDriver, error) {
	debug.Info("Initializing GPIO driver (go-gpiocdev, %s)", chipName)
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}
	return &CdevDriver{
		chip:  chip,
		lines: make(map[int]*gpiocdev.Line),
		modes: make(map[int]PinMode),
	}, nil
}

func (c *CdevDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setupLocked(pin, mode)
}

func (c *CdevDriver) setupLocked(pin int, mode PinMode) error {
	var opt gpiocdev.LineReqOption
	switch mode {
	case Input:
		opt = gpiocdev.AsInput
	case Output:
		opt = gpiocdev.AsOutput(0)
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}

	if l, ok := c.lines[pin]; ok {
		if c.modes[pin] == mode {
			return nil
		}
		if err := l.Close(); err != nil {
			return fmt.Errorf("release line %d: %w", pin, err)
		}
		delete(c.lines, pin)
	}

	l, err := c.chip.RequestLine(pin, opt)
	if err != nil {
		return fmt.Errorf("request line %d: %w", pin, err)
	}
	c.lines[pin] = l
	c.modes[pin] = mode
	return nil
}

func (c *CdevDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.modes[pin] != Output || c.lines[pin] == nil {
		if err := c.setupLocked(pin, Output); err != nil {
			return err
		}
	}
	v := 0
	if level == High {
		v = 1
	}
	return c.lines[pin].SetValue(v)
}

func (c *CdevDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.lines[pin]
	if !ok {
		if err := c.setupLocked(pin, Input); err != nil {
			return Low, err
		}
		l = c.lines[pin]
	}
	v, err := l.Value()
	if err != nil {
		return Low, fmt.Errorf("read line %d: %w", pin, err)
	}
	return v != 0, nil
}

// Close drives outputs low, releases every line and the chip.
func (c *CdevDriver) Close() error {
	debug.Trace("GPIO Close (go-gpiocdev)")
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	for pin, l := range c.lines {
		if c.modes[pin] == Output {
			err = multierr.Append(err, l.SetValue(0))
		}
		err = multierr.Append(err, l.Close())
	}
	c.lines = map[int]*gpiocdev.Line{}
	if c.chip != nil {
		err = multierr.Append(err, c.chip.Close())
		c.chip = nil
	}
	return err
}
