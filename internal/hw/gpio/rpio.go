package gpio

import (
	"fmt"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/Taha-404/Autonomous-Car/internal/debug"
)

// RPiDriver drives GPIO through go-rpio's memory-mapped registers.
type RPiDriver struct {
	pins map[int]rpio.Pin
}

// NewRPiRealDriver maps the GPIO registers.
// Requires a Raspberry Pi with access to /dev/gpiomem, or root.
func NewRPiRealDriver() (*RPiDriver, error) {
	debug.Info("Initializing GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpio: %w (is this a Raspberry Pi?)", err)
	}

	debug.Verbose("GPIO memory mapped")

	return &RPiDriver{
		pins: make(map[int]rpio.Pin),
	}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)

	p := rpio.Pin(pin)
	switch mode {
	case Input:
		p.Input()
	case Output:
		p.Output()
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}
	r.pins[pin] = p
	return nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)

	p, ok := r.pins[pin]
	if !ok {
		if err := r.SetupPin(pin, Output); err != nil {
			return err
		}
		p = r.pins[pin]
	}

	if level == High {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)

	p, ok := r.pins[pin]
	if !ok {
		if err := r.SetupPin(pin, Input); err != nil {
			return Low, err
		}
		p = r.pins[pin]
	}
	return p.Read() == rpio.High, nil
}

// Close returns every used pin to input (safe state) and unmaps the registers.
func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (go-rpio)")
	for pin, p := range r.pins {
		debug.Verbose("Resetting pin %d to input", pin)
		p.Input()
	}
	return rpio.Close()
}
