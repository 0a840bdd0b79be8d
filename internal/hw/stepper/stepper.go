package stepper

import (
	"context"
	"sync"
	"time"

	"github.com/Taha-404/Autonomous-Car/internal/debug"
	"github.com/Taha-404/Autonomous-Car/internal/hw/gpio"
)

// Config holds the hardware configuration of the steering stepper.
type Config struct {
	StepPin   int
	DirPin    int
	EnablePin int // A4988/DRV8825 ENABLE pin (BCM). 0 = not used. Active LOW.
	// MaxTravel limits the net position to ±MaxTravel steps from center
	// (steering lock). 0 = unlimited.
	MaxTravel int
	StepDelay time.Duration // half-cycle of the STEP pulse; a full step takes 2*StepDelay
}

// Stepper drives a step/dir stepper motor and tracks its net position.
type Stepper struct {
	gpio  gpio.Driver
	cfg   Config
	delay time.Duration

	mu       sync.Mutex
	position int
}

// NewStepper configures the pins and enables the driver.
// cfg.StepDelay defaults to 1ms.
func NewStepper(g gpio.Driver, cfg Config) *Stepper {
	_ = g.SetupPin(cfg.StepPin, gpio.Output)
	_ = g.SetupPin(cfg.DirPin, gpio.Output)

	delay := cfg.StepDelay
	if delay <= 0 {
		delay = 1 * time.Millisecond
	}

	s := &Stepper{
		gpio:  g,
		cfg:   cfg,
		delay: delay,
	}

	// ENABLE is active LOW: hold position from the start.
	if cfg.EnablePin > 0 {
		_ = g.SetupPin(cfg.EnablePin, gpio.Output)
		_ = g.WritePin(cfg.EnablePin, gpio.Low)
	}

	return s
}

// MoveSteps moves the motor by a signed number of steps.
func (s *Stepper) MoveSteps(steps int) error {
	_, err := s.MoveStepsContext(context.Background(), steps)
	return err
}

// MoveStepsContext moves by up to steps, stopping early when ctx is done or
// the travel limit is reached. It returns the steps actually taken.
func (s *Stepper) MoveStepsContext(ctx context.Context, steps int) (int, error) {
	steps = s.limit(steps)
	if steps == 0 {
		return 0, nil
	}

	dirLevel := gpio.High
	sign := 1
	if steps < 0 {
		dirLevel = gpio.Low
		sign = -1
		steps = -steps
	}

	debug.Trace("Stepper: moving %d steps (dir=%v) on pin %d", steps, dirLevel, s.cfg.StepPin)

	if err := s.gpio.WritePin(s.cfg.DirPin, dirLevel); err != nil {
		return 0, err
	}

	taken := 0
	for taken < steps {
		if err := ctx.Err(); err != nil {
			return sign * taken, err
		}
		if err := s.stepPulse(); err != nil {
			return sign * taken, err
		}
		taken++
		s.mu.Lock()
		s.position += sign
		s.mu.Unlock()
	}
	return sign * taken, nil
}

// limit clips a move so the position stays within ±MaxTravel.
func (s *Stepper) limit(steps int) int {
	if s.cfg.MaxTravel <= 0 {
		return steps
	}
	s.mu.Lock()
	pos := s.position
	s.mu.Unlock()

	target := pos + steps
	if target > s.cfg.MaxTravel {
		target = s.cfg.MaxTravel
	}
	if target < -s.cfg.MaxTravel {
		target = -s.cfg.MaxTravel
	}
	return target - pos
}

func (s *Stepper) stepPulse() error {
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.High); err != nil {
		return err
	}
	time.Sleep(s.delay)
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.Low); err != nil {
		return err
	}
	time.Sleep(s.delay)
	return nil
}

// Position returns the net steps taken since start (positive = right).
func (s *Stepper) Position() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// Enable turns on the motor driver (ENABLE=LOW). The motor holds position.
func (s *Stepper) Enable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.Low)
}

// Disable turns off the motor driver (ENABLE=HIGH). The steering freewheels.
func (s *Stepper) Disable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.High)
}
