package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Taha-404/Autonomous-Car/internal/logic/pid"
)

// PIDConfig holds the heading controller tuning.
type PIDConfig struct {
	Kp             float64 `yaml:"kp"`
	Ki             float64 `yaml:"ki"`               // unused (0) in the current tuning
	Kd             float64 `yaml:"kd"`               // unused (0) in the current tuning
	ErrorFactorDeg float64 `yaml:"error_factor_deg"` // smallest delta change treated as a new setpoint
	PeriodMs       int     `yaml:"period_ms"`        // loop pacing (20 scheduler ticks)
}

// SteeringConfig describes the steering stepper and its drive train.
type SteeringConfig struct {
	StepPin       int     `yaml:"step_pin"`
	DirPin        int     `yaml:"dir_pin"`
	EnablePin     int     `yaml:"enable_pin"` // ENABLE pin (BCM). 0 = not used. Active LOW.
	StepsPerRev   int     `yaml:"steps_per_rev"`
	Microstepping int     `yaml:"microstepping"`
	GearRatio     float64 `yaml:"gear_ratio"`    // motor turns per steering-column turn
	Gain          float64 `yaml:"gain"`          // column degrees per degree of heading correction
	MaxSteps      int     `yaml:"max_steps"`     // clamp per command, 0 = none
	MaxTravel     int     `yaml:"max_travel"`    // steering lock in steps from center, 0 = none
	StepDelayUs   int     `yaml:"step_delay_us"` // half-cycle of the STEP pulse
}

// SerialConfig describes a serial link.
type SerialConfig struct {
	Enable   bool   `yaml:"enable"`
	Port     string `yaml:"port"` // "-" = stdio
	BaudRate int    `yaml:"baud_rate"`
	Echo     bool   `yaml:"echo,omitempty"` // command link only
}

// DefaultsConfig contains generic process parameters.
type DefaultsConfig struct {
	DebugLevel  int    `yaml:"debug_level"`  // 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	GPIOBackend string `yaml:"gpio_backend"` // mock, rpio, cdev
	MockGPIO    bool   `yaml:"mock_gpio"`    // shorthand for gpio_backend: mock
}

// Config aggregates all application configuration.
type Config struct {
	PID       PIDConfig      `yaml:"pid"`
	Steering  SteeringConfig `yaml:"steering_stepper"`
	Telemetry SerialConfig   `yaml:"telemetry"`
	Command   SerialConfig   `yaml:"command"`
	Defaults  DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath accepts only .yaml files directly inside a configs/ directory.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Default returns the configuration used when no file overrides a field.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.PID.Kp == 0 && c.PID.Ki == 0 && c.PID.Kd == 0 {
		c.PID.Kp = pid.DefaultGains.Kp
	}
	if c.PID.ErrorFactorDeg <= 0 {
		c.PID.ErrorFactorDeg = 2
	}
	if c.PID.PeriodMs <= 0 {
		c.PID.PeriodMs = 20
	}

	if c.Steering.StepsPerRev <= 0 {
		c.Steering.StepsPerRev = 200
	}
	if c.Steering.Microstepping <= 0 {
		c.Steering.Microstepping = 1
	}
	if c.Steering.GearRatio <= 0 {
		c.Steering.GearRatio = 1
	}
	if c.Steering.Gain <= 0 {
		c.Steering.Gain = 1
	}
	if c.Steering.StepDelayUs <= 0 {
		c.Steering.StepDelayUs = 1000
	}

	if c.Telemetry.BaudRate <= 0 {
		c.Telemetry.BaudRate = 9600
	}
	if c.Command.BaudRate <= 0 {
		c.Command.BaudRate = 115200
	}

	if c.Defaults.MockGPIO {
		c.Defaults.GPIOBackend = "mock"
	}
	if c.Defaults.GPIOBackend == "" {
		c.Defaults.GPIOBackend = "rpio"
	}
}

// Validate checks ranges after defaults have been applied.
func (c *Config) Validate() error {
	for name, v := range map[string]float64{"pid.kp": c.PID.Kp, "pid.ki": c.PID.Ki, "pid.kd": c.PID.Kd} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s must be finite", name)
		}
	}
	if c.PID.ErrorFactorDeg >= 180 {
		return fmt.Errorf("pid.error_factor_deg must be < 180, got %.2f", c.PID.ErrorFactorDeg)
	}
	if c.PID.PeriodMs > 1000 {
		return fmt.Errorf("pid.period_ms must be <= 1000, got %d", c.PID.PeriodMs)
	}

	if c.Defaults.GPIOBackend != "mock" {
		if c.Steering.StepPin <= 0 || c.Steering.DirPin <= 0 {
			return fmt.Errorf("steering_stepper.step_pin and dir_pin are required")
		}
		if c.Steering.StepPin == c.Steering.DirPin {
			return fmt.Errorf("steering_stepper.step_pin and dir_pin must differ")
		}
	}
	if c.Steering.MaxSteps < 0 || c.Steering.MaxTravel < 0 {
		return fmt.Errorf("steering_stepper.max_steps and max_travel must be >= 0")
	}

	switch c.Defaults.GPIOBackend {
	case "mock", "rpio", "cdev":
	default:
		return fmt.Errorf("defaults.gpio_backend must be mock, rpio or cdev, got %q", c.Defaults.GPIOBackend)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}

	if c.Telemetry.Enable && c.Telemetry.Port == "" {
		return fmt.Errorf("telemetry.port is required when telemetry.enable is true")
	}
	if c.Command.Enable && c.Command.Port == "" {
		return fmt.Errorf("command.port is required when command.enable is true")
	}
	if c.Telemetry.Enable && c.Command.Enable && c.Telemetry.Port == c.Command.Port && c.Telemetry.Port != "-" {
		return fmt.Errorf("telemetry and command cannot share port %s", c.Telemetry.Port)
	}
	return nil
}

// Period returns the control loop period.
func (c *Config) Period() time.Duration {
	return time.Duration(c.PID.PeriodMs) * time.Millisecond
}

// StepDelay returns the half-cycle duration of a STEP pulse.
func (c *Config) StepDelay() time.Duration {
	return time.Duration(c.Steering.StepDelayUs) * time.Microsecond
}
