package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"go.uber.org/multierr"

	"github.com/Taha-404/Autonomous-Car/internal/command"
	"github.com/Taha-404/Autonomous-Car/internal/config"
	"github.com/Taha-404/Autonomous-Car/internal/debug"
	"github.com/Taha-404/Autonomous-Car/internal/hw/gpio"
	"github.com/Taha-404/Autonomous-Car/internal/hw/serial"
	"github.com/Taha-404/Autonomous-Car/internal/hw/stepper"
	"github.com/Taha-404/Autonomous-Car/internal/logic/control"
	"github.com/Taha-404/Autonomous-Car/internal/logic/motion"
	"github.com/Taha-404/Autonomous-Car/internal/logic/pid"
	"github.com/Taha-404/Autonomous-Car/internal/logic/steering"
	"github.com/Taha-404/Autonomous-Car/internal/task"
	"github.com/Taha-404/Autonomous-Car/internal/telemetry"
	"github.com/Taha-404/Autonomous-Car/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start bench web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	kp := flag.Float64("kp", 0, "override proportional gain (0 = use config)")
	errorFactorDeg := flag.Float64("error_factor_deg", 0, "override setpoint change threshold in degrees (0 = use config)")
	listPorts := flag.Bool("list-ports", false, "list serial ports and exit")
	flag.Parse()

	if *listPorts {
		ports, err := serial.Ports()
		if err != nil {
			log.Fatalf("list serial ports failed: %v", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// Only non-zero values are applied; zero means "use config".
	if err := validateCLIOverrides(*kp, *errorFactorDeg); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	applyOverrides(cfg, overrides{Kp: *kp, ErrorFactorDeg: *errorFactorDeg})

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	if err := run(ctx, cfg, webPort.port()); err != nil {
		log.Fatalf("steerd: %v", err)
	}
}

// run wires the hardware and tasks and blocks until ctx is cancelled or a
// task fails. Everything opened here is closed before it returns.
func run(ctx context.Context, cfg *config.Config, webPort int) (err error) {
	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i].Close())
		}
	}()

	debug.Value("GPIO backend", cfg.Defaults.GPIOBackend)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.GPIOBackend)
	if err != nil {
		return fmt.Errorf("init GPIO: %w", err)
	}
	closers = append(closers, gpioDriver)

	debug.Step(2, "Initializing steering stepper")
	steer := stepper.NewStepper(gpioDriver, stepper.Config{
		StepPin:   cfg.Steering.StepPin,
		DirPin:    cfg.Steering.DirPin,
		EnablePin: cfg.Steering.EnablePin,
		MaxTravel: cfg.Steering.MaxTravel,
		StepDelay: cfg.StepDelay(),
	})
	debug.PrintStruct("Steering stepper config", cfg.Steering)

	debug.Step(3, "Building control loop")
	encoder := steering.NewEncoder(steering.Geometry{
		StepsPerRev:   cfg.Steering.StepsPerRev,
		Microstepping: cfg.Steering.Microstepping,
		GearRatio:     cfg.Steering.GearRatio,
		Gain:          cfg.Steering.Gain,
	}, cfg.Steering.MaxSteps)
	debug.Value("Steps per degree", encoder.StepsPerDegree)

	ch := control.NewChannels()
	var opts []control.Option

	if cfg.Telemetry.Enable {
		port, err := serial.Open(serial.Config{Port: cfg.Telemetry.Port, BaudRate: cfg.Telemetry.BaudRate})
		if err != nil {
			return fmt.Errorf("open telemetry: %w", err)
		}
		closers = append(closers, port)
		opts = append(opts, control.WithObserver(telemetry.NewWriter(port).Observer()))
	}

	var broadcaster *web.StatusBroadcaster
	if webPort > 0 {
		broadcaster = web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
		defer debug.SetOutput(os.Stdout)
		opts = append(opts, control.WithObserver(broadcaster.Observer()))
	}

	loopCfg := control.Config{
		Gains: pid.Gains{
			Kp: cfg.PID.Kp,
			Ki: cfg.PID.Ki,
			Kd: cfg.PID.Kd,
		},
		ErrorFactor: cfg.PID.ErrorFactorDeg,
		Period:      cfg.Period(),
		Encoder:     encoder,
	}
	loop, err := control.New(loopCfg, ch, opts...)
	if err != nil {
		return err
	}

	// The command port is closed by its task, not by the closers.
	var cmdPort io.ReadWriteCloser
	if cfg.Command.Enable {
		cmdPort, err = serial.Open(serial.Config{Port: cfg.Command.Port, BaudRate: cfg.Command.BaudRate})
		if err != nil {
			return fmt.Errorf("open command port: %w", err)
		}
	}

	debug.Step(4, "Starting tasks")
	g := task.NewGroup(ctx)
	loop.Register(g)
	g.Go(motion.TaskName, motion.NewController(steer, ch.Steering).Run)

	if cmdPort != nil {
		var echo io.Writer
		if cfg.Command.Echo {
			echo = cmdPort
		}
		dec := command.NewDecoder(ch.DesiredDelta, ch.Current, echo)
		g.Go(command.TaskName, func(ctx context.Context) error {
			return decodeUntilDone(ctx, dec, cmdPort)
		})
	}

	if webPort > 0 {
		srv := web.NewServer(fmt.Sprintf(":%d", webPort), broadcaster, loopConfigView(cfg, encoder), ch.DesiredDelta, ch.Current)
		g.Go(web.TaskName, srv.Run)
	}

	if !cfg.Command.Enable && webPort <= 0 {
		debug.Info("No setpoint source configured (command link and web both off); the loop will wait")
	}

	debug.Section("Running")
	return g.Wait()
}

// decodeUntilDone runs the decoder and closes port when ctx ends. A read
// blocked on stdio may not return on Close; the task does not wait for it.
func decodeUntilDone(ctx context.Context, dec *command.Decoder, port io.ReadWriteCloser) error {
	errCh := make(chan error, 1)
	go func() { errCh <- dec.Run(ctx, port) }()

	select {
	case err := <-errCh:
		return multierr.Append(err, port.Close())
	case <-ctx.Done():
		if err := port.Close(); err != nil {
			debug.Error(fmt.Errorf("close command port: %w", err))
		}
		return ctx.Err()
	}
}

func loopConfigView(cfg *config.Config, enc steering.Encoder) web.LoopConfig {
	return web.LoopConfig{
		Kp:             cfg.PID.Kp,
		Ki:             cfg.PID.Ki,
		Kd:             cfg.PID.Kd,
		ErrorFactorDeg: cfg.PID.ErrorFactorDeg,
		PeriodMs:       cfg.PID.PeriodMs,
		StepsPerDegree: enc.StepsPerDegree,
		MaxSteps:       enc.MaxSteps,
	}
}

// overrides holds the tuning values that can be set from the command line.
type overrides struct {
	Kp             float64
	ErrorFactorDeg float64
}

// validateCLIOverrides checks that non-zero CLI overrides are within valid ranges.
// Zero values are ignored (they mean "use config default").
func validateCLIOverrides(kp, errorFactor float64) error {
	if kp != 0 {
		if math.IsNaN(kp) || math.IsInf(kp, 0) || kp < 0 || kp > 100 {
			return fmt.Errorf("kp must be between 0 and 100, got %g", kp)
		}
	}
	if errorFactor != 0 {
		if math.IsNaN(errorFactor) || math.IsInf(errorFactor, 0) || errorFactor < 0 || errorFactor >= 180 {
			return fmt.Errorf("error_factor_deg must be between 0 and 180, got %g", errorFactor)
		}
	}
	return nil
}

// applyOverrides mutates cfg with overrides. Only non-zero override values are applied.
func applyOverrides(cfg *config.Config, o overrides) {
	if o.Kp > 0 {
		cfg.PID.Kp = o.Kp
	}
	if o.ErrorFactorDeg > 0 {
		cfg.PID.ErrorFactorDeg = o.ErrorFactorDeg
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
