// Package control implements the heading-control loop.
//
// The loop turns desired-orientation deltas and current-orientation samples
// into steering step commands. It owns its PID state exclusively and talks to
// the rest of the system only through three single-slot mailboxes.
package control

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Taha-404/Autonomous-Car/internal/debug"
	"github.com/Taha-404/Autonomous-Car/internal/logic/heading"
	"github.com/Taha-404/Autonomous-Car/internal/logic/pid"
	"github.com/Taha-404/Autonomous-Car/internal/logic/steering"
	"github.com/Taha-404/Autonomous-Car/internal/mailbox"
	"github.com/Taha-404/Autonomous-Car/internal/task"
)

// TaskName is the name the loop registers under.
const TaskName = "heading-control"

const (
	// DefaultPeriod is 20 ticks of a 1 kHz scheduler.
	DefaultPeriod = 20 * time.Millisecond
	// DefaultErrorFactor is the smallest change of commanded delta, in
	// degrees, that counts as a new setpoint.
	DefaultErrorFactor = 2.0
)

// State is the loop's position in its setpoint-tracking state machine.
type State int

const (
	AwaitingSetpoint State = iota
	Tracking
)

func (s State) String() string {
	switch s {
	case AwaitingSetpoint:
		return "awaiting-setpoint"
	case Tracking:
		return "tracking"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config holds the loop tuning.
type Config struct {
	Gains       pid.Gains
	ErrorFactor float64       // degrees; 0 = DefaultErrorFactor
	Period      time.Duration // 0 = DefaultPeriod
	Encoder     steering.Encoder
}

// Channels are the mailboxes shared with the producers and the actuator task.
type Channels struct {
	DesiredDelta *mailbox.Mailbox[float64]
	Current      *mailbox.Mailbox[float64]
	Steering     *mailbox.Mailbox[int]
}

// NewChannels creates the three empty mailboxes.
func NewChannels() Channels {
	return Channels{
		DesiredDelta: mailbox.New[float64](),
		Current:      mailbox.New[float64](),
		Steering:     mailbox.New[int](),
	}
}

// Sample describes one tracking iteration.
type Sample struct {
	Episode   int
	Iteration int
	Current   float64
	Desired   float64 // normalized setpoint of the episode
	Target    float64 // desired re-expressed next to Current
	Wrap      heading.WrapFlag
	Output    float64 // PID output
	Steps     int     // command published to the actuator
}

// Observer receives every Sample. Observers run on the loop's goroutine and
// must not block.
type Observer func(Sample)

// SleepFunc paces the loop. It returns ctx.Err() if ctx ends first.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Option func(*Loop)

// WithObserver adds an Observer.
func WithObserver(o Observer) Option {
	return func(l *Loop) {
		l.observers = append(l.observers, o)
	}
}

// WithSleep replaces the pacing sleep.
func WithSleep(s SleepFunc) Option {
	return func(l *Loop) {
		l.sleep = s
	}
}

// Loop is the heading-control state machine.
type Loop struct {
	cfg Config
	ch  Channels
	pid *pid.Controller

	state     State
	delta     float64
	desired   heading.Orientation
	wrap      heading.WrapFlag
	episode   int
	iteration int

	observers []Observer
	sleep     SleepFunc
}

// New builds a loop in AwaitingSetpoint.
func New(cfg Config, ch Channels, opts ...Option) (*Loop, error) {
	if ch.DesiredDelta == nil || ch.Current == nil || ch.Steering == nil {
		return nil, fmt.Errorf("control: all three channels are required")
	}
	if cfg.ErrorFactor <= 0 {
		cfg.ErrorFactor = DefaultErrorFactor
	}
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}

	l := &Loop{
		cfg:   cfg,
		ch:    ch,
		pid:   pid.NewController(cfg.Gains),
		state: AwaitingSetpoint,
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Register starts the loop as a task of g and returns immediately.
func (l *Loop) Register(g *task.Group) {
	g.Go(TaskName, l.Run)
}

// Run drives the loop until ctx is cancelled. Receives have no timeout:
// without input the loop waits indefinitely rather than steer on stale data.
// ctx only exists so the process can shut down.
func (l *Loop) Run(ctx context.Context) error {
	debug.Info("Control loop started (period=%v, error factor=%.2f°, gains=%+v)", l.cfg.Period, l.cfg.ErrorFactor, l.cfg.Gains)
	for {
		if err := l.acceptSetpoint(ctx); err != nil {
			return err
		}
		for l.state == Tracking {
			if err := l.iterate(ctx); err != nil {
				return err
			}
		}
	}
}

// acceptSetpoint blocks for a delta and a current sample, then starts a new episode.
func (l *Loop) acceptSetpoint(ctx context.Context) error {
	debug.Verbose("Awaiting setpoint")
	delta, err := l.ch.DesiredDelta.ReceiveContext(ctx)
	if err != nil {
		return err
	}
	current, err := l.ch.Current.ReceiveContext(ctx)
	if err != nil {
		return err
	}

	l.delta = delta
	l.desired = heading.Normalize(current + delta)
	l.wrap = heading.DetectWrap(heading.Orientation(current), l.desired)
	l.pid.Reset()
	l.episode++
	l.iteration = 0
	l.state = Tracking

	debug.Setpoint(current, delta, l.desired.Degrees(), l.wrap)
	debug.Live("Episode %d: shortest rotation %+.2f°", l.episode, heading.ShortestDelta(heading.Orientation(current), l.desired))
	return nil
}

// iterate runs one tracking iteration. It leaves Tracking when a new
// setpoint has been commanded.
func (l *Loop) iterate(ctx context.Context) error {
	if next, ok := l.ch.DesiredDelta.Peek(); ok {
		if math.Abs(next-l.delta) > l.cfg.ErrorFactor {
			l.pid.Reset()
			l.state = AwaitingSetpoint
			debug.Episode(l.iteration, fmt.Sprintf("new delta %+.2f", next))
			return nil
		}
	}

	current, err := l.ch.Current.ReceiveContext(ctx)
	if err != nil {
		return err
	}

	cur := heading.Orientation(current)
	target := float64(l.desired)
	if l.wrap != heading.NoWrap {
		target = heading.AdjustDesired(l.wrap, cur, l.desired)
	}

	out := l.pid.Step(current, target)
	steps := l.cfg.Encoder.Encode(out)
	l.ch.Steering.Overwrite(steps)
	l.iteration++

	debug.Verbose("Iteration %d: current=%.2f target=%.2f out=%.3f steps=%d", l.iteration, current, target, out, steps)
	l.notify(Sample{
		Episode:   l.episode,
		Iteration: l.iteration,
		Current:   current,
		Desired:   l.desired.Degrees(),
		Target:    target,
		Wrap:      l.wrap,
		Output:    out,
		Steps:     steps,
	})

	return l.sleep(ctx, l.cfg.Period)
}

func (l *Loop) notify(s Sample) {
	for _, o := range l.observers {
		o(s)
	}
}

// State returns the current state. Only meaningful from the loop's goroutine
// or once the loop has stopped.
func (l *Loop) State() State {
	return l.state
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
