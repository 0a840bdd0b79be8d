package motion

import (
	"context"

	"github.com/Taha-404/Autonomous-Car/internal/debug"
	"github.com/Taha-404/Autonomous-Car/internal/hw/stepper"
	"github.com/Taha-404/Autonomous-Car/internal/logic/steering"
	"github.com/Taha-404/Autonomous-Car/internal/mailbox"
)

// TaskName is the name the actuator registers under.
const TaskName = "steering-actuator"

// Actuator moves the steering mechanism.
type Actuator interface {
	MoveStepsContext(ctx context.Context, steps int) (int, error)
	Enable() error
	Disable() error
}

var _ Actuator = (*stepper.Stepper)(nil)

// Controller is the actuator task: it turns the latest steering command into
// motor steps. It sits between the control loop and the low-level driver.
type Controller struct {
	steer    Actuator
	commands *mailbox.Mailbox[int]
}

func NewController(steer Actuator, commands *mailbox.Mailbox[int]) *Controller {
	return &Controller{
		steer:    steer,
		commands: commands,
	}
}

// Apply issues one steering command and returns the steps actually taken.
func (c *Controller) Apply(ctx context.Context, steps int) (int, error) {
	if steps == 0 {
		return 0, nil
	}
	debug.Steer(steps, steering.Direction(steps))
	return c.steer.MoveStepsContext(ctx, steps)
}

// Run waits for commands until ctx is done. Only the most recent command is
// ever seen; older ones overwritten while the motor was busy are skipped.
// The driver is disabled on exit so the steering is not held.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.steer.Enable(); err != nil {
		return err
	}
	defer func() {
		if err := c.steer.Disable(); err != nil {
			debug.Error(err)
		}
	}()

	for {
		steps, err := c.commands.ReceiveContext(ctx)
		if err != nil {
			return err
		}
		if _, err := c.Apply(ctx, steps); err != nil {
			return err
		}
	}
}
