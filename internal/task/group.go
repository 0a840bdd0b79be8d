// Package task runs the long-lived tasks of the process (control loop,
// actuator, command decoder, ...) and stops them together.
package task

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Taha-404/Autonomous-Car/internal/debug"
)

// Func is the body of a task. It should run until ctx is done.
type Func func(ctx context.Context) error

// Group supervises a set of tasks. When one task fails, the context shared by
// all of them is cancelled.
type Group struct {
	eg  *errgroup.Group
	ctx context.Context
}

// NewGroup returns a group whose tasks run under a child of ctx.
func NewGroup(ctx context.Context) *Group {
	eg, gctx := errgroup.WithContext(ctx)
	return &Group{eg: eg, ctx: gctx}
}

// Context is the context handed to every task.
func (g *Group) Context() context.Context {
	return g.ctx
}

// Go starts fn in its own goroutine and returns immediately.
// Cancellation is a normal stop and is not reported as an error.
func (g *Group) Go(name string, fn Func) {
	debug.Verbose("Starting task %q", name)
	g.eg.Go(func() error {
		err := fn(g.ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			debug.Verbose("Task %q stopped", name)
			return nil
		}
		debug.Error(fmt.Errorf("task %s: %w", name, err))
		return fmt.Errorf("task %s: %w", name, err)
	})
}

// Wait blocks until every task has returned and reports the first failure.
func (g *Group) Wait() error {
	return g.eg.Wait()
}
