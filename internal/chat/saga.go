package chat

import (
	"context"
	"log"
)

// compensation is the undo stack for multi-step writes against a store with
// no cross-table transactions. Each completed step pushes a compensator;
// rollback runs them newest-first so the pre-operation state is restored in
// reverse dependency order.
type compensation struct {
	log   *log.Logger
	steps []compensationStep
}

type compensationStep struct {
	name string
	undo func(ctx context.Context) error
}

func newCompensation(logger *log.Logger) *compensation {
	return &compensation{log: logger}
}

func (c *compensation) push(name string, undo func(ctx context.Context) error) {
	c.steps = append(c.steps, compensationStep{name: name, undo: undo})
}

// rollback executes all registered compensators in reverse. A compensator
// failure leaves partial state behind, which is exactly the condition the
// error taxonomy calls fatal.
func (c *compensation) rollback(ctx context.Context, cause error) error {
	for i := len(c.steps) - 1; i >= 0; i-- {
		step := c.steps[i]
		if err := step.undo(ctx); err != nil {
			c.log.Printf("compensation %q failed: %v (rolling back after: %v)", step.name, err, cause)
			return NewFatalError("compensation failed, partial state may remain", err)
		}
		c.log.Printf("compensated step %q", step.name)
	}

	return nil
}
