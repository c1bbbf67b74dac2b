package controller

import (
	"context"

	"github.com/SynapticNetworks/threadctl/internal/gateway"
	"github.com/SynapticNetworks/threadctl/internal/logging"
	"github.com/SynapticNetworks/threadctl/internal/panicmon"
)

// Shutdown implements the Supervisor's documented shutdown sequence at
// the Controller's level: inject a panic, wait for the recovery sequence
// to reach OutOfBrainUncalibrated (which already guarantees HOME), then
// issue one final defensive command_move(needle, HOME) before reporting
// Ok. If the controller is already in OutOfBrainUncalibrated with no panic
// active, no panic is injected and only the final move is issued. After Shutdown resolves, every further upward command is rejected;
// the Supervisor is expected to stop the pollers and the cooperative
// runtime once this returns.
func (c *Controller) Shutdown(ctx context.Context) (Outcome, error) {
	resultCh := make(chan Outcome, 1)
	if err := c.l.Submit(func() { c.startShutdown(resultCh) }); err != nil {
		return Outcome{}, err
	}
	select {
	case o := <-resultCh:
		return o, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (c *Controller) startShutdown(resultCh chan<- Outcome) {
	if c.shutdownRequested {
		c.shutdownWaiters = append(c.shutdownWaiters, resultCh)
		return
	}
	c.shutdownRequested = true
	c.shutdownWaiters = append(c.shutdownWaiters, resultCh)

	if c.State() == OutOfBrainUncalibrated && !c.panicActive {
		c.finishShutdown()
		return
	}
	c.raisePanic(panicmon.CauseExternal)
}

// finishShutdown runs once the controller has reached
// OutOfBrainUncalibrated: directly from startShutdown when it was already
// there with no panic active, otherwise from completePanicRecovery, whether
// Shutdown triggered the panic itself or a panic was already in progress
// for an unrelated reason.
func (c *Controller) finishShutdown() {
	c.issueCommandMove(gateway.AxisNeedle, 0, func(err error) {
		if err != nil {
			c.log.Error("final shutdown move faulted", err, logging.Fields{})
		}
		waiters := c.shutdownWaiters
		c.shutdownWaiters = nil
		for _, w := range waiters {
			w <- Ok
		}
	})
}
