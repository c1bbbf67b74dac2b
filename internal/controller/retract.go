package controller

import (
	"context"

	"github.com/SynapticNetworks/threadctl/internal/gateway"
)

// Retract reports whether the controller is in a safe out-of-brain state.
// From OutOfBrainCalibrated (needle at PREMOVE) or OutOfBrainUncalibrated
// (needle at HOME) it returns Ok without moving or changing state, so
// repeated calls are idempotent. From Panicking it returns Aborted, since
// recovery to HOME is already under way. While an Insert is in progress
// (including the InBrain state) it returns Aborted("another command is in
// progress"); the Insert itself returns the needle to PREMOVE.
func (c *Controller) Retract(ctx context.Context) (Outcome, error) {
	resultCh := make(chan Outcome, 1)
	if err := c.l.Submit(func() { c.startRetract(resultCh) }); err != nil {
		return Outcome{}, err
	}
	select {
	case o := <-resultCh:
		return o, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (c *Controller) startRetract(resultCh chan<- Outcome) {
	if c.shutdownRequested {
		resultCh <- Aborted("shutting down")
		return
	}
	switch c.State() {
	case OutOfBrainCalibrated, OutOfBrainUncalibrated:
		resultCh <- Ok
		return
	case Panicking:
		resultCh <- Aborted("panic recovery in progress")
		return
	}
	if c.busy {
		resultCh <- Aborted("another command is in progress")
		return
	}
	c.busy = true
	c.moveWithUnboundedRetry(gateway.AxisNeedle, c.premove, "retract", func() {
		if c.supersededByPanic(resultFatalResolver(resultCh)) {
			return
		}
		c.inBrainMotionIssued = false
		c.setState(OutOfBrainCalibrated)
		c.busy = false
		resultCh <- Ok
	}, func() {
		c.supersededByPanic(resultFatalResolver(resultCh))
	})
}
