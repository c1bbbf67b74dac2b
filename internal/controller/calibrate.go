package controller

import (
	"context"
	"time"

	"github.com/SynapticNetworks/threadctl/internal/gateway"
)

// Calibrate drives the controller from OutOfBrainUncalibrated to
// OutOfBrainCalibrated: home the needle, observe a fault-free surface
// window, stage at PREMOVE. Idempotent when already calibrated. Blocks
// until the outcome is known or ctx is done. The command itself is
// asynchronous internally (see package doc), this is a synchronous
// convenience wrapper over it.
func (c *Controller) Calibrate(ctx context.Context) (Outcome, error) {
	resultCh := make(chan Outcome, 1)
	if err := c.l.Submit(func() { c.startCalibrate(resultCh) }); err != nil {
		return Outcome{}, err
	}
	select {
	case o := <-resultCh:
		return o, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (c *Controller) startCalibrate(resultCh chan<- Outcome) {
	if c.shutdownRequested {
		resultCh <- Aborted("shutting down")
		return
	}
	switch c.State() {
	case OutOfBrainCalibrated:
		resultCh <- Ok
		return
	case Panicking:
		resultCh <- Aborted("panic recovery in progress")
		return
	case InBrain:
		resultCh <- Aborted("cannot calibrate while in brain")
		return
	}
	if c.busy {
		resultCh <- Aborted("another command is in progress")
		return
	}
	c.busy = true
	c.pm.Reset()

	c.moveWithUnboundedRetry(gateway.AxisNeedle, 0, "home", func() {
		if c.supersededByPanic(resultFatalResolver(resultCh)) {
			return
		}
		c.awaitCalibrationWindow(resultCh)
	}, func() {
		c.supersededByPanic(resultFatalResolver(resultCh))
	})
}

// awaitCalibrationWindow waits until the distance buffer holds at least
// 300ms of fault-free surface samples, then computes PREMOVE and stages
// the needle there.
func (c *Controller) awaitCalibrationWindow(resultCh chan<- Outcome) {
	window := c.distBuf.Recent(c.distBuf.Cap())
	if ok, maxSurface := faultFreeWindowSince(window, 300*time.Millisecond); ok {
		premove := maxSurface + c.cfg.PremoveMargin
		c.moveWithUnboundedRetry(gateway.AxisNeedle, premove, "premove", func() {
			if c.supersededByPanic(resultFatalResolver(resultCh)) {
				return
			}
			c.premove = premove
			c.setState(OutOfBrainCalibrated)
			c.busy = false
			resultCh <- Ok
		}, func() {
			c.supersededByPanic(resultFatalResolver(resultCh))
		})
		return
	}

	// not enough fault-free data yet: retry once a new sample arrives.
	c.insertWaiters = append(c.insertWaiters, func() {
		if c.supersededByPanic(resultFatalResolver(resultCh)) {
			return
		}
		c.awaitCalibrationWindow(resultCh)
	})
}

func resultFatalResolver(resultCh chan<- Outcome) func(Outcome) {
	return func(o Outcome) { resultCh <- o }
}
