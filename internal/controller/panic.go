package controller

import (
	"github.com/SynapticNetworks/threadctl/internal/gateway"
	"github.com/SynapticNetworks/threadctl/internal/panicmon"
)

// raisePanic records cause with the Panic Monitor and, if the panic
// sequence has not already begun, starts it. Safe to call repeatedly;
// only the first call after a reset starts the sequence, later calls only
// update the Panic Monitor's recorded cause.
func (c *Controller) raisePanic(cause panicmon.Cause) {
	c.pm.Raise(cause)
	c.checkPanicFlag()
}

// Panic is the external panic trigger named in the upward interface: any
// collaborator (the sequencer, an operator e-stop) may call it to force
// an immediate transition to Panicking regardless of the controller's
// current state.
func (c *Controller) Panic() {
	_ = c.l.Submit(func() {
		c.raisePanic(panicmon.CauseExternal)
	})
}

// enterPanicking begins the any-state -> Panicking transition. It is
// absorbing: further panic triggers while it is active change only the
// recorded cause, never re-enter the sequence. A command_move already in
// flight at this instant is not cancelled. It runs to completion, and
// tryStartPanicRetract issues the retract-to-HOME move once that
// happens.
func (c *Controller) enterPanicking(reason string) {
	if c.panicActive {
		return
	}
	c.panicActive = true
	c.panicReason = reason
	c.panicRetractIssued = false
	c.setState(Panicking)
	c.tryStartPanicRetract()
}

// tryStartPanicRetract issues the retract-to-HOME command_move, unless
// one is already outstanding: either another call to CommandMove that
// straddled the panic signal and has not yet returned, or the retract
// move itself. Called from enterPanicking and from every point where a
// command_move completes while a panic is pending, since any of those
// may be the call tryStartPanicRetract was waiting on.
func (c *Controller) tryStartPanicRetract() {
	if !c.panicActive || c.panicRetractIssued || c.moveInFlight {
		return
	}
	c.panicRetractIssued = true
	reason := c.panicReason
	c.moveWithUnboundedRetry(gateway.AxisNeedle, 0, "panic-retract", func() {
		c.completePanicRecovery(reason)
	}, nil)
}

// completePanicRecovery runs once the retract-to-HOME move issued by
// tryStartPanicRetract returns Ok. Guaranteed to reach HOME per the
// Panicking state's exit invariant, regardless of how many transient
// retries that took.
func (c *Controller) completePanicRecovery(reason string) {
	c.panicActive = false
	c.panicRetractIssued = false
	c.panicReason = ""
	c.inBrainMotionIssued = false
	c.activeFit = nil
	c.pm.Reset()
	c.setState(OutOfBrainUncalibrated)

	pending := c.pendingFatal
	c.pendingFatal = nil
	c.busy = false
	outcome := Fatal(reason)
	for _, resolve := range pending {
		resolve(outcome)
	}

	if c.shutdownRequested {
		c.finishShutdown()
	}
}

// supersededByPanic is called at the top of every continuation in the
// Calibrate/Insert/Retract pipelines. If a panic has superseded the
// in-flight op, it registers resolve to be called with Fatal(reason) once
// recovery completes and reports true so the caller abandons its own
// continuation.
func (c *Controller) supersededByPanic(resolve func(Outcome)) bool {
	if !c.panicActive {
		return false
	}
	c.pendingFatal = append(c.pendingFatal, resolve)
	c.tryStartPanicRetract()
	return true
}
