package controller

import (
	"errors"

	"github.com/SynapticNetworks/threadctl/internal/gateway"
	"github.com/SynapticNetworks/threadctl/internal/logging"
	"github.com/SynapticNetworks/threadctl/internal/loop"
	"github.com/SynapticNetworks/threadctl/internal/panicmon"
)

// issueCommandMove performs exactly one command_move(axis, target) call,
// tracking moveInFlight for the duration of the call. The Gateway offers
// no cancellation, so every caller that may need to start a panic
// recovery mid-call must wait for onResult rather than issue a second,
// concurrent command_move.
func (c *Controller) issueCommandMove(axis gateway.Axis, target int64, onResult func(error)) {
	c.moveInFlight = true
	loop.GoVoid(c.l, func() error {
		ctx, cancel := c.gatewayCtx()
		defer cancel()
		return c.gw.CommandMove(ctx, axis, target)
	}, func(err error) {
		c.moveInFlight = false
		onResult(err)
	})
}

// moveWithUnboundedRetry issues command_move(axis, target), retrying
// indefinitely (paced by the Retry Pacer under category) over transient
// errors. onOk runs on the owning goroutine when the robot reports it has
// reached target. A PositionError instead raises a panic and abandons
// this specific attempt; onPanic, if non-nil, runs immediately after the
// panic is raised so a waiting upward command can register itself into
// pendingFatal rather than being left to resolve only if it later
// happens to observe the panic through its own continuation. The
// panic-retract move issued by tryStartPanicRetract itself passes a nil
// onPanic: it has no outer caller to notify, and it is the move that
// eventually drains pendingFatal once it succeeds.
func (c *Controller) moveWithUnboundedRetry(axis gateway.Axis, target int64, category string, onOk func(), onPanic func()) {
	var attempt func()
	attempt = func() {
		c.issueCommandMove(axis, target, func(err error) {
			if err == nil {
				onOk()
				return
			}
			if errors.Is(err, gateway.ErrPosition) {
				c.log.Error("move faulted fatally", err, logging.Fields{"axis": axis.String(), "target": target})
				c.raisePanic(panicmon.CausePositionFault)
				if onPanic != nil {
					onPanic()
				}
				return
			}
			c.log.Debug("move faulted, retrying", logging.Fields{"axis": axis.String(), "target": target, "category": category, "err": err})
			wait, ok := c.pacer.Allow(category)
			if ok {
				attempt()
				return
			}
			_ = c.l.After(wait, attempt)
		})
	}
	attempt()
}
