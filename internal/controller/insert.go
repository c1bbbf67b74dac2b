package controller

import (
	"context"
	"time"

	"github.com/SynapticNetworks/threadctl/internal/gateway"
	"github.com/SynapticNetworks/threadctl/internal/logging"
	"github.com/SynapticNetworks/threadctl/internal/panicmon"
	"github.com/SynapticNetworks/threadctl/internal/predictor"
)

// Insert drives OutOfBrainCalibrated -> InBrain -> OutOfBrainCalibrated: a
// single in-brain motion landing the needle at targetDepthMicrons past
// the predicted surface position at the predicted arrival time. A
// non-positive targetDepthMicrons is rejected at the API, pinning the
// degenerate-depth behavior left open by the specification.
func (c *Controller) Insert(ctx context.Context, targetDepthMicrons int64) (Outcome, error) {
	if targetDepthMicrons <= 0 {
		return Aborted("target depth must be positive"), nil
	}
	resultCh := make(chan Outcome, 1)
	if err := c.l.Submit(func() { c.startInsert(targetDepthMicrons, resultCh) }); err != nil {
		return Outcome{}, err
	}
	select {
	case o := <-resultCh:
		return o, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (c *Controller) startInsert(targetDepthMicrons int64, resultCh chan<- Outcome) {
	if c.shutdownRequested {
		resultCh <- Aborted("shutting down")
		return
	}
	switch c.State() {
	case OutOfBrainCalibrated:
	case Panicking:
		resultCh <- Aborted("panic recovery in progress")
		return
	case InBrain:
		resultCh <- Aborted("insert already in progress")
		return
	default:
		resultCh <- Aborted("not calibrated")
		return
	}
	if c.busy {
		resultCh <- Aborted("another command is in progress")
		return
	}
	c.busy = true
	c.awaitPrediction(targetDepthMicrons, resultCh)
}

// awaitPrediction re-checks the active Prediction on every new surface
// sample until one is valid, per the error taxonomy's "prediction
// insufficiency is not an error; insert requests wait until valid."
func (c *Controller) awaitPrediction(targetDepthMicrons int64, resultCh chan<- Outcome) {
	if c.supersededByPanic(resultFatalResolver(resultCh)) {
		return
	}
	now := time.Now()
	fit := c.activeFit
	if fit != nil && !fit.FullyWithin(now, predictor.InBrainEntryFreshness) {
		// the active fit may reach back SampleWindowMax; refit over only the
		// samples inside the InBrain entry window.
		entryFit, err := predictor.FitQuadratic(c.distBuf.Recent(c.distBuf.Cap()), predictor.Params{
			WindowMin: c.cfg.SampleWindowMin,
			WindowMax: predictor.InBrainEntryFreshness,
			MaxSigma:  25,
			Freshness: predictor.InBrainEntryFreshness,
		}, now)
		fit = nil
		if err == nil {
			fit = &entryFit
		}
	}
	if fit == nil || !fit.FullyWithin(now, predictor.InBrainEntryFreshness) {
		c.insertWaiters = append(c.insertWaiters, func() {
			c.awaitPrediction(targetDepthMicrons, resultCh)
		})
		return
	}

	adjusted := *fit
	adjusted.A += float64(targetDepthMicrons)

	plan, ok := predictor.SolveInsertion(adjusted, now, c.cfg.NeedleMaxAcceleration, c.cfg.InBrainDwellLimit)
	if !ok {
		c.insertWaiters = append(c.insertWaiters, func() {
			c.awaitPrediction(targetDepthMicrons, resultCh)
		})
		return
	}

	c.issueInBrainMotion(plan, resultCh)
}

// issueInBrainMotion performs the single, non-retried in-brain
// command_move. Any error, transient or fatal, escalates to Panicking;
// inside the brain there is no safe retry, since the thread has already
// detached on first motion.
func (c *Controller) issueInBrainMotion(plan predictor.InsertionPlan, resultCh chan<- Outcome) {
	if c.inBrainMotionIssued {
		return
	}
	c.inBrainMotionIssued = true
	c.setState(InBrain)
	issueTime := time.Now()

	completed := false
	_ = c.l.After(c.cfg.InBrainDwellLimit, func() {
		if completed || c.panicActive {
			return
		}
		c.log.Error("in-brain dwell exceeded", nil, logging.Fields{"target": plan.TargetMicrons})
		c.raisePanic(panicmon.CauseDwellTimeout)
	})

	c.issueCommandMove(gateway.AxisNeedle, plan.TargetMicrons, func(err error) {
		completed = true
		c.diag.ObserveDwell(int64(time.Since(issueTime)))
		if c.supersededByPanic(resultFatalResolver(resultCh)) {
			return
		}
		if err != nil {
			c.log.Error("in-brain move faulted", err, logging.Fields{"target": plan.TargetMicrons})
			c.raisePanic(panicmon.CauseInBrainMoveFault)
			c.supersededByPanic(resultFatalResolver(resultCh))
			return
		}
		c.exitInBrain(resultCh)
	})
}

func (c *Controller) exitInBrain(resultCh chan<- Outcome) {
	c.moveWithUnboundedRetry(gateway.AxisNeedle, c.premove, "premove-after-insert", func() {
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
