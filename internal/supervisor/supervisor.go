// Package supervisor wires the cooperative runtime, the two pollers, and
// the Controller State Machine into a single running system, and
// implements the documented shutdown sequence at the runtime level: once
// the Controller reports its own shutdown complete, stop the pollers and
// tear down the loop.
package supervisor

import (
	"context"
	"time"

	"github.com/SynapticNetworks/threadctl/config"
	"github.com/SynapticNetworks/threadctl/internal/buffer"
	"github.com/SynapticNetworks/threadctl/internal/controller"
	"github.com/SynapticNetworks/threadctl/internal/diagnostics"
	"github.com/SynapticNetworks/threadctl/internal/gateway"
	"github.com/SynapticNetworks/threadctl/internal/logging"
	"github.com/SynapticNetworks/threadctl/internal/loop"
	"github.com/SynapticNetworks/threadctl/internal/poller"
)

const (
	surfaceBufferCapacity = 100
	stateBufferCapacity   = 100

	// tickPeriod is the cadence of the supervisor's yield-point hook, used
	// only to give the Panic Monitor's staleness check a chance to fire
	// even when no sample has arrived recently.
	tickPeriod = 10 * time.Millisecond
)

// Supervisor owns the cooperative Loop, the two pollers, and the
// Controller, and runs them until Shutdown completes.
type Supervisor struct {
	l    *loop.Loop
	ctrl *controller.Controller

	surfacePoller *poller.SurfacePoller
	statePoller   *poller.RobotStatePoller

	distBuf  *buffer.Ring[int64]
	stateBuf *buffer.Ring[gateway.RobotState]

	log logging.Logger

	stopped bool
}

// New builds a Supervisor around gw with cfg's tunables. The returned
// Supervisor is not yet running; call Run in its own goroutine.
func New(gw gateway.Robot, cfg config.Config, log logging.Logger) (*Supervisor, error) {
	if log == nil {
		log = logging.Discard
	}
	l, err := loop.New()
	if err != nil {
		return nil, err
	}

	distBuf := buffer.NewRing[int64](surfaceBufferCapacity)
	stateBuf := buffer.NewRing[gateway.RobotState](stateBufferCapacity)

	ctrl := controller.New(l, gw, distBuf, stateBuf, cfg, log)

	s := &Supervisor{
		l:        l,
		ctrl:     ctrl,
		distBuf:  distBuf,
		stateBuf: stateBuf,
		log:      log,
	}

	s.surfacePoller = poller.NewSurfacePoller(l, gw, distBuf, cfg.SurfacePollPeriod, cfg.GatewayCallDeadline, cfg.MaxSurfaceReadsInFlight, log, ctrl.OnSurfaceSample)
	s.statePoller = poller.NewRobotStatePoller(l, gw, stateBuf, cfg.SurfacePollPeriod, cfg.GatewayCallDeadline, log, ctrl.OnPositionFault)

	return s, nil
}

// Controller returns the running system's Controller State Machine, the
// upward API surface a sequencer drives.
func (s *Supervisor) Controller() *controller.Controller { return s.ctrl }

// Diagnostics returns the live counters and gauges exposed by the running
// Controller.
func (s *Supervisor) Diagnostics() *diagnostics.Surface { return s.ctrl.Diagnostics() }

// Run blocks, driving the cooperative runtime until ctx is cancelled or
// Shutdown completes. Must be called from a dedicated goroutine; it
// becomes the owning goroutine for the duration of the call, per the
// Loop's concurrency contract.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.l.Submit(func() {
		s.surfacePoller.Start()
		s.statePoller.Start()
		s.scheduleTick()
	}); err != nil {
		return err
	}
	return s.l.Run(ctx)
}

func (s *Supervisor) scheduleTick() {
	if s.stopped {
		return
	}
	_ = s.l.After(tickPeriod, func() {
		s.ctrl.Tick()
		s.scheduleTick()
	})
}

// Shutdown runs the documented shutdown sequence: drive the Controller
// through its own Shutdown (panic, recover to OutOfBrainUncalibrated,
// final defensive move), then stop the pollers and the cooperative
// runtime.
func (s *Supervisor) Shutdown(ctx context.Context) (controller.Outcome, error) {
	outcome, err := s.ctrl.Shutdown(ctx)
	if err != nil {
		return outcome, err
	}
	_ = s.l.Submit(func() {
		s.stopped = true
		s.surfacePoller.Stop()
		s.statePoller.Stop()
	})
	return outcome, s.l.Shutdown(ctx)
}
