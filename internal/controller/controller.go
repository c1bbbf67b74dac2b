package controller

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/SynapticNetworks/threadctl/config"
	"github.com/SynapticNetworks/threadctl/internal/buffer"
	"github.com/SynapticNetworks/threadctl/internal/diagnostics"
	"github.com/SynapticNetworks/threadctl/internal/gateway"
	"github.com/SynapticNetworks/threadctl/internal/logging"
	"github.com/SynapticNetworks/threadctl/internal/loop"
	"github.com/SynapticNetworks/threadctl/internal/panicmon"
	"github.com/SynapticNetworks/threadctl/internal/predictor"
	"github.com/SynapticNetworks/threadctl/internal/retry"
)

// Controller is the Controller State Machine. Every field below is
// confined to the owning goroutine of l except state, which is also read
// (never written) from arbitrary goroutines via State.
type Controller struct {
	l   *loop.Loop
	gw  gateway.Robot
	cfg config.Config
	log logging.Logger

	distBuf  *buffer.Ring[int64]
	stateBuf *buffer.Ring[gateway.RobotState]

	pm    *panicmon.Monitor
	pacer *retry.Pacer
	diag  *diagnostics.Surface

	state atomic.Int32

	// premove is the staged height computed during calibration; valid
	// whenever state is OutOfBrainCalibrated or InBrain.
	premove int64

	// activeFit is the most recent valid Prediction, refreshed on every
	// surface sample; nil if none is current.
	activeFit *predictor.Fit

	// inBrainMotionIssued enforces the exactly-once discipline for the
	// single in-brain command_move per entry into InBrain.
	inBrainMotionIssued bool

	// insertWaiters are notified on every new non-fault surface sample
	// while a Calibrate is waiting for its fault-free window or an Insert
	// is waiting for a valid Prediction.
	insertWaiters []func()

	// pendingFatal holds resolvers for in-flight upward commands that
	// were superseded by a panic; they are all resolved with the same
	// Fatal outcome once Panicking completes its exit to
	// OutOfBrainUncalibrated.
	pendingFatal []func(Outcome)

	// panicActive is true from the instant a panic is raised until the
	// recovery sequence (retract-to-HOME, state reset) completes.
	panicActive bool
	panicReason string

	// moveInFlight is true for the duration of any single command_move
	// call. A pending command_move that straddles a panic signal always
	// runs to completion before the retract-to-HOME sequence begins.
	// The Gateway offers no cancellation, so the panic sequencer must
	// wait rather than issue a second, concurrent command_move.
	moveInFlight       bool
	panicRetractIssued bool

	subs []chan State

	busy bool // true while a Calibrate/Insert/Retract/Shutdown op owns the driver

	shutdownRequested bool
	shutdownWaiters   []chan<- Outcome
}

// New constructs a Controller in state OutOfBrainUncalibrated. l must not
// yet be running; callers start the pollers and call l.Run separately
// (see the Supervisor).
func New(l *loop.Loop, gw gateway.Robot, distBuf *buffer.Ring[int64], stateBuf *buffer.Ring[gateway.RobotState], cfg config.Config, log logging.Logger) *Controller {
	if log == nil {
		log = logging.Discard
	}
	c := &Controller{
		l:        l,
		gw:       gw,
		cfg:      cfg,
		log:      log,
		distBuf:  distBuf,
		stateBuf: stateBuf,
		pm:       panicmon.New(float64(cfg.PanicDeviationFloor), cfg.PanicDeviationSigmaMultiple, cfg.PanicStalenessLimit),
		pacer:    retry.NewPacer(cfg.RetryPaceWindow, cfg.RetryPaceLimit),
		diag:     &diagnostics.Surface{},
	}
	c.state.Store(int32(OutOfBrainUncalibrated))
	return c
}

// Diagnostics returns the controller's live counters and gauges. Safe to
// poll from any goroutine.
func (c *Controller) Diagnostics() *diagnostics.Surface { return c.diag }

// State returns the current lifecycle state. Safe to call from any
// goroutine.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// SubscribeState registers a channel that receives every state
// transition, most-recent value first on subscribe. The channel is
// buffered (depth 1, latest-wins) so a slow subscriber never blocks the
// owning goroutine; callers that need every intermediate transition
// should drain promptly.
func (c *Controller) SubscribeState() <-chan State {
	ch := make(chan State, 1)
	ch <- c.State()
	done := make(chan struct{})
	_ = c.l.Submit(func() {
		c.subs = append(c.subs, ch)
		close(done)
	})
	<-done
	return ch
}

// OnSurfaceSample is the Surface Poller's onSample hook. Must be invoked
// on the owning goroutine; the poller guarantees this.
func (c *Controller) OnSurfaceSample(reading buffer.Reading[int64]) {
	c.pm.Observe(reading, c.activeFit, time.Now())
	c.refreshFit(time.Now())
	c.diag.SetBufferDepth(c.distBuf.Len())
	c.checkPanicFlag()

	if !reading.Ok() {
		return
	}
	waiters := c.insertWaiters
	c.insertWaiters = nil
	for _, w := range waiters {
		w()
	}
}

// OnPositionFault is the Robot-State Poller's onPositionFault hook.
func (c *Controller) OnPositionFault() {
	c.raisePanic(panicmon.CausePositionFault)
}

// Tick is the yield-point hook the Supervisor schedules periodically
// (independent of any Gateway call completing) so a stalled sensor is
// still caught by the staleness check even if no further samples ever
// arrive.
func (c *Controller) Tick() {
	c.pm.CheckStaleness(time.Now())
	c.checkPanicFlag()
}

func (c *Controller) refreshFit(now time.Time) {
	fit, err := predictor.FitQuadratic(c.distBuf.Recent(c.distBuf.Cap()), predictor.Params{
		WindowMin: c.cfg.SampleWindowMin,
		WindowMax: c.cfg.SampleWindowMax,
		MaxSigma:  25,
		Freshness: 150 * time.Millisecond,
	}, now)
	if err != nil {
		c.activeFit = nil
		return
	}
	f := fit
	c.activeFit = &f
	c.diag.SetLastResidual(f.Sigma)
}

// checkPanicFlag observes the Panic Monitor's flag at this yield point
// and, if set and not yet acted on, begins the panic recovery sequence.
func (c *Controller) checkPanicFlag() {
	if c.pm.Triggered() && !c.panicActive {
		c.diag.IncPanicTriggers()
		c.enterPanicking(c.pm.Cause().String())
	}
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
	c.log.Info("state transition", logging.Fields{"state": s.String()})
	for _, sub := range c.subs {
		select {
		case <-sub:
		default:
		}
		sub <- s
	}
}

// gatewayCtx returns a context bounded by the configured absolute Gateway
// call deadline.
func (c *Controller) gatewayCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.cfg.GatewayCallDeadline)
}
