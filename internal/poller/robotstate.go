package poller

import (
	"context"
	"time"

	"github.com/SynapticNetworks/threadctl/internal/buffer"
	"github.com/SynapticNetworks/threadctl/internal/gateway"
	"github.com/SynapticNetworks/threadctl/internal/logging"
	"github.com/SynapticNetworks/threadctl/internal/loop"
)

// RobotStatePoller keeps the robot-state buffer fresh, polling as fast as
// the Gateway permits, target period 5ms. Its output is informational:
// the Controller State Machine never depends on polled position for
// correctness, since CommandMove returns ground truth. A PositionError
// is the one exception: it immediately signals panic.
type RobotStatePoller struct {
	l        *loop.Loop
	gw       gateway.Robot
	buf      *buffer.Ring[gateway.RobotState]
	period   time.Duration
	deadline time.Duration
	log      logging.Logger

	onPositionFault func()

	seq     uint64
	stopped bool
}

// NewRobotStatePoller constructs a RobotStatePoller. onPositionFault, if
// non-nil, is invoked on the owning goroutine whenever GetRobotState
// returns a fatal position fault.
func NewRobotStatePoller(l *loop.Loop, gw gateway.Robot, buf *buffer.Ring[gateway.RobotState], period, deadline time.Duration, log logging.Logger, onPositionFault func()) *RobotStatePoller {
	if log == nil {
		log = logging.Discard
	}
	return &RobotStatePoller{l: l, gw: gw, buf: buf, period: period, deadline: deadline, log: log, onPositionFault: onPositionFault}
}

// Start schedules the first poll.
func (p *RobotStatePoller) Start() {
	p.issue()
}

// Stop prevents further polls from being initiated.
func (p *RobotStatePoller) Stop() {
	p.stopped = true
}

func (p *RobotStatePoller) issue() {
	if p.stopped {
		return
	}
	p.seq++
	seq := p.seq
	requestTime := time.Now()

	loop.Go(p.l, func() (gateway.RobotState, error) {
		ctx, cancel := context.WithTimeout(context.Background(), p.deadline)
		defer cancel()
		return p.gw.GetRobotState(ctx)
	}, func(value gateway.RobotState, err error) {
		if p.stopped {
			return
		}
		p.buf.Append(buffer.Reading[gateway.RobotState]{
			RequestTime:    requestTime,
			CompletionTime: time.Now(),
			Value:          value,
			Err:            err,
			Seq:            seq,
		})
		if err != nil {
			p.log.Debug("robot state read faulted", logging.Fields{"seq": int64(seq), "err": err})
			if isPositionFault(err) && p.onPositionFault != nil {
				p.onPositionFault()
			}
		}
		_ = p.l.After(p.period, p.issue)
	})
}
