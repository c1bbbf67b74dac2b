// Package poller implements the Surface Poller and Robot-State Poller:
// cooperative tasks that keep the Timed Sample Buffers fresh. Both are
// driven entirely by the cooperative runtime in package loop; neither
// blocks the owning goroutine.
package poller

import (
	"context"
	"time"

	"github.com/SynapticNetworks/threadctl/internal/buffer"
	"github.com/SynapticNetworks/threadctl/internal/gateway"
	"github.com/SynapticNetworks/threadctl/internal/logging"
	"github.com/SynapticNetworks/threadctl/internal/loop"
)

// SurfacePoller initiates a GetSurfaceDistance read every period,
// tolerating up to maxInFlight overlapping reads so that a ~15ms nominal
// read latency still yields ~5ms effective sample spacing.
type SurfacePoller struct {
	l           *loop.Loop
	gw          gateway.Robot
	buf         *buffer.Ring[int64]
	period      time.Duration
	deadline    time.Duration
	maxInFlight int
	log         logging.Logger

	onSample func(buffer.Reading[int64])

	seq      uint64
	inFlight int
	stopped  bool
}

// NewSurfacePoller constructs a SurfacePoller. onSample, if non-nil, is
// invoked on the owning goroutine after every completed read is appended
// to buf. The Panic Monitor and the Controller State Machine's
// prediction refresh hang off this.
func NewSurfacePoller(l *loop.Loop, gw gateway.Robot, buf *buffer.Ring[int64], period, deadline time.Duration, maxInFlight int, log logging.Logger, onSample func(buffer.Reading[int64])) *SurfacePoller {
	if log == nil {
		log = logging.Discard
	}
	return &SurfacePoller{l: l, gw: gw, buf: buf, period: period, deadline: deadline, maxInFlight: maxInFlight, log: log, onSample: onSample}
}

// Start schedules the first tick. Must be called from the owning
// goroutine (e.g. from within loop.Run, or before it starts).
func (p *SurfacePoller) Start() {
	p.scheduleNext()
}

// Stop prevents further reads from being initiated. Reads already in
// flight are not cancelled. Per the concurrency model, a pending
// GetSurfaceDistance call may be dropped silently on shutdown, so its
// eventual completion callback simply becomes a no-op.
func (p *SurfacePoller) Stop() {
	p.stopped = true
}

func (p *SurfacePoller) scheduleNext() {
	if p.stopped {
		return
	}
	_ = p.l.After(p.period, p.tick)
}

func (p *SurfacePoller) tick() {
	if p.stopped {
		return
	}
	if p.inFlight < p.maxInFlight {
		p.issue()
	}
	p.scheduleNext()
}

func (p *SurfacePoller) issue() {
	p.seq++
	seq := p.seq
	requestTime := time.Now()
	p.inFlight++

	loop.Go(p.l, func() (int64, error) {
		ctx, cancel := context.WithTimeout(context.Background(), p.deadline)
		defer cancel()
		return p.gw.GetSurfaceDistance(ctx)
	}, func(value int64, err error) {
		p.inFlight--
		if p.stopped {
			return
		}
		reading := buffer.Reading[int64]{
			RequestTime:    requestTime,
			CompletionTime: time.Now(),
			Value:          value,
			Err:            err,
			Seq:            seq,
		}
		p.buf.Append(reading)
		if err != nil {
			p.log.Debug("surface read faulted", logging.Fields{"seq": int64(seq), "err": err})
		}
		if p.onSample != nil {
			p.onSample(reading)
		}
	})
}
