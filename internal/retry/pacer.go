// Package retry paces the unbounded-retry loops the Controller State
// Machine runs over transient Robot Gateway errors. It never caps the
// number of attempts: "eventual consistency" toward HOME must remain
// achievable no matter how long the robot misbehaves. It only bounds
// how fast those attempts can fire, so a persistently failing transient
// error cannot busy-loop the single-threaded cooperative runtime.
package retry

import (
	"time"

	"github.com/joeycumines/go-catrate"
)

// Pacer bounds the rate of retry attempts per category.
type Pacer struct {
	limiter *catrate.Limiter
}

// NewPacer constructs a Pacer allowing up to limit attempts per window,
// per category.
func NewPacer(window time.Duration, limit int) *Pacer {
	return &Pacer{
		limiter: catrate.NewLimiter(map[time.Duration]int{window: limit}),
	}
}

// Allow reports whether an attempt for category may proceed now. When it
// returns false, wait is the duration the caller should sleep (e.g. via
// the cooperative runtime's timer) before trying again.
func (p *Pacer) Allow(category string) (wait time.Duration, ok bool) {
	next, ok := p.limiter.Allow(category)
	if ok {
		return 0, true
	}
	wait = time.Until(next)
	if wait < 0 {
		wait = 0
	}
	return wait, false
}
