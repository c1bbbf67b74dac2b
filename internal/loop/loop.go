// Package loop provides the single cooperative execution context
// required by the control core: one owning goroutine runs submitted
// callbacks and fired timers strictly one at a time. Shared state
// (buffers, the controller state variable, the panic flag) is mutated
// only inside those callbacks, so it never needs locking. The
// concurrency model is enforced by construction, not by convention.
//
// Every Robot Gateway call is performed on a separate goroutine; its
// result is handed back to the owning goroutine with Go, which does so
// through Submit, the only way shared state may be touched from outside a
// running callback. Delays are loop timers scheduled with After.
package loop

import (
	"context"
	"time"

	"github.com/joeycumines/go-eventloop"
)

// Loop is the cooperative runtime. The zero value is not usable; use New.
type Loop struct {
	inner *eventloop.Loop
}

// New constructs a Loop.
func New() (*Loop, error) {
	inner, err := eventloop.New()
	if err != nil {
		return nil, err
	}
	return &Loop{inner: inner}, nil
}

// Run blocks, processing submitted work until ctx is cancelled or
// Shutdown is called. It must be called from a dedicated goroutine
// distinct from every goroutine that performs suspending work, since
// that goroutine becomes the loop's owning goroutine for the duration of
// the call.
func (l *Loop) Run(ctx context.Context) error {
	return l.inner.Run(ctx)
}

// Shutdown requests the loop stop processing new work and waits for Run
// to return, or for ctx to expire.
func (l *Loop) Shutdown(ctx context.Context) error {
	return l.inner.Shutdown(ctx)
}

// Submit schedules fn to run on the owning goroutine. Safe to call from
// any goroutine, including the owning goroutine itself. This is the only
// sanctioned way to mutate state shared with the owning goroutine from
// elsewhere.
func (l *Loop) Submit(fn func()) error {
	return l.inner.Submit(eventloop.Task{Runnable: fn})
}

// After schedules fn to run on the owning goroutine once delay has
// elapsed, measured from the loop's internal clock. Used for the
// explicit delays named as suspension points in the concurrency model
// (poll pacing, retry backoff).
func (l *Loop) After(delay time.Duration, fn func()) error {
	return l.inner.ScheduleTimer(delay, fn)
}

// Go runs op on a fresh goroutine. This is where the actual suspension
// happens, since op is expected to block for the duration of a Robot
// Gateway call, then hands the result back to the owning goroutine via
// Submit, invoking onResult there. onResult therefore always runs on the
// owning goroutine and may freely touch shared state.
//
// This is the concrete realization of the specification's "only a
// suspending operation can cede control" requirement: the owning
// goroutine is never blocked by op, and op never touches shared state
// directly.
func Go[T any](l *Loop, op func() (T, error), onResult func(T, error)) {
	go func() {
		v, err := op()
		_ = l.Submit(func() { onResult(v, err) })
	}()
}

// GoVoid is Go for operations with no result value.
func GoVoid(l *Loop, op func() error, onResult func(error)) {
	go func() {
		err := op()
		_ = l.Submit(func() { onResult(err) })
	}()
}
