package gateway

import (
	"context"
	"math"
	"sync"
	"time"
)

// SurfaceFunc models brain surface distance, in microns, as a function of
// elapsed simulation time. It must be safe to call concurrently.
type SurfaceFunc func(elapsed time.Duration) int64

// SinusoidSurface returns a SurfaceFunc implementing
// d(t) = baseline + amplitude*sin(2*pi*t/period), the steady-state
// surface model used by the end-to-end test scenarios.
func SinusoidSurface(baselineMicrons, amplitudeMicrons int64, period time.Duration) SurfaceFunc {
	return func(elapsed time.Duration) int64 {
		phase := 2 * math.Pi * elapsed.Seconds() / period.Seconds()
		return baselineMicrons + int64(float64(amplitudeMicrons)*math.Sin(phase))
	}
}

// SimRobot is a deterministic, in-process Robot implementation for tests
// and the cmd/threadctl smoke-test harness. It is not a substitute for
// the out-of-scope hardware driver; it exists solely so the control core
// can be exercised without real hardware.
type SimRobot struct {
	mu sync.Mutex

	start   time.Time
	surface SurfaceFunc

	inserterZ int64
	needleZ   int64

	moveDuration func(distanceMicrons int64) time.Duration

	// faultWindow, if set, makes GetSurfaceDistance return ErrSensor for
	// any call whose elapsed time falls within [faultFrom, faultTo).
	faultFrom, faultTo time.Duration
	faultEnabled       bool

	// injected faults for specific operations, consumed at most once
	// each; used by tests to exercise the error taxonomy deterministically.
	nextMoveErr  error
	nextStateErr error

	moveCount int
}

// NewSimRobot constructs a SimRobot whose surface follows fn and whose
// moves take moveDuration(distance) to complete.
func NewSimRobot(fn SurfaceFunc, moveDuration func(distanceMicrons int64) time.Duration) *SimRobot {
	return &SimRobot{
		start:        time.Now(),
		surface:      fn,
		moveDuration: moveDuration,
	}
}

// InjectSensorFaultWindow marks [from, to) (measured from construction)
// as a window in which GetSurfaceDistance fails with ErrSensor.
func (s *SimRobot) InjectSensorFaultWindow(from, to time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faultFrom, s.faultTo, s.faultEnabled = from, to, true
}

// InjectNextMoveError causes the next CommandMove call to fail with err
// instead of moving.
func (s *SimRobot) InjectNextMoveError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMoveErr = err
}

// InjectNextStateError causes the next GetRobotState call to fail with
// err.
func (s *SimRobot) InjectNextStateError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextStateErr = err
}

// Elapsed returns time since construction, the simulation clock used by
// the surface function.
func (s *SimRobot) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.start)
}

func (s *SimRobot) CommandMove(ctx context.Context, axis Axis, targetMicrons int64) error {
	s.mu.Lock()
	if err := s.nextMoveErr; err != nil {
		s.nextMoveErr = nil
		s.mu.Unlock()
		return err
	}
	var current int64
	switch axis {
	case AxisInserter:
		current = s.inserterZ
	case AxisNeedle:
		current = s.needleZ
	}
	distance := targetMicrons - current
	if distance < 0 {
		distance = -distance
	}
	dur := s.moveDuration(distance)
	s.moveCount++
	s.mu.Unlock()

	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ErrConnection
	case <-timer.C:
	}

	s.mu.Lock()
	switch axis {
	case AxisInserter:
		s.inserterZ = targetMicrons
	case AxisNeedle:
		s.needleZ = targetMicrons
	}
	s.mu.Unlock()
	return nil
}

func (s *SimRobot) GetRobotState(ctx context.Context) (RobotState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.nextStateErr; err != nil {
		s.nextStateErr = nil
		return RobotState{}, err
	}
	return RobotState{InserterZ: s.inserterZ, NeedleZ: s.needleZ}, nil
}

func (s *SimRobot) GetSurfaceDistance(ctx context.Context) (int64, error) {
	s.mu.Lock()
	elapsed := time.Since(s.start)
	faulted := s.faultEnabled && elapsed >= s.faultFrom && elapsed < s.faultTo
	surface := s.surface
	s.mu.Unlock()

	timer := time.NewTimer(15 * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return 0, ErrConnection
	case <-timer.C:
	}

	if faulted {
		return 0, ErrSensor
	}
	return surface(elapsed), nil
}
