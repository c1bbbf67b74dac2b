// Package gateway defines the Robot Gateway: the request/response surface
// the control core uses to command the robot and read the optical
// surface-distance sensor. Only the interface and a simulated
// implementation live here; a hardware-backed implementation and its
// transport are external collaborators.
package gateway

import (
	"context"
	"errors"
	"fmt"
)

// Axis selects which of the robot's two independently-commanded Z axes a
// motion targets.
type Axis int

const (
	AxisInserter Axis = iota
	AxisNeedle
)

func (a Axis) String() string {
	switch a {
	case AxisInserter:
		return "inserter_z"
	case AxisNeedle:
		return "needle_z"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

// Sentinel errors the core matches against with errors.Is. Concrete
// implementations should wrap one of these rather than returning them
// directly, so call sites retain the underlying detail.
var (
	// ErrMove is a transient motion fault: safe to retry outside the
	// brain, panic-inducing inside it.
	ErrMove = errors.New("gateway: move error")

	// ErrConnection is a transient transport fault, including deadline
	// exceeded: safe to retry outside the brain, panic-inducing inside
	// it.
	ErrConnection = errors.New("gateway: connection error")

	// ErrPosition is a fatal localization fault: the robot has lost
	// track of where it is. Immediate panic from any state.
	ErrPosition = errors.New("gateway: position error")

	// ErrSensor is a transient optical-sensor fault. Surface samples
	// marked with this error are excluded from the Motion Predictor and
	// counted by the Panic Monitor.
	ErrSensor = errors.New("gateway: sensor error")
)

// RobotState is the robot's self-reported axis positions, in microns.
type RobotState struct {
	InserterZ int64
	NeedleZ   int64
}

// Robot is the Robot Gateway's interface, as consumed by the control
// core. Every method suspends the calling goroutine for the duration of
// the operation; implementations must honor ctx's deadline and return a
// wrapped ErrConnection if it is exceeded. The Gateway performs no
// retries itself. Retry policy lives entirely in callers, so the
// Controller State Machine remains in control of whether retrying is
// safe.
type Robot interface {
	// CommandMove suspends until the robot reports it has reached
	// target, or a fault occurs. A nil error return means the robot is
	// now at target, ground truth.
	CommandMove(ctx context.Context, axis Axis, targetMicrons int64) error

	// GetRobotState returns the robot's self-reported axis positions.
	// Cheap; nominal latency under 1ms.
	GetRobotState(ctx context.Context) (RobotState, error)

	// GetSurfaceDistance returns the current brain surface distance, in
	// microns, measured from the inserter's reference plane along the
	// insertion axis. Nominal latency ~15ms. Multiple calls may be in
	// flight concurrently; implementations must tolerate this
	// specifically for GetSurfaceDistance.
	GetSurfaceDistance(ctx context.Context) (int64, error)
}
