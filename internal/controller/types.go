// Package controller implements the Controller State Machine: the
// authoritative owner of the needle's lifecycle. It accepts the upward
// commands (Calibrate, Insert, Retract, Shutdown) and external panic
// triggers, and issues motion commands through the Robot Gateway only in
// the combinations its transition rules permit.
//
// Every method documented as running "on the owning goroutine" must only
// be called from within a callback scheduled by the Controller's loop;
// this is how the package honors the single-threaded cooperative
// concurrency model without locks.
package controller

import "fmt"

// State is an element of the controller's lifecycle.
type State int32

const (
	// OutOfBrainUncalibrated is the construction state. Needle at HOME on
	// entry and exit.
	OutOfBrainUncalibrated State = iota
	// OutOfBrainCalibrated holds the needle at PREMOVE on entry and exit.
	OutOfBrainCalibrated
	// InBrain is entered with the needle at PREMOVE; its exit position is
	// unknown, since the thread detaches from the needle on the first
	// in-brain motion.
	InBrain
	// Panicking guarantees the needle reaches HOME by its exit, from any
	// entry position.
	Panicking
)

func (s State) String() string {
	switch s {
	case OutOfBrainUncalibrated:
		return "OutOfBrainUncalibrated"
	case OutOfBrainCalibrated:
		return "OutOfBrainCalibrated"
	case InBrain:
		return "InBrain"
	case Panicking:
		return "Panicking"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// OutcomeKind is the terminal disposition of an upward command.
type OutcomeKind int

const (
	OutcomeOk OutcomeKind = iota
	OutcomeAborted
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOk:
		return "Ok"
	case OutcomeAborted:
		return "Aborted"
	case OutcomeFatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// Outcome is the terminal result of an upward command: Calibrate, Insert,
// Retract, or Shutdown.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
}

func (o Outcome) String() string {
	if o.Reason == "" {
		return o.Kind.String()
	}
	return fmt.Sprintf("%s(%s)", o.Kind, o.Reason)
}

// Ok is the Ok outcome.
var Ok = Outcome{Kind: OutcomeOk}

// Aborted builds an Aborted(reason) outcome.
func Aborted(reason string) Outcome { return Outcome{Kind: OutcomeAborted, Reason: reason} }

// Fatal builds a Fatal(reason) outcome.
func Fatal(reason string) Outcome { return Outcome{Kind: OutcomeFatal, Reason: reason} }
