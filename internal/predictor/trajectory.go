package predictor

import "time"

// InsertionPlan is the outcome of solving for when to issue the in-brain
// motion and what depth to command.
type InsertionPlan struct {
	// IssueTime is the planned instant the motion command should be
	// issued (t_now in the specification).
	IssueTime time.Time
	// Duration is T: the time the needle takes to travel from rest to
	// TargetMicrons under the bang-bang acceleration profile.
	Duration time.Duration
	// TargetMicrons is the absolute depth to command: the predicted
	// surface position at IssueTime+Duration.
	TargetMicrons int64
}

// SolveInsertion finds the earliest T >= 0 such that the predicted
// surface position at issueTime+T equals the bang-bang kinematic
// travel distance reached in time T, i.e.
//
//	fit.At(issueTime+T) == 0.25 * needleMaxAccel * T^2
//
// needleMaxAccel is in microns per millisecond^2, matching the
// millisecond timebase Fit.At uses internally. The needle starts from
// rest and decelerates back to rest exactly at the target, so the
// commanded depth is reached with zero velocity.
//
// The search uses bisection over a bounded horizon, since B(t) is a
// smooth quadratic and the kinematic term is strictly increasing and
// convex; for any physically sane configuration (surface within range
// within the dwell budget) the two curves cross exactly once in the
// region of interest.
func SolveInsertion(fit Fit, issueTime time.Time, needleMaxAccel float64, maxHorizon time.Duration) (InsertionPlan, bool) {
	if needleMaxAccel <= 0 {
		return InsertionPlan{}, false
	}

	f := func(tMs float64) float64 {
		at := issueTime.Add(time.Duration(tMs * float64(time.Millisecond)))
		return fit.At(at) - 0.25*needleMaxAccel*tMs*tMs
	}

	horizonMs := maxHorizon.Seconds() * 1000
	lo, hi := 0.0, horizonMs
	flo, fhi := f(lo), f(hi)

	if flo == 0 {
		return planAt(fit, issueTime, 0, needleMaxAccel), true
	}
	if sameSign(flo, fhi) {
		// No sign change across the horizon: either the surface never
		// reaches the needle in time (flo>0,fhi>0) or it is already
		// behind where the needle would be at t=0 (flo<0 and staying
		// negative). Either way there is no valid plan within budget.
		return InsertionPlan{}, false
	}

	const iterations = 60
	for i := 0; i < iterations; i++ {
		mid := (lo + hi) / 2
		fmid := f(mid)
		if fmid == 0 {
			lo, hi = mid, mid
			break
		}
		if sameSign(fmid, flo) {
			lo, flo = mid, fmid
		} else {
			hi, fhi = mid, fmid
		}
	}

	tMs := (lo + hi) / 2
	return planAt(fit, issueTime, tMs, needleMaxAccel), true
}

func planAt(fit Fit, issueTime time.Time, tMs float64, needleMaxAccel float64) InsertionPlan {
	dur := time.Duration(tMs * float64(time.Millisecond))
	target := fit.At(issueTime.Add(dur))
	return InsertionPlan{
		IssueTime:     issueTime,
		Duration:      dur,
		TargetMicrons: int64(target + 0.5),
	}
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
