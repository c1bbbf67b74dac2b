package predictor

import "time"

// PreferredIssueTime is a best-effort optimization, not a correctness
// requirement: it returns the fitted surface curve's single local minimum
// (the parabola's vertex) when that lies at or after notBefore and within
// horizon, reasoning that local dynamics are most regular near a minimum. If the
// fit has no local minimum ahead of notBefore within horizon (e.g. C<=0,
// a concave-down fit with no interior minimum), it returns notBefore
// unchanged and ok=false, and the caller should fall back to issuing as
// soon as a valid Prediction exists.
func PreferredIssueTime(fit Fit, notBefore time.Time, horizon time.Duration) (time.Time, bool) {
	if fit.C <= 0 {
		return notBefore, false
	}
	// d/dt (A + B*t + C*t^2) = B + 2*C*t = 0  =>  t* = -B/(2C), in ms
	// from FitOriginTime.
	tStarMs := -fit.B / (2 * fit.C)
	minTime := fit.FitOriginTime.Add(time.Duration(tStarMs * float64(time.Millisecond)))

	if minTime.Before(notBefore) {
		return notBefore, false
	}
	if minTime.After(notBefore.Add(horizon)) {
		return notBefore, false
	}
	return minTime, true
}
