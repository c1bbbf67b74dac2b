// Package predictor fits a local quadratic model of surface distance
// versus time from recent non-fault surface samples, and solves for the
// insertion-depth target that lands the needle tip on the predicted
// surface at the predicted arrival time. It is a pure function over a
// slice of samples; it owns no state and performs no I/O.
package predictor

import (
	"errors"
	"math"
	"time"

	"github.com/SynapticNetworks/threadctl/internal/buffer"
)

// ErrInsufficientData means the window did not satisfy the sample-count,
// span, or freshness requirements, or the fit residual exceeded the
// configured bound. It is not a fault; callers (the Controller State
// Machine) should simply wait and try again.
var ErrInsufficientData = errors.New("predictor: insufficient data")

// minSamples is named directly in the external interface specification;
// it is not exposed as configuration because changing it changes the
// fit's statistical properties, not just a pacing knob. The span bounds,
// by contrast, come from Params.
const minSamples = 8

// InBrainEntryFreshness bounds how old the oldest sample in a Prediction's
// fit window may be for that Prediction to gate entry into InBrain. It is
// stricter than the general Freshness check, which only bounds the age of
// the newest sample: entering InBrain requires the whole window, not just
// its tail, to be current.
const InBrainEntryFreshness = 150 * time.Millisecond

// Fit is a local quadratic surface model d(t) ≈ A + B*Δt + C*Δt², where
// Δt = t - FitOriginTime, fit by ordinary least squares over Window.
type Fit struct {
	A, B, C       float64
	FitOriginTime time.Time
	Sigma         float64 // residual standard deviation, microns
	Window        []buffer.Reading[int64]
}

// At evaluates the fit at absolute time t, in microns.
func (f Fit) At(t time.Time) float64 {
	dt := t.Sub(f.FitOriginTime).Seconds() * 1000 // milliseconds
	return f.A + f.B*dt + f.C*dt*dt
}

// FullyWithin reports whether every sample in the fit's window, not just
// the newest, falls within span of now. Window is ordered oldest-first, so
// this reduces to a check on its first element.
func (f Fit) FullyWithin(now time.Time, span time.Duration) bool {
	if len(f.Window) == 0 {
		return false
	}
	return !f.Window[0].RequestTime.Before(now.Add(-span))
}

// Params bundles the window and freshness constraints used both to fit
// and to validate a fit.
type Params struct {
	WindowMin time.Duration
	WindowMax time.Duration
	MaxSigma  float64 // microns; fits with higher residual std-dev are rejected
	Freshness time.Duration
}

// FitQuadratic attempts a quadratic OLS fit over the most recent non-fault
// samples in readings (which need not be sorted by request time;
// FitQuadratic sorts a working copy). now is the instant the fit is being
// requested, used for the WindowMax cutoff and the freshness check.
func FitQuadratic(readings []buffer.Reading[int64], params Params, now time.Time) (Fit, error) {
	ordered := buffer.SortByRequestTime(readings)

	// keep only samples requested within WindowMax of now, then take the
	// most recent contiguous non-fault run ending at the newest sample.
	cutoff := now.Add(-params.WindowMax)
	var fresh []buffer.Reading[int64]
	for _, r := range ordered {
		if r.RequestTime.Before(cutoff) {
			continue
		}
		fresh = append(fresh, r)
	}

	window := trailingNonFaultRun(fresh)
	if len(window) < minSamples {
		return Fit{}, ErrInsufficientData
	}

	span := window[len(window)-1].RequestTime.Sub(window[0].RequestTime)
	if span < params.WindowMin || span > params.WindowMax {
		return Fit{}, ErrInsufficientData
	}
	if now.Sub(window[len(window)-1].RequestTime) > params.Freshness {
		return Fit{}, ErrInsufficientData
	}

	t0 := window[len(window)-1].RequestTime
	a, b, c, sigma := quadraticLeastSquares(window, t0)
	if sigma > params.MaxSigma {
		return Fit{}, ErrInsufficientData
	}

	return Fit{A: a, B: b, C: c, FitOriginTime: t0, Sigma: sigma, Window: window}, nil
}

// trailingNonFaultRun returns the longest suffix of ordered readings that
// contains no fault outcomes. A single fault anywhere in the window
// invalidates everything before it, since the spec requires "all samples
// in it are non-fault".
func trailingNonFaultRun(ordered []buffer.Reading[int64]) []buffer.Reading[int64] {
	cut := len(ordered)
	for i := len(ordered) - 1; i >= 0; i-- {
		if !ordered[i].Ok() {
			break
		}
		cut = i
	}
	return ordered[cut:]
}

// quadraticLeastSquares fits d ≈ a + b*Δt + c*Δt² by ordinary least
// squares, Δt measured in milliseconds from t0, and returns the residual
// standard deviation in the same units as the sample values (microns).
func quadraticLeastSquares(window []buffer.Reading[int64], t0 time.Time) (a, b, c, sigma float64) {
	n := float64(len(window))

	var sx, sx2, sx3, sx4, sy, sxy, sx2y float64
	for _, r := range window {
		x := r.RequestTime.Sub(t0).Seconds() * 1000
		y := float64(r.Value)
		x2 := x * x
		sx += x
		sx2 += x2
		sx3 += x2 * x
		sx4 += x2 * x2
		sy += y
		sxy += x * y
		sx2y += x2 * y
	}

	// normal equations for [a b c] given basis [1, x, x^2]:
	//   [n   sx  sx2 ] [a]   [sy  ]
	//   [sx  sx2 sx3 ] [b] = [sxy ]
	//   [sx2 sx3 sx4 ] [c]   [sx2y]
	a, b, c = solve3x3(
		n, sx, sx2, sy,
		sx, sx2, sx3, sxy,
		sx2, sx3, sx4, sx2y,
	)

	var ss float64
	for _, r := range window {
		x := r.RequestTime.Sub(t0).Seconds() * 1000
		pred := a + b*x + c*x*x
		resid := float64(r.Value) - pred
		ss += resid * resid
	}
	if n > 0 {
		sigma = math.Sqrt(ss / n)
	}
	return a, b, c, sigma
}

// solve3x3 solves a 3x3 linear system via Cramer's rule, given as three
// rows [coeff1, coeff2, coeff3, rhs].
func solve3x3(
	a1, b1, c1, d1,
	a2, b2, c2, d2,
	a3, b3, c3, d3 float64,
) (x, y, z float64) {
	det := det3(a1, b1, c1, a2, b2, c2, a3, b3, c3)
	if det == 0 {
		return 0, 0, 0
	}
	x = det3(d1, b1, c1, d2, b2, c2, d3, b3, c3) / det
	y = det3(a1, d1, c1, a2, d2, c2, a3, d3, c3) / det
	z = det3(a1, b1, d1, a2, b2, d2, a3, b3, d3) / det
	return
}

func det3(a1, b1, c1, a2, b2, c2, a3, b3, c3 float64) float64 {
	return a1*(b2*c3-b3*c2) - b1*(a2*c3-a3*c2) + c1*(a2*b3-a3*b2)
}
