package predictor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolveInsertion_FlatSurface(t *testing.T) {
	// surface stays at a constant 3000um; needle decelerating ramp with
	// accel 0.02 um/ms^2 reaches 3000um distance at some T>0.
	fit := Fit{A: 3000, B: 0, C: 0, FitOriginTime: time.Unix(1700000000, 0)}
	issueTime := fit.FitOriginTime

	plan, ok := SolveInsertion(fit, issueTime, 0.02, time.Second)
	require.True(t, ok)
	assert.InDelta(t, 3000, plan.TargetMicrons, 1)
	// 3000 = 0.25*0.02*T^2 => T^2 = 600000 => T ~= 774.6ms
	assert.InDelta(t, 774.6, plan.Duration.Seconds()*1000, 1)
}

func TestSolveInsertion_NoAcceleration(t *testing.T) {
	fit := Fit{A: 3000, FitOriginTime: time.Now()}
	_, ok := SolveInsertion(fit, fit.FitOriginTime, 0, time.Second)
	assert.False(t, ok)
}

func TestSolveInsertion_UnreachableWithinHorizon(t *testing.T) {
	// surface far away, tiny acceleration, short horizon: never crosses.
	fit := Fit{A: 1_000_000, FitOriginTime: time.Now()}
	_, ok := SolveInsertion(fit, fit.FitOriginTime, 0.001, 10*time.Millisecond)
	assert.False(t, ok)
}

func TestSolveInsertion_DecreasingSurface(t *testing.T) {
	// surface moving toward the needle quickly (negative slope); ensure a
	// crossing is still found and T is non-negative and finite.
	fit := Fit{A: 3000, B: -20, C: 0, FitOriginTime: time.Unix(1700000000, 0)}
	plan, ok := SolveInsertion(fit, fit.FitOriginTime, 0.02, time.Second)
	require.True(t, ok)
	assert.GreaterOrEqual(t, plan.Duration, time.Duration(0))
	assert.LessOrEqual(t, plan.Duration, time.Second)
}
