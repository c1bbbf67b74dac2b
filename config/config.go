// Package config holds the tunables named in the control core's external
// interface. Values are validated once at construction time rather than
// checked defensively throughout the core.
package config

import (
	"fmt"
	"time"
)

// Config holds every tunable the control core recognizes. Zero values are
// never valid configuration; use Default or New to obtain one.
type Config struct {
	// SurfacePollPeriod is the spacing between surface-read initiations.
	SurfacePollPeriod time.Duration

	// SampleWindowMin and SampleWindowMax bound the Motion Predictor's fit
	// window.
	SampleWindowMin time.Duration
	SampleWindowMax time.Duration

	// PremoveMargin is the offset above the maximum observed surface used
	// to compute PREMOVE.
	PremoveMargin int64 // microns

	// PanicDeviationFloor is the minimum deviation, regardless of fit
	// residual, that triggers the Panic Monitor. The effective threshold
	// is max(PanicDeviationSigmaMultiple*sigma, PanicDeviationFloor).
	PanicDeviationFloor         int64 // microns
	PanicDeviationSigmaMultiple float64

	// InBrainDwellLimit is the ceiling from motion issue to Ok before the
	// Controller State Machine treats the dwell as a fatal timeout.
	InBrainDwellLimit time.Duration

	// NeedleMaxAcceleration is used by the trajectory solver, in microns
	// per (millisecond^2). Must be supplied; there is no safe default.
	NeedleMaxAcceleration float64

	// MaxSurfaceReadsInFlight bounds the Surface Poller's overlap.
	MaxSurfaceReadsInFlight int

	// RetryPaceLimit bounds the rate of the unbounded-retry loops in the
	// Controller State Machine, so a persistently failing transient error
	// cannot busy-loop the runtime. It is expressed as attempts per
	// window.
	RetryPaceWindow time.Duration
	RetryPaceLimit  int

	// GatewayCallDeadline is the absolute wall-clock deadline applied to
	// every Robot Gateway call.
	GatewayCallDeadline time.Duration

	// PanicStalenessLimit is the age past which the last valid surface
	// sample is considered too stale to trust.
	PanicStalenessLimit time.Duration
}

// Option mutates a Config during construction.
type Option func(*Config)

// WithSurfacePollPeriod overrides the default surface-read spacing.
func WithSurfacePollPeriod(d time.Duration) Option {
	return func(c *Config) { c.SurfacePollPeriod = d }
}

// WithSampleWindow overrides the Motion Predictor's fit window bounds.
func WithSampleWindow(min, max time.Duration) Option {
	return func(c *Config) {
		c.SampleWindowMin = min
		c.SampleWindowMax = max
	}
}

// WithPremoveMargin overrides the PREMOVE staging offset, in microns.
func WithPremoveMargin(microns int64) Option {
	return func(c *Config) { c.PremoveMargin = microns }
}

// WithPanicDeviationThreshold overrides the Panic Monitor's deviation
// trigger: max(sigmaMultiple*sigma, floorMicrons).
func WithPanicDeviationThreshold(sigmaMultiple float64, floorMicrons int64) Option {
	return func(c *Config) {
		c.PanicDeviationSigmaMultiple = sigmaMultiple
		c.PanicDeviationFloor = floorMicrons
	}
}

// WithInBrainDwellLimit overrides the in-brain dwell ceiling.
func WithInBrainDwellLimit(d time.Duration) Option {
	return func(c *Config) { c.InBrainDwellLimit = d }
}

// WithNeedleMaxAcceleration sets the trajectory solver's acceleration
// bound, in microns per millisecond^2. Required; Default leaves it at 0,
// so New returns an error unless this option is given.
func WithNeedleMaxAcceleration(microsPerMsSquared float64) Option {
	return func(c *Config) { c.NeedleMaxAcceleration = microsPerMsSquared }
}

// WithMaxSurfaceReadsInFlight overrides the Surface Poller's overlap depth.
func WithMaxSurfaceReadsInFlight(n int) Option {
	return func(c *Config) { c.MaxSurfaceReadsInFlight = n }
}

// WithRetryPace overrides the Retry Pacer's rate limit.
func WithRetryPace(window time.Duration, limit int) Option {
	return func(c *Config) {
		c.RetryPaceWindow = window
		c.RetryPaceLimit = limit
	}
}

// WithGatewayCallDeadline overrides the absolute deadline applied to every
// Robot Gateway call.
func WithGatewayCallDeadline(d time.Duration) Option {
	return func(c *Config) { c.GatewayCallDeadline = d }
}

// WithPanicStalenessLimit overrides the Panic Monitor's staleness bound.
func WithPanicStalenessLimit(d time.Duration) Option {
	return func(c *Config) { c.PanicStalenessLimit = d }
}

// Default returns the configuration defaults named in the system's
// external interface specification. NeedleMaxAcceleration has no
// universal default and is left at 0; callers must supply
// WithNeedleMaxAcceleration.
func Default() Config {
	return Config{
		SurfacePollPeriod:           5 * time.Millisecond,
		SampleWindowMin:             40 * time.Millisecond,
		SampleWindowMax:             300 * time.Millisecond,
		PremoveMargin:               200,
		PanicDeviationFloor:         150,
		PanicDeviationSigmaMultiple: 5,
		InBrainDwellLimit:           500 * time.Millisecond,
		MaxSurfaceReadsInFlight:     3,
		RetryPaceWindow:             time.Second,
		RetryPaceLimit:              20,
		GatewayCallDeadline:         2 * time.Second,
		PanicStalenessLimit:         50 * time.Millisecond,
	}
}

// New builds a Config starting from Default and applying opts in order,
// then validates it.
func New(opts ...Option) (Config, error) {
	c := Default()
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	return c, c.Validate()
}

// Validate reports the first configuration error found, if any.
func (c Config) Validate() error {
	switch {
	case c.SurfacePollPeriod <= 0:
		return fmt.Errorf("config: surface poll period must be positive, got %s", c.SurfacePollPeriod)
	case c.SampleWindowMin <= 0:
		return fmt.Errorf("config: sample window min must be positive, got %s", c.SampleWindowMin)
	case c.SampleWindowMax < c.SampleWindowMin:
		return fmt.Errorf("config: sample window max (%s) must be >= min (%s)", c.SampleWindowMax, c.SampleWindowMin)
	case c.PremoveMargin <= 0:
		return fmt.Errorf("config: premove margin must be positive, got %d", c.PremoveMargin)
	case c.PanicDeviationFloor <= 0:
		return fmt.Errorf("config: panic deviation floor must be positive, got %d", c.PanicDeviationFloor)
	case c.PanicDeviationSigmaMultiple <= 0:
		return fmt.Errorf("config: panic deviation sigma multiple must be positive, got %f", c.PanicDeviationSigmaMultiple)
	case c.InBrainDwellLimit <= 0:
		return fmt.Errorf("config: in-brain dwell limit must be positive, got %s", c.InBrainDwellLimit)
	case c.NeedleMaxAcceleration <= 0:
		return fmt.Errorf("config: needle max acceleration must be positive, got %f", c.NeedleMaxAcceleration)
	case c.MaxSurfaceReadsInFlight <= 0:
		return fmt.Errorf("config: max surface reads in flight must be positive, got %d", c.MaxSurfaceReadsInFlight)
	case c.RetryPaceLimit <= 0 || c.RetryPaceWindow <= 0:
		return fmt.Errorf("config: retry pace window/limit must be positive, got %s/%d", c.RetryPaceWindow, c.RetryPaceLimit)
	case c.GatewayCallDeadline <= 0:
		return fmt.Errorf("config: gateway call deadline must be positive, got %s", c.GatewayCallDeadline)
	case c.PanicStalenessLimit <= 0:
		return fmt.Errorf("config: panic staleness limit must be positive, got %s", c.PanicStalenessLimit)
	}
	return nil
}
