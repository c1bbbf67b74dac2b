// Package diagnostics exposes counters and gauges for an operator
// console or the sequencer to poll: buffer depth, last prediction
// residual, panic trigger count, and a dwell-time summary. Every field is
// backed by an atomic so readers never contend with the cooperative
// runtime's owning goroutine, which is the sole writer.
package diagnostics

import (
	"math"
	"sync/atomic"
)

// Surface holds the running counters and gauges. The zero value is ready
// to use.
type Surface struct {
	bufferDepth       atomic.Int64
	lastResidual      atomic.Uint64 // math.Float64bits
	panicTriggerCount atomic.Int64

	dwellCount atomic.Int64
	dwellSumNs atomic.Int64
	dwellMaxNs atomic.Int64
}

// SetBufferDepth records the surface-distance buffer's current length.
func (s *Surface) SetBufferDepth(n int) { s.bufferDepth.Store(int64(n)) }

// BufferDepth returns the most recently recorded buffer depth.
func (s *Surface) BufferDepth() int64 { return s.bufferDepth.Load() }

// SetLastResidual records the most recent Motion Predictor fit's residual
// standard deviation, in microns.
func (s *Surface) SetLastResidual(microns float64) {
	s.lastResidual.Store(math.Float64bits(microns))
}

// LastResidual returns the most recently recorded fit residual, in
// microns.
func (s *Surface) LastResidual() float64 { return math.Float64frombits(s.lastResidual.Load()) }

// IncPanicTriggers increments the panic trigger counter.
func (s *Surface) IncPanicTriggers() { s.panicTriggerCount.Add(1) }

// PanicTriggerCount returns the total number of panics raised since
// construction.
func (s *Surface) PanicTriggerCount() int64 { return s.panicTriggerCount.Load() }

// ObserveDwell records one completed in-brain dwell duration, in
// nanoseconds.
func (s *Surface) ObserveDwell(ns int64) {
	s.dwellCount.Add(1)
	s.dwellSumNs.Add(ns)
	for {
		cur := s.dwellMaxNs.Load()
		if ns <= cur || s.dwellMaxNs.CompareAndSwap(cur, ns) {
			return
		}
	}
}

// DwellStats reports the count, mean, and max of every observed dwell
// duration, in nanoseconds.
func (s *Surface) DwellStats() (count int64, meanNs float64, maxNs int64) {
	count = s.dwellCount.Load()
	maxNs = s.dwellMaxNs.Load()
	if count == 0 {
		return 0, 0, 0
	}
	meanNs = float64(s.dwellSumNs.Load()) / float64(count)
	return
}
