package controller

import (
	"time"

	"github.com/SynapticNetworks/threadctl/internal/buffer"
)

// faultFreeWindowSince reports whether the trailing contiguous run of
// non-fault samples (ordered by request time) spans at least span, and if
// so the maximum observed value across that run, used to compute
// PREMOVE during calibration.
func faultFreeWindowSince(readings []buffer.Reading[int64], span time.Duration) (ok bool, maxValue int64) {
	ordered := buffer.SortByRequestTime(readings)

	cut := len(ordered)
	for i := len(ordered) - 1; i >= 0; i-- {
		if !ordered[i].Ok() {
			break
		}
		cut = i
	}
	run := ordered[cut:]
	if len(run) == 0 {
		return false, 0
	}
	if run[len(run)-1].RequestTime.Sub(run[0].RequestTime) < span {
		return false, 0
	}

	maxValue = run[0].Value
	for _, r := range run[1:] {
		if r.Value > maxValue {
			maxValue = r.Value
		}
	}
	return true, maxValue
}
