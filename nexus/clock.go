// File: nexus/clock.go
// Author: momentics <momentics@gmail.com>
//
// The runtime's clock source. The original measures a raw TSC and
// calibrates it to wall-clock milliseconds with a sleep-and-compare; Go
// exposes an already-calibrated monotonic clock, so TSC here is modeled
// directly as nanoseconds since an arbitrary epoch. CalibrateFreqHz is kept
// for API fidelity with spec.md §4.4 ("measure and cache CPU frequency via a
// calibrated sleep-and-compare") even though on this clock source it always
// converges near 1e9 Hz.

package nexus

import "time"

// clockEpoch anchors NowTSC; time.Since reads Go's monotonic clock.
var clockEpoch = time.Now()

// NowTSC returns the current timestamp in the runtime's TSC units
// (nanoseconds on a monotonic clock).
func NowTSC() uint64 {
	return uint64(time.Since(clockEpoch))
}

// CalibrateFreqHz measures the clock's frequency in Hz over sleepFor by
// comparing elapsed TSC ticks against elapsed wall time.
func CalibrateFreqHz(sleepFor time.Duration) uint64 {
	start := time.Now()
	startTSC := NowTSC()
	time.Sleep(sleepFor)
	elapsedTSC := NowTSC() - startTSC
	elapsedWall := time.Since(start)
	if elapsedWall <= 0 {
		return 1_000_000_000
	}
	return uint64(float64(elapsedTSC) / elapsedWall.Seconds())
}

// MillisFromTSC converts a TSC delta to milliseconds at the given frequency.
func MillisFromTSC(deltaTSC, freqHz uint64) float64 {
	if freqHz == 0 {
		return 0
	}
	return float64(deltaTSC) / float64(freqHz) * 1000
}
