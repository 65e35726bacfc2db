// File: cc/timely.go
// Author: momentics <momentics@gmail.com>
//
// A Timely-style RTT-gradient congestion controller: a reference
// implementation of the api.CongestionController contract the pacing wheel
// consumes. Its internals are explicitly out of scope for the runtime core
// (spec §1) — this is one concrete driver good enough for the engine's own
// tests, not a production rate-control algorithm.

package cc

import "sync"

const (
	defaultTargetRTTNS   = 50_000 // 50us
	multiplicativeDecrease = 0.8
	additiveIncreaseStep   = 0.05 // fraction of max rate per good sample
)

type sessionRate struct {
	rateBytesPerSec float64
	lastDeadlineTSC uint64
}

// TimelyController adapts a per-session send rate from RTT samples and
// paces OnTx deadlines accordingly.
type TimelyController struct {
	mu sync.Mutex

	freqHz   uint64
	mtuBytes int

	minRateBytesPerSec float64
	maxRateBytesPerSec float64
	targetRTTNS        int64

	sessions map[uint32]*sessionRate
}

// NewTimelyController constructs a controller calibrated to freqHz (the
// Nexus's measured CPU frequency) and mtuBytes (the transport's MTU), with
// per-session rate clamped to [minRateBytesPerSec, maxRateBytesPerSec].
func NewTimelyController(freqHz uint64, mtuBytes int, minRateBytesPerSec, maxRateBytesPerSec float64) *TimelyController {
	return &TimelyController{
		freqHz:             freqHz,
		mtuBytes:           mtuBytes,
		minRateBytesPerSec: minRateBytesPerSec,
		maxRateBytesPerSec: maxRateBytesPerSec,
		targetRTTNS:        defaultTargetRTTNS,
		sessions:           make(map[uint32]*sessionRate),
	}
}

func (c *TimelyController) rateFor(sessionNum uint32) *sessionRate {
	st, ok := c.sessions[sessionNum]
	if !ok {
		st = &sessionRate{rateBytesPerSec: c.maxRateBytesPerSec}
		c.sessions[sessionNum] = st
	}
	return st
}

// OnTx returns the cycle timestamp at which the next packet for sessionNum
// should be released, paced at the session's current rate estimate.
func (c *TimelyController) OnTx(sessionNum uint32, nowTSC uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.rateFor(sessionNum)
	cyclesPerPkt := uint64(float64(c.freqHz) * float64(c.mtuBytes) / st.rateBytesPerSec)

	deadline := nowTSC
	if st.lastDeadlineTSC > deadline {
		deadline = st.lastDeadlineTSC
	}
	deadline += cyclesPerPkt
	st.lastDeadlineTSC = deadline
	return deadline
}

// OnRTT ingests one RTT sample (nanoseconds) and adapts sessionNum's rate:
// multiplicative decrease above the target, additive increase below it.
func (c *TimelyController) OnRTT(sessionNum uint32, sampleNS int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.rateFor(sessionNum)
	if sampleNS > c.targetRTTNS {
		st.rateBytesPerSec *= multiplicativeDecrease
	} else {
		st.rateBytesPerSec += c.maxRateBytesPerSec * additiveIncreaseStep
	}
	if st.rateBytesPerSec < c.minRateBytesPerSec {
		st.rateBytesPerSec = c.minRateBytesPerSec
	}
	if st.rateBytesPerSec > c.maxRateBytesPerSec {
		st.rateBytesPerSec = c.maxRateBytesPerSec
	}
}
