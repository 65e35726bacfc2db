package wheel

import (
	"testing"

	"github.com/chlin501/eRPC/api"
)

const (
	testMTU            = 1024
	testWslotWidthTSC  = 500 // 0.5us at a 1GHz synthetic clock
	testFreqHzSynthetic = 1_000_000_000
)

func newTestWheel(nowTSC uint64) *Wheel {
	return New(64, testWslotWidthTSC, nowTSC)
}

func TestInsertThenImmediateReapYieldsEntryOnce(t *testing.T) {
	w := newTestWheel(0)
	ent := Entry{OpaqueRef: 1}
	deadline := uint64(testWslotWidthTSC * 3)

	if err := w.Insert(ent, deadline, 0); err != nil {
		t.Fatalf("insert: %v", err)
	}

	out := w.Reap(deadline)
	if len(out) != 1 {
		t.Fatalf("expected exactly one entry, got %d", len(out))
	}
	if out[0].OpaqueRef != 1 {
		t.Fatalf("unexpected entry: %+v", out[0])
	}

	// A second reap at the same time must not re-release it.
	out2 := w.Reap(deadline)
	if len(out2) != 0 {
		t.Fatalf("expected no entries on second reap, got %d", len(out2))
	}
}

func TestInsertPastDeadlineGoesStraightToReady(t *testing.T) {
	w := newTestWheel(1000)
	ent := Entry{OpaqueRef: 7}
	if err := w.Insert(ent, 500, 1000); err != nil {
		t.Fatalf("insert: %v", err)
	}
	out := w.Reap(1000)
	if len(out) != 1 || out[0].OpaqueRef != 7 {
		t.Fatalf("expected immediate release of due entry, got %+v", out)
	}
}

func TestInsertBeyondHorizonFails(t *testing.T) {
	w := newTestWheel(0)
	ent := Entry{OpaqueRef: 1}
	farDeadline := w.Horizon() + 1
	if err := w.Insert(ent, farDeadline, 0); err == nil {
		t.Fatal("expected ErrWheelHorizon")
	} else if apiErr, ok := err.(*api.Error); !ok || apiErr.Code != api.ErrCodeWheelHorizon {
		t.Fatalf("expected ErrCodeWheelHorizon, got %v", err)
	}
}

func TestReapOrdersBySlotThenFIFO(t *testing.T) {
	w := newTestWheel(0)
	_ = w.Insert(Entry{OpaqueRef: 1}, testWslotWidthTSC*1, 0)
	_ = w.Insert(Entry{OpaqueRef: 2}, testWslotWidthTSC*1+1, 0)
	_ = w.Insert(Entry{OpaqueRef: 3}, testWslotWidthTSC*2, 0)

	out := w.Reap(testWslotWidthTSC * 3)
	if len(out) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(out))
	}
	if out[0].OpaqueRef != 1 || out[1].OpaqueRef != 2 || out[2].OpaqueRef != 3 {
		t.Fatalf("expected slot order then FIFO within slot, got %+v", out)
	}
}

func TestRateEnforcement(t *testing.T) {
	const numPackets = 10000
	for _, targetGbps := range []float64{1, 10, 40} {
		targetBytesPerSec := targetGbps * 1e9 / 8
		cyclesPerPkt := uint64(float64(testFreqHzSynthetic) * float64(testMTU) / targetBytesPerSec)
		if cyclesPerPkt == 0 {
			cyclesPerPkt = 1
		}

		w := newTestWheel(0)
		nowTSC := uint64(0)
		released := 0
		var bytesReleased uint64
		deadlines := make([]uint64, numPackets)

		checkReleased := func(reapNow uint64, ents []Entry) {
			for _, ent := range ents {
				idx := ent.OpaqueRef
				if reapNow < deadlines[idx] {
					t.Fatalf("target %vGbps: entry %d released at %d before its deadline %d", targetGbps, idx, reapNow, deadlines[idx])
				}
				released++
				bytesReleased += testMTU
			}
		}

		nextTx := cyclesPerPkt
		for i := 0; i < numPackets; i++ {
			deadlines[i] = nextTx
			if err := w.Insert(Entry{OpaqueRef: uint64(i)}, nextTx, nowTSC); err != nil {
				t.Fatalf("insert %d: %v", i, err)
			}
			nextTx += cyclesPerPkt
			nowTSC += cyclesPerPkt
			checkReleased(nowTSC, w.Reap(nowTSC))
		}
		// Drain any remaining entries by advancing to the final deadline.
		finalNow := nextTx + w.Horizon()
		checkReleased(finalNow, w.Reap(finalNow))

		if released != numPackets {
			t.Fatalf("target %vGbps: released %d of %d packets", targetGbps, released, numPackets)
		}
		if bytesReleased != uint64(numPackets)*testMTU {
			t.Fatalf("target %vGbps: bytesReleased = %d, want %d", targetGbps, bytesReleased, uint64(numPackets)*testMTU)
		}
	}
}
