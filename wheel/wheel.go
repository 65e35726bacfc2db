// File: wheel/wheel.go
// Author: momentics <momentics@gmail.com>
//
// The pacing timing wheel: a fixed ring of N slots, each a FIFO of entries
// awaiting their release deadline. A slot's queue grows as needed; it has
// no fixed capacity. A congestion controller chooses
// each packet's deadline_tsc; the wheel only enforces it.

package wheel

import (
	"github.com/eapache/queue"
	"golang.org/x/sys/cpu"

	"github.com/chlin501/eRPC/api"
)

// Entry is one packet awaiting release, tagged with an opaque reference the
// caller uses to route the released packet back to its session/slot.
type Entry struct {
	OpaqueRef uint64
	Packet    api.OutPacket

	// FreeAfterTx, when non-nil, is returned to its pool once this entry has
	// been handed to the transport (the rpc package's hook for freeing
	// runtime-owned response buffers only after transport completion).
	FreeAfterTx *api.MsgBuffer
}

// Wheel is a ring of num_slots buckets pacing packet release by deadline_tsc.
//
// Wheel is not safe for concurrent use: it is driven from the owning
// Endpoint's single progress() thread, per the runtime's cooperative
// single-threaded model.
type Wheel struct {
	_ cpu.CacheLinePad // keep hot fields off a shared cache line with any padding the Endpoint embeds alongside

	baseTSC       uint64
	wslotWidthTSC uint64
	numSlots      int
	currentSlot   int

	slots []*queue.Queue
	ready *queue.Queue
}

// New constructs a Wheel with numSlots (rounded up to a power of two) slots
// of width wslotWidthTSC cycles, anchored so that currentSlot 0 corresponds
// to nowTSC.
func New(numSlots int, wslotWidthTSC uint64, nowTSC uint64) *Wheel {
	n := 1
	for n < numSlots {
		n <<= 1
	}
	w := &Wheel{
		baseTSC:       nowTSC,
		wslotWidthTSC: wslotWidthTSC,
		numSlots:      n,
		ready:         queue.New(),
	}
	w.slots = make([]*queue.Queue, n)
	for i := range w.slots {
		w.slots[i] = queue.New()
	}
	return w
}

// NumSlots returns the wheel's slot count (always a power of two).
func (w *Wheel) NumSlots() int { return w.numSlots }

// Horizon returns the wheel's span in TSC cycles (num_slots × slot width).
// Insert rejects a deadline at or beyond the current base plus this span.
func (w *Wheel) Horizon() uint64 {
	return uint64(w.numSlots) * w.wslotWidthTSC
}

// Insert places ent for release at deadlineTSC. nowTSC is the caller's
// current timestamp, used to fast-path already-due entries straight to the
// ready queue. Slots that nowTSC has already passed are first moved to the
// ready queue and the wheel is re-anchored at the slot containing nowTSC, so
// the horizon is measured from nowTSC rather than from the last Reap.
// Insert fails with api.ErrWheelHorizon if deadlineTSC falls beyond that
// horizon.
func (w *Wheel) Insert(ent Entry, deadlineTSC, nowTSC uint64) error {
	if deadlineTSC <= nowTSC {
		w.ready.Add(ent)
		return nil
	}
	if deadlineTSC < w.baseTSC {
		// Clock moved backward relative to the wheel's anchor; treat as due.
		w.ready.Add(ent)
		return nil
	}
	if nowTSC >= w.baseTSC+w.wslotWidthTSC {
		passed := (nowTSC - w.baseTSC) / w.wslotWidthTSC
		for i := uint64(0); i < passed && i < uint64(w.numSlots); i++ {
			q := w.slots[(w.currentSlot+int(i))%w.numSlots]
			for q.Length() > 0 {
				w.ready.Add(q.Remove())
			}
		}
		w.currentSlot = (w.currentSlot + int(passed%uint64(w.numSlots))) % w.numSlots
		w.baseTSC += passed * w.wslotWidthTSC
	}
	diff := deadlineTSC - w.baseTSC
	if diff >= w.Horizon() {
		return api.ErrWheelHorizon.
			WithContext("deadline_tsc", deadlineTSC).
			WithContext("horizon_tsc", w.baseTSC+w.Horizon())
	}
	idx := (w.currentSlot + int(diff/w.wslotWidthTSC)) % w.numSlots
	w.slots[idx].Add(ent)
	return nil
}

// Reap advances the wheel to nowTSC, moving every entry in slots between the
// previous current slot and the slot containing nowTSC (inclusive) to the
// tail of the ready queue in FIFO order, then drains and returns the ready
// queue. If nowTSC precedes the wheel's base, Reap is a no-op and returns nil.
func (w *Wheel) Reap(nowTSC uint64) []Entry {
	if nowTSC < w.baseTSC {
		return nil
	}
	slotsElapsed := (nowTSC - w.baseTSC) / w.wslotWidthTSC

	steps := int(slotsElapsed) + 1
	if steps > w.numSlots {
		steps = w.numSlots
	}
	slot := w.currentSlot
	for i := 0; i < steps; i++ {
		q := w.slots[slot]
		for q.Length() > 0 {
			w.ready.Add(q.Remove())
		}
		slot = (slot + 1) % w.numSlots
	}

	w.currentSlot = (w.currentSlot + int(slotsElapsed)) % w.numSlots
	w.baseTSC += slotsElapsed * w.wslotWidthTSC

	if w.ready.Length() == 0 {
		return nil
	}
	out := make([]Entry, 0, w.ready.Length())
	for w.ready.Length() > 0 {
		out = append(out, w.ready.Remove().(Entry))
	}
	return out
}
