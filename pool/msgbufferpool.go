// File: pool/msgbufferpool.go
// Author: momentics <momentics@gmail.com>
//
// MsgBufferPool implements api.BufferPool with power-of-two size classes,
// each backed by a sizeClassPool over a shared HugeAllocator. This mirrors
// the runtime's fixed set of preallocated message-buffer sizes rather than
// allocating one-off regions per request.

package pool

import (
	"sync/atomic"

	"github.com/chlin501/eRPC/api"
)

const (
	minClassShift = 8  // 256 B
	maxClassShift = 20 // 1 MiB
)

// MsgBufferPool is a size-classed api.BufferPool.
type MsgBufferPool struct {
	alloc   HugeAllocator
	classes []*sizeClassPool

	totalAlloc int64
	totalFree  int64
	inUse      int64
}

// NewMsgBufferPool builds a MsgBufferPool with size classes from 256 B up to
// 1 MiB (inclusive), each a power of two, backed by alloc. Pass
// DefaultHugeAllocator() for the heap-backed fallback.
func NewMsgBufferPool(alloc HugeAllocator) *MsgBufferPool {
	p := &MsgBufferPool{alloc: alloc}
	for shift := minClassShift; shift <= maxClassShift; shift++ {
		p.classes = append(p.classes, newSizeClassPool(alloc, 1<<shift))
	}
	return p
}

func (p *MsgBufferPool) classFor(maxSize int) (*sizeClassPool, error) {
	for _, c := range p.classes {
		if c.size >= maxSize {
			return c, nil
		}
	}
	return nil, api.ErrNoMem.WithContext("requested_size", maxSize)
}

// Alloc returns a MsgBuffer with capacity at least maxSize, taken from the
// smallest size class that fits.
func (p *MsgBufferPool) Alloc(maxSize int) (*api.MsgBuffer, error) {
	c, err := p.classFor(maxSize)
	if err != nil {
		return nil, err
	}
	buf := c.get()
	atomic.AddInt64(&p.totalAlloc, 1)
	atomic.AddInt64(&p.inUse, 1)
	return api.NewMsgBuffer(buf, api.MemRegHandle{}, p), nil
}

// Free returns b's backing region to its size class. b must have been
// allocated by this pool.
func (p *MsgBufferPool) Free(b *api.MsgBuffer) {
	c, err := p.classFor(b.Capacity())
	if err != nil || c.size != b.Capacity() {
		// Not one of our size classes; drop it rather than corrupt a class pool.
		return
	}
	c.put(b.Backing())
	atomic.AddInt64(&p.totalFree, 1)
	atomic.AddInt64(&p.inUse, -1)
}

// Stats reports cumulative allocation/reuse counters.
func (p *MsgBufferPool) Stats() api.BufferPoolStats {
	return api.BufferPoolStats{
		TotalAlloc: atomic.LoadInt64(&p.totalAlloc),
		TotalFree:  atomic.LoadInt64(&p.totalFree),
		InUse:      atomic.LoadInt64(&p.inUse),
	}
}
