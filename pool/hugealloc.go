// File: pool/hugealloc.go
// Author: momentics <momentics@gmail.com>
//
// HugeAllocator is the abstraction point for the runtime's message-buffer
// backing store. Hugepage reservation, mmap flags, and RDMA memory
// registration are all external collaborators per the runtime's scope — the
// default allocator here is a plain heap-backed fallback; a production
// deployment swaps in a real hugepage-backed implementation without
// touching MsgBufferPool.

package pool

import "sync"

// HugeAllocator allocates and frees byte slices from a large backing region.
type HugeAllocator interface {
	Alloc(size int) ([]byte, error)
	Free([]byte)
}

// heapAllocator is the default HugeAllocator: it simply allocates from the
// Go heap. Kept distinct from MsgBufferPool's sync.Pool reuse layer so a
// real hugepage allocator can be substituted by passing a different
// HugeAllocator to NewMsgBufferPool.
type heapAllocator struct{}

func (heapAllocator) Alloc(size int) ([]byte, error) { return make([]byte, size), nil }
func (heapAllocator) Free([]byte)                    {}

// DefaultHugeAllocator returns the heap-backed fallback allocator.
func DefaultHugeAllocator() HugeAllocator { return heapAllocator{} }

// sizeClassPool pools []byte slices of one size class over a HugeAllocator.
type sizeClassPool struct {
	alloc HugeAllocator
	size  int
	pool  sync.Pool
}

func newSizeClassPool(alloc HugeAllocator, size int) *sizeClassPool {
	p := &sizeClassPool{alloc: alloc, size: size}
	p.pool.New = func() any {
		b, err := alloc.Alloc(size)
		if err != nil {
			b = make([]byte, size)
		}
		return b
	}
	return p
}

func (p *sizeClassPool) get() []byte {
	return p.pool.Get().([]byte)[:p.size]
}

func (p *sizeClassPool) put(buf []byte) {
	p.pool.Put(buf[:p.size])
}
