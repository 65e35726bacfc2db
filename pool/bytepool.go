// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>
//
// A fixed-size api.BytePool backing the SM socket's per-poll receive
// buffer, so TryRecv's hot path (called once per Endpoint tick) reuses a
// buffer instead of allocating one on every poll.

package pool

import (
	"sync"

	"github.com/chlin501/eRPC/api"
)

type bytePool struct {
	size int
	pool sync.Pool
}

// NewBytePool returns an api.BytePool whose Acquire hands back a buffer of
// at least size bytes, reusing a prior Release'd buffer of the right size.
func NewBytePool(size int) api.BytePool {
	return &bytePool{
		size: size,
		pool: sync.Pool{New: func() any { return make([]byte, size) }},
	}
}

func (p *bytePool) Acquire(n int) []byte {
	b := p.pool.Get().([]byte)
	if len(b) < n {
		return make([]byte, n)
	}
	return b[:n]
}

func (p *bytePool) Release(buf []byte) {
	if cap(buf) < p.size {
		return
	}
	p.pool.Put(buf[:cap(buf)])
}
