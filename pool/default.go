// File: pool/default.go
// Author: momentics <momentics@gmail.com>

package pool

import (
	"sync"

	"github.com/chlin501/eRPC/api"
)

var (
	defaultOnce sync.Once
	defaultPool *MsgBufferPool
)

// Default returns a process-wide MsgBufferPool so unrelated components
// (such as several rpc Endpoints in one process) reuse the same
// size-classed buffers instead of fragmenting allocations across private
// pools.
func Default() api.BufferPool {
	defaultOnce.Do(func() {
		defaultPool = NewMsgBufferPool(DefaultHugeAllocator())
	})
	return defaultPool
}
