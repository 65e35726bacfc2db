// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// SyncPool structurally satisfies api.ObjectPool[T]; the rpc Endpoint uses
// one to reuse its per-tick outbound packet slice instead of allocating a
// fresh one on every wheel reap.

package pool

import "sync"

// SyncPool wraps sync.Pool for generic usage.
type SyncPool[T any] struct {
    pool *sync.Pool
}

// NewSyncPool creates a new SyncPool with a creator function.
func NewSyncPool[T any](creator func() T) *SyncPool[T] {
    return &SyncPool[T]{
        pool: &sync.Pool{New: func() any { return creator() }},
    }
}

func (sp *SyncPool[T]) Get() T {
    return sp.pool.Get().(T)
}

func (sp *SyncPool[T]) Put(obj T) {
    sp.pool.Put(obj)
}
