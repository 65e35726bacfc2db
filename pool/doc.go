// Package pool
// Author: momentics <momentics@gmail.com>
//
// Hugepage-style allocator and message-buffer pooling for the RPC runtime.
// MsgBufferPool implements api.BufferPool with size-classed reuse, backed by
// a pluggable HugeAllocator so a real hugepage/mmap/RDMA-registered backend
// can be swapped in without touching call sites. See hugealloc.go and
// msgbufferpool.go for implementation details.
package pool
