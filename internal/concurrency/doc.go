// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency primitives backing the request/response engine's background
// handler dispatch: a lock-free SPSC ring buffer per worker and an Executor
// that round-robins submissions across worker goroutines, falling back to a
// shared channel when a worker's local queue is full.
package concurrency
