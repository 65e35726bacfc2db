// File: internal/concurrency/executor.go
// Package concurrency implements the worker pool backing background request
// handler dispatch.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executor dispatches tasks across worker goroutines, using lock-free local
// queues and a shared channel fallback. The lockFreeQueue type is defined in
// lock_free_queue.go. This is the MPMC dispatch side of the background
// handler path; completions flow back over a plain channel the rpc package
// owns.

package concurrency

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chlin501/eRPC/affinity"
)

// ErrExecutorClosed is returned by Submit once the executor has begun shutdown.
var ErrExecutorClosed = errors.New("concurrency: executor closed")

// ErrExecutorFull is returned by Submit when both the chosen worker's local
// queue and the shared fallback queue are full.
var ErrExecutorFull = errors.New("concurrency: executor queues full")

// TaskFunc is a unit of work to execute: a background ReqFunc invocation or
// a continuation invocation.
type TaskFunc func()

// Executor manages a pool of worker goroutines.
type Executor struct {
	globalQueue chan TaskFunc              // fallback queue for tasks when local queues are full
	localQueues []*lockFreeQueue[TaskFunc] // per-worker lock-free queues
	workers     []*worker                  // worker instances
	closeCh     chan struct{}              // signals executor shutdown
	closed      int32                      // atomic flag: 1 if closed
	numWorkers  int32                      // current number of workers
	mu          sync.Mutex                 // protects resizing operations
	workerGoIDs sync.Map                   // goroutine id (uint64) -> struct{}, for IsWorkerGoroutine

	// statistics
	totalTasks     int64
	completedTasks int64
}

// NewExecutor creates a new Executor with the given number of workers. If
// numWorkers <= 0, defaults to runtime.NumCPU(). When pinCPUBase >= 0, worker
// i is pinned to logical CPU pinCPUBase+i via affinity.SetAffinity; pass -1
// to leave workers unpinned.
func NewExecutor(numWorkers, pinCPUBase int) *Executor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	e := &Executor{
		globalQueue: make(chan TaskFunc, numWorkers*4),
		closeCh:     make(chan struct{}),
		numWorkers:  int32(numWorkers),
	}
	e.localQueues = make([]*lockFreeQueue[TaskFunc], numWorkers)
	e.workers = make([]*worker, numWorkers)
	for i := 0; i < numWorkers; i++ {
		e.localQueues[i] = NewLockFreeQueue[TaskFunc](1024)
	}
	for i := 0; i < numWorkers; i++ {
		w := &worker{
			id:         i,
			executor:   e,
			localQueue: e.localQueues[i],
			stopCh:     make(chan struct{}),
		}
		e.workers[i] = w
		cpuID := -1
		if pinCPUBase >= 0 {
			cpuID = pinCPUBase + i
		}
		go w.run(cpuID)
	}
	return e
}

// Submit enqueues a task for execution, returning ErrExecutorClosed if the
// executor is closed and ErrExecutorFull if no queue has room.
func (e *Executor) Submit(task TaskFunc) error {
	if atomic.LoadInt32(&e.closed) == 1 {
		return ErrExecutorClosed
	}
	atomic.AddInt64(&e.totalTasks, 1)
	idx := int(atomic.LoadInt64(&e.totalTasks) % int64(e.NumWorkers()))
	if e.localQueues[idx].Enqueue(task) {
		return nil
	}
	select {
	case e.globalQueue <- task:
		return nil
	case <-e.closeCh:
		return ErrExecutorClosed
	default:
		return ErrExecutorFull
	}
}

// NumWorkers returns the current number of active workers.
func (e *Executor) NumWorkers() int {
	return int(atomic.LoadInt32(&e.numWorkers))
}

// Close gracefully shuts down the executor and signals workers to exit.
func (e *Executor) Close() {
	if atomic.CompareAndSwapInt32(&e.closed, 0, 1) {
		close(e.closeCh)
		e.mu.Lock()
		defer e.mu.Unlock()
		for _, w := range e.workers {
			close(w.stopCh)
		}
	}
}

// Stats returns basic executor metrics.
func (e *Executor) Stats() map[string]int64 {
	return map[string]int64{
		"total_tasks":     atomic.LoadInt64(&e.totalTasks),
		"completed_tasks": atomic.LoadInt64(&e.completedTasks),
		"pending_tasks":   atomic.LoadInt64(&e.totalTasks) - atomic.LoadInt64(&e.completedTasks),
		"num_workers":     int64(e.NumWorkers()),
	}
}

// worker represents a single executor goroutine.
type worker struct {
	id         int
	executor   *Executor
	localQueue *lockFreeQueue[TaskFunc]
	stopCh     chan struct{}
	stopped    int32
}

// IsWorkerGoroutine reports whether the calling goroutine is one of this
// executor's workers, the basis for the rpc package's InBackground().
func (e *Executor) IsWorkerGoroutine() bool {
	_, ok := e.workerGoIDs.Load(currentGoID())
	return ok
}

// run is the main loop for a worker, optionally pinned to cpuID.
func (w *worker) run(cpuID int) {
	defer atomic.StoreInt32(&w.stopped, 1)
	goID := currentGoID()
	w.executor.workerGoIDs.Store(goID, struct{}{})
	defer w.executor.workerGoIDs.Delete(goID)
	if cpuID >= 0 {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		_ = affinity.SetAffinity(cpuID)
	}
	for {
		select {
		case <-w.stopCh:
			return
		default:
			if task, ok := w.localQueue.Dequeue(); ok {
				w.executeTask(task)
				continue
			}
			select {
			case task := <-w.executor.globalQueue:
				w.executeTask(task)
			case <-w.stopCh:
				return
			default:
				time.Sleep(time.Millisecond)
			}
		}
	}
}

// executeTask runs the task and updates statistics, recovering from panics
// raised by application handler code so one bad handler can't kill a worker.
func (w *worker) executeTask(task TaskFunc) {
	defer func() {
		if r := recover(); r != nil {
			// swallow: a misbehaving handler must not take down the worker pool
		}
		atomic.AddInt64(&w.executor.completedTasks, 1)
	}()
	task()
}
