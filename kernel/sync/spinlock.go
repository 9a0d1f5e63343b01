// Package sync provides the core's synchronization primitives:
// a busy-wait spinlock using an atomic exchange with a PAUSE-backoff retry
// loop, plus a single preempt counter shared by all CPUs (there is no
// per-CPU copy). None of the core's single-CPU code
// paths in this repository actually acquire one of these locks:
// bring-up runs single-threaded before interrupts are enabled, and the few
// mutable globals touched after that (the ISR table) are instead guarded by
// disabling interrupts around the write. The type exists for later
// multi-core use.
package sync

import "sync/atomic"

var (
	// yieldFn is nil in the freestanding kernel, where there is nothing
	// to yield to and Acquire busy-waits in assembly. Hosted tests
	// install runtime.Gosched here so a spinning goroutine lets the
	// scheduler run the one that will release the lock.
	yieldFn func()

	// preemptCount is incremented while any CPU holds a spinlock and
	// decremented on release, standing in for the per-CPU preemption
	// counter a scheduler would consult before context-switching away
	// from a lock holder.
	preemptCount uint32
)

// Spinlock implements a lock where each task trying to acquire it busy-waits
// until the lock becomes available.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active
// task. Re-acquiring a lock already held by the current task deadlocks.
func (l *Spinlock) Acquire() {
	if yieldFn != nil {
		for !l.TryToAcquire() {
			yieldFn()
		}
		return
	}
	archAcquireSpinlock(&l.state, 1)
	atomic.AddUint32(&preemptCount, 1)
}

// TryToAcquire attempts to acquire the lock without blocking and reports
// whether it succeeded.
func (l *Spinlock) TryToAcquire() bool {
	if atomic.SwapUint32(&l.state, 1) == 0 {
		atomic.AddUint32(&preemptCount, 1)
		return true
	}
	return false
}

// Release relinquishes a held lock. Calling Release while the lock is
// already free has no effect beyond decrementing the preempt counter, so
// callers must pair every successful Acquire/TryToAcquire with exactly one
// Release.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
	atomic.AddUint32(&preemptCount, ^uint32(0))
}

// PreemptCount returns the number of spinlocks currently held across all
// CPUs. A scheduler can use a non-zero count to defer preemption.
func PreemptCount() uint32 {
	return atomic.LoadUint32(&preemptCount)
}

// archAcquireSpinlock is the arch-specific busy-wait loop: it attempts an
// atomic exchange and, on failure, executes PAUSE attemptsBeforeYielding
// times before retrying.
func archAcquireSpinlock(state *uint32, attemptsBeforeYielding uint32)
