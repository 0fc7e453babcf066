// Package sync provides the busy-wait synchronization primitives used by the
// kernel. Spinlocks are the only lock type available to low-level code; they
// never sleep and are only suitable for critical sections that span a handful
// of instructions.
package sync

import (
	"runtime"
	"sync/atomic"
)

var (
	// yieldFn is invoked while spinning on a contended lock. It is a
	// variable so tests can substitute it.
	yieldFn = defaultYield

	// curCPUFn returns the numeric ID of the processor executing the
	// caller. The cpu package wires this up during its initialization;
	// until then all lock ownership is attributed to processor 0.
	curCPUFn = func() uint32 { return 0 }
)

// defaultYield relinquishes the processor between acquisition attempts so a
// contended lock cannot starve the holder on a uniprocessor configuration.
func defaultYield() {
	runtime.Gosched()
}

// SetCurrentCPUFn registers the function used to resolve the ID of the
// processor executing the caller. Lock ownership bookkeeping is attributed to
// the IDs it returns.
func SetCurrentCPUFn(fn func() uint32) {
	curCPUFn = fn
}

// Spinlock implements a lock where each processor trying to acquire it
// busy-waits till the lock becomes available. The lock additionally records
// the ID of the processor holding it; the trap dispatcher uses this to detect
// and break locks held by the processor that is about to report a fatal
// condition.
type Spinlock struct {
	state uint32

	// owner is the ID of the holding processor plus one; zero means the
	// lock is free. It is only written while holding the lock.
	owner uint32
}

// Acquire blocks until the lock can be acquired by the currently active
// processor. Any attempt to re-acquire a lock already held by the current
// processor will cause a deadlock.
func (l *Spinlock) Acquire() {
	for atomic.SwapUint32(&l.state, 1) != 0 {
		yieldFn()
	}
	atomic.StoreUint32(&l.owner, curCPUFn()+1)
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	if atomic.SwapUint32(&l.state, 1) != 0 {
		return false
	}
	atomic.StoreUint32(&l.owner, curCPUFn()+1)
	return true
}

// Release relinquishes a held lock allowing other processors to acquire it.
// Calling Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.owner, 0)
	atomic.StoreUint32(&l.state, 0)
}

// Holding returns true if the lock is held by the processor executing the
// caller.
func (l *Spinlock) Holding() bool {
	return atomic.LoadUint32(&l.state) == 1 &&
		atomic.LoadUint32(&l.owner) == curCPUFn()+1
}
