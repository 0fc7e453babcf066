// Package cpu maintains the per-processor state of the kernel. Every
// processor in the system is represented by a CPU structure allocated from a
// fixed table; processor 0 is always the bootstrap processor and is the only
// one allowed to perform the once-only initialization steps (page metadata
// construction, trap vector table construction).
package cpu

import (
	"nodeos/kernel/sync"
	"runtime"
)

// MaxCPUs defines the maximum number of processors supported by the kernel.
const MaxCPUs = 8

// CPU describes the state of a single processor.
type CPU struct {
	// ID is the numeric identifier of this processor. The bootstrap
	// processor always has ID 0.
	ID uint32

	// started is set once the processor has loaded its trap vector
	// descriptor and entered the scheduler.
	started bool
}

var (
	cpus [MaxCPUs]CPU

	// currentFn resolves the processor executing the caller. The default
	// implementation always reports the bootstrap processor which is
	// correct until secondary processors are started; tests and the
	// multiprocessor startup path substitute their own resolver.
	currentFn = func() *CPU { return &cpus[0] }
)

func init() {
	for i := range cpus {
		cpus[i].ID = uint32(i)
	}

	sync.SetCurrentCPUFn(func() uint32 { return currentFn().ID })
}

// Boot returns the bootstrap processor.
func Boot() *CPU {
	return &cpus[0]
}

// Get returns the CPU structure for the processor with the given ID.
func Get(id uint32) *CPU {
	return &cpus[id]
}

// Current returns the processor executing the caller.
func Current() *CPU {
	return currentFn()
}

// SetCurrentFn registers the function used by Current to resolve the
// executing processor.
func SetCurrentFn(fn func() *CPU) {
	currentFn = fn
}

// OnBoot returns true if this is the bootstrap processor.
func (c *CPU) OnBoot() bool {
	return c.ID == 0
}

// SetStarted marks the processor as fully started.
func (c *CPU) SetStarted() {
	c.started = true
}

// Started returns true once the processor has completed its startup sequence.
func (c *CPU) Started() bool {
	return c.started
}

// Halt stops instruction execution on the current processor. It is the
// endpoint of every fatal error path and never returns.
func Halt() {
	for {
		runtime.Gosched()
	}
}
