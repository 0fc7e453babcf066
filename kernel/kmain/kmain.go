// Package kmain contains the kernel bootstrap sequence: hardware detection,
// physical memory setup, trap vector installation and the boot-time
// self-checks that gate entry into normal operation.
package kmain

import (
	"nodeos/kernel"
	"nodeos/kernel/cpu"
	"nodeos/kernel/hal"
	"nodeos/kernel/kfmt"
	"nodeos/kernel/mm"
	"nodeos/kernel/mm/pmm"
	"nodeos/kernel/sync"
	"nodeos/kernel/trap"
)

var (
	errKmainReturned   = &kernel.Error{Module: "kmain", Message: "Kmain returned"}
	errNoNVRAM         = &kernel.Error{Module: "kmain", Message: "no NVRAM device; cannot size physical memory"}
	errLockCheckFailed = &kernel.Error{Module: "kmain", Message: "spinlock self-check failed"}
	errNotBootCPU      = &kernel.Error{Module: "kmain", Message: "bootstrap invoked on a secondary processor"}
)

// biosHoleStart is where usable base memory ends; the region from here to
// the start of extended memory belongs to the BIOS and the video hardware.
const biosHoleStart = uintptr(0x9f000)

// Collaborators are the upper-layer interfaces the trap dispatcher routes
// into. Any of them may be nil while the matching subsystem is not up yet;
// the dispatcher treats the affected traps as unhandled.
type Collaborators struct {
	VM        trap.FaultResolver
	Syscalls  trap.SyscallHandler
	Scheduler trap.Scheduler
	Network   trap.Network
}

// Kernel aggregates the subsystems constructed during bootstrap.
type Kernel struct {
	Store      *pmm.Store
	Dispatcher *trap.Dispatcher
}

// Bootstrap brings the kernel core up on the bootstrap processor: it probes
// the hardware, sizes and initializes physical memory, installs the trap
// vectors and runs the boot-time self-checks. kernelStart and kernelEnd
// delimit the loaded kernel image, which must never enter the page
// allocator.
func Bootstrap(c *cpu.CPU, col *Collaborators, kernelStart, kernelEnd uintptr) (*Kernel, *kernel.Error) {
	if !c.OnBoot() {
		return nil, errNotBootCPU
	}

	hal.DetectHardware()

	nv := hal.NVRAM()
	if nv == nil {
		return nil, errNoNVRAM
	}

	kfmt.Printf("[kmain] physical memory: base = %dK, extended = %dK\n",
		uint64(nv.BaseMemory()/mm.Kb), uint64(nv.ExtMemory()/mm.Kb))

	// The NVRAM extended count is 16 bits of kilobytes and tops out at
	// 64MB; size the frame arena for a full 1GB instead so large-memory
	// machines are usable.
	kfmt.Printf("[kmain] warning: assuming 1GB of total memory\n")
	memSize := 1 * mm.Gb

	store, err := pmm.NewStore(pmm.Config{
		TotalPages: memSize.Pages(),
		Reserved: []mm.FrameRange{
			mm.RangeForBytes(biosHoleStart, mm.Size(kernelStart-biosHoleStart)),
			mm.RangeForBytes(kernelStart, mm.Size(kernelEnd-kernelStart)),
		},
		MaxNodes: pmm.DefaultMaxNodes,
	})
	if err != nil {
		return nil, err
	}
	if err = store.SelfCheck(); err != nil {
		return nil, err
	}

	if !sync.Check() {
		return nil, errLockCheckFailed
	}

	if err = trap.Init(c); err != nil {
		return nil, err
	}

	var intCtl trap.InterruptController
	if ctl := hal.InterruptController(); ctl != nil {
		intCtl = ctl
	}

	k := &Kernel{
		Store:      store,
		Dispatcher: trap.NewDispatcher(col.VM, col.Syscalls, col.Scheduler, col.Network, intCtl),
	}
	hal.WireISRs(k.Dispatcher)

	if err = k.Dispatcher.CheckKernel(c); err != nil {
		return nil, err
	}

	return k, nil
}

// BootSecondary runs the per-processor part of the bootstrap on a secondary
// processor: it loads the shared trap vectors and proves they dispatch
// before the processor joins the system.
func BootSecondary(c *cpu.CPU, k *Kernel) *kernel.Error {
	if err := trap.Init(c); err != nil {
		return err
	}
	if err := k.Dispatcher.CheckKernel(c); err != nil {
		return err
	}
	c.SetStarted()
	return nil
}

// Kmain runs Bootstrap on the invoking processor, treating any failure as
// fatal, and hands the processor to the scheduler. It should never return.
func Kmain(col *Collaborators, kernelStart, kernelEnd uintptr) {
	c := cpu.Current()

	k, err := Bootstrap(c, col, kernelStart, kernelEnd)
	if err != nil {
		kfmt.Panic(err)
	}

	c.SetStarted()
	kfmt.Printf("[kmain] cpu %d: kernel core ready; %d of %d pages free\n",
		c.ID, k.Store.FreePages(), k.Store.TotalPages())

	// The scheduler owns the processor from here on.
	cpu.Halt()

	kfmt.Panic(errKmainReturned)
}
