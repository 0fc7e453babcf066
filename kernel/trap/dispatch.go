package trap

import (
	"nodeos/kernel"
	"nodeos/kernel/cpu"
	"nodeos/kernel/kfmt"
)

// FaultResolver is implemented by the address-space layer. ResolveFault gets
// the first look at every page fault and returns true if it repaired the
// faulting mapping so the interrupted context can simply resume.
type FaultResolver interface {
	ResolveFault(c *cpu.CPU, tf *Frame) bool
}

// SyscallHandler services the system call vector. The call arguments and
// result travel in the register snapshot of the frame.
type SyscallHandler interface {
	Syscall(c *cpu.CPU, tf *Frame)
}

// Process is the view of a running process the dispatcher needs: which
// cluster node owns it.
type Process interface {
	HomeNode() uint8
}

// Scheduler is implemented by the process layer.
type Scheduler interface {
	// Current returns the process running on the given processor.
	Current(c *cpu.CPU) Process

	// Yield gives up the processor on behalf of the interrupted process,
	// saving tf as its resume state.
	Yield(c *cpu.CPU, tf *Frame)

	// ReturnToParent reflects a process trap to its parent, passing the
	// saved frame and a status code.
	ReturnToParent(c *cpu.CPU, tf *Frame, status int)
}

// Network is implemented by the cluster transport layer.
type Network interface {
	// NodeID returns the identifier of the local node.
	NodeID() uint8

	// Tick drives periodic transport work (retransmits, liveness).
	Tick()

	// Migrate ships the interrupted process, with tf as its saved state,
	// to its home node.
	Migrate(c *cpu.CPU, tf *Frame, node uint8)
}

// InterruptController acknowledges hardware interrupts so the controller can
// deliver the next one.
type InterruptController interface {
	EOI()
}

// RecoveryFn repairs the trap frame of an anticipated kernel fault, usually
// by redirecting RIP past the faulting instruction, and records whatever the
// installer wants to know about the trap in data.
type RecoveryFn func(tf *Frame, data interface{})

type recoverySlot struct {
	fn   RecoveryFn
	data interface{}
}

var (
	errRecoveryNested = &kernel.Error{Module: "trap", Message: "nested trap recovery registration"}
	errUnhandledTrap  = &kernel.Error{Module: "trap", Message: "unhandled trap"}

	// panicFn is overridden by tests that exercise the fatal path.
	panicFn = kfmt.Panic
)

// Dispatcher routes every trap taken by a processor to the component
// responsible for it. The collaborator fields are fixed at construction;
// device interrupt handlers may be registered later as drivers come up.
type Dispatcher struct {
	vm     FaultResolver
	sys    SyscallHandler
	sched  Scheduler
	net    Network
	intCtl InterruptController

	// isrs holds the registered handler for each device interrupt vector.
	// A vector with a nil entry is not a recognized kernel event.
	isrs [NumVectors]func()

	// recovery holds the per-processor anticipated-fault slot. Only the
	// owning processor touches its slot, from InstallRecovery and from
	// its own trap path, so no locking is involved.
	recovery [cpu.MaxCPUs]recoverySlot
}

// NewDispatcher constructs a dispatcher around its collaborators.
func NewDispatcher(vm FaultResolver, sys SyscallHandler, sched Scheduler, net Network, intCtl InterruptController) *Dispatcher {
	return &Dispatcher{
		vm:     vm,
		sys:    sys,
		sched:  sched,
		net:    net,
		intCtl: intCtl,
	}
}

// RegisterISR attaches a device interrupt handler to a vector, making that
// vector a recognized kernel event. Drivers call this during probing with
// whatever vector their hardware was configured to raise.
func (d *Dispatcher) RegisterISR(v Vector, fn func()) {
	d.isrs[v] = fn
}

// RecoveryGuard scopes an anticipated-fault registration. Done must be
// called on the processor that installed it.
type RecoveryGuard struct {
	d     *Dispatcher
	cpuID uint32
}

// Done removes the recovery registration.
func (g *RecoveryGuard) Done() {
	g.d.recovery[g.cpuID] = recoverySlot{}
}

// InstallRecovery arms the anticipated-fault slot of the given processor.
// While armed, any trap taken by that processor is passed to fn instead of
// the normal dispatch policy. Nested registrations are a kernel bug.
func (d *Dispatcher) InstallRecovery(c *cpu.CPU, fn RecoveryFn, data interface{}) *RecoveryGuard {
	if d.recovery[c.ID].fn != nil {
		panic(errRecoveryNested)
	}
	d.recovery[c.ID] = recoverySlot{fn: fn, data: data}
	return &RecoveryGuard{d: d, cpuID: c.ID}
}

// Dispatch applies the trap handling policy to one trap frame. Returning
// normally resumes the interrupted context with the (possibly rewritten)
// frame; the fatal path never returns.
func (d *Dispatcher) Dispatch(c *cpu.CPU, tf *Frame) {
	// Page faults go to the address-space layer first; a resolved fault
	// resumes immediately regardless of any other state.
	if tf.Num == PageFault && d.vm != nil && d.vm.ResolveFault(c, tf) {
		return
	}

	switch {
	case d.recovery[c.ID].fn != nil:
		slot := d.recovery[c.ID]
		slot.fn(tf, slot.data)
	case d.recognized(tf.Num):
		d.handleEvent(c, tf)
	case tf.User():
		d.reflectUserTrap(c, tf)
	default:
		d.fatal(c, tf)
	}
}

// recognized reports whether v names an event the kernel itself services.
// A collaborator that is not wired in leaves its vectors unrecognized so
// they fall through to the user-trap or fatal paths.
func (d *Dispatcher) recognized(v Vector) bool {
	switch v {
	case Syscall:
		return d.sys != nil
	case LocalTimer, IRQSpurious:
		return true
	}
	return d.isrs[v] != nil
}

func (d *Dispatcher) handleEvent(c *cpu.CPU, tf *Frame) {
	switch tf.Num {
	case Syscall:
		d.sys.Syscall(c, tf)
	case LocalTimer:
		// The timer drives the cluster transport on every processor;
		// it preempts only contexts running at user privilege.
		if d.net != nil {
			d.net.Tick()
		}
		d.eoi()
		if tf.User() && d.sched != nil {
			d.sched.Yield(c, tf)
		}
	case IRQSpurious:
		// Spurious interrupts are logged and dropped without an
		// acknowledge cycle.
		kfmt.Printf("[trap] cpu %d: spurious interrupt\n", c.ID)
	default:
		d.isrs[tf.Num]()
		d.eoi()
	}
}

func (d *Dispatcher) eoi() {
	if d.intCtl != nil {
		d.intCtl.EOI()
	}
}

// reflectUserTrap handles a fault taken by user code. A process running away
// from its home node is first migrated back so its parent observes the fault
// there; a local process has the fault reflected to its parent.
func (d *Dispatcher) reflectUserTrap(c *cpu.CPU, tf *Frame) {
	if d.sched == nil {
		d.fatal(c, tf)
		return
	}

	proc := d.sched.Current(c)
	if d.net != nil {
		if home := proc.HomeNode(); home != d.net.NodeID() {
			kfmt.Printf("[trap] cpu %d: %s in process homed on node %d; migrating home\n", c.ID, Name(tf.Num), home)
			d.net.Migrate(c, tf, home)
			return
		}
	}
	d.sched.ReturnToParent(c, tf, -1)
}

// fatal reports an unhandled trap and halts. The console lock is broken
// first in case the interrupted code held it.
func (d *Dispatcher) fatal(c *cpu.CPU, tf *Frame) {
	kfmt.ReleaseConsoleIfHeld()

	mode := "kernel"
	if tf.User() {
		mode = "user"
	}

	w := kfmt.GetOutputSink()
	kfmt.Fprintf(w, "\n[trap] cpu %d: unhandled %s-mode trap %d (%s)\n", c.ID, mode, uint8(tf.Num), Name(tf.Num))
	tf.DumpTo(w)

	panicFn(errUnhandledTrap)
}
