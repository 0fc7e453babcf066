// Package trap implements the trap/interrupt vector table and the dispatch
// policy applied to every synchronous exception and asynchronous interrupt
// raised while the kernel runs. The vector table is built once by the
// bootstrap processor and shared read-only by every processor; dispatching
// consults per-processor recovery state and a small set of collaborator
// interfaces (virtual memory, scheduler, network, devices).
package trap

import (
	"io"

	"nodeos/kernel/kfmt"
)

// Code segment selector values for the two privilege levels. The low two
// bits of CS hold the privilege of the interrupted context.
const (
	KernelCS = 0x08
	UserCS   = 0x1b
)

// Registers contains a snapshot of the general register values at the moment
// a trap occurred.
type Registers struct {
	RAX uint64
	RBX uint64
	RCX uint64
	RDX uint64
	RSI uint64
	RDI uint64
	RBP uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64
}

// DumpTo outputs the register contents to w.
func (r *Registers) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "RAX = %16x RBX = %16x\n", r.RAX, r.RBX)
	kfmt.Fprintf(w, "RCX = %16x RDX = %16x\n", r.RCX, r.RDX)
	kfmt.Fprintf(w, "RSI = %16x RDI = %16x\n", r.RSI, r.RDI)
	kfmt.Fprintf(w, "RBP = %16x\n", r.RBP)
	kfmt.Fprintf(w, "R8  = %16x R9  = %16x\n", r.R8, r.R9)
	kfmt.Fprintf(w, "R10 = %16x R11 = %16x\n", r.R10, r.R11)
	kfmt.Fprintf(w, "R12 = %16x R13 = %16x\n", r.R12, r.R13)
	kfmt.Fprintf(w, "R14 = %16x R15 = %16x\n", r.R14, r.R15)
}

// Frame is the fixed-layout snapshot of processor state captured when a trap
// fires. It is constructed by the trap entry stub, may be mutated by the
// dispatcher (for instance an instruction-pointer override during recovery)
// and is consumed by the trap-return path that restores processor state.
type Frame struct {
	Regs Registers

	// Num is the hardware trap/interrupt number and Code the hardware
	// error code (zero for vectors that do not push one).
	Num  Vector
	Code uint64

	// The return frame restored when the interrupted context resumes.
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// User returns true if the interrupted context was executing at user
// privilege.
func (f *Frame) User() bool {
	return f.CS&3 == 3
}

// DumpTo outputs a dump of the trap frame to w.
func (f *Frame) DumpTo(w io.Writer) {
	f.Regs.DumpTo(w)
	kfmt.Fprintf(w, "\n")
	kfmt.Fprintf(w, "trap= %16d %s\n", uint8(f.Num), Name(f.Num))
	kfmt.Fprintf(w, "err = %16x\n", f.Code)
	kfmt.Fprintf(w, "RIP = %16x CS  = %16x\n", f.RIP, f.CS)
	kfmt.Fprintf(w, "RSP = %16x SS  = %16x\n", f.RSP, f.SS)
	kfmt.Fprintf(w, "RFL = %16x\n", f.RFlags)
}
