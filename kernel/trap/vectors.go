package trap

import (
	"unsafe"

	"nodeos/kernel"
	"nodeos/kernel/cpu"
)

// Vector is a trap/interrupt vector number.
type Vector uint8

// The processor exception vectors.
const (
	DivideError Vector = iota
	Debug
	NMI
	Breakpoint
	Overflow
	BoundRangeExceeded
	InvalidOpcode
	DeviceNotAvailable
	DoubleFault
	CoprocessorOverrun
	InvalidTSS
	SegmentNotPresent
	StackSegmentFault
	GeneralProtection
	PageFault
	reservedVector
	FloatingPointError
	AlignmentCheck
	MachineCheck
	SIMDFloatingPoint
)

// Hardware interrupt vectors start at IRQBase; the vectors below that are
// reserved for processor exceptions.
const (
	IRQBase Vector = 32
	NumIRQs        = 16

	IRQKeyboard = IRQBase + 1
	IRQSerial   = IRQBase + 4
	IRQSpurious = IRQBase + 7
)

// Software and local-interrupt vectors above the hardware interrupt block.
const (
	Syscall    Vector = 48
	LocalTimer Vector = 49

	NumVectors = 256
)

var vectorNames = [...]string{
	DivideError:        "divide error",
	Debug:              "debug",
	NMI:                "non-maskable interrupt",
	Breakpoint:         "breakpoint",
	Overflow:           "overflow",
	BoundRangeExceeded: "bounds check",
	InvalidOpcode:      "illegal opcode",
	DeviceNotAvailable: "device not available",
	DoubleFault:        "double fault",
	CoprocessorOverrun: "coprocessor segment overrun",
	InvalidTSS:         "invalid task switch segment",
	SegmentNotPresent:  "segment not present",
	StackSegmentFault:  "stack exception",
	GeneralProtection:  "general protection fault",
	PageFault:          "page fault",
	FloatingPointError: "floating point error",
	AlignmentCheck:     "alignment check",
	MachineCheck:       "machine check",
	SIMDFloatingPoint:  "SIMD floating point error",
}

// Name returns a human-readable name for v.
func Name(v Vector) string {
	switch {
	case int(v) < len(vectorNames) && vectorNames[v] != "":
		return vectorNames[v]
	case v == Syscall:
		return "system call"
	case v == LocalTimer:
		return "local timer"
	case v >= IRQBase && v < IRQBase+NumIRQs:
		return "hardware interrupt"
	}
	return "(unknown trap)"
}

// GateType selects how the processor treats maskable interrupts while the
// handler for a vector runs. Interrupt gates disable them on entry, trap
// gates leave them as they were.
type GateType uint8

const (
	InterruptGate GateType = iota
	TrapGate
)

// Gate describes a single vector table entry.
type Gate struct {
	Present bool
	Type    GateType

	// DPL is the minimum privilege required to raise this vector from
	// software. Vectors with DPL 0 still fire when the hardware raises
	// them from user mode; only the int instruction is gated.
	DPL uint8

	// Entry is the address of the per-vector entry stub that saves the
	// trap frame and funnels into the common dispatch path.
	Entry uintptr
}

// Entry stubs are laid out as a contiguous table of fixed-size thunks.
const (
	stubBase = uintptr(0x10a000)
	stubSize = uintptr(16)
)

// VectorTable holds the gate descriptors for all vectors. It is built once
// by the bootstrap processor and never mutated afterwards, so every
// processor loads the same table without further locking.
type VectorTable struct {
	gates [NumVectors]Gate
}

// Gate returns the descriptor installed for v.
func (vt *VectorTable) Gate(v Vector) Gate {
	return vt.gates[v]
}

func (vt *VectorTable) set(v Vector, t GateType, dpl uint8) {
	vt.gates[v] = Gate{
		Present: true,
		Type:    t,
		DPL:     dpl,
		Entry:   stubBase + uintptr(v)*stubSize,
	}
}

// BuildVectorTable constructs the full gate table: every defined processor
// exception, the hardware interrupt block, the system call vector and the
// local timer vector.
func BuildVectorTable() *VectorTable {
	vt := new(VectorTable)

	for v := DivideError; v <= SIMDFloatingPoint; v++ {
		if v == reservedVector {
			continue
		}
		vt.set(v, TrapGate, 0)
	}

	// Breakpoint and overflow may be raised from user code with int3/into.
	vt.gates[Breakpoint].DPL = 3
	vt.gates[Overflow].DPL = 3

	for v := IRQBase; v < IRQBase+NumIRQs; v++ {
		vt.set(v, InterruptGate, 0)
	}

	vt.set(Syscall, TrapGate, 3)
	vt.set(LocalTimer, InterruptGate, 0)

	return vt
}

// Descriptor is the pseudo-descriptor a processor loads to point its trap
// hardware at the shared vector table.
type Descriptor struct {
	Base  uintptr
	Limit uint16
}

var (
	errVectorsNotBuilt = &kernel.Error{Module: "trap", Message: "vector table used before the bootstrap processor built it"}

	table  *VectorTable
	loaded [cpu.MaxCPUs]Descriptor
)

// Init builds the shared vector table when invoked on the bootstrap
// processor and loads it on the invoking processor. Secondary processors
// only load; they fail if they race ahead of the bootstrap processor.
func Init(c *cpu.CPU) *kernel.Error {
	if c.OnBoot() && table == nil {
		table = BuildVectorTable()
	}
	if table == nil {
		return errVectorsNotBuilt
	}

	loaded[c.ID] = Descriptor{
		Base:  uintptr(unsafe.Pointer(table)),
		Limit: uint16(unsafe.Sizeof(table.gates) - 1),
	}
	return nil
}

// Vectors returns the shared vector table, or nil before Init ran on the
// bootstrap processor.
func Vectors() *VectorTable {
	return table
}

// LoadedDescriptor returns the descriptor the given processor loaded.
func LoadedDescriptor(c *cpu.CPU) Descriptor {
	return loaded[c.ID]
}
