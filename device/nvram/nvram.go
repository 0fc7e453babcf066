// Package nvram provides access to the BIOS-managed non-volatile RAM bank
// that accompanies the real-time clock. The kernel only cares about the
// memory sizing registers the BIOS fills in during its power-on tests.
package nvram

import (
	"io"

	"nodeos/device"
	"nodeos/kernel"
	"nodeos/kernel/mm"
)

// The NVRAM registers holding the BIOS memory probe results. Each value is
// a little-endian 16-bit kilobyte count split across two registers.
const (
	regBaseLo = 0x15
	regBaseHi = 0x16
	regExtLo  = 0x17
	regExtHi  = 0x18

	// The extended-above-16MB count, in 64KB units.
	regExt16Lo = 0x34
	regExt16Hi = 0x35
)

// extMemBase is the physical address where extended memory starts; the
// region between the top of base memory and this address belongs to the
// BIOS and memory-mapped devices.
const extMemBase = 1 * mm.Mb

var errSizingMissing = &kernel.Error{Module: "nvram", Message: "BIOS memory sizing registers are empty"}

// readFn reads a single NVRAM register. The default implementation is
// backed by a simulated register bank describing a machine with 640KB of
// base memory and the 16-bit extended count saturated; tests and the real
// port-IO backend substitute their own.
var readFn = defaultBank

func defaultBank(reg uint8) uint8 {
	switch reg {
	case regBaseLo:
		return 640 & 0xff
	case regBaseHi:
		return 640 >> 8
	case regExtLo, regExtHi, regExt16Lo, regExt16Hi:
		return 0xff
	}
	return 0
}

// Device reads the NVRAM register bank.
type Device struct{}

// Read returns the contents of a single NVRAM register.
func (d *Device) Read(reg uint8) uint8 {
	return readFn(reg)
}

// Read16 returns the little-endian 16-bit value stored in the register
// pair starting at reg.
func (d *Device) Read16(reg uint8) uint16 {
	return uint16(readFn(reg)) | uint16(readFn(reg+1))<<8
}

// BaseMemory returns the amount of base (below 640KB) memory reported by
// the BIOS, rounded down to a page boundary.
func (d *Device) BaseMemory() mm.Size {
	return (mm.Size(d.Read16(regBaseLo)) * mm.Kb).RoundDown(mm.PageSize)
}

// ExtMemory returns the amount of extended (above 1MB) memory reported by
// the BIOS, rounded down to a page boundary. The 16-bit kilobyte count
// caps the answer at 64MB; memory beyond that shows up in the
// extended-above-16MB count instead.
func (d *Device) ExtMemory() mm.Size {
	return (mm.Size(d.Read16(regExtLo)) * mm.Kb).RoundDown(mm.PageSize)
}

// TotalMemory returns the top of physical memory implied by the BIOS
// sizing registers: the base of extended memory plus the extended count.
// A machine with no extended memory tops out at its base memory.
func (d *Device) TotalMemory() mm.Size {
	if ext := d.ExtMemory(); ext != 0 {
		return extMemBase + ext
	}
	return d.BaseMemory()
}

// DriverName returns the name of this driver.
func (d *Device) DriverName() string {
	return "nvram"
}

// DriverVersion returns the version of this driver.
func (d *Device) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit initializes this driver.
func (d *Device) DriverInit(w io.Writer) *kernel.Error {
	if d.BaseMemory() == 0 {
		return errSizingMissing
	}
	return nil
}

func probeForNVRAM() device.Driver {
	return &Device{}
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderEarly,
		Probe: probeForNVRAM,
	})
}
