// Package intctl drives the interrupt controller: it unmasks the interrupt
// lines the kernel uses and acknowledges each serviced interrupt so the
// controller can deliver the next one.
package intctl

import (
	"io"

	"nodeos/device"
	"nodeos/kernel"
)

// numLines is the number of maskable interrupt lines the controller
// multiplexes.
const numLines = 16

// cmdFn delivers a command byte to the controller. The default
// implementation drives the simulated controller state; the real port-IO
// backend substitutes its own.
var cmdFn func(cmd uint8)

// Device is the interrupt controller driver.
type Device struct {
	// mask holds one bit per line; a set bit means the line is masked
	// and the controller suppresses its interrupts.
	mask uint16

	// inService counts interrupts delivered but not yet acknowledged.
	inService uint32
}

const (
	cmdEOI = 0x20
)

// Enable unmasks an interrupt line.
func (d *Device) Enable(line uint8) {
	d.mask &= ^(uint16(1) << (line % numLines))
}

// Disable masks an interrupt line.
func (d *Device) Disable(line uint8) {
	d.mask |= uint16(1) << (line % numLines)
}

// Enabled returns true if the given line is unmasked.
func (d *Device) Enabled(line uint8) bool {
	return d.mask&(uint16(1)<<(line%numLines)) == 0
}

// Deliver records an interrupt delivery on behalf of the simulated
// hardware. Delivery on a masked line is dropped.
func (d *Device) Deliver(line uint8) bool {
	if !d.Enabled(line) {
		return false
	}
	d.inService++
	return true
}

// InService returns the number of delivered but unacknowledged interrupts.
func (d *Device) InService() uint32 {
	return d.inService
}

// EOI acknowledges the interrupt currently being serviced. The controller
// ignores an acknowledge with nothing in service, so EOI is safe to call
// from dispatch paths driven by synthetic frames.
func (d *Device) EOI() {
	if d.inService > 0 {
		d.inService--
	}
	cmdFn(cmdEOI)
}

// DriverName returns the name of this driver.
func (d *Device) DriverName() string {
	return "intctl"
}

// DriverVersion returns the version of this driver.
func (d *Device) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit initializes this driver: every line starts masked until a
// device driver claims it.
func (d *Device) DriverInit(w io.Writer) *kernel.Error {
	d.mask = 0xffff
	d.inService = 0
	if cmdFn == nil {
		cmdFn = func(uint8) {}
	}
	return nil
}

func probeForController() device.Driver {
	return &Device{}
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderEarly,
		Probe: probeForController,
	})
}
