package device

import (
	"io"

	"nodeos/kernel"
)

// Driver is an interface implemented by all drivers.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit initializes the device driver. If the driver init code
	// needs to log some output, it can use the supplied io.Writer in
	// conjunction with a call to kfmt.Fprintf.
	DriverInit(io.Writer) *kernel.Error
}

// ProbeFn is a function that scans for the presence of a particular
// piece of hardware and returns a driver for it.
type ProbeFn func() Driver

// DetectOrder groups drivers into detection phases. Drivers in an
// earlier phase are fully initialized before any driver in a later
// phase is probed.
type DetectOrder int

const (
	// DetectOrderEarly is used by drivers other subsystems depend on
	// during their own initialization (interrupt controller, NVRAM).
	DetectOrderEarly DetectOrder = -128

	// DetectOrderConsole is used by drivers that can serve as the
	// kernel console sink.
	DetectOrderConsole DetectOrder = -127

	// DetectOrderLast is used by ordinary peripheral drivers.
	DetectOrderLast DetectOrder = 127
)

// DriverInfo describes a driver to the hardware detection code.
type DriverInfo struct {
	// Order defines the detection phase for this driver.
	Order DetectOrder

	// Probe checks for the presence of the hardware this driver
	// manages and returns a driver instance for it.
	Probe ProbeFn
}

// DriverInfoList is a list of registered drivers sortable by detection
// order.
type DriverInfoList []*DriverInfo

// Len returns the number of entries in the list.
func (l DriverInfoList) Len() int { return len(l) }

// Swap exchanges two list entries.
func (l DriverInfoList) Swap(i, j int) { l[i], l[j] = l[j], l[i] }

// Less reports whether entry i must be probed before entry j.
func (l DriverInfoList) Less(i, j int) bool { return l[i].Order < l[j].Order }

var registeredDrivers DriverInfoList

// RegisterDriver adds a driver to the list the hardware detection code
// probes. Drivers call this from their package init functions.
func RegisterDriver(info *DriverInfo) {
	registeredDrivers = append(registeredDrivers, info)
}

// DriverList returns the list of registered drivers.
func DriverList() DriverInfoList {
	return registeredDrivers
}
