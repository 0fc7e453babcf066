// Package hal discovers the hardware the kernel runs on: it probes the
// registered device drivers in detection order, initializes the ones whose
// hardware is present and wires their interrupt handlers into the trap
// dispatcher.
package hal

import (
	"bytes"
	"sort"

	"nodeos/device"
	"nodeos/device/intctl"
	"nodeos/device/kbd"
	"nodeos/device/nic"
	"nodeos/device/nvram"
	"nodeos/device/serial"
	"nodeos/kernel/kfmt"
	"nodeos/kernel/trap"
)

// managedDevices contains the devices discovered by the HAL.
type managedDevices struct {
	nvram  *nvram.Device
	intCtl *intctl.Device
	serial *serial.Device
	kbd    *kbd.Device
	nic    *nic.Device

	// activeDrivers tracks all initialized device drivers.
	activeDrivers []device.Driver
}

var (
	devices managedDevices
	strBuf  bytes.Buffer
)

// NVRAM returns the discovered NVRAM device.
func NVRAM() *nvram.Device {
	return devices.nvram
}

// InterruptController returns the discovered interrupt controller.
func InterruptController() *intctl.Device {
	return devices.intCtl
}

// ActiveConsole returns the serial device acting as the kernel console.
func ActiveConsole() *serial.Device {
	return devices.serial
}

// Keyboard returns the discovered keyboard device.
func Keyboard() *kbd.Device {
	return devices.kbd
}

// NIC returns the discovered cluster network interface.
func NIC() *nic.Device {
	return devices.nic
}

// DetectHardware probes for hardware devices and initializes the appropriate
// drivers.
func DetectHardware() {
	// Get driver list and sort by detection priority
	drivers := device.DriverList()
	sort.Sort(drivers)

	probe(drivers)
}

// probe executes the probe function for each driver and invokes
// onDriverInit for each successfully initialized driver.
func probe(driverInfoList device.DriverInfoList) {
	var w = kfmt.PrefixWriter{Sink: kfmt.GetOutputSink()}

	for _, info := range driverInfoList {
		drv := info.Probe()
		if drv == nil {
			continue
		}

		strBuf.Reset()
		major, minor, patch := drv.DriverVersion()
		kfmt.Fprintf(&strBuf, "[hal] %s(%d.%d.%d): ", drv.DriverName(), major, minor, patch)
		w.Prefix = strBuf.Bytes()

		if err := drv.DriverInit(&w); err != nil {
			kfmt.Fprintf(&w, "init failed: %s\n", err.Message)
			continue
		}

		kfmt.Fprintf(&w, "initialized\n")
		onDriverInit(drv)
		devices.activeDrivers = append(devices.activeDrivers, drv)
	}
}

// onDriverInit is invoked by probe() whenever a piece of hardware is detected
// and successfully initialized. The first serial device becomes the kernel
// console sink.
func onDriverInit(drv device.Driver) {
	switch drvImpl := drv.(type) {
	case *nvram.Device:
		devices.nvram = drvImpl
	case *intctl.Device:
		devices.intCtl = drvImpl
	case *serial.Device:
		if devices.serial != nil {
			return
		}
		devices.serial = drvImpl
		kfmt.SetOutputSink(drvImpl)
	case *kbd.Device:
		devices.kbd = drvImpl
	case *nic.Device:
		devices.nic = drvImpl
	}
}

// WireISRs registers the interrupt handlers of the discovered devices with
// the trap dispatcher and unmasks their interrupt lines.
func WireISRs(d *trap.Dispatcher) {
	if devices.intCtl == nil {
		return
	}

	if devices.kbd != nil {
		d.RegisterISR(trap.IRQKeyboard, devices.kbd.ISR)
		devices.intCtl.Enable(uint8(trap.IRQKeyboard - trap.IRQBase))
	}
	if devices.serial != nil {
		d.RegisterISR(trap.IRQSerial, devices.serial.ISR)
		devices.intCtl.Enable(uint8(trap.IRQSerial - trap.IRQBase))
	}
	if devices.nic != nil {
		d.RegisterISR(trap.IRQBase+trap.Vector(devices.nic.IRQLine()), devices.nic.ISR)
		devices.intCtl.Enable(devices.nic.IRQLine())
	}
}
