package hal

import (
	"bytes"
	"strings"
	"testing"

	"nodeos/kernel/cpu"
	"nodeos/kernel/kfmt"
	"nodeos/kernel/trap"
)

func resetManagedDevices(t *testing.T) *bytes.Buffer {
	t.Helper()

	devices = managedDevices{}
	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)
	t.Cleanup(func() { kfmt.SetOutputSink(nil) })
	return &buf
}

func TestDetectHardware(t *testing.T) {
	buf := resetManagedDevices(t)

	DetectHardware()

	if devices.nvram == nil || devices.intCtl == nil || devices.kbd == nil || devices.nic == nil {
		t.Fatalf("expected every simulated device to be discovered; got %+v", devices)
	}
	if devices.serial == nil {
		t.Fatal("expected a serial console to be discovered")
	}
	if kfmt.GetOutputSink() != devices.serial {
		t.Fatal("expected the serial device to become the console sink")
	}

	for _, exp := range []string{
		"[hal] nvram(0.1.0): initialized",
		"[hal] serial(0.1.0): initialized",
	} {
		if !strings.Contains(buf.String(), exp) {
			t.Errorf("expected the probe log to contain %q; log:\n%s", exp, buf.String())
		}
	}

	if exp, got := 5, len(devices.activeDrivers); got != exp {
		t.Fatalf("expected %d active drivers; got %d", exp, got)
	}
}

func TestWireISRs(t *testing.T) {
	resetManagedDevices(t)
	DetectHardware()

	d := trap.NewDispatcher(nil, nil, nil, nil, devices.intCtl)
	WireISRs(d)

	// Each wired device has its interrupt line unmasked.
	for _, line := range []uint8{
		uint8(trap.IRQKeyboard - trap.IRQBase),
		uint8(trap.IRQSerial - trap.IRQBase),
		devices.nic.IRQLine(),
	} {
		if !devices.intCtl.Enabled(line) {
			t.Errorf("expected interrupt line %d to be unmasked", line)
		}
	}

	// Interrupt frames for the wired vectors flow through dispatch
	// without tripping the fatal path.
	nicVector := trap.IRQBase + trap.Vector(devices.nic.IRQLine())
	for _, v := range []trap.Vector{trap.IRQKeyboard, trap.IRQSerial, nicVector} {
		d.Dispatch(cpu.Boot(), &trap.Frame{Num: v, CS: trap.KernelCS})
	}
}

func TestWireISRsWithoutController(t *testing.T) {
	resetManagedDevices(t)

	// With no interrupt controller nothing can be wired; this must not
	// blow up.
	WireISRs(trap.NewDispatcher(nil, nil, nil, nil, nil))
}
