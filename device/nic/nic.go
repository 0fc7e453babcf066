// Package nic drives the cluster network interface. The device moves
// fixed-maximum-size frames between the wire and the transport layer: Send
// pushes a frame out, the receive interrupt hands incoming frames to the
// handler the transport layer registered.
package nic

import (
	"io"

	"nodeos/device"
	"nodeos/kernel"
)

const (
	// MaxFrameSize is the largest frame the device can move.
	MaxFrameSize = 1518

	// rxRingSize is the number of frames the receive ring can hold
	// before the device starts dropping.
	rxRingSize = 16
)

// Errors returned by the transmit path.
var (
	ErrFrameTooLarge = &kernel.Error{Module: "nic", Message: "frame exceeds the maximum frame size"}
	ErrDeviceDown    = &kernel.Error{Module: "nic", Message: "transmit on an uninitialized device"}
)

var (
	// irqLine is the interrupt line the device was configured to raise,
	// discovered at probe time. Tests and the bus scan substitute the
	// real value.
	irqLine = uint8(11)

	// wireFn transmits one frame on the wire. The default implementation
	// drops the frame.
	wireFn = func(frame []byte) {}
)

// Device is the cluster network interface driver.
type Device struct {
	vector uint8
	up     bool

	rxRing  [][]byte
	recvFn  func(frame []byte)
	dropped uint32
	sent    uint32
}

// IRQLine returns the interrupt line the device raises on frame reception.
// The dispatcher matches this dynamically instead of hard-wiring a vector.
func (d *Device) IRQLine() uint8 {
	return d.vector
}

// SetReceiveHandler registers the transport-layer function invoked for
// every received frame.
func (d *Device) SetReceiveHandler(fn func(frame []byte)) {
	d.recvFn = fn
}

// Send transmits one frame.
func (d *Device) Send(frame []byte) *kernel.Error {
	if !d.up {
		return ErrDeviceDown
	}
	if len(frame) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	wireFn(frame)
	d.sent++
	return nil
}

// InjectFrame appends a frame to the receive ring on behalf of the
// simulated wire. Frames arriving on a full ring are dropped.
func (d *Device) InjectFrame(frame []byte) {
	if len(d.rxRing) == rxRingSize {
		d.dropped++
		return
	}
	buf := make([]byte, len(frame))
	copy(buf, frame)
	d.rxRing = append(d.rxRing, buf)
}

// ISR services a receive interrupt: it hands every frame in the receive
// ring to the registered handler. Frames received before a handler was
// registered stay in the ring.
func (d *Device) ISR() {
	if d.recvFn == nil {
		return
	}
	for len(d.rxRing) > 0 {
		frame := d.rxRing[0]
		d.rxRing = d.rxRing[1:]
		d.recvFn(frame)
	}
}

// Stats returns the transmit and drop counters.
func (d *Device) Stats() (sent, dropped uint32) {
	return d.sent, d.dropped
}

// DriverName returns the name of this driver.
func (d *Device) DriverName() string {
	return "nic"
}

// DriverVersion returns the version of this driver.
func (d *Device) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit initializes this driver.
func (d *Device) DriverInit(w io.Writer) *kernel.Error {
	d.rxRing = make([][]byte, 0, rxRingSize)
	d.dropped, d.sent = 0, 0
	d.up = true
	return nil
}

func probeForNIC() device.Driver {
	return &Device{vector: irqLine}
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderLast,
		Probe: probeForNIC,
	})
}
