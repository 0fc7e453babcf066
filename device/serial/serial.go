// Package serial drives the UART the kernel uses as its console. The
// transmit side implements io.Writer so the device can be registered as the
// kfmt output sink; the receive side buffers incoming bytes delivered by the
// serial interrupt.
package serial

import (
	"io"

	"nodeos/device"
	"nodeos/kernel"
)

// rxBufSize is the size of the receive ring buffer. Must be a power of 2.
const rxBufSize = 256

var errBufSizeNotPow2 = &kernel.Error{Module: "serial", Message: "receive buffer size must be a power of 2"}

var (
	// txFn transmits a single byte on the line. The default
	// implementation drops the byte; hardware detection installs the
	// port-IO backend and tests capture the output.
	txFn = func(b byte) {}

	// rxFn pulls the next byte out of the receiver FIFO, reporting false
	// when the FIFO is empty.
	rxFn = func() (byte, bool) { return 0, false }
)

// Device is the serial console driver.
type Device struct {
	rxBuf  [rxBufSize]byte
	rxR    int
	rxW    int
	missed uint32
}

// Write transmits the contents of p, satisfying io.Writer so the device can
// serve as the kernel console sink.
func (d *Device) Write(p []byte) (int, error) {
	for _, b := range p {
		txFn(b)
	}
	return len(p), nil
}

// ISR services a receive interrupt: it drains the receiver FIFO into the
// ring buffer, counting bytes that arrive while the buffer is full.
func (d *Device) ISR() {
	for {
		b, ok := rxFn()
		if !ok {
			return
		}
		if d.rxW-d.rxR == rxBufSize {
			d.missed++
			continue
		}
		d.rxBuf[d.rxW%rxBufSize] = b
		d.rxW++
	}
}

// ReadByte returns the next buffered input byte, reporting false when no
// input is pending.
func (d *Device) ReadByte() (byte, bool) {
	if d.rxR == d.rxW {
		return 0, false
	}
	b := d.rxBuf[d.rxR%rxBufSize]
	d.rxR++
	return b, true
}

// Missed returns the number of input bytes dropped due to a full buffer.
func (d *Device) Missed() uint32 {
	return d.missed
}

// DriverName returns the name of this driver.
func (d *Device) DriverName() string {
	return "serial"
}

// DriverVersion returns the version of this driver.
func (d *Device) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit initializes this driver.
func (d *Device) DriverInit(w io.Writer) *kernel.Error {
	if rxBufSize&(rxBufSize-1) != 0 {
		return errBufSizeNotPow2
	}
	d.rxR, d.rxW, d.missed = 0, 0, 0
	return nil
}

func probeForSerial() device.Driver {
	return &Device{}
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderConsole,
		Probe: probeForSerial,
	})
}
